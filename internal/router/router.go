// Package router registers the HTTP and websocket routes on an Echo
// instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/owleye/internal/config"
	"github.com/iliyamo/owleye/internal/handler"
	"github.com/iliyamo/owleye/internal/middleware"
)

// Handlers bundles every handler the routes dispatch to.
type Handlers struct {
	Health   *handler.HealthHandler
	Venue    *handler.VenueHandler
	Ticket   *handler.TicketHandler
	Location *handler.LocationHandler
	Incident *handler.IncidentHandler
	SOS      *handler.SOSHandler
	Alert    *handler.AlertHandler
	WS       *handler.WSHandler
}

// Options carries the settings the route middleware needs.  A nil Redis
// disables rate limiting and response caching.
type Options struct {
	JWTSecret string
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
}

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// Register wires the complete API.
func Register(e *echo.Echo, h Handlers, opts Options) {
	RegisterRoutes(e, h.Health)

	limit := middleware.NewTokenBucket(opts.RateLimit, opts.Redis)
	cache := middleware.NewRedisCache(opts.Cache, opts.Redis)

	e.GET("/v1/venues/:id", h.Venue.Get, cache)

	g := e.Group("/v1", middleware.JWTAuth(opts.JWTSecret))
	RegisterVenues(g, h.Venue, h.Ticket, limit)
	RegisterSafety(g, h, limit)
	RegisterRealtime(e, h.WS, opts.JWTSecret)
}
