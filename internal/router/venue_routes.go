package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/owleye/internal/handler"
	"github.com/iliyamo/owleye/internal/middleware"
	"github.com/iliyamo/owleye/internal/model"
)

// RegisterVenues registers venue management and admission endpoints on the
// authenticated /v1 group.  Role gates here are coarse; ownership of the
// venue is enforced by the services.
func RegisterVenues(g *echo.Group, v *handler.VenueHandler, t *handler.TicketHandler, limit echo.MiddlewareFunc) {
	organizer := middleware.RequireRole(model.RoleOrganizer)
	gate := middleware.RequireRole(model.RoleOrganizer, model.RoleStaff)

	// ---- Venues ----
	g.POST("/venues", v.Create, organizer)
	g.PATCH("/venues/:id/status", v.SetStatus, organizer)
	g.GET("/venues/:id/stats", v.Stats, middleware.RequireRole(model.RoleOrganizer, model.RoleStaff, model.RoleAuthority))
	g.GET("/venues/:id/heatmap", v.Heatmap)

	// ---- Tickets ----
	g.POST("/venues/:id/tickets", t.Issue)
	g.GET("/tickets/mine", t.Mine)
	g.POST("/tickets/scan", t.Scan, gate, limit)
	g.POST("/tickets/:id/invalidate", t.Invalidate, gate)
}
