package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/owleye/internal/handler"
	"github.com/iliyamo/owleye/internal/middleware"
)

// RegisterRealtime registers the websocket endpoints.  Browsers cannot set
// headers on an upgrade, so the token may travel as ?token=; connections
// without one are anonymous.
func RegisterRealtime(e *echo.Echo, ws *handler.WSHandler, jwtSecret string) {
	g := e.Group("/ws", middleware.OptionalJWT(jwtSecret))
	g.GET("/track/:venue_id", ws.Track)
	g.GET("/:kind/:venue_id", ws.Topic)
}
