package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/owleye/internal/middleware"
	"github.com/iliyamo/owleye/internal/model"
)

// RegisterSafety registers location ingest and the incident, SOS and
// safety alert lifecycles on the authenticated /v1 group.
func RegisterSafety(g *echo.Group, h Handlers, limit echo.MiddlewareFunc) {
	g.POST("/venues/:id/locations", h.Location.Report, limit)

	g.POST("/venues/:id/incidents", h.Incident.Report)
	g.GET("/venues/:id/incidents", h.Incident.List)
	g.PATCH("/incidents/:id", h.Incident.Transition, middleware.RequireRole(
		model.RoleOrganizer, model.RoleStaff, model.RoleVolunteer, model.RoleAuthority))

	g.POST("/venues/:id/sos", h.SOS.Raise)
	g.GET("/venues/:id/sos", h.SOS.Active)
	g.PATCH("/sos/:id", h.SOS.Transition)

	g.POST("/venues/:id/alerts", h.Alert.Send, middleware.RequireRole(model.RoleOrganizer, model.RoleAuthority))
	g.GET("/venues/:id/alerts", h.Alert.Recent)
}
