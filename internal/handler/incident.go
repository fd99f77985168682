package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/owleye/internal/middleware"
	"github.com/iliyamo/owleye/internal/model"
	"github.com/iliyamo/owleye/internal/service"
)

// IncidentHandler exposes incident reporting and triage.
type IncidentHandler struct {
	Incidents *service.IncidentService
}

func NewIncidentHandler(incidents *service.IncidentService) *IncidentHandler {
	return &IncidentHandler{Incidents: incidents}
}

// Report handles POST /v1/venues/:id/incidents.
func (h *IncidentHandler) Report(c echo.Context) error {
	venueID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid venue id")
	}
	var in service.ReportIncidentInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}
	inc, err := h.Incidents.Report(c.Request().Context(), venueID, middleware.IdentityFrom(c), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, inc)
}

// List handles GET /v1/venues/:id/incidents?open=true.
func (h *IncidentHandler) List(c echo.Context) error {
	venueID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid venue id")
	}
	open := strings.EqualFold(c.QueryParam("open"), "true")
	out, err := h.Incidents.List(c.Request().Context(), venueID, open)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Transition handles PATCH /v1/incidents/:id with body {"status": ...}.
func (h *IncidentHandler) Transition(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid incident id")
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	next := model.IncidentStatus(strings.ToUpper(body.Status))
	inc, err := h.Incidents.Transition(c.Request().Context(), id, next, middleware.IdentityFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, inc)
}
