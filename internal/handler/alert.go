package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/owleye/internal/middleware"
	"github.com/iliyamo/owleye/internal/service"
)

type AlertHandler struct {
	Alerts *service.AlertService
}

func NewAlertHandler(alerts *service.AlertService) *AlertHandler {
	return &AlertHandler{Alerts: alerts}
}

// Send handles POST /v1/venues/:id/alerts.
func (h *AlertHandler) Send(c echo.Context) error {
	venueID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid venue id")
	}
	var in service.SendAlertInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}
	a, err := h.Alerts.Send(c.Request().Context(), venueID, middleware.IdentityFrom(c), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

// Recent handles GET /v1/venues/:id/alerts?limit=N.
func (h *AlertHandler) Recent(c echo.Context) error {
	venueID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid venue id")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	out, err := h.Alerts.Recent(c.Request().Context(), venueID, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
