package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/owleye/internal/middleware"
	"github.com/iliyamo/owleye/internal/model"
	"github.com/iliyamo/owleye/internal/service"
)

type SOSHandler struct {
	SOS *service.SOSService
}

func NewSOSHandler(sos *service.SOSService) *SOSHandler {
	return &SOSHandler{SOS: sos}
}

// Raise handles POST /v1/venues/:id/sos.
func (h *SOSHandler) Raise(c echo.Context) error {
	venueID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid venue id")
	}
	var in service.RaiseSOSInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}
	a, err := h.SOS.Raise(c.Request().Context(), venueID, middleware.IdentityFrom(c), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

// Active handles GET /v1/venues/:id/sos.
func (h *SOSHandler) Active(c echo.Context) error {
	venueID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid venue id")
	}
	out, err := h.SOS.Active(c.Request().Context(), venueID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Transition handles PATCH /v1/sos/:id.
func (h *SOSHandler) Transition(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid sos id")
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	next := model.SOSStatus(strings.ToUpper(body.Status))
	a, err := h.SOS.Transition(c.Request().Context(), id, next, middleware.IdentityFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}
