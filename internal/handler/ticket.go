package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/owleye/internal/middleware"
	"github.com/iliyamo/owleye/internal/service"
)

// TicketHandler exposes registration and the gate scan.
type TicketHandler struct {
	Admission *service.AdmissionService
}

func NewTicketHandler(admission *service.AdmissionService) *TicketHandler {
	return &TicketHandler{Admission: admission}
}

// Issue handles POST /v1/venues/:id/tickets for the calling user.
func (h *TicketHandler) Issue(c echo.Context) error {
	venueID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid venue id")
	}
	t, err := h.Admission.Issue(c.Request().Context(), venueID, middleware.IdentityFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}

// Mine handles GET /v1/tickets/mine.
func (h *TicketHandler) Mine(c echo.Context) error {
	ts, err := h.Admission.ListForHolder(c.Request().Context(), middleware.IdentityFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, ts)
}

// Scan handles POST /v1/tickets/scan with body {"qr_token": ...}.  A repeat
// scan answers 409 with the original scanned_at.
func (h *TicketHandler) Scan(c echo.Context) error {
	var body struct {
		QRToken string `json:"qr_token"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	t, err := h.Admission.Scan(c.Request().Context(), body.QRToken, middleware.IdentityFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// Invalidate handles POST /v1/tickets/:id/invalidate.
func (h *TicketHandler) Invalidate(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid ticket id")
	}
	t, err := h.Admission.Invalidate(c.Request().Context(), id, middleware.IdentityFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}
