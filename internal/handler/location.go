package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/owleye/internal/middleware"
	"github.com/iliyamo/owleye/internal/model"
	"github.com/iliyamo/owleye/internal/service"
)

type LocationHandler struct {
	Location *service.LocationService
}

func NewLocationHandler(location *service.LocationService) *LocationHandler {
	return &LocationHandler{Location: location}
}

// Report handles POST /v1/venues/:id/locations.
func (h *LocationHandler) Report(c echo.Context) error {
	venueID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid venue id")
	}
	var body struct {
		Lat    *float64             `json:"lat"`
		Lng    *float64             `json:"lng"`
		Source model.PositionSource `json:"source"`
		Status string               `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Lat == nil || body.Lng == nil {
		return badRequest(c, "lat and lng are required")
	}
	sample, err := h.Location.Ingest(c.Request().Context(), service.IngestInput{
		VenueID: venueID,
		Subject: middleware.IdentityFrom(c),
		Lat:     *body.Lat,
		Lng:     *body.Lng,
		Source:  body.Source,
		Status:  body.Status,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusAccepted, sample)
}
