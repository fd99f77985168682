package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/owleye/internal/middleware"
	"github.com/iliyamo/owleye/internal/model"
	"github.com/iliyamo/owleye/internal/service"
)

// heatmapWindow bounds the samples used to seed a new heatmap viewer.
const heatmapWindow = 15 * time.Minute

// VenueHandler exposes venue management, the command center summary and
// the heatmap seed.
type VenueHandler struct {
	Venues   *service.VenueService
	Location *service.LocationService
}

func NewVenueHandler(venues *service.VenueService, location *service.LocationService) *VenueHandler {
	return &VenueHandler{Venues: venues, Location: location}
}

// Create handles POST /v1/venues.
func (h *VenueHandler) Create(c echo.Context) error {
	var in service.CreateVenueInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}
	v, err := h.Venues.Create(c.Request().Context(), middleware.IdentityFrom(c), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, v)
}

// Get handles GET /v1/venues/:id.
func (h *VenueHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid venue id")
	}
	v, err := h.Venues.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// SetStatus handles PATCH /v1/venues/:id/status with body {"status": ...}.
func (h *VenueHandler) SetStatus(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid venue id")
	}
	var body struct {
		Status model.VenueStatus `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	v, err := h.Venues.SetStatus(c.Request().Context(), id, body.Status, middleware.IdentityFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// Stats handles GET /v1/venues/:id/stats.
func (h *VenueHandler) Stats(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid venue id")
	}
	st, err := h.Venues.Stats(c.Request().Context(), id, middleware.IdentityFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// Heatmap handles GET /v1/venues/:id/heatmap.  It returns the recent
// samples as one heatmap_data frame so a client can paint before the
// first live point arrives.
func (h *VenueHandler) Heatmap(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid venue id")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}
	samples, err := h.Location.Recent(c.Request().Context(), id, heatmapWindow, limit)
	if err != nil {
		return respondError(c, err)
	}
	points := make([][3]float64, 0, len(samples))
	for _, s := range samples {
		points = append(points, [3]float64{s.Lat, s.Lng, s.Source.Intensity()})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"type":      "heatmap_data",
		"points":    points,
		"timestamp": time.Now().UTC(),
	})
}
