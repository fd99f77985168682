package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/owleye/internal/service"
)

// conflicts maps the expected refusal outcomes to their response codes.
var conflicts = []struct {
	err  error
	code string
}{
	{service.ErrAlreadyRegistered, "already_registered"},
	{service.ErrCapacityExceeded, "capacity_exceeded"},
	{service.ErrVenueNotOpen, "venue_not_open"},
	{service.ErrInvalidated, "ticket_invalidated"},
	{service.ErrInvalidTransition, "invalid_transition"},
}

// respondError writes the JSON error body for a service error.  Every
// handler funnels failures through here so the status mapping stays in
// one place.
func respondError(c echo.Context, err error) error {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_failed", "message": ve.Error(), "field": ve.Field})
	}
	var scanned *service.AlreadyScannedError
	if errors.As(err, &scanned) {
		body := echo.Map{"error": "already_scanned", "message": scanned.Error()}
		if !scanned.ScannedAt.IsZero() {
			body["scanned_at"] = scanned.ScannedAt.UTC()
		}
		return c.JSON(http.StatusConflict, body)
	}
	for _, cf := range conflicts {
		if errors.Is(err, cf.err) {
			return c.JSON(http.StatusConflict, echo.Map{"error": cf.code, "message": err.Error()})
		}
	}
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "message": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found", "message": err.Error()})
	case errors.Is(err, service.ErrTransient):
		log.Warn().Err(err).Str("path", c.Path()).Msg("transient failure")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "unavailable", "message": "temporarily unavailable, retry"})
	}
	log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "internal error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "bad_request", "message": msg})
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}
