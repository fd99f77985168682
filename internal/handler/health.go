package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// TopicCounter reports how many broadcast topics have live subscribers.
type TopicCounter interface {
	TopicCount() int
}

// HealthHandler answers liveness probes.
type HealthHandler struct {
	DB     *sql.DB
	Topics TopicCounter
}

func NewHealthHandler(db *sql.DB, topics TopicCounter) *HealthHandler {
	return &HealthHandler{DB: db, Topics: topics}
}

// Health returns 200 with the number of live topics while the database
// answers a ping, 503 otherwise.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.DB.PingContext(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded", "database": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "topics": h.Topics.TopicCount()})
}
