package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/owleye/internal/broadcast"
	"github.com/iliyamo/owleye/internal/config"
	"github.com/iliyamo/owleye/internal/middleware"
)

const writeWait = 10 * time.Second

// WSHandler bridges websocket connections to broadcast sessions.  Each
// connection gets one session, one reader goroutine feeding the command
// dispatcher and one writer goroutine draining the session queue.
type WSHandler struct {
	reg        *broadcast.Registry
	dispatcher *broadcast.Dispatcher
	cfg        config.BroadcastConfig
	upgrader   websocket.Upgrader
	base       context.Context
	log        zerolog.Logger
}

func NewWSHandler(reg *broadcast.Registry, dispatcher *broadcast.Dispatcher, cfg config.BroadcastConfig) *WSHandler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 4096
	}
	return &WSHandler{
		reg:        reg,
		dispatcher: dispatcher,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		base: context.Background(),
		log:  log.With().Str("component", "ws").Logger(),
	}
}

// WithBaseContext ties every connection to ctx; cancelling it closes them.
func (h *WSHandler) WithBaseContext(ctx context.Context) *WSHandler {
	h.base = ctx
	return h
}

// Topic handles GET /ws/:kind/:venue_id.  The connection starts joined to
// the {kind}_{venue_id} topic and may subscribe to further topics of the
// same venue.
func (h *WSHandler) Topic(c echo.Context) error {
	kind, ok := broadcast.KindFromPath(c.Param("kind"))
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found", "message": "unknown channel"})
	}
	venueID, ok := pathID(c, "venue_id")
	if !ok {
		return badRequest(c, "invalid venue id")
	}
	t := broadcast.Topic{Kind: kind, VenueID: venueID}
	return h.serve(c, venueID, &t)
}

// Track handles GET /ws/track/:venue_id.  It joins nothing; bare
// {"lat":..,"lng":..} frames are ingested as live location reports.
func (h *WSHandler) Track(c echo.Context) error {
	venueID, ok := pathID(c, "venue_id")
	if !ok {
		return badRequest(c, "invalid venue id")
	}
	return h.serve(c, venueID, nil)
}

func (h *WSHandler) serve(c echo.Context, venueID uint64, initial *broadcast.Topic) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		h.log.Debug().Err(err).Msg("upgrade failed")
		return nil
	}

	s := h.reg.NewSession(middleware.IdentityFrom(c), venueID, h.cfg.SessionQueueSize)
	logger := h.log.With().Str("session_id", s.ID).Uint64("venue_id", venueID).Logger()
	if err := s.Activate(); err != nil {
		_ = conn.Close()
		return nil
	}
	if initial != nil {
		if err := s.Join(*initial); err != nil {
			s.Close()
			_ = conn.Close()
			return nil
		}
	}
	logger.Debug().Str("remote_addr", c.RealIP()).Msg("session opened")

	ctx, cancel := context.WithCancel(h.base)
	go h.writePump(ctx, conn, s, logger)
	h.readPump(ctx, conn, s, logger)

	cancel()
	s.Close()
	logger.Debug().Uint64("dropped", s.Dropped()).Msg("session closed")
	return nil
}

// readPump runs on the request goroutine until the peer goes away.
func (h *WSHandler) readPump(ctx context.Context, conn *websocket.Conn, s *broadcast.Session, logger zerolog.Logger) {
	defer conn.Close()
	pongWait := 2 * h.cfg.PingInterval
	conn.SetReadLimit(h.cfg.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := h.dispatcher.Handle(ctx, s, raw); err != nil {
			return
		}
	}
}

// writePump is the only writer on conn.
func (h *WSHandler) writePump(ctx context.Context, conn *websocket.Conn, s *broadcast.Session, logger zerolog.Logger) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.Ready():
			for {
				msg, ok := s.Pop()
				if !ok {
					break
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					if !errors.Is(err, websocket.ErrCloseSent) {
						logger.Debug().Err(err).Msg("websocket write failed")
					}
					return
				}
			}
		}
	}
}
