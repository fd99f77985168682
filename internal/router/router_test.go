package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/owleye/internal/broadcast"
	"github.com/iliyamo/owleye/internal/config"
	"github.com/iliyamo/owleye/internal/handler"
	"github.com/iliyamo/owleye/internal/model"
	"github.com/iliyamo/owleye/internal/repository"
	"github.com/iliyamo/owleye/internal/service"
	"github.com/iliyamo/owleye/internal/testutil"
)

var (
	organizer = model.Identity{ID: 1, Role: model.RoleOrganizer}
	staff     = model.Identity{ID: 2, Role: model.RoleStaff}
	attendee  = model.Identity{ID: 100, Role: model.RoleAttendee}
)

type testServer struct {
	*httptest.Server
	reg *broadcast.Registry
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.NewDB(t)
	reg := broadcast.NewRegistry(nil)

	venues := repository.NewVenueRepo(db)
	tickets := repository.NewTicketRepo(db)
	incidents := repository.NewIncidentRepo(db)
	sosRepo := repository.NewSOSRepo(db)

	location := service.NewLocationService(repository.NewPositionRepo(db), venues, reg)
	admission := service.NewAdmissionService(db, venues, tickets, location, reg, nil)
	bcfg := config.BroadcastConfig{SessionQueueSize: 64, PingInterval: time.Second, ReadLimit: 4096}

	e := echo.New()
	Register(e, Handlers{
		Health:   handler.NewHealthHandler(db, reg),
		Venue:    handler.NewVenueHandler(service.NewVenueService(venues, tickets, incidents, sosRepo, reg), location),
		Ticket:   handler.NewTicketHandler(admission),
		Location: handler.NewLocationHandler(location),
		Incident: handler.NewIncidentHandler(service.NewIncidentService(incidents, venues, reg, nil)),
		SOS:      handler.NewSOSHandler(service.NewSOSService(sosRepo, venues, reg, nil)),
		Alert:    handler.NewAlertHandler(service.NewAlertService(repository.NewAlertRepo(db), venues, reg, nil)),
		WS:       handler.NewWSHandler(reg, broadcast.NewDispatcher(location), bcfg),
	}, Options{JWTSecret: testutil.JWTSecret})

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, reg: reg}
}

func (s *testServer) do(t *testing.T, method, path string, who *model.Identity, body any) (int, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(bs)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if who != nil {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+testutil.Token(t, *who))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		var raw any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
		out, _ = raw.(map[string]any)
	}
	return resp.StatusCode, out
}

func (s *testServer) dial(t *testing.T, path string, who *model.Identity) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + path
	if who != nil {
		url += "?token=" + testutil.Token(t, *who)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	handshake(t, conn)
	return conn
}

// handshake round-trips a ping so the server side session is known to be joined
// and reading.
func handshake(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	var r broadcast.Reply
	read(t, conn, &r)
	require.Equal(t, "pong", r.Type)
}

func read(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	require.NoError(t, conn.ReadJSON(v))
}

func (s *testServer) createVenue(t *testing.T, capacity int) uint64 {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/v1/venues", &organizer, map[string]any{
		"title": "Arena", "location_lat": 12.97, "location_lng": 77.59, "capacity": capacity,
	})
	require.Equal(t, http.StatusCreated, code, body)
	return uint64(body["id"].(float64))
}

func TestHealthz(t *testing.T) {
	s := newServer(t)
	code, body := s.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestVenueRoutes(t *testing.T) {
	s := newServer(t)

	code, body := s.do(t, http.MethodPost, "/v1/venues", nil, map[string]any{"title": "x", "capacity": 1})
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = s.do(t, http.MethodPost, "/v1/venues", &attendee, map[string]any{"title": "x", "capacity": 1})
	assert.Equal(t, http.StatusForbidden, code)
	code, body = s.do(t, http.MethodPost, "/v1/venues", &organizer, map[string]any{"title": "x", "capacity": 0})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "capacity", body["field"])

	id := s.createVenue(t, 10)
	code, body = s.do(t, http.MethodGet, fmt.Sprintf("/v1/venues/%d", id), nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "SCHEDULED", body["status"])

	code, _ = s.do(t, http.MethodGet, "/v1/venues/999", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = s.do(t, http.MethodPatch, fmt.Sprintf("/v1/venues/%d/status", id), &organizer, map[string]any{"status": "LIVE"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "LIVE", body["status"])

	code, body = s.do(t, http.MethodGet, fmt.Sprintf("/v1/venues/%d/stats", id), &staff, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 10, body["capacity"])
}

func TestScanOverHTTP(t *testing.T) {
	s := newServer(t)
	id := s.createVenue(t, 2)

	code, ticket := s.do(t, http.MethodPost, fmt.Sprintf("/v1/venues/%d/tickets", id), &attendee, nil)
	require.Equal(t, http.StatusCreated, code)
	token := ticket["qr_token"].(string)

	code, body := s.do(t, http.MethodPost, fmt.Sprintf("/v1/venues/%d/tickets", id), &attendee, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "already_registered", body["error"])

	code, _ = s.do(t, http.MethodPost, "/v1/tickets/scan", &attendee, map[string]string{"qr_token": token})
	assert.Equal(t, http.StatusForbidden, code)

	code, body = s.do(t, http.MethodPost, "/v1/tickets/scan", &staff, map[string]string{"qr_token": token})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "SCANNED", body["status"])

	code, body = s.do(t, http.MethodPost, "/v1/tickets/scan", &staff, map[string]string{"qr_token": token})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "already_scanned", body["error"])
	assert.NotEmpty(t, body["scanned_at"])

	code, _ = s.do(t, http.MethodPost, "/v1/tickets/scan", &staff, map[string]string{"qr_token": "nope"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestIncidentRoutesGateRoles(t *testing.T) {
	s := newServer(t)
	id := s.createVenue(t, 10)

	code, inc := s.do(t, http.MethodPost, fmt.Sprintf("/v1/venues/%d/incidents", id), &attendee,
		map[string]any{"category": "MEDICAL", "severity": "HIGH", "lat": 1, "lng": 2})
	require.Equal(t, http.StatusCreated, code)
	path := fmt.Sprintf("/v1/incidents/%d", uint64(inc["id"].(float64)))

	code, _ = s.do(t, http.MethodPatch, path, &attendee, map[string]string{"status": "INVESTIGATING"})
	assert.Equal(t, http.StatusForbidden, code)
	code, body := s.do(t, http.MethodPatch, path, &staff, map[string]string{"status": "resolved"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "invalid_transition", body["error"])
	code, body = s.do(t, http.MethodPatch, path, &staff, map[string]string{"status": "investigating"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "INVESTIGATING", body["status"])
}

func TestAttendanceStreamsOverWebSocket(t *testing.T) {
	s := newServer(t)
	id := s.createVenue(t, 5)
	conn := s.dial(t, fmt.Sprintf("/ws/attendance/%d", id), nil)
	assert.Equal(t, 1, s.reg.SubscriberCount(broadcast.AttendanceTopic(id)))

	_, ticket := s.do(t, http.MethodPost, fmt.Sprintf("/v1/venues/%d/tickets", id), &attendee, nil)
	code, _ := s.do(t, http.MethodPost, "/v1/tickets/scan", &staff, map[string]string{"qr_token": ticket["qr_token"].(string)})
	require.Equal(t, http.StatusOK, code)

	var upd broadcast.AttendanceUpdate
	read(t, conn, &upd)
	assert.Equal(t, broadcast.AttendanceUpdate{CurrentAttendance: 1, Capacity: 5}, upd)
}

func TestTrackFeedsLiveMap(t *testing.T) {
	s := newServer(t)
	id := s.createVenue(t, 5)
	viewer := s.dial(t, fmt.Sprintf("/ws/live-map/%d", id), nil)
	tracker := s.dial(t, fmt.Sprintf("/ws/track/%d", id), &attendee)

	require.NoError(t, tracker.WriteJSON(map[string]float64{"lat": 12.5, "lng": 77.5}))

	var ent broadcast.EntityUpdate
	read(t, viewer, &ent)
	assert.Equal(t, "100", ent.ID)
	assert.Equal(t, "attendee", ent.Type)
	assert.Equal(t, 12.5, ent.Lat)
}

func TestLocationReportRoutes(t *testing.T) {
	s := newServer(t)
	id := s.createVenue(t, 5)
	path := fmt.Sprintf("/v1/venues/%d/locations", id)

	code, body := s.do(t, http.MethodPost, path, &attendee, map[string]any{"lat": 1, "lng": 2, "source": "manual"})
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "manual", body["source"])

	code, body = s.do(t, http.MethodPost, path, &attendee, map[string]any{"lat": 1, "lng": 2, "source": "scan"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "source", body["field"])

	code, body = s.do(t, http.MethodPost, "/v1/venues/987654/locations", &attendee, map[string]any{"lat": 1, "lng": 2})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", body["error"])
}

func TestWebSocketCommands(t *testing.T) {
	s := newServer(t)
	conn := s.dial(t, "/ws/broadcast/7", nil)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "topic": "heatmap_8"}))
	var refused broadcast.Reply
	read(t, conn, &refused)
	assert.Equal(t, "error", refused.Type)
	assert.Equal(t, "topic heatmap_8 is outside venue 7", refused.Message)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "topic": "heatmap_7"}))
	var joined broadcast.Reply
	read(t, conn, &joined)
	assert.Equal(t, broadcast.Reply{Type: "subscribed", Topic: "heatmap_7"}, joined)
	assert.Equal(t, 2, s.reg.VenueSubscribers(7))

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return s.reg.VenueSubscribers(7) == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestUnknownChannelRejected(t *testing.T) {
	s := newServer(t)
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.URL, "http")+"/ws/weather/1", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
