package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/owleye/internal/model"
)

type recordingReporter struct {
	mu      sync.Mutex
	reports []LocationReport
	err     error
}

func (r *recordingReporter) ReportLocation(_ context.Context, rep LocationReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
	return r.err
}

func replies(t *testing.T, s *Session) []Reply {
	t.Helper()
	var out []Reply
	for _, raw := range drain(s) {
		var r Reply
		require.NoError(t, json.Unmarshal([]byte(raw), &r))
		out = append(out, r)
	}
	return out
}

func TestEveryCommandKindHasAHandler(t *testing.T) {
	d := NewDispatcher(nil)
	for _, k := range CommandKinds {
		_, ok := d.handlers[k]
		assert.True(t, ok, "no handler for %q", k)
	}
	assert.Len(t, d.handlers, len(CommandKinds))
}

func TestDispatchSubscribeAndUnsubscribe(t *testing.T) {
	r := NewRegistry(nil)
	s := newActive(t, r, 3, 8)
	d := NewDispatcher(nil)
	ctx := context.Background()

	require.NoError(t, d.Handle(ctx, s, []byte(`{"type":"subscribe","topic":"heatmap_3"}`)))
	assert.Equal(t, 1, r.SubscriberCount(HeatmapTopic(3)))

	require.NoError(t, d.Handle(ctx, s, []byte(`{"type":"unsubscribe","topic":"heatmap_3"}`)))
	assert.Equal(t, 0, r.SubscriberCount(HeatmapTopic(3)))

	assert.Equal(t, []Reply{
		{Type: "subscribed", Topic: "heatmap_3"},
		{Type: "unsubscribed", Topic: "heatmap_3"},
	}, replies(t, s))
}

func TestDispatchRejectsForeignVenueTopic(t *testing.T) {
	r := NewRegistry(nil)
	s := newActive(t, r, 3, 8)
	d := NewDispatcher(nil)

	require.NoError(t, d.Handle(context.Background(), s, []byte(`{"type":"subscribe","topic":"heatmap_4"}`)))
	assert.Equal(t, 0, r.SubscriberCount(HeatmapTopic(4)))

	got := replies(t, s)
	require.Len(t, got, 1)
	assert.Equal(t, "error", got[0].Type)
}

func TestDispatchPingAndUnknown(t *testing.T) {
	r := NewRegistry(nil)
	s := newActive(t, r, 3, 8)
	d := NewDispatcher(nil)
	ctx := context.Background()

	require.NoError(t, d.Handle(ctx, s, []byte(`{"type":"ping"}`)))
	require.NoError(t, d.Handle(ctx, s, []byte(`{"type":"dance"}`)))
	require.NoError(t, d.Handle(ctx, s, []byte(`not json`)))

	got := replies(t, s)
	require.Len(t, got, 3)
	assert.Equal(t, "pong", got[0].Type)
	assert.Equal(t, "error", got[1].Type)
	assert.Contains(t, got[1].Message, "dance")
	assert.Equal(t, "error", got[2].Type)
}

func TestDispatchLocation(t *testing.T) {
	r := NewRegistry(nil)
	who := model.Identity{ID: 11, Role: model.RoleVolunteer}
	s := r.NewSession(who, 3, 8)
	require.NoError(t, s.Activate())
	defer s.Close()

	rep := &recordingReporter{}
	d := NewDispatcher(rep)
	ctx := context.Background()

	require.NoError(t, d.Handle(ctx, s, []byte(`{"lat":12.5,"lng":77.25}`)))
	require.NoError(t, d.Handle(ctx, s, []byte(`{"type":"location_update","lat":1,"lng":2,"source":"manual","status":"BUSY"}`)))
	require.NoError(t, d.Handle(ctx, s, []byte(`{"type":"location_update","lat":1}`)))

	require.Len(t, rep.reports, 2)
	assert.Equal(t, LocationReport{VenueID: 3, Identity: who, Lat: 12.5, Lng: 77.25, Source: model.SourceLive}, rep.reports[0])
	assert.Equal(t, model.SourceManual, rep.reports[1].Source)
	assert.Equal(t, "BUSY", rep.reports[1].Status)

	got := replies(t, s)
	require.Len(t, got, 1)
	assert.Equal(t, "error", got[0].Type)

	rep.err = errors.New("lat out of range")
	require.NoError(t, d.Handle(ctx, s, []byte(`{"lat":100,"lng":2}`)))
	got = replies(t, s)
	require.Len(t, got, 1)
	assert.Equal(t, "lat out of range", got[0].Message)
	assert.Equal(t, StateActive, s.State(), "handler errors keep the session open")
}

func TestDispatchLocationWithoutReporter(t *testing.T) {
	r := NewRegistry(nil)
	s := newActive(t, r, 3, 8)
	require.NoError(t, NewDispatcher(nil).Handle(context.Background(), s, []byte(`{"lat":1,"lng":2}`)))
	got := replies(t, s)
	require.Len(t, got, 1)
	assert.Equal(t, "error", got[0].Type)
}

func TestDispatchOnClosedSession(t *testing.T) {
	r := NewRegistry(nil)
	s := newActive(t, r, 3, 8)
	s.Close()
	err := NewDispatcher(nil).Handle(context.Background(), s, []byte(`{"type":"ping"}`))
	assert.ErrorIs(t, err, ErrSessionClosed)
}
