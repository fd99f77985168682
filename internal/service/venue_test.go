package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/owleye/internal/broadcast"
	"github.com/iliyamo/owleye/internal/model"
)

func TestVenueCreateAndStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := time.Now().Add(24 * time.Hour)

	v, err := h.venueSvc.Create(ctx, organizer, CreateVenueInput{Title: "Open Air", Lat: 10, Lng: 20, Capacity: 500,
		StartsAt: start, EndsAt: start.Add(3 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, model.VenueScheduled, v.Status)
	assert.Equal(t, organizer.ID, v.OrganizerID)

	_, err = h.venueSvc.Create(ctx, attendee, CreateVenueInput{Title: "x", Capacity: 1})
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.venueSvc.Create(ctx, organizer, CreateVenueInput{Title: "x", Capacity: 0})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "capacity", ve.Field)

	_, err = h.venueSvc.SetStatus(ctx, v.ID, model.VenueLive, stranger)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.venueSvc.SetStatus(ctx, v.ID, "PAUSED", organizer)
	assert.ErrorAs(t, err, &ve)

	got, err := h.venueSvc.SetStatus(ctx, v.ID, model.VenueCancelled, organizer)
	require.NoError(t, err)
	assert.Equal(t, model.VenueCancelled, got.Status)

	_, err = h.admission.Issue(ctx, v.ID, attendee)
	assert.ErrorIs(t, err, ErrVenueNotOpen)
}

func TestVenueStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v, err := h.venueSvc.Create(ctx, organizer, CreateVenueInput{Title: "Hall", Lat: 1, Lng: 1, Capacity: 10})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		tk, err := h.admission.Issue(ctx, v.ID, holder(i))
		require.NoError(t, err)
		if i == 0 {
			_, err = h.admission.Scan(ctx, tk.QRToken, staff)
			require.NoError(t, err)
		}
	}
	_, err = h.incidents.Report(ctx, v.ID, attendee, ReportIncidentInput{Category: "OTHER", Severity: "LOW"})
	require.NoError(t, err)
	_, err = h.sos.Raise(ctx, v.ID, attendee, RaiseSOSInput{Type: "SECURITY"})
	require.NoError(t, err)
	h.listen(t, broadcast.AttendanceTopic(v.ID))

	st, err := h.venueSvc.Stats(ctx, v.ID, authority)
	require.NoError(t, err)
	assert.Equal(t, model.VenueStats{
		VenueID: v.ID, Capacity: 10, CurrentAttendance: 1, TicketsIssued: 3, TicketsScanned: 1,
		OpenIncidents: 1, ActiveSOS: 1, Subscribers: 1,
	}, *st)

	_, err = h.venueSvc.Stats(ctx, v.ID, attendee)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
