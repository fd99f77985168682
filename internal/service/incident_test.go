package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/owleye/internal/broadcast"
	"github.com/iliyamo/owleye/internal/model"
	"github.com/iliyamo/owleye/internal/queue"
	"github.com/iliyamo/owleye/internal/testutil"
)

func TestCriticalIncidentLifecycleOnLiveMap(t *testing.T) {
	h := newHarness(t)
	v := testutil.CreateVenue(t, h.db, organizer.ID, 100)
	ctx := context.Background()
	live := h.listen(t, broadcast.LiveMapTopic(v.ID))

	inc, err := h.incidents.Report(ctx, v.ID, attendee, ReportIncidentInput{
		Category: "fire", Severity: "critical", Description: "smoke near stage", Lat: 1.25, Lng: 2.5,
	})
	require.NoError(t, err)
	assert.Equal(t, model.IncidentReported, inc.Status)

	created := frames[broadcast.EntityUpdate](t, live)
	require.Len(t, created, 1)
	assert.Equal(t, "incident", created[0].Type)
	assert.Equal(t, "CRITICAL", created[0].Severity)
	assert.Equal(t, "REPORTED", created[0].Status)
	assert.Equal(t, "FIRE", created[0].Category)
	assert.Equal(t, "Fire", created[0].Label)

	_, err = h.incidents.Transition(ctx, inc.ID, model.IncidentInvestigating, staff)
	require.NoError(t, err)
	resolved, err := h.incidents.Transition(ctx, inc.ID, model.IncidentResolved, volunteer)
	require.NoError(t, err)
	assert.NotNil(t, resolved.ResolvedAt)

	updates := frames[broadcast.EntityUpdate](t, live)
	require.Len(t, updates, 2)
	for _, u := range updates {
		assert.Equal(t, created[0].ID, u.ID, "transitions update the same marker")
		assert.Equal(t, "incident", u.Type)
	}
	assert.Equal(t, "RESOLVED", updates[1].Status)

	assert.Equal(t, []string{queue.IncidentReported, queue.IncidentTransitioned, queue.IncidentTransitioned}, h.audit.types())
}

func TestIncidentTransitionRules(t *testing.T) {
	h := newHarness(t)
	v := testutil.CreateVenue(t, h.db, organizer.ID, 100)
	ctx := context.Background()
	inc, err := h.incidents.Report(ctx, v.ID, attendee, ReportIncidentInput{Category: "MEDICAL", Severity: "HIGH", Lat: 1, Lng: 1})
	require.NoError(t, err)

	_, err = h.incidents.Transition(ctx, inc.ID, model.IncidentResolved, staff)
	assert.ErrorIs(t, err, ErrInvalidTransition, "REPORTED cannot jump to RESOLVED")

	_, err = h.incidents.Transition(ctx, inc.ID, model.IncidentInvestigating, attendee)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.incidents.Transition(ctx, inc.ID, model.IncidentInvestigating, stranger)
	assert.ErrorIs(t, err, ErrUnauthorized, "organizers act only on their own venues")

	_, err = h.incidents.Transition(ctx, inc.ID, model.IncidentFalseAlarm, organizer)
	require.NoError(t, err)
	_, err = h.incidents.Transition(ctx, inc.ID, model.IncidentInvestigating, organizer)
	assert.ErrorIs(t, err, ErrInvalidTransition, "terminal states stay terminal")

	_, err = h.incidents.Transition(ctx, 999, model.IncidentInvestigating, staff)
	assert.ErrorIs(t, err, ErrNotFound)

	open, err := h.incidents.List(ctx, v.ID, true)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestReportIncidentValidation(t *testing.T) {
	h := newHarness(t)
	v := testutil.CreateVenue(t, h.db, organizer.ID, 100)
	ctx := context.Background()

	_, err := h.incidents.Report(ctx, v.ID, attendee, ReportIncidentInput{Category: "ALIENS", Severity: "LOW"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "category", ve.Field)

	_, err = h.incidents.Report(ctx, v.ID, model.Anonymous, ReportIncidentInput{Category: "OTHER", Severity: "LOW"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.incidents.Report(ctx, 999, attendee, ReportIncidentInput{Category: "OTHER", Severity: "LOW"})
	assert.ErrorIs(t, err, ErrNotFound)
}
