package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/owleye/internal/broadcast"
	"github.com/iliyamo/owleye/internal/model"
	"github.com/iliyamo/owleye/internal/repository"
	"github.com/iliyamo/owleye/internal/testutil"
)

func TestIngestPublishesBothViews(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := testutil.CreateVenue(t, h.db, organizer.ID, 10)
	heat := h.listen(t, broadcast.HeatmapTopic(v.ID))
	live := h.listen(t, broadcast.LiveMapTopic(v.ID))

	sample, err := h.location.Ingest(ctx, IngestInput{VenueID: v.ID, Subject: volunteer, Lat: 12.5, Lng: 77.5, Status: ResponderResponding})
	require.NoError(t, err)
	assert.NotZero(t, sample.ID)
	assert.Equal(t, model.SourceLive, sample.Source)

	points := frames[broadcast.HeatmapData](t, heat)
	require.Len(t, points, 1)
	assert.Equal(t, "heatmap_data", points[0].Type)
	assert.Equal(t, [][3]float64{{12.5, 77.5, 0.5}}, points[0].Points)

	ents := frames[broadcast.EntityUpdate](t, live)
	require.Len(t, ents, 1)
	assert.Equal(t, "3", ents[0].ID)
	assert.Equal(t, "volunteer", ents[0].Type)
	assert.Equal(t, "Volunteer", ents[0].Label)
	assert.Equal(t, ResponderResponding, ents[0].Status)
}

func TestIngestAnonymousAndManual(t *testing.T) {
	h := newHarness(t)
	v := testutil.CreateVenue(t, h.db, organizer.ID, 10)
	heat := h.listen(t, broadcast.HeatmapTopic(v.ID))
	live := h.listen(t, broadcast.LiveMapTopic(v.ID))

	sample, err := h.location.Ingest(context.Background(), IngestInput{VenueID: v.ID, Lat: 1, Lng: 2, Source: model.SourceManual})
	require.NoError(t, err)
	assert.Nil(t, sample.SubjectID)

	assert.Equal(t, 0.8, frames[broadcast.HeatmapData](t, heat)[0].Points[0][2])
	ent := frames[broadcast.EntityUpdate](t, live)[0]
	assert.Equal(t, "anon", ent.ID)
	assert.Equal(t, "attendee", ent.Type)
	assert.Equal(t, "Anonymous", ent.Label)
}

func TestIngestValidation(t *testing.T) {
	h := newHarness(t)
	cases := map[string]IngestInput{
		"lat":      {VenueID: 1, Lat: 91, Lng: 0},
		"lng":      {VenueID: 1, Lat: 0, Lng: -181},
		"source":   {VenueID: 1, Lat: 0, Lng: 0, Source: "gps"},
		"venue_id": {Lat: 0, Lng: 0},
		"status":   {VenueID: 1, Status: "ASLEEP"},
	}
	for field, in := range cases {
		_, err := h.location.Ingest(context.Background(), in)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve, field)
		assert.Equal(t, field, ve.Field)
	}
	assert.Empty(t, h.pub.events, "invalid input must not be broadcast")
}

func TestIngestRejectsScanSource(t *testing.T) {
	h := newHarness(t)
	v := testutil.CreateVenue(t, h.db, organizer.ID, 10)

	_, err := h.location.Ingest(context.Background(), IngestInput{VenueID: v.ID, Subject: attendee, Lat: 1, Lng: 2, Source: model.SourceScan})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "source", ve.Field)

	err = h.location.ReportLocation(context.Background(), broadcast.LocationReport{
		VenueID: v.ID, Identity: model.Anonymous, Lat: 1, Lng: 2, Source: model.SourceScan,
	})
	require.ErrorAs(t, err, &ve)

	assert.Empty(t, h.pub.events)
	samples, err := h.location.Recent(context.Background(), v.ID, time.Hour, 10)
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestIngestUnknownVenue(t *testing.T) {
	h := newHarness(t)

	_, err := h.location.Ingest(context.Background(), IngestInput{VenueID: 987654, Subject: attendee, Lat: 1, Lng: 2})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, h.pub.events)

	var n int
	require.NoError(t, h.db.QueryRow(`SELECT COUNT(*) FROM position_samples WHERE venue_id = ?`, 987654).Scan(&n))
	assert.Zero(t, n)
}

func TestIngestBroadcastsDespiteStorageFailure(t *testing.T) {
	db := testutil.NewDB(t)
	reg := broadcast.NewRegistry(nil)
	pub := &capturePublisher{reg: reg}
	v := testutil.CreateVenue(t, db, organizer.ID, 10)
	svc := NewLocationService(repository.NewPositionRepo(db), repository.NewVenueRepo(db), pub)
	require.NoError(t, db.Close())

	_, err := svc.Ingest(context.Background(), IngestInput{VenueID: v.ID, Subject: attendee, Lat: 1, Lng: 1})
	assert.ErrorIs(t, err, ErrTransient)
	assert.Len(t, pub.on(broadcast.HeatmapTopic(v.ID)), 1)
	assert.Len(t, pub.on(broadcast.LiveMapTopic(v.ID)), 1)
}

func TestReportLocationAdaptsSessionCommands(t *testing.T) {
	h := newHarness(t)
	v := testutil.CreateVenue(t, h.db, organizer.ID, 10)
	err := h.location.ReportLocation(context.Background(), broadcast.LocationReport{
		VenueID: v.ID, Identity: staff, Lat: 3, Lng: 4, Source: model.SourceLive,
	})
	require.NoError(t, err)
	ents := h.pub.on(broadcast.LiveMapTopic(v.ID))
	require.Len(t, ents, 1)
	assert.Equal(t, "staff", ents[0].(broadcast.EntityUpdate).Type)
}
