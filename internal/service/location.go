package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/owleye/internal/broadcast"
	"github.com/iliyamo/owleye/internal/model"
	"github.com/iliyamo/owleye/internal/repository"
)

// Responder availability carried on live-map person entities.
const (
	ResponderAvailable  = "AVAILABLE"
	ResponderBusy       = "BUSY"
	ResponderResponding = "RESPONDING"
	ResponderOffline    = "OFFLINE"
)

// IngestInput is one raw position report from a device or operator.
// Scan samples are not accepted here; RecordScan writes them after a gate
// scan commits.
type IngestInput struct {
	VenueID    uint64               `json:"venue_id" validate:"required"`
	Subject    model.Identity       `json:"-"`
	Lat        float64              `json:"lat" validate:"min=-90,max=90"`
	Lng        float64              `json:"lng" validate:"min=-180,max=180"`
	Source     model.PositionSource `json:"source" validate:"required,oneof=live manual"`
	Status     string               `json:"status" validate:"omitempty,oneof=AVAILABLE BUSY RESPONDING OFFLINE"`
	ObservedAt time.Time            `json:"-"`
}

// LocationService persists position samples and derives the heatmap and
// live-map views from them.  It is the only writer of position samples.
type LocationService struct {
	positions *repository.PositionRepo
	venues    *repository.VenueRepo
	pub       Publisher
	log       zerolog.Logger
}

// NewLocationService wires the pipeline.
func NewLocationService(positions *repository.PositionRepo, venues *repository.VenueRepo, pub Publisher) *LocationService {
	return &LocationService{
		positions: positions,
		venues:    venues,
		pub:       pub,
		log:       log.With().Str("component", "location").Logger(),
	}
}

// Ingest persists a sample and publishes a heatmap point and a live-map
// entity for it.  Reports for an unknown venue fail with ErrNotFound and
// touch nothing.  Past that check the three steps are independent: a
// storage failure is returned after both views have still been published.
func (s *LocationService) Ingest(ctx context.Context, in IngestInput) (*model.PositionSample, error) {
	if in.Source == "" {
		in.Source = model.SourceLive
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if _, err := s.venues.GetByID(ctx, in.VenueID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		// unconfirmed; the foreign key on position_samples still refuses orphans
		s.log.Warn().Err(err).Uint64("venue_id", in.VenueID).Msg("lookup venue for position")
	}
	if in.ObservedAt.IsZero() {
		in.ObservedAt = time.Now().UTC()
	}

	sample := &model.PositionSample{
		VenueID:    in.VenueID,
		Lat:        in.Lat,
		Lng:        in.Lng,
		Source:     in.Source,
		ObservedAt: in.ObservedAt,
	}
	if !in.Subject.IsAnonymous() {
		id := in.Subject.ID
		sample.SubjectID = &id
	}

	var persistErr error
	if err := s.positions.Insert(ctx, sample); err != nil {
		s.log.Warn().Err(err).Uint64("venue_id", in.VenueID).Msg("persist position sample")
		persistErr = transient("persist position", err)
	}

	s.pub.Publish(broadcast.HeatmapTopic(in.VenueID),
		broadcast.NewHeatmapPoint(in.Lat, in.Lng, in.Source.Intensity(), in.ObservedAt))
	s.pub.Publish(broadcast.LiveMapTopic(in.VenueID), personEntity(in))

	return sample, persistErr
}

// ReportLocation adapts session location commands to Ingest.
func (s *LocationService) ReportLocation(ctx context.Context, r broadcast.LocationReport) error {
	_, err := s.Ingest(ctx, IngestInput{
		VenueID: r.VenueID,
		Subject: r.Identity,
		Lat:     r.Lat,
		Lng:     r.Lng,
		Source:  r.Source,
		Status:  r.Status,
	})
	return err
}

// RecordScan appends the check-in sample at the venue's own coordinates
// and publishes its full-weight heatmap point.
func (s *LocationService) RecordScan(ctx context.Context, v *model.Venue, holderID uint64, at time.Time) {
	sample := &model.PositionSample{
		VenueID:    v.ID,
		SubjectID:  &holderID,
		Lat:        v.Lat,
		Lng:        v.Lng,
		Source:     model.SourceScan,
		ObservedAt: at,
	}
	if err := s.positions.Insert(ctx, sample); err != nil {
		s.log.Warn().Err(err).Uint64("venue_id", v.ID).Msg("persist scan sample")
	}
	s.pub.Publish(broadcast.HeatmapTopic(v.ID),
		broadcast.NewHeatmapPoint(v.Lat, v.Lng, model.SourceScan.Intensity(), at))
}

// Recent returns samples observed in the last window, used to seed a
// heatmap for a new viewer.
func (s *LocationService) Recent(ctx context.Context, venueID uint64, window time.Duration, limit int) ([]model.PositionSample, error) {
	out, err := s.positions.ListSince(ctx, venueID, time.Now().Add(-window), limit)
	if err != nil {
		return nil, transient("list positions", err)
	}
	return out, nil
}

func personEntity(in IngestInput) broadcast.EntityUpdate {
	id := "anon"
	if !in.Subject.IsAnonymous() {
		id = strconv.FormatUint(in.Subject.ID, 10)
	}
	return broadcast.EntityUpdate{
		ID:        id,
		Type:      in.Subject.MapKind(),
		Lat:       in.Lat,
		Lng:       in.Lng,
		Label:     in.Subject.Label(),
		Status:    in.Status,
		Timestamp: in.ObservedAt.UTC(),
	}
}
