package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/owleye/internal/broadcast"
	"github.com/iliyamo/owleye/internal/model"
	"github.com/iliyamo/owleye/internal/queue"
	"github.com/iliyamo/owleye/internal/repository"
)

// RaiseSOSInput is a distress signal from the panic button.
type RaiseSOSInput struct {
	Type string  `json:"sos_type" validate:"required,oneof=PANIC MEDICAL SECURITY FIRE"`
	Lat  float64 `json:"lat" validate:"min=-90,max=90"`
	Lng  float64 `json:"lng" validate:"min=-180,max=180"`
}

// SOSService runs the SOS lifecycle.  Responders acknowledge and resolve;
// only the person who raised an alert may cancel it.
type SOSService struct {
	alerts *repository.SOSRepo
	venues *repository.VenueRepo
	pub    Publisher
	audit  AuditSink
}

func NewSOSService(alerts *repository.SOSRepo, venues *repository.VenueRepo, pub Publisher, audit AuditSink) *SOSService {
	if audit == nil {
		audit = DiscardAudit
	}
	return &SOSService{alerts: alerts, venues: venues, pub: pub, audit: audit}
}

// Raise creates an ACTIVE alert.
func (s *SOSService) Raise(ctx context.Context, venueID uint64, who model.Identity, in RaiseSOSInput) (*model.SOSAlert, error) {
	if who.IsAnonymous() {
		return nil, ErrUnauthorized
	}
	if in.Type == "" {
		in.Type = model.SOSTypePanic
	}
	in.Type = strings.ToUpper(in.Type)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if _, err := s.venues.GetByID(ctx, venueID); err != nil {
		return nil, storageErr("load venue", err)
	}

	a := &model.SOSAlert{VenueID: venueID, UserID: who.ID, Type: in.Type, Lat: in.Lat, Lng: in.Lng, Status: model.SOSActive}
	if err := s.alerts.Create(ctx, a); err != nil {
		return nil, transient("create sos", err)
	}

	s.pub.Publish(broadcast.LiveMapTopic(venueID), sosEntity(a))
	s.audit.Record(queue.AuditEvent{Type: queue.SOSRaised, VenueID: venueID, ActorID: who.ID,
		SubjectID: a.ID, Status: string(a.Status), Detail: a.Type, OccurredAt: a.CreatedAt})
	return a, nil
}

// Transition moves an alert to next.
func (s *SOSService) Transition(ctx context.Context, id uint64, next model.SOSStatus, actor model.Identity) (*model.SOSAlert, error) {
	a, err := s.alerts.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr("load sos", err)
	}
	if next == model.SOSCancelled {
		if actor.IsAnonymous() || actor.ID != a.UserID {
			return nil, ErrUnauthorized
		}
	} else {
		v, err := s.venues.GetByID(ctx, a.VenueID)
		if err != nil {
			return nil, storageErr("load venue", err)
		}
		if !canRespond(actor, v) {
			return nil, ErrUnauthorized
		}
	}
	if !a.Status.CanTransition(next) {
		return nil, ErrInvalidTransition
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	var resolvedAt *time.Time
	if next == model.SOSResolved || next == model.SOSCancelled {
		resolvedAt = &now
	}
	if err := s.alerts.UpdateStatus(ctx, id, a.Status, next, now, resolvedAt); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrInvalidTransition
		}
		return nil, transient("update sos", err)
	}
	a.Status = next
	a.UpdatedAt = now
	a.ResolvedAt = resolvedAt

	s.pub.Publish(broadcast.LiveMapTopic(a.VenueID), sosEntity(a))
	s.audit.Record(queue.AuditEvent{Type: queue.SOSTransitioned, VenueID: a.VenueID, ActorID: actor.ID,
		SubjectID: a.ID, Status: string(next), OccurredAt: now})
	return a, nil
}

// Active lists unresolved alerts of a venue.
func (s *SOSService) Active(ctx context.Context, venueID uint64) ([]model.SOSAlert, error) {
	out, err := s.alerts.ListActive(ctx, venueID)
	if err != nil {
		return nil, transient("list sos", err)
	}
	return out, nil
}

func sosEntity(a *model.SOSAlert) broadcast.EntityUpdate {
	return broadcast.EntityUpdate{
		ID:        "sos-" + strconv.FormatUint(a.ID, 10),
		Type:      broadcast.EntitySOS,
		Lat:       a.Lat,
		Lng:       a.Lng,
		Label:     "SOS: " + humanize(a.Type),
		Severity:  string(model.SeverityCritical),
		Status:    string(a.Status),
		Category:  a.Type,
		Timestamp: a.UpdatedAt.UTC(),
	}
}
