package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/owleye/internal/broadcast"
	"github.com/iliyamo/owleye/internal/model"
	"github.com/iliyamo/owleye/internal/queue"
	"github.com/iliyamo/owleye/internal/repository"
)

// ReportIncidentInput is a new incident as submitted by a reporter.
type ReportIncidentInput struct {
	Category    string         `json:"category" validate:"required,oneof=FIRE MEDICAL VIOLENCE STAMPEDE SUSPICIOUS LOST_PERSON TECH_FAILURE OTHER"`
	Severity    model.Severity `json:"severity" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
	Description string         `json:"description" validate:"max=2000"`
	Lat         float64        `json:"lat" validate:"min=-90,max=90"`
	Lng         float64        `json:"lng" validate:"min=-180,max=180"`
}

// IncidentService runs the incident lifecycle.  Every create and
// transition publishes the incident's live-map entity.
type IncidentService struct {
	incidents *repository.IncidentRepo
	venues    *repository.VenueRepo
	pub       Publisher
	audit     AuditSink
	log       zerolog.Logger
}

// NewIncidentService wires the incident lifecycle.  audit may be nil.
func NewIncidentService(incidents *repository.IncidentRepo, venues *repository.VenueRepo, pub Publisher, audit AuditSink) *IncidentService {
	if audit == nil {
		audit = DiscardAudit
	}
	return &IncidentService{
		incidents: incidents,
		venues:    venues,
		pub:       pub,
		audit:     audit,
		log:       log.With().Str("component", "incident").Logger(),
	}
}

// Report creates a REPORTED incident at venueID.
func (s *IncidentService) Report(ctx context.Context, venueID uint64, reporter model.Identity, in ReportIncidentInput) (*model.Incident, error) {
	if reporter.IsAnonymous() {
		return nil, ErrUnauthorized
	}
	in.Category = strings.ToUpper(in.Category)
	in.Severity = model.Severity(strings.ToUpper(string(in.Severity)))
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if _, err := s.venues.GetByID(ctx, venueID); err != nil {
		return nil, storageErr("load venue", err)
	}

	inc := &model.Incident{
		VenueID:     venueID,
		ReporterID:  reporter.ID,
		Category:    in.Category,
		Severity:    in.Severity,
		Description: in.Description,
		Lat:         in.Lat,
		Lng:         in.Lng,
		Status:      model.IncidentReported,
	}
	if err := s.incidents.Create(ctx, inc); err != nil {
		return nil, transient("create incident", err)
	}

	s.pub.Publish(broadcast.LiveMapTopic(venueID), incidentEntity(inc))
	s.audit.Record(queue.AuditEvent{Type: queue.IncidentReported, VenueID: venueID, ActorID: reporter.ID,
		SubjectID: inc.ID, Status: string(inc.Status), Detail: inc.Category + "/" + string(inc.Severity), OccurredAt: inc.CreatedAt})
	return inc, nil
}

// Transition moves an incident to next.  Responders of the venue may
// transition; the organizer only for venues they own.
func (s *IncidentService) Transition(ctx context.Context, id uint64, next model.IncidentStatus, actor model.Identity) (*model.Incident, error) {
	inc, err := s.incidents.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr("load incident", err)
	}
	v, err := s.venues.GetByID(ctx, inc.VenueID)
	if err != nil {
		return nil, storageErr("load venue", err)
	}
	if !canRespond(actor, v) {
		return nil, ErrUnauthorized
	}
	if !inc.Status.CanTransition(next) {
		s.log.Debug().Uint64("incident_id", id).Str("from", string(inc.Status)).Str("to", string(next)).Msg("transition refused")
		return nil, ErrInvalidTransition
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	var resolvedAt *time.Time
	if !next.Open() {
		resolvedAt = &now
	}
	if err := s.incidents.UpdateStatus(ctx, id, inc.Status, next, now, resolvedAt); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrInvalidTransition
		}
		return nil, transient("update incident", err)
	}
	inc.Status = next
	inc.UpdatedAt = now
	inc.ResolvedAt = resolvedAt

	s.pub.Publish(broadcast.LiveMapTopic(inc.VenueID), incidentEntity(inc))
	s.audit.Record(queue.AuditEvent{Type: queue.IncidentTransitioned, VenueID: inc.VenueID, ActorID: actor.ID,
		SubjectID: inc.ID, Status: string(next), OccurredAt: now})
	return inc, nil
}

// List returns the incidents of a venue.
func (s *IncidentService) List(ctx context.Context, venueID uint64, openOnly bool) ([]model.Incident, error) {
	out, err := s.incidents.ListByVenue(ctx, venueID, openOnly)
	if err != nil {
		return nil, transient("list incidents", err)
	}
	return out, nil
}

// canRespond reports whether actor may act on incidents and SOS alerts at v.
func canRespond(actor model.Identity, v *model.Venue) bool {
	if actor.IsAnonymous() || !actor.IsResponder() {
		return false
	}
	if actor.Is(model.RoleOrganizer) {
		return actor.ID == v.OrganizerID
	}
	return true
}

func incidentEntity(inc *model.Incident) broadcast.EntityUpdate {
	return broadcast.EntityUpdate{
		ID:        "incident-" + strconv.FormatUint(inc.ID, 10),
		Type:      broadcast.EntityIncident,
		Lat:       inc.Lat,
		Lng:       inc.Lng,
		Label:     humanize(inc.Category),
		Severity:  string(inc.Severity),
		Status:    string(inc.Status),
		Category:  inc.Category,
		Timestamp: inc.UpdatedAt.UTC(),
	}
}

// humanize turns "LOST_PERSON" into "Lost person".
func humanize(code string) string {
	if code == "" {
		return ""
	}
	s := strings.ToLower(strings.ReplaceAll(code, "_", " "))
	return strings.ToUpper(s[:1]) + s[1:]
}
