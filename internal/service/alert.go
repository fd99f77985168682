package service

import (
	"context"
	"strings"

	"github.com/iliyamo/owleye/internal/broadcast"
	"github.com/iliyamo/owleye/internal/model"
	"github.com/iliyamo/owleye/internal/queue"
	"github.com/iliyamo/owleye/internal/repository"
)

// SendAlertInput is a safety announcement.
type SendAlertInput struct {
	Title        string `json:"title" validate:"required,max=200"`
	Message      string `json:"message" validate:"required,max=2000"`
	Severity     string `json:"severity" validate:"required,oneof=INFO WARNING DANGER EMERGENCY"`
	AudienceType string `json:"audience_type" validate:"required,oneof=ALL STAFF ATTENDEES"`
}

// AlertService stores safety alerts and pushes them to the venue's
// broadcast topic.
type AlertService struct {
	alerts *repository.AlertRepo
	venues *repository.VenueRepo
	pub    Publisher
	audit  AuditSink
}

func NewAlertService(alerts *repository.AlertRepo, venues *repository.VenueRepo, pub Publisher, audit AuditSink) *AlertService {
	if audit == nil {
		audit = DiscardAudit
	}
	return &AlertService{alerts: alerts, venues: venues, pub: pub, audit: audit}
}

// Send persists and broadcasts an alert.  The venue organizer and
// authorities may send.
func (s *AlertService) Send(ctx context.Context, venueID uint64, author model.Identity, in SendAlertInput) (*model.SafetyAlert, error) {
	in.Severity = strings.ToUpper(in.Severity)
	if in.AudienceType == "" {
		in.AudienceType = "ALL"
	}
	in.AudienceType = strings.ToUpper(in.AudienceType)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	v, err := s.venues.GetByID(ctx, venueID)
	if err != nil {
		return nil, storageErr("load venue", err)
	}
	if author.IsAnonymous() || !(author.ID == v.OrganizerID || author.Is(model.RoleAuthority)) {
		return nil, ErrUnauthorized
	}

	a := &model.SafetyAlert{
		VenueID:      venueID,
		AuthorID:     author.ID,
		Title:        in.Title,
		Message:      in.Message,
		Severity:     in.Severity,
		AudienceType: in.AudienceType,
	}
	if err := s.alerts.Create(ctx, a); err != nil {
		return nil, transient("create alert", err)
	}

	s.pub.Publish(broadcast.BroadcastTopic(venueID), broadcast.NewSafetyAlert(a))
	s.audit.Record(queue.AuditEvent{Type: queue.AlertSent, VenueID: venueID, ActorID: author.ID,
		SubjectID: a.ID, Status: a.Severity, Detail: a.Title, OccurredAt: a.CreatedAt})
	return a, nil
}

// Recent lists the latest alerts of a venue.
func (s *AlertService) Recent(ctx context.Context, venueID uint64, limit int) ([]model.SafetyAlert, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	out, err := s.alerts.ListByVenue(ctx, venueID, limit)
	if err != nil {
		return nil, transient("list alerts", err)
	}
	return out, nil
}
