package service

import (
	"context"
	"time"

	"github.com/iliyamo/owleye/internal/model"
	"github.com/iliyamo/owleye/internal/repository"
)

// CreateVenueInput holds the organizer supplied fields of a new venue.
type CreateVenueInput struct {
	Title    string    `json:"title" validate:"required,max=200"`
	Category string    `json:"category" validate:"max=50"`
	Address  string    `json:"address" validate:"max=255"`
	Lat      float64   `json:"location_lat" validate:"min=-90,max=90"`
	Lng      float64   `json:"location_lng" validate:"min=-180,max=180"`
	Capacity int64     `json:"capacity" validate:"min=1"`
	StartsAt time.Time `json:"start_date"`
	EndsAt   time.Time `json:"end_date"`
}

// SubscriberCounter reports live subscribers of a venue.
type SubscriberCounter interface {
	VenueSubscribers(venueID uint64) int
}

// VenueService manages venues and assembles the command center summary.
type VenueService struct {
	venues    *repository.VenueRepo
	tickets   *repository.TicketRepo
	incidents *repository.IncidentRepo
	sos       *repository.SOSRepo
	subs      SubscriberCounter
}

// NewVenueService wires the venue service.  subs may be nil.
func NewVenueService(venues *repository.VenueRepo, tickets *repository.TicketRepo, incidents *repository.IncidentRepo,
	sos *repository.SOSRepo, subs SubscriberCounter) *VenueService {
	return &VenueService{venues: venues, tickets: tickets, incidents: incidents, sos: sos, subs: subs}
}

// Create stores a new SCHEDULED venue owned by organizer.
func (s *VenueService) Create(ctx context.Context, organizer model.Identity, in CreateVenueInput) (*model.Venue, error) {
	if organizer.IsAnonymous() || !organizer.Is(model.RoleOrganizer) {
		return nil, ErrUnauthorized
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if !in.EndsAt.IsZero() && in.EndsAt.Before(in.StartsAt) {
		return nil, &ValidationError{Field: "end_date", Reason: "must not be before start_date"}
	}
	v := &model.Venue{
		OrganizerID: organizer.ID,
		Title:       in.Title,
		Category:    in.Category,
		Address:     in.Address,
		Lat:         in.Lat,
		Lng:         in.Lng,
		Capacity:    in.Capacity,
		Status:      model.VenueScheduled,
		StartsAt:    in.StartsAt.UTC(),
		EndsAt:      in.EndsAt.UTC(),
	}
	if err := s.venues.Create(ctx, v); err != nil {
		return nil, transient("create venue", err)
	}
	return v, nil
}

// Get loads a venue.
func (s *VenueService) Get(ctx context.Context, id uint64) (*model.Venue, error) {
	v, err := s.venues.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr("load venue", err)
	}
	return v, nil
}

// SetStatus changes the lifecycle status; only the owning organizer may.
func (s *VenueService) SetStatus(ctx context.Context, id uint64, status model.VenueStatus, actor model.Identity) (*model.Venue, error) {
	if !status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: "must be one of: SCHEDULED,LIVE,COMPLETED,CANCELLED"}
	}
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.IsAnonymous() || actor.ID != v.OrganizerID {
		return nil, ErrUnauthorized
	}
	if err := s.venues.UpdateStatus(ctx, id, status); err != nil {
		return nil, storageErr("update venue", err)
	}
	v.Status = status
	return v, nil
}

// Stats returns the command center summary.  Organizers see their own
// venues; staff and authorities see any.
func (s *VenueService) Stats(ctx context.Context, id uint64, actor model.Identity) (*model.VenueStats, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.IsAnonymous() || !(actor.ID == v.OrganizerID || actor.Is(model.RoleStaff, model.RoleAuthority)) {
		return nil, ErrUnauthorized
	}
	counts, err := s.tickets.CountByStatus(ctx, id)
	if err != nil {
		return nil, transient("count tickets", err)
	}
	open, err := s.incidents.CountOpen(ctx, id)
	if err != nil {
		return nil, transient("count incidents", err)
	}
	active, err := s.sos.CountActive(ctx, id)
	if err != nil {
		return nil, transient("count sos", err)
	}
	st := &model.VenueStats{
		VenueID:           id,
		Capacity:          v.Capacity,
		CurrentAttendance: v.CurrentAttendance,
		TicketsIssued:     counts[model.TicketIssued] + counts[model.TicketScanned],
		TicketsScanned:    counts[model.TicketScanned],
		OpenIncidents:     open,
		ActiveSOS:         active,
	}
	if s.subs != nil {
		st.Subscribers = s.subs.VenueSubscribers(id)
	}
	return st, nil
}
