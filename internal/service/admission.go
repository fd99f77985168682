package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/owleye/internal/broadcast"
	"github.com/iliyamo/owleye/internal/model"
	"github.com/iliyamo/owleye/internal/queue"
	"github.com/iliyamo/owleye/internal/repository"
)

// AdmissionService owns tickets and the venue attendance counter.
//
// Issuance, scans and invalidations for one venue run one at a time under
// a per-venue lock and inside a single transaction each.  That lock only
// covers this process.  Across processes sharing the database, Issue
// first takes the venue row lock so capacity is counted by one issuer at
// a time, and a scan's ticket status change is a conditional UPDATE, so
// the store rejects a double scan.
type AdmissionService struct {
	db       *sql.DB
	venues   *repository.VenueRepo
	tickets  *repository.TicketRepo
	location *LocationService
	pub      Publisher
	audit    AuditSink
	locks    *venueLocks
	log      zerolog.Logger
	now      func() time.Time
}

// NewAdmissionService wires the admission engine.  audit may be nil.
func NewAdmissionService(db *sql.DB, venues *repository.VenueRepo, tickets *repository.TicketRepo,
	location *LocationService, pub Publisher, audit AuditSink) *AdmissionService {
	if audit == nil {
		audit = DiscardAudit
	}
	return &AdmissionService{
		db:       db,
		venues:   venues,
		tickets:  tickets,
		location: location,
		pub:      pub,
		audit:    audit,
		locks:    newVenueLocks(),
		log:      log.With().Str("component", "admission").Logger(),
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// Issue creates an ISSUED ticket for holder at venueID.
func (s *AdmissionService) Issue(ctx context.Context, venueID uint64, holder model.Identity) (*model.Ticket, error) {
	if holder.IsAnonymous() {
		return nil, ErrUnauthorized
	}
	unlock := s.locks.lock(venueID)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, transient("begin issue", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := s.venues.LockTx(ctx, tx, venueID); err != nil {
		return nil, transient("lock venue", err)
	}
	v, err := s.venues.GetByIDTx(ctx, tx, venueID)
	if err != nil {
		return nil, storageErr("load venue", err)
	}
	if !v.Status.OpenForRegistration() {
		return nil, ErrVenueNotOpen
	}
	if _, err := s.tickets.GetByHolderTx(ctx, tx, venueID, holder.ID); err == nil {
		return nil, ErrAlreadyRegistered
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, transient("load ticket", err)
	}
	live, err := s.tickets.CountLiveTx(ctx, tx, venueID)
	if err != nil {
		return nil, transient("count tickets", err)
	}
	if live >= v.Capacity {
		s.log.Debug().Uint64("venue_id", venueID).Int64("capacity", v.Capacity).Msg("capacity reached")
		return nil, ErrCapacityExceeded
	}

	t := &model.Ticket{VenueID: venueID, HolderID: holder.ID, QRToken: newQRToken()}
	if err := s.tickets.CreateTx(ctx, tx, t); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyRegistered
		}
		return nil, transient("create ticket", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, transient("commit issue", err)
	}
	committed = true

	s.audit.Record(queue.AuditEvent{Type: queue.TicketIssued, VenueID: venueID, ActorID: holder.ID,
		SubjectID: t.ID, Status: string(t.Status), OccurredAt: t.CreatedAt})
	return t, nil
}

// Scan redeems the ticket behind token.  Exactly one of any number of
// concurrent scans of a token succeeds; the rest fail with an
// *AlreadyScannedError.
func (s *AdmissionService) Scan(ctx context.Context, token string, staff model.Identity) (*model.Ticket, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, &ValidationError{Field: "qr_token", Reason: "required"}
	}
	t, err := s.tickets.GetByToken(ctx, token)
	if err != nil {
		return nil, storageErr("load ticket", err)
	}
	v, err := s.venues.GetByID(ctx, t.VenueID)
	if err != nil {
		return nil, storageErr("load venue", err)
	}
	if !canAdmit(staff, v) {
		s.log.Debug().Uint64("ticket_id", t.ID).Uint64("actor_id", staff.ID).Msg("scan refused")
		return nil, ErrUnauthorized
	}

	unlock := s.locks.lock(v.ID)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, transient("begin scan", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	t, err = s.tickets.GetByTokenTx(ctx, tx, token)
	if err != nil {
		return nil, storageErr("reload ticket", err)
	}
	switch t.Status {
	case model.TicketScanned:
		return nil, alreadyScanned(t)
	case model.TicketInvalidated:
		return nil, ErrInvalidated
	}

	now := s.now()
	if err := s.tickets.MarkScannedTx(ctx, tx, t.ID, staff.ID, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			if cur, rerr := s.tickets.GetByTokenTx(ctx, tx, token); rerr == nil && cur.Status == model.TicketInvalidated {
				return nil, ErrInvalidated
			} else if rerr == nil {
				return nil, alreadyScanned(cur)
			}
			return nil, &AlreadyScannedError{TicketID: t.ID}
		}
		return nil, transient("mark scanned", err)
	}
	current, err := s.venues.IncrementAttendanceTx(ctx, tx, v.ID)
	if err != nil {
		return nil, transient("increment attendance", err)
	}
	if current < 1 {
		s.log.Error().Uint64("venue_id", v.ID).Int64("current_attendance", current).Msg("attendance below one after scan")
		return nil, ErrInvariantViolation
	}
	if err := tx.Commit(); err != nil {
		return nil, transient("commit scan", err)
	}
	committed = true

	t.Status = model.TicketScanned
	t.ScannedAt = &now
	scannedBy := staff.ID
	t.ScannedBy = &scannedBy

	s.pub.Publish(broadcast.AttendanceTopic(v.ID), broadcast.AttendanceUpdate{
		CurrentAttendance: current,
		Capacity:          v.Capacity,
	})
	s.location.RecordScan(ctx, v, t.HolderID, now)
	s.audit.Record(queue.AuditEvent{Type: queue.TicketScanned, VenueID: v.ID, ActorID: staff.ID,
		SubjectID: t.ID, Status: string(t.Status), OccurredAt: now})
	return t, nil
}

// Invalidate voids an ISSUED ticket and releases its capacity slot.
func (s *AdmissionService) Invalidate(ctx context.Context, ticketID uint64, actor model.Identity) (*model.Ticket, error) {
	t, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, storageErr("load ticket", err)
	}
	v, err := s.venues.GetByID(ctx, t.VenueID)
	if err != nil {
		return nil, storageErr("load venue", err)
	}
	if !canAdmit(actor, v) {
		return nil, ErrUnauthorized
	}

	unlock := s.locks.lock(v.ID)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, transient("begin invalidate", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := s.tickets.InvalidateTx(ctx, tx, t.ID); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, transient("invalidate ticket", err)
		}
		cur, rerr := s.tickets.GetByTokenTx(ctx, tx, t.QRToken)
		if rerr != nil {
			return nil, transient("reload ticket", rerr)
		}
		if cur.Status == model.TicketInvalidated {
			return nil, ErrInvalidated
		}
		return nil, ErrInvalidTransition
	}
	if err := tx.Commit(); err != nil {
		return nil, transient("commit invalidate", err)
	}
	committed = true

	t.Status = model.TicketInvalidated
	s.audit.Record(queue.AuditEvent{Type: queue.TicketInvalidated, VenueID: v.ID, ActorID: actor.ID,
		SubjectID: t.ID, Status: string(t.Status)})
	return t, nil
}

// ListForHolder returns every ticket of holder.
func (s *AdmissionService) ListForHolder(ctx context.Context, holder model.Identity) ([]model.Ticket, error) {
	if holder.IsAnonymous() {
		return nil, ErrUnauthorized
	}
	out, err := s.tickets.ListByHolder(ctx, holder.ID)
	if err != nil {
		return nil, transient("list tickets", err)
	}
	return out, nil
}

// canAdmit reports whether actor may scan or void tickets of v: the
// venue's organizer or any staff member.
func canAdmit(actor model.Identity, v *model.Venue) bool {
	if actor.IsAnonymous() {
		return false
	}
	return actor.ID == v.OrganizerID || actor.Is(model.RoleStaff)
}

func alreadyScanned(t *model.Ticket) error {
	e := &AlreadyScannedError{TicketID: t.ID}
	if t.ScannedAt != nil {
		e.ScannedAt = *t.ScannedAt
	}
	return e
}

func newQRToken() string { return uuid.NewString() }

// storageErr maps repository errors onto service errors.
func storageErr(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return transient(op, err)
}
