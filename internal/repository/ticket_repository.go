package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/owleye/internal/model"
)

// TicketRepo provides data access for tickets.  The (venue_id, holder_id)
// and qr_token unique keys back the one-ticket-per-holder rule; every
// status change is a conditional UPDATE on the expected prior status.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a TicketRepo bound to db.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

const ticketColumns = `id, venue_id, holder_id, qr_token, status, scanned_at, scanned_by, created_at`

func scanTicket(row interface{ Scan(...any) error }) (*model.Ticket, error) {
	var (
		t         model.Ticket
		scannedAt sql.NullInt64
		scannedBy sql.NullInt64
		created   int64
	)
	if err := row.Scan(&t.ID, &t.VenueID, &t.HolderID, &t.QRToken, &t.Status, &scannedAt, &scannedBy, &created); err != nil {
		return nil, err
	}
	t.ScannedAt = timePtr(scannedAt)
	t.ScannedBy = idPtr(scannedBy)
	t.CreatedAt = fromMillis(created)
	return &t, nil
}

// CreateTx inserts an ISSUED ticket inside tx.  A unique key violation is
// reported as ErrDuplicate.
func (r *TicketRepo) CreateTx(ctx context.Context, tx *sql.Tx, t *model.Ticket) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO tickets (venue_id, holder_id, qr_token, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.VenueID, t.HolderID, t.QRToken, model.TicketIssued, toMillis(now))
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	t.Status = model.TicketIssued
	t.CreatedAt = now
	return nil
}

// GetByHolderTx returns the holder's ticket for a venue, whatever its
// status, or ErrNotFound.
func (r *TicketRepo) GetByHolderTx(ctx context.Context, tx *sql.Tx, venueID, holderID uint64) (*model.Ticket, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE venue_id = ? AND holder_id = ?`, venueID, holderID)
	t, err := scanTicket(row)
	return t, notFound(err)
}

// CountLiveTx counts ISSUED and SCANNED tickets of a venue inside tx.
func (r *TicketRepo) CountLiveTx(ctx context.Context, tx *sql.Tx, venueID uint64) (int64, error) {
	var n int64
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets WHERE venue_id = ? AND status IN (?, ?)`,
		venueID, model.TicketIssued, model.TicketScanned).Scan(&n)
	return n, err
}

// GetByToken looks a ticket up by its QR token.
func (r *TicketRepo) GetByToken(ctx context.Context, token string) (*model.Ticket, error) {
	return r.byToken(ctx, r.db, token)
}

// GetByTokenTx looks a ticket up by its QR token inside tx.
func (r *TicketRepo) GetByTokenTx(ctx context.Context, tx *sql.Tx, token string) (*model.Ticket, error) {
	return r.byToken(ctx, tx, token)
}

func (r *TicketRepo) byToken(ctx context.Context, q DBTX, token string) (*model.Ticket, error) {
	t, err := scanTicket(q.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE qr_token = ?`, token))
	return t, notFound(err)
}

// GetByID loads a ticket by primary key.
func (r *TicketRepo) GetByID(ctx context.Context, id uint64) (*model.Ticket, error) {
	t, err := scanTicket(r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id))
	return t, notFound(err)
}

// MarkScannedTx moves an ISSUED ticket to SCANNED.  It returns
// ErrConflict when the ticket was no longer ISSUED.
func (r *TicketRepo) MarkScannedTx(ctx context.Context, tx *sql.Tx, id, staffID uint64, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE tickets SET status = ?, scanned_at = ?, scanned_by = ? WHERE id = ? AND status = ?`,
		model.TicketScanned, toMillis(at), staffID, id, model.TicketIssued)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// InvalidateTx moves an ISSUED ticket to INVALIDATED, releasing its
// capacity slot.  It returns ErrConflict when the ticket was not ISSUED.
func (r *TicketRepo) InvalidateTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx, `UPDATE tickets SET status = ? WHERE id = ? AND status = ?`,
		model.TicketInvalidated, id, model.TicketIssued)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// ListByHolder returns every ticket held by a user, newest first.
func (r *TicketRepo) ListByHolder(ctx context.Context, holderID uint64) ([]model.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE holder_id = ? ORDER BY id DESC`, holderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// CountByStatus returns the number of tickets per status for a venue.
func (r *TicketRepo) CountByStatus(ctx context.Context, venueID uint64) (map[model.TicketStatus]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tickets WHERE venue_id = ? GROUP BY status`, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[model.TicketStatus]int64)
	for rows.Next() {
		var (
			s model.TicketStatus
			n int64
		)
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, rows.Err()
}
