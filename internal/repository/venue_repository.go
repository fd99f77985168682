package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/owleye/internal/model"
)

// VenueRepo provides data access for venues.  Attendance is only ever
// changed with a single relative UPDATE so concurrent writers cannot lose
// increments.
type VenueRepo struct {
	db *sql.DB
}

// NewVenueRepo returns a VenueRepo bound to db.
func NewVenueRepo(db *sql.DB) *VenueRepo { return &VenueRepo{db: db} }

const venueColumns = `id, organizer_id, title, category, address, lat, lng, capacity,
	current_attendance, status, starts_at, ends_at, created_at, updated_at`

// Create inserts v and fills in its ID and timestamps.
func (r *VenueRepo) Create(ctx context.Context, v *model.Venue) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	const q = `INSERT INTO venues (organizer_id, title, category, address, lat, lng, capacity,
		current_attendance, status, starts_at, ends_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, v.OrganizerID, v.Title, v.Category, v.Address, v.Lat, v.Lng,
		v.Capacity, v.Status, toMillis(v.StartsAt), toMillis(v.EndsAt), toMillis(now), toMillis(now))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	v.ID = uint64(id)
	v.CurrentAttendance = 0
	v.CreatedAt, v.UpdatedAt = now, now
	return nil
}

// GetByID loads a venue or returns ErrNotFound.
func (r *VenueRepo) GetByID(ctx context.Context, id uint64) (*model.Venue, error) {
	return r.get(ctx, r.db, id)
}

// GetByIDTx loads a venue inside tx.
func (r *VenueRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Venue, error) {
	return r.get(ctx, tx, id)
}

func (r *VenueRepo) get(ctx context.Context, q DBTX, id uint64) (*model.Venue, error) {
	row := q.QueryRowContext(ctx, `SELECT `+venueColumns+` FROM venues WHERE id = ?`, id)
	var (
		v                                  model.Venue
		startsAt, endsAt, created, updated int64
	)
	err := row.Scan(&v.ID, &v.OrganizerID, &v.Title, &v.Category, &v.Address, &v.Lat, &v.Lng,
		&v.Capacity, &v.CurrentAttendance, &v.Status, &startsAt, &endsAt, &created, &updated)
	if err != nil {
		return nil, notFound(err)
	}
	v.StartsAt, v.EndsAt = fromMillis(startsAt), fromMillis(endsAt)
	v.CreatedAt, v.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &v, nil
}

// UpdateStatus sets the lifecycle status of a venue.
func (r *VenueRepo) UpdateStatus(ctx context.Context, id uint64, status model.VenueStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE venues SET status = ?, updated_at = ? WHERE id = ?`,
		status, toMillis(time.Now()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LockTx takes the venue row's write lock for the rest of tx, so other
// transactions that lock the same venue wait until tx ends.  It is a no-op
// for unknown ids; callers load the venue afterwards.
func (r *VenueRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx, `UPDATE venues SET updated_at = updated_at WHERE id = ?`, id)
	return err
}

// IncrementAttendanceTx adds one to the venue's attendance counter and
// returns the new value as read back inside the same transaction.
func (r *VenueRepo) IncrementAttendanceTx(ctx context.Context, tx *sql.Tx, id uint64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE venues SET current_attendance = current_attendance + 1, updated_at = ? WHERE id = ?`,
		toMillis(time.Now()), id)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}
	var current int64
	if err := tx.QueryRowContext(ctx, `SELECT current_attendance FROM venues WHERE id = ?`, id).Scan(&current); err != nil {
		return 0, err
	}
	return current, nil
}
