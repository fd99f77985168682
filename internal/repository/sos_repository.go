package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/owleye/internal/model"
)

// SOSRepo provides data access for SOS alerts.
type SOSRepo struct {
	db *sql.DB
}

// NewSOSRepo returns an SOSRepo bound to db.
func NewSOSRepo(db *sql.DB) *SOSRepo { return &SOSRepo{db: db} }

const sosColumns = `id, venue_id, user_id, sos_type, lat, lng, status, created_at, updated_at, resolved_at`

func scanSOS(row interface{ Scan(...any) error }) (*model.SOSAlert, error) {
	var (
		a                model.SOSAlert
		created, updated int64
		resolved         sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.VenueID, &a.UserID, &a.Type, &a.Lat, &a.Lng, &a.Status, &created, &updated, &resolved); err != nil {
		return nil, err
	}
	a.CreatedAt, a.UpdatedAt = fromMillis(created), fromMillis(updated)
	a.ResolvedAt = timePtr(resolved)
	return &a, nil
}

// Create inserts a and fills in its ID and timestamps.
func (r *SOSRepo) Create(ctx context.Context, a *model.SOSAlert) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO sos_alerts (venue_id, user_id, sos_type, lat, lng, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.VenueID, a.UserID, a.Type, a.Lat, a.Lng, a.Status, toMillis(now), toMillis(now))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	a.CreatedAt, a.UpdatedAt = now, now
	return nil
}

// GetByID loads an alert or returns ErrNotFound.
func (r *SOSRepo) GetByID(ctx context.Context, id uint64) (*model.SOSAlert, error) {
	a, err := scanSOS(r.db.QueryRowContext(ctx, `SELECT `+sosColumns+` FROM sos_alerts WHERE id = ?`, id))
	return a, notFound(err)
}

// UpdateStatus moves an alert from one status to another, returning
// ErrConflict when the stored status no longer equals from.
func (r *SOSRepo) UpdateStatus(ctx context.Context, id uint64, from, to model.SOSStatus, at time.Time, resolvedAt *time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sos_alerts SET status = ?, updated_at = ?, resolved_at = ? WHERE id = ? AND status = ?`,
		to, toMillis(at), nullMillis(resolvedAt), id, from)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// ListActive returns the ACTIVE and ACKNOWLEDGED alerts of a venue.
func (r *SOSRepo) ListActive(ctx context.Context, venueID uint64) ([]model.SOSAlert, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sosColumns+` FROM sos_alerts WHERE venue_id = ? AND status IN (?, ?) ORDER BY id DESC`,
		venueID, model.SOSActive, model.SOSAcknowledged)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SOSAlert
	for rows.Next() {
		a, err := scanSOS(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// CountActive returns the number of unresolved alerts of a venue.
func (r *SOSRepo) CountActive(ctx context.Context, venueID uint64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sos_alerts WHERE venue_id = ? AND status IN (?, ?)`,
		venueID, model.SOSActive, model.SOSAcknowledged).Scan(&n)
	return n, err
}
