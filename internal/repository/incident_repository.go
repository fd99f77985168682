package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/owleye/internal/model"
)

// IncidentRepo provides data access for incidents.
type IncidentRepo struct {
	db *sql.DB
}

// NewIncidentRepo returns an IncidentRepo bound to db.
func NewIncidentRepo(db *sql.DB) *IncidentRepo { return &IncidentRepo{db: db} }

const incidentColumns = `id, venue_id, reporter_id, category, severity, description, lat, lng,
	status, created_at, updated_at, resolved_at`

func scanIncident(row interface{ Scan(...any) error }) (*model.Incident, error) {
	var (
		in               model.Incident
		created, updated int64
		resolved         sql.NullInt64
	)
	err := row.Scan(&in.ID, &in.VenueID, &in.ReporterID, &in.Category, &in.Severity, &in.Description,
		&in.Lat, &in.Lng, &in.Status, &created, &updated, &resolved)
	if err != nil {
		return nil, err
	}
	in.CreatedAt, in.UpdatedAt = fromMillis(created), fromMillis(updated)
	in.ResolvedAt = timePtr(resolved)
	return &in, nil
}

// Create inserts in and fills in its ID and timestamps.
func (r *IncidentRepo) Create(ctx context.Context, in *model.Incident) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO incidents (venue_id, reporter_id, category, severity, description, lat, lng, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.VenueID, in.ReporterID, in.Category, in.Severity, in.Description, in.Lat, in.Lng, in.Status,
		toMillis(now), toMillis(now))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	in.ID = uint64(id)
	in.CreatedAt, in.UpdatedAt = now, now
	return nil
}

// GetByID loads an incident or returns ErrNotFound.
func (r *IncidentRepo) GetByID(ctx context.Context, id uint64) (*model.Incident, error) {
	in, err := scanIncident(r.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id))
	return in, notFound(err)
}

// UpdateStatus moves an incident from one status to another.  ErrConflict
// means a concurrent writer changed the status first.  resolvedAt may be
// nil.
func (r *IncidentRepo) UpdateStatus(ctx context.Context, id uint64, from, to model.IncidentStatus, at time.Time, resolvedAt *time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE incidents SET status = ?, updated_at = ?, resolved_at = ? WHERE id = ? AND status = ?`,
		to, toMillis(at), nullMillis(resolvedAt), id, from)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// ListByVenue returns the incidents of a venue, newest first.  When
// openOnly is set, resolved and false alarm incidents are skipped.
func (r *IncidentRepo) ListByVenue(ctx context.Context, venueID uint64, openOnly bool) ([]model.Incident, error) {
	q := `SELECT ` + incidentColumns + ` FROM incidents WHERE venue_id = ?`
	args := []any{venueID}
	if openOnly {
		q += ` AND status IN (?, ?)`
		args = append(args, model.IncidentReported, model.IncidentInvestigating)
	}
	q += ` ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Incident
	for rows.Next() {
		in, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}

// CountOpen returns the number of REPORTED or INVESTIGATING incidents.
func (r *IncidentRepo) CountOpen(ctx context.Context, venueID uint64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM incidents WHERE venue_id = ? AND status IN (?, ?)`,
		venueID, model.IncidentReported, model.IncidentInvestigating).Scan(&n)
	return n, err
}
