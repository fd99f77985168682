package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/owleye/internal/model"
)

// PositionRepo appends position samples.  Samples are never updated.
type PositionRepo struct {
	db *sql.DB
}

// NewPositionRepo returns a PositionRepo bound to db.
func NewPositionRepo(db *sql.DB) *PositionRepo { return &PositionRepo{db: db} }

// Insert appends s and fills in its ID.
func (r *PositionRepo) Insert(ctx context.Context, s *model.PositionSample) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO position_samples (venue_id, subject_id, lat, lng, source, observed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		s.VenueID, nullID(s.SubjectID), s.Lat, s.Lng, s.Source, toMillis(s.ObservedAt))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// ListSince returns the samples of a venue observed at or after since,
// oldest first, capped at limit rows.
func (r *PositionRepo) ListSince(ctx context.Context, venueID uint64, since time.Time, limit int) ([]model.PositionSample, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, venue_id, subject_id, lat, lng, source, observed_at FROM position_samples
		 WHERE venue_id = ? AND observed_at >= ? ORDER BY observed_at, id LIMIT ?`,
		venueID, toMillis(since), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PositionSample
	for rows.Next() {
		var (
			s        model.PositionSample
			subject  sql.NullInt64
			observed int64
		)
		if err := rows.Scan(&s.ID, &s.VenueID, &subject, &s.Lat, &s.Lng, &s.Source, &observed); err != nil {
			return nil, err
		}
		s.SubjectID = idPtr(subject)
		s.ObservedAt = fromMillis(observed)
		out = append(out, s)
	}
	return out, rows.Err()
}
