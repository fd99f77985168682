package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/owleye/internal/model"
)

// AlertRepo stores safety alerts.
type AlertRepo struct {
	db *sql.DB
}

func NewAlertRepo(db *sql.DB) *AlertRepo { return &AlertRepo{db: db} }

// Create inserts a and fills in its ID and creation time.
func (r *AlertRepo) Create(ctx context.Context, a *model.SafetyAlert) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO safety_alerts (venue_id, author_id, title, message, severity, audience_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.VenueID, a.AuthorID, a.Title, a.Message, a.Severity, a.AudienceType, toMillis(now))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	a.CreatedAt = now
	return nil
}

// ListByVenue returns the most recent alerts of a venue, newest first.
func (r *AlertRepo) ListByVenue(ctx context.Context, venueID uint64, limit int) ([]model.SafetyAlert, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, venue_id, author_id, title, message, severity, audience_type, created_at
		 FROM safety_alerts WHERE venue_id = ? ORDER BY id DESC LIMIT ?`, venueID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SafetyAlert
	for rows.Next() {
		var (
			a       model.SafetyAlert
			created int64
		)
		if err := rows.Scan(&a.ID, &a.VenueID, &a.AuthorID, &a.Title, &a.Message, &a.Severity, &a.AudienceType, &created); err != nil {
			return nil, err
		}
		a.CreatedAt = fromMillis(created)
		out = append(out, a)
	}
	return out, rows.Err()
}
