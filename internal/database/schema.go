package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Timestamps are BIGINT unix milliseconds in both dialects so the
// repositories can share their queries.  The only dialect difference is
// the auto increment primary key.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS venues (
		id %[1]s,
		organizer_id BIGINT NOT NULL,
		title VARCHAR(200) NOT NULL,
		category VARCHAR(50) NOT NULL DEFAULT '',
		address VARCHAR(255) NOT NULL DEFAULT '',
		lat DOUBLE NOT NULL,
		lng DOUBLE NOT NULL,
		capacity BIGINT NOT NULL,
		current_attendance BIGINT NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL,
		starts_at BIGINT NOT NULL DEFAULT 0,
		ends_at BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		CHECK (current_attendance >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id %[1]s,
		venue_id BIGINT NOT NULL REFERENCES venues(id),
		holder_id BIGINT NOT NULL,
		qr_token VARCHAR(64) NOT NULL UNIQUE,
		status VARCHAR(20) NOT NULL,
		scanned_at BIGINT NULL,
		scanned_by BIGINT NULL,
		created_at BIGINT NOT NULL,
		UNIQUE (venue_id, holder_id)
	)`,
	`CREATE TABLE IF NOT EXISTS position_samples (
		id %[1]s,
		venue_id BIGINT NOT NULL REFERENCES venues(id),
		subject_id BIGINT NULL,
		lat DOUBLE NOT NULL,
		lng DOUBLE NOT NULL,
		source VARCHAR(10) NOT NULL,
		observed_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS incidents (
		id %[1]s,
		venue_id BIGINT NOT NULL REFERENCES venues(id),
		reporter_id BIGINT NOT NULL,
		category VARCHAR(30) NOT NULL,
		severity VARCHAR(10) NOT NULL,
		description TEXT NOT NULL,
		lat DOUBLE NOT NULL,
		lng DOUBLE NOT NULL,
		status VARCHAR(20) NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		resolved_at BIGINT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sos_alerts (
		id %[1]s,
		venue_id BIGINT NOT NULL REFERENCES venues(id),
		user_id BIGINT NOT NULL,
		sos_type VARCHAR(20) NOT NULL,
		lat DOUBLE NOT NULL,
		lng DOUBLE NOT NULL,
		status VARCHAR(20) NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		resolved_at BIGINT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS safety_alerts (
		id %[1]s,
		venue_id BIGINT NOT NULL REFERENCES venues(id),
		author_id BIGINT NOT NULL,
		title VARCHAR(200) NOT NULL,
		message TEXT NOT NULL,
		severity VARCHAR(20) NOT NULL,
		audience_type VARCHAR(20) NOT NULL,
		created_at BIGINT NOT NULL
	)`,
}

var indexes = []string{
	`CREATE INDEX idx_positions_venue ON position_samples (venue_id, observed_at)`,
	`CREATE INDEX idx_incidents_venue ON incidents (venue_id, status)`,
	`CREATE INDEX idx_sos_venue ON sos_alerts (venue_id, status)`,
}

// Migrate creates the tables and indexes if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var pk string
	switch driver {
	case "mysql":
		pk = "BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY"
	case "sqlite":
		pk = "INTEGER PRIMARY KEY AUTOINCREMENT"
	default:
		return fmt.Errorf("database: unsupported driver %q", driver)
	}
	for _, t := range tables {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(t, pk)); err != nil {
			return fmt.Errorf("database: create table: %w", err)
		}
	}
	for _, ix := range indexes {
		stmt := ix
		if driver == "sqlite" {
			stmt = strings.Replace(ix, "CREATE INDEX", "CREATE INDEX IF NOT EXISTS", 1)
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil && !isDuplicateIndex(err) {
			return fmt.Errorf("database: create index: %w", err)
		}
	}
	return nil
}

// MySQL has no CREATE INDEX IF NOT EXISTS; re-running the migration
// reports error 1061 which is harmless.
func isDuplicateIndex(err error) bool {
	return strings.Contains(err.Error(), "Error 1061")
}
