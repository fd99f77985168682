// Package testutil provides database fixtures and token helpers shared by
// package tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/iliyamo/owleye/internal/database"
	"github.com/iliyamo/owleye/internal/model"
	"github.com/iliyamo/owleye/internal/utils"
)

// JWTSecret signs tokens minted by Token.
const JWTSecret = "test-secret"

// NewDB opens a private in-memory SQLite database with the full schema.
func NewDB(t *testing.T) *sql.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", name)
	db, err := database.OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.Migrate(context.Background(), db, "sqlite"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateVenue inserts a SCHEDULED venue owned by organizerID.
func CreateVenue(t *testing.T, db *sql.DB, organizerID uint64, capacity int64) *model.Venue {
	t.Helper()
	return CreateVenueWithStatus(t, db, organizerID, capacity, model.VenueScheduled)
}

// CreateVenueWithStatus inserts a venue in the given status.
func CreateVenueWithStatus(t *testing.T, db *sql.DB, organizerID uint64, capacity int64, status model.VenueStatus) *model.Venue {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Millisecond)
	v := &model.Venue{
		OrganizerID: organizerID,
		Title:       "Test Venue",
		Category:    "MUSIC",
		Lat:         12.9716,
		Lng:         77.5946,
		Capacity:    capacity,
		Status:      status,
		StartsAt:    now.Add(time.Hour),
		EndsAt:      now.Add(4 * time.Hour),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	res, err := db.Exec(`INSERT INTO venues (organizer_id, title, category, address, lat, lng, capacity,
		current_attendance, status, starts_at, ends_at, created_at, updated_at)
		VALUES (?, ?, ?, '', ?, ?, ?, 0, ?, ?, ?, ?, ?)`,
		v.OrganizerID, v.Title, v.Category, v.Lat, v.Lng, v.Capacity, v.Status,
		v.StartsAt.UnixMilli(), v.EndsAt.UnixMilli(), now.UnixMilli(), now.UnixMilli())
	if err != nil {
		t.Fatalf("create venue: %v", err)
	}
	id, _ := res.LastInsertId()
	v.ID = uint64(id)
	return v
}

// Token mints an HS256 access token for id, valid for an hour.
func Token(t *testing.T, id model.Identity) string {
	t.Helper()
	tok, err := utils.NewAccessToken(JWTSecret, id, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok.Token
}
