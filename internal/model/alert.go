package model

import "time"

// SafetyAlert is an announcement pushed to everyone watching a venue's
// broadcast channel.
type SafetyAlert struct {
	ID           uint64    `json:"id"`
	VenueID      uint64    `json:"event"`
	AuthorID     uint64    `json:"author"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Severity     string    `json:"severity"`
	AudienceType string    `json:"audience_type"`
	CreatedAt    time.Time `json:"created_at"`
}
