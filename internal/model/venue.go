package model

import "time"

// VenueStatus is the lifecycle state of a venue (a scheduled event).
type VenueStatus string

const (
	VenueScheduled VenueStatus = "SCHEDULED"
	VenueLive      VenueStatus = "LIVE"
	VenueCompleted VenueStatus = "COMPLETED"
	VenueCancelled VenueStatus = "CANCELLED"
)

// Valid reports whether s is a known venue status.
func (s VenueStatus) Valid() bool {
	switch s {
	case VenueScheduled, VenueLive, VenueCompleted, VenueCancelled:
		return true
	}
	return false
}

// OpenForRegistration reports whether tickets may be issued in this state.
func (s VenueStatus) OpenForRegistration() bool {
	return s == VenueScheduled || s == VenueLive
}

// Venue is a scheduled event instance with a fixed capacity and a fixed
// geolocation.  CurrentAttendance is mutated only by the ticket scan
// transition and never goes below zero.
//
// Fields:
//
//	ID                – venues.id
//	OrganizerID       – user who created the venue and owns it
//	Title, Category   – descriptive fields
//	Address           – free form address
//	Lat, Lng          – fixed coordinates used for scan heatmap points
//	Capacity          – maximum number of live (issued or scanned) tickets
//	CurrentAttendance – number of scanned tickets
//	Status            – SCHEDULED, LIVE, COMPLETED or CANCELLED
type Venue struct {
	ID                uint64      `json:"id"`
	OrganizerID       uint64      `json:"organizer"`
	Title             string      `json:"title"`
	Category          string      `json:"category,omitempty"`
	Address           string      `json:"address,omitempty"`
	Lat               float64     `json:"location_lat"`
	Lng               float64     `json:"location_lng"`
	Capacity          int64       `json:"capacity"`
	CurrentAttendance int64       `json:"current_attendance"`
	Status            VenueStatus `json:"status"`
	StartsAt          time.Time   `json:"start_date"`
	EndsAt            time.Time   `json:"end_date"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// VenueStats is the command center summary of a venue.
type VenueStats struct {
	VenueID           uint64 `json:"venue_id"`
	Capacity          int64  `json:"capacity"`
	CurrentAttendance int64  `json:"current_attendance"`
	TicketsIssued     int64  `json:"tickets_issued"`
	TicketsScanned    int64  `json:"tickets_scanned"`
	OpenIncidents     int64  `json:"open_incidents"`
	ActiveSOS         int64  `json:"active_sos"`
	Subscribers       int    `json:"live_subscribers"`
}
