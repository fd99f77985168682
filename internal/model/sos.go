package model

import "time"

// SOSStatus is the state of an SOS alert.
type SOSStatus string

const (
	SOSActive       SOSStatus = "ACTIVE"
	SOSAcknowledged SOSStatus = "ACKNOWLEDGED"
	SOSResolved     SOSStatus = "RESOLVED"
	SOSCancelled    SOSStatus = "CANCELLED"
)

var sosTransitions = map[SOSStatus][]SOSStatus{
	SOSActive:       {SOSAcknowledged, SOSCancelled},
	SOSAcknowledged: {SOSResolved, SOSCancelled},
}

// CanTransition reports whether an alert may move from s to next.
func (s SOSStatus) CanTransition(next SOSStatus) bool {
	for _, n := range sosTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// SOS types raised from the panic button.
const (
	SOSTypePanic    = "PANIC"
	SOSTypeMedical  = "MEDICAL"
	SOSTypeSecurity = "SECURITY"
	SOSTypeFire     = "FIRE"
)

// SOSAlert is a distress signal raised by a person at a venue.
type SOSAlert struct {
	ID         uint64     `json:"id"`
	VenueID    uint64     `json:"event"`
	UserID     uint64     `json:"user"`
	Type       string     `json:"sos_type"`
	Lat        float64    `json:"lat"`
	Lng        float64    `json:"lng"`
	Status     SOSStatus  `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at"`
}
