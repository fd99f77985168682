package model

import "time"

// IncidentStatus is the state of a reported incident.
type IncidentStatus string

const (
	IncidentReported      IncidentStatus = "REPORTED"
	IncidentInvestigating IncidentStatus = "INVESTIGATING"
	IncidentResolved      IncidentStatus = "RESOLVED"
	IncidentFalseAlarm    IncidentStatus = "FALSE_ALARM"
)

var incidentTransitions = map[IncidentStatus][]IncidentStatus{
	IncidentReported:      {IncidentInvestigating, IncidentFalseAlarm},
	IncidentInvestigating: {IncidentResolved, IncidentFalseAlarm},
}

// CanTransition reports whether an incident may move from s to next.
func (s IncidentStatus) CanTransition(next IncidentStatus) bool {
	for _, n := range incidentTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Open reports whether the incident still needs attention.
func (s IncidentStatus) Open() bool {
	return s == IncidentReported || s == IncidentInvestigating
}

// Severity levels shared by incidents.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Incident categories offered to reporters.
const (
	CategoryFire        = "FIRE"
	CategoryMedical     = "MEDICAL"
	CategoryViolence    = "VIOLENCE"
	CategoryStampede    = "STAMPEDE"
	CategorySuspicious  = "SUSPICIOUS"
	CategoryLostPerson  = "LOST_PERSON"
	CategoryTechFailure = "TECH_FAILURE"
	CategoryOther       = "OTHER"
)

// Incident is a safety issue reported at a venue.
type Incident struct {
	ID          uint64         `json:"id"`
	VenueID     uint64         `json:"event"`
	ReporterID  uint64         `json:"reporter"`
	Category    string         `json:"category"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Lat         float64        `json:"lat"`
	Lng         float64        `json:"lng"`
	Status      IncidentStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ResolvedAt  *time.Time     `json:"resolved_at"`
}
