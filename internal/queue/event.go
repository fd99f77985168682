// Package queue carries the audit trail over RabbitMQ.  Services hand
// events to a Publisher without waiting on the broker; a Consumer drains
// the queue into an append-only log file.
package queue

import "time"

// Audit event types.
const (
	TicketIssued         = "ticket.issued"
	TicketScanned        = "ticket.scanned"
	TicketInvalidated    = "ticket.invalidated"
	IncidentReported     = "incident.reported"
	IncidentTransitioned = "incident.transitioned"
	SOSRaised            = "sos.raised"
	SOSTransitioned      = "sos.transitioned"
	AlertSent            = "alert.sent"
)

// AuditEvent records one state change for later review.  It carries
// enough context for the log line without querying the database.
type AuditEvent struct {
	Type       string    `json:"type"`
	VenueID    uint64    `json:"venue_id"`
	ActorID    uint64    `json:"actor_id"`
	SubjectID  uint64    `json:"subject_id"`
	Status     string    `json:"status,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
