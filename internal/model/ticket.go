package model

import "time"

// TicketStatus is the admission state of a ticket.  ISSUED may move to
// SCANNED or INVALIDATED; both of those are terminal.
type TicketStatus string

const (
	TicketIssued      TicketStatus = "ISSUED"
	TicketScanned     TicketStatus = "SCANNED"
	TicketInvalidated TicketStatus = "INVALIDATED"
)

// Live reports whether the ticket occupies a capacity slot.
func (s TicketStatus) Live() bool { return s == TicketIssued || s == TicketScanned }

// Ticket records admission of one holder to one venue.  At most one ticket
// exists per (VenueID, HolderID).  QRToken is the opaque value presented at
// check-in.
type Ticket struct {
	ID        uint64       `json:"id"`
	VenueID   uint64       `json:"event"`
	HolderID  uint64       `json:"user"`
	QRToken   string       `json:"qr_token"`
	Status    TicketStatus `json:"status"`
	ScannedAt *time.Time   `json:"scan_timestamp"`
	ScannedBy *uint64      `json:"scanned_by,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}
