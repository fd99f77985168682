// Package service implements the admission engine, the location pipeline
// and the incident, SOS and alert lifecycles.  Every operation commits
// its state change first and only then emits broadcast and audit events;
// emission failures never undo or fail the mutation.
package service

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by the services.  Handlers map them to HTTP
// statuses with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrVenueNotOpen      = errors.New("venue not open for registration")
	ErrAlreadyScanned    = errors.New("ticket already scanned")
	ErrInvalidated       = errors.New("ticket invalidated")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrTransient wraps storage failures the caller may retry.
	ErrTransient = errors.New("temporarily unavailable")
	// ErrInvariantViolation signals a broken internal invariant such as a
	// negative attendance count.  It is never expected in correct
	// operation.
	ErrInvariantViolation = errors.New("invariant violation")
)

// AlreadyScannedError reports a repeated scan together with the time of
// the original one.
type AlreadyScannedError struct {
	TicketID  uint64
	ScannedAt time.Time
}

func (e *AlreadyScannedError) Error() string {
	if e.ScannedAt.IsZero() {
		return ErrAlreadyScanned.Error()
	}
	return fmt.Sprintf("%s at %s", ErrAlreadyScanned, e.ScannedAt.UTC().Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrAlreadyScanned) hold.
func (e *AlreadyScannedError) Is(target error) bool { return target == ErrAlreadyScanned }

// ValidationError is returned for malformed input before any state is
// touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return "validation failed"
	}
	if e.Reason == "" {
		return e.Field + ": invalid"
	}
	return e.Field + ": " + e.Reason
}

func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
}
