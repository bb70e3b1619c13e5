package domain

import (
	"errors"
)

// Call status constants. PENDING calls wait for a spooler; SPOOLING calls
// are claimed by one; SPOOLED calls have a file in the telephony server's
// spool directory.
const (
	CallStatusPending  = "PENDING"
	CallStatusSpooling = "SPOOLING"
	CallStatusSpooled  = "SPOOLED"
	CallStatusFailed   = "FAILED"
	CallStatusCanceled = "CANCELED"
)

var (
	// ErrCallNotFound is returned when a call id has no row.
	ErrCallNotFound = errors.New("call not found")

	// ErrCallNotCancelable is returned when a cancel request hits a call
	// that already left the PENDING state.
	ErrCallNotCancelable = errors.New("call is not in a cancelable state")

	// ErrCallNotDeletable is returned when a delete request hits a call
	// that is not in a terminal state.
	ErrCallNotDeletable = errors.New("call is not in a terminal state")

	// ErrDuplicateIdempotencyKey is returned when an insert collides with
	// an existing idempotency key.
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
)

// IsTerminal reports whether a status will never change again.
func IsTerminal(status string) bool {
	switch status {
	case CallStatusSpooled, CallStatusFailed, CallStatusCanceled:
		return true
	}
	return false
}
