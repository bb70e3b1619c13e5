package domain

import "errors"

var (
	// ErrCallNotFound is returned when a call cannot be found in the database
	ErrCallNotFound = errors.New("call not found")

	// ErrCallAlreadyClaimed is returned when attempting to claim a call
	// that is not in PENDING status (claimed, canceled or finished)
	ErrCallAlreadyClaimed = errors.New("call already claimed or not in PENDING status")

	// ErrInvalidPayload is returned when the stored call spec JSON is malformed
	ErrInvalidPayload = errors.New("invalid call payload")

	// ErrMaxAttemptsExceeded is returned when a call has exhausted its
	// delivery attempts
	ErrMaxAttemptsExceeded = errors.New("max delivery attempts exceeded")
)

// RetryableError wraps transient delivery failures that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
