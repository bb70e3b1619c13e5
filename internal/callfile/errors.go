package callfile

import "errors"

var (
	// ErrValidation is returned when the endpoint, the action, or the spool
	// directory fail the call file constraints. Nothing has been written yet.
	ErrValidation = errors.New("call file failed validation")

	// ErrInvalidTime is returned when a deferred spool time cannot be used
	// as a file timestamp (zero value or before the Unix epoch).
	ErrInvalidTime = errors.New("invalid spool time")

	// ErrNoUser is returned when the run-as user does not resolve to an
	// existing OS account.
	ErrNoUser = errors.New("no such user")

	// ErrNoUserPermission is returned when the run-as user exists but the
	// process is not allowed to change file ownership to it.
	ErrNoUserPermission = errors.New("not permitted to change call file owner")

	// ErrNoSpoolPermission is returned when the process cannot write into
	// the spool directory.
	ErrNoSpoolPermission = errors.New("spool directory is not writable")
)
