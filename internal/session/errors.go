package session

import "errors"

var (
	// ErrNoMatchingRequest is returned when the full matching policy found no
	// stored request.
	ErrNoMatchingRequest = errors.New("no matching request found in cache")
	// ErrNoMatchingResponse is returned when a stored request has no response.
	ErrNoMatchingResponse = errors.New("no matching response found in cache")
	// ErrSessionEnded is returned by every call made after Close began.
	ErrSessionEnded = errors.New("session has ended")
	// ErrWrongMode is returned when an operation does not apply to the
	// session's mode.
	ErrWrongMode = errors.New("operation not supported in this mode")
	// ErrUnknownTransaction is returned for a lifecycle event whose id was
	// never registered or has already finished.
	ErrUnknownTransaction = errors.New("unknown transaction")
	// ErrDuplicateTransaction is returned when an id is registered twice.
	ErrDuplicateTransaction = errors.New("transaction already registered")
)
