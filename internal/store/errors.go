package store

import "errors"

var (
	// ErrCacheDoesNotExist is returned by every lookup of a playback store
	// whose file is missing.
	ErrCacheDoesNotExist = errors.New("replay cache does not exist")
	// ErrInternal marks a broken invariant, such as a row written without a key.
	ErrInternal = errors.New("replay cache internal error")
	// ErrReadOnly is returned when writing to a playback store.
	ErrReadOnly = errors.New("replay cache is read-only")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("replay cache is closed")
)

// IOError wraps a failure of the underlying storage engine.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return "store " + e.Op + ": " + e.Err.Error() }

func (e *IOError) Unwrap() error { return e.Err }

func ioErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Err: err}
}
