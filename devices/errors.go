package devices

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned for settings no transport can represent.
var ErrInvalidConfig = errors.New("invalid connection configuration")

// ErrRetired is returned when applying a config to a connection that was removed.
var ErrRetired = errors.New("connection was removed")

// ConnectionError reports a failed open (or a read that killed an open port). The
// connection it came from is left in the error state.
type ConnectionError struct {
	Op       string
	Location string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Location, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// WriteError reports a failed or partial write. Nothing is retried.
type WriteError struct {
	Location string
	Written  int
	Expected int
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %d of %d bytes: %v", e.Location, e.Written, e.Expected, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
