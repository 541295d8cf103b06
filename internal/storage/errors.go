package storage

import (
	"errors"
	"fmt"
)

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// SinkError is a failed batch write. Writes are idempotent, so the same
// batch may be retried.
type SinkError struct {
	Sink    string // sink backend name
	Records int    // batch size
	Err     error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("%s sink: write %d records: %v", e.Sink, e.Records, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
