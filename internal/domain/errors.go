package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyBatchID is returned when a raw batch is loaded without a key.
	ErrEmptyBatchID = errors.New("batch id is required")

	// ErrInvalidWindow is returned for unparsable or inverted date windows.
	ErrInvalidWindow = errors.New("invalid window")
)

// SchemaError reports a failure verifying or creating the staging schema.
// It is fatal to a transform run: no data operation follows it.
type SchemaError struct {
	Op  string
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema %s: %v", e.Op, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// StoreError reports a failed unit of work (delete, insert, read). The unit
// of work has been rolled back when this is returned.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
