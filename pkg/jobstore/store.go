package jobstore

import (
	"context"
	"errors"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates no record exists for the job id. Callers must
	// surface this distinctly from a failed job.
	ErrNotFound = errors.New("job not found")

	// ErrExists indicates a record with the same id already exists.
	ErrExists = errors.New("job already exists")

	// ErrTerminal indicates an update targeted a record that already
	// reached a terminal state. Terminal records are immutable; a runner
	// receiving this treats the write as a benign no-op.
	ErrTerminal = errors.New("job already terminal")
)

// InvalidRecordError reports a record that cannot be persisted.
type InvalidRecordError struct {
	Reason string
}

func (e *InvalidRecordError) Error() string {
	return "invalid job record: " + e.Reason
}

func errEmptyID() error {
	return &InvalidRecordError{Reason: "record id is required"}
}

// Store persists job records keyed by job id.
//
// Implementations must make Update an atomic read-modify-write: two
// concurrent updates to the same id serialize, and an update against a
// terminal record returns ErrTerminal without invoking mutate. No multi-job
// transactions are offered.
type Store interface {
	// Create persists a new record. Returns ErrExists if the id is taken.
	Create(ctx context.Context, rec *Record) error

	// Get returns a snapshot of the record, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// Update applies mutate to the current record and commits the result,
	// refreshing UpdatedAt. mutate receives a private copy; returning an
	// error aborts the update and propagates. The committed record is
	// returned on success.
	Update(ctx context.Context, id string, mutate func(*Record) error) (*Record, error)
}
