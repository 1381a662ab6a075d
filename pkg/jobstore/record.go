// Package jobstore persists pipeline job records keyed by job id.
//
// A Record tracks one asynchronous unit of work (one transcription or one
// summarization) through its lifecycle. The store is the only shared mutable
// resource in the pipeline: creation happens on the request path, every later
// mutation goes through an atomic read-modify-write that refuses to touch a
// terminal record.
package jobstore

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a pipeline job.
//
// NOTE: These values are persisted and are part of the stable API contract.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is final. A terminal record is
// immutable; any later write is rejected with ErrTerminal.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Kind identifies which pipeline a job belongs to.
type Kind string

const (
	KindTranscription Kind = "transcription"
	KindSummarization Kind = "summarization"
)

// Record is the persisted state of one pipeline job.
//
// Exactly one of the following holds at all times: Output set with status
// completed, Error set with status failed, or both empty while the job is
// pending/processing. The mutator methods below maintain that invariant;
// callers must not assign the fields directly inside store updates.
type Record struct {
	ID       string  `json:"id"`
	Kind     Kind    `json:"kind"`
	Status   Status  `json:"status"`
	Progress float64 `json:"progress"`

	// InputRef locates the job input: a source reference for a
	// transcription job, the prerequisite transcription job id for a
	// summarization job.
	InputRef string `json:"input_ref"`

	// Output is the full transcription or final summary text, set exactly
	// once on the transition to completed.
	Output string `json:"output,omitempty"`

	// Error is the human-readable failure cause, set exactly once on the
	// transition to failed.
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Mutation errors returned from record transitions.
var (
	// ErrNotPending is returned when a run tries to acknowledge a job that
	// already left pending (duplicate runner dispatch).
	ErrNotPending = errors.New("job is not pending")
)

// NewRecord creates a pending record with a fresh id.
func NewRecord(kind Kind, inputRef string) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    StatusPending,
		Progress:  0,
		InputRef:  inputRef,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkProcessing transitions pending -> processing and raises progress to
// floor so a poller can tell "acknowledged" from "never started". It fails
// with ErrNotPending if the job already left pending, which is how a
// duplicate runner invocation detects it lost the race.
func (r *Record) MarkProcessing(floor float64) error {
	if r.Status != StatusPending {
		return ErrNotPending
	}
	r.Status = StatusProcessing
	r.SetProgress(floor)
	return nil
}

// SetProgress raises progress to p. Progress is clamped to [0, 1] and never
// decreases, regardless of the order updates arrive in.
func (r *Record) SetProgress(p float64) {
	if p > 1 {
		p = 1
	}
	if p > r.Progress {
		r.Progress = p
	}
}

// Complete transitions to the completed terminal state with the final output
// and progress pinned at 1.0.
func (r *Record) Complete(output string) {
	r.Status = StatusCompleted
	r.Output = output
	r.Error = ""
	r.Progress = 1
}

// Fail transitions to the failed terminal state. Progress keeps its last
// value: partial progress is informative even in failure.
func (r *Record) Fail(cause string) {
	r.Status = StatusFailed
	r.Error = cause
	r.Output = ""
}
