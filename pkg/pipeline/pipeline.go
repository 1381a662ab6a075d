// Package pipeline implements the asynchronous chunked job pipeline: job
// creation, detached execution, progress accounting, and failure handling for
// the two chained long-running operations (transcription, then
// summarization).
//
// Both job variants share one state machine, driven by the Runner over a
// Task. A Task parameterizes the pipeline by chunk kind and capability
// operation:
//
//	Fetch -> Split -> Process (per chunk, in order) -> Join
//
// The Runner owns all record mutations after creation; the Coordinator owns
// creation and status lookup on the request path.
package pipeline

import (
	"context"
	"time"

	"github.com/skaldhq/skald/pkg/jobstore"
)

// Chunk is one bounded-size piece of a job input, processed independently
// and reassembled by index order.
type Chunk struct {
	// Index is the zero-based position of the chunk in the input.
	Index int

	// Data is the chunk payload: audio bytes for transcription, UTF-8
	// text for summarization.
	Data []byte
}

// Task is one chunked pipeline run, parameterized by input kind and
// capability operation.
type Task interface {
	// Kind identifies the pipeline variant for logging and dispatch.
	Kind() jobstore.Kind

	// Fetch resolves the job's input reference into the raw input payload.
	Fetch(ctx context.Context) ([]byte, error)

	// Split cuts the input into ordered chunks under the provider ceiling.
	Split(input []byte) ([]Chunk, error)

	// Process runs the capability operation on one chunk.
	Process(ctx context.Context, c Chunk) (string, error)

	// Join aggregates the ordered per-chunk outputs into the final job
	// output. For summarization this is itself a capability call.
	Join(ctx context.Context, parts []string) (string, error)

	// ChunkShare is the fraction of the progress range covered by
	// per-chunk processing; the remainder is reserved for Join.
	ChunkShare() float64
}

// Config carries the chunking and progress parameters shared by both
// pipeline variants.
type Config struct {
	// AudioChunkBytes is the byte ceiling for one audio chunk.
	// Default: 24 MiB, under the transcription provider's 25 MB cap.
	AudioChunkBytes int

	// TextChunkChars is the character ceiling for one text chunk.
	// Default: 16000 (roughly 4000 tokens).
	TextChunkChars int

	// TranscriptDelimiter separates chunk transcripts in the joined
	// output. Default: "\n\n".
	TranscriptDelimiter string

	// ProgressFloor is the progress value set when a runner acknowledges
	// a job, so a poller can tell "picked up" from "never started".
	// Default: 0.02.
	ProgressFloor float64

	// TranscribeShare is the progress fraction allotted to transcription
	// chunk processing. Default: 0.9 (the join is a cheap concatenation).
	TranscribeShare float64

	// SummarizeShare is the progress fraction allotted to per-chunk
	// summarization. Default: 0.5 (the join is a second model call).
	SummarizeShare float64
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		AudioChunkBytes:     24 << 20,
		TextChunkChars:      16000,
		TranscriptDelimiter: "\n\n",
		ProgressFloor:       0.02,
		TranscribeShare:     0.9,
		SummarizeShare:      0.5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AudioChunkBytes <= 0 {
		c.AudioChunkBytes = d.AudioChunkBytes
	}
	if c.TextChunkChars <= 0 {
		c.TextChunkChars = d.TextChunkChars
	}
	if c.TranscriptDelimiter == "" {
		c.TranscriptDelimiter = d.TranscriptDelimiter
	}
	if c.ProgressFloor <= 0 {
		c.ProgressFloor = d.ProgressFloor
	}
	if c.TranscribeShare <= 0 {
		c.TranscribeShare = d.TranscribeShare
	}
	if c.SummarizeShare <= 0 {
		c.SummarizeShare = d.SummarizeShare
	}
	return c
}

// RetryConfig bounds the runner's handling of transient chunk failures and
// the job as a whole.
type RetryConfig struct {
	// MaxAttempts is the total number of tries for one chunk's capability
	// call, including the first. Default: 3.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry. Default: 2s.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff interval. Default: 30s.
	MaxBackoff time.Duration

	// JobTimeout is the self-imposed wall-clock ceiling for one job run.
	// A run that exceeds it fails with a timeout cause, since no external
	// caller can cancel a detached run. Default: 30 minutes.
	JobTimeout time.Duration
}

// DefaultRetryConfig returns the default runner retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		JobTimeout:     30 * time.Minute,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = d.JobTimeout
	}
	return c
}
