package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/skaldhq/skald/pkg/capability"
	"github.com/skaldhq/skald/pkg/chunk"
	"github.com/skaldhq/skald/pkg/jobstore"
	"github.com/skaldhq/skald/pkg/metadata"
	"github.com/skaldhq/skald/pkg/source"
)

// Summarization preconditions, surfaced by the Coordinator at creation time
// and re-checked by the task at run time.
var (
	// ErrNotTranscription reports a summarization request that references
	// a job of a different kind.
	ErrNotTranscription = errors.New("referenced job is not a transcription")

	// ErrNotCompleted reports a summarization request whose referenced
	// transcription has not reached the completed state.
	ErrNotCompleted = errors.New("referenced transcription is not completed")

	// ErrEmptyTranscript reports a completed transcription with no text
	// to summarize.
	ErrEmptyTranscript = errors.New("referenced transcription has no text")
)

const (
	chunkSummaryRole = "You are a precise summarizer. Summarize the " +
		"following transcript excerpt, preserving key facts, names, " +
		"decisions, and action items. Keep the summary concise."

	synthesisRole = "You are a precise summarizer. The following are " +
		"partial summaries of consecutive sections of one transcript. " +
		"Combine them into a single coherent summary of the whole " +
		"recording. Merge duplicate points, keep the original order of " +
		"events, and silently correct obvious transcription errors in " +
		"names of people, places, and organizations when the surrounding " +
		"context makes the intended entity clear. Structure the result " +
		"as markdown with a short overview followed by key points."
)

// TranscriptionTask converts a referenced audio object into text. Chunks are
// byte ranges under the provider ceiling, processed with a bounded number of
// retries and joined by plain concatenation.
type TranscriptionTask struct {
	cfg         Config
	resolver    source.Resolver
	transcriber capability.Transcriber
	ref         string
}

// NewTranscriptionTask builds a transcription task for one source reference.
func NewTranscriptionTask(cfg Config, resolver source.Resolver, transcriber capability.Transcriber, ref string) *TranscriptionTask {
	return &TranscriptionTask{
		cfg:         cfg.withDefaults(),
		resolver:    resolver,
		transcriber: transcriber,
		ref:         ref,
	}
}

// Kind implements Task.
func (t *TranscriptionTask) Kind() jobstore.Kind { return jobstore.KindTranscription }

// Fetch implements Task by resolving the audio reference.
func (t *TranscriptionTask) Fetch(ctx context.Context) ([]byte, error) {
	return t.resolver.Fetch(ctx, t.ref)
}

// Split implements Task by cutting the audio into byte ranges under the
// provider ceiling.
func (t *TranscriptionTask) Split(input []byte) ([]Chunk, error) {
	ranges, err := chunk.SplitBytes(input, t.cfg.AudioChunkBytes)
	if err != nil {
		return nil, err
	}
	chunks := make([]Chunk, len(ranges))
	for i, r := range ranges {
		chunks[i] = Chunk{Index: i, Data: r}
	}
	return chunks, nil
}

// Process implements Task by transcribing one audio chunk. The upload
// filename keeps the source extension so the provider can identify the
// container format.
func (t *TranscriptionTask) Process(ctx context.Context, c Chunk) (string, error) {
	return t.transcriber.Transcribe(ctx, c.Data, t.chunkFilename(c.Index))
}

// Join implements Task by concatenating chunk transcripts in order.
func (t *TranscriptionTask) Join(_ context.Context, parts []string) (string, error) {
	return chunk.Join(parts, t.cfg.TranscriptDelimiter), nil
}

// ChunkShare implements Task.
func (t *TranscriptionTask) ChunkShare() float64 { return t.cfg.TranscribeShare }

func (t *TranscriptionTask) chunkFilename(index int) string {
	ext := path.Ext(t.ref)
	if ext == "" || len(ext) > 5 {
		ext = ".mp3"
	}
	return fmt.Sprintf("chunk-%03d%s", index+1, ext)
}

// SummarizationTask condenses a completed transcription into a markdown
// summary. Chunks are sentence-aligned text windows; each is summarized
// independently, then a single synthesis call combines the partial
// summaries. Extracted metadata (dates, links, emails, references) is
// appended to the result.
type SummarizationTask struct {
	cfg             Config
	store           jobstore.Store
	summarizer      capability.Summarizer
	transcriptionID string
}

// NewSummarizationTask builds a summarization task for one completed
// transcription.
func NewSummarizationTask(cfg Config, store jobstore.Store, summarizer capability.Summarizer, transcriptionID string) *SummarizationTask {
	return &SummarizationTask{
		cfg:             cfg.withDefaults(),
		store:           store,
		summarizer:      summarizer,
		transcriptionID: transcriptionID,
	}
}

// Kind implements Task.
func (t *SummarizationTask) Kind() jobstore.Kind { return jobstore.KindSummarization }

// Fetch implements Task by re-reading the referenced transcription from the
// store. The Coordinator checks the same preconditions at creation time, but
// the record can change between creation and the detached run.
func (t *SummarizationTask) Fetch(ctx context.Context) ([]byte, error) {
	rec, err := t.store.Get(ctx, t.transcriptionID)
	if err != nil {
		return nil, err
	}
	if rec.Kind != jobstore.KindTranscription {
		return nil, ErrNotTranscription
	}
	if rec.Status != jobstore.StatusCompleted {
		return nil, ErrNotCompleted
	}
	if strings.TrimSpace(rec.Output) == "" {
		return nil, ErrEmptyTranscript
	}
	return []byte(rec.Output), nil
}

// Split implements Task by cutting the transcript on sentence boundaries.
func (t *SummarizationTask) Split(input []byte) ([]Chunk, error) {
	windows, err := chunk.SplitText(string(input), t.cfg.TextChunkChars)
	if err != nil {
		return nil, err
	}
	chunks := make([]Chunk, len(windows))
	for i, w := range windows {
		chunks[i] = Chunk{Index: i, Data: []byte(w)}
	}
	return chunks, nil
}

// Process implements Task by summarizing one transcript window.
func (t *SummarizationTask) Process(ctx context.Context, c Chunk) (string, error) {
	return t.summarizer.Summarize(ctx, string(c.Data), chunkSummaryRole)
}

// Join implements Task with a single synthesis call over the ordered partial
// summaries, then appends extracted metadata.
func (t *SummarizationTask) Join(ctx context.Context, parts []string) (string, error) {
	combined := chunk.Join(parts, "\n\n")
	final, err := t.summarizer.Summarize(ctx, combined, synthesisRole)
	if err != nil {
		return "", err
	}
	return metadata.Append(final, metadata.Extract(final)), nil
}

// ChunkShare implements Task.
func (t *SummarizationTask) ChunkShare() float64 { return t.cfg.SummarizeShare }

// Factory builds the Task for a job record, binding the shared chunking
// configuration and capability clients.
type Factory struct {
	cfg         Config
	store       jobstore.Store
	resolver    source.Resolver
	transcriber capability.Transcriber
	summarizer  capability.Summarizer
}

// NewFactory builds a task factory.
func NewFactory(cfg Config, store jobstore.Store, resolver source.Resolver, transcriber capability.Transcriber, summarizer capability.Summarizer) *Factory {
	return &Factory{
		cfg:         cfg.withDefaults(),
		store:       store,
		resolver:    resolver,
		transcriber: transcriber,
		summarizer:  summarizer,
	}
}

// TaskFor returns the pipeline task matching the record's kind. The record's
// input reference is the audio source for transcription and the
// transcription job ID for summarization.
func (f *Factory) TaskFor(rec *jobstore.Record) (Task, error) {
	switch rec.Kind {
	case jobstore.KindTranscription:
		return NewTranscriptionTask(f.cfg, f.resolver, f.transcriber, rec.InputRef), nil
	case jobstore.KindSummarization:
		return NewSummarizationTask(f.cfg, f.store, f.summarizer, rec.InputRef), nil
	default:
		return nil, fmt.Errorf("unknown job kind %q", rec.Kind)
	}
}
