// Package capability defines adapters to the external model capabilities the
// pipeline depends on: speech-to-text and text summarization.
//
// Implementations are stateless and synchronous from the caller's point of
// view; a call blocks until the provider answers or fails. No retry happens
// at this layer - retry policy belongs to the pipeline runner, which uses the
// error classification helpers in this package to decide retry versus
// immediate failure.
package capability

import "context"

// Transcriber converts raw audio bytes into plain text.
type Transcriber interface {
	// Transcribe sends one audio chunk to the speech-to-text provider.
	// filename is a hint for the provider's container-format detection
	// (e.g. "chunk-002.mp3").
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Summarizer condenses a block of text under a role instruction.
type Summarizer interface {
	// Summarize sends text plus a system/role prompt to the language model
	// and returns the generated text.
	Summarize(ctx context.Context, text, rolePrompt string) (string, error)
}

// OperationType identifies a capability operation for error reporting.
type OperationType string

const (
	// OpTranscribe is the speech-to-text operation.
	OpTranscribe OperationType = "transcribe"

	// OpSummarize is the text-summarization operation.
	OpSummarize OperationType = "summarize"
)

// String returns the string representation of the operation type.
func (o OperationType) String() string {
	return string(o)
}
