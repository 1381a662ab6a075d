// Package chunk splits oversized pipeline inputs into ordered, bounded-size
// pieces and reassembles per-chunk outputs.
//
// Capability providers cap request payload sizes, so audio and text inputs
// must be cut below the provider ceiling before dispatch. Audio chunking is
// byte-range based: contiguous slices with no gaps, no overlaps, and no loss.
// Text chunking packs whole sentences greedily and never splits inside a
// sentence.
package chunk

import (
	"errors"
	"strings"
)

// Errors returned by split operations.
var (
	// ErrInvalidCeiling is returned when the chunk size ceiling is not positive.
	ErrInvalidCeiling = errors.New("chunk size ceiling must be positive")
)

// SplitBytes cuts data into the minimum number of contiguous chunks, each at
// most maxSize bytes, covering the whole input in original order.
//
// The returned slices share the input's backing array; callers must not
// mutate the input while chunks are in flight. An empty input yields no
// chunks.
func SplitBytes(data []byte, maxSize int) ([][]byte, error) {
	if maxSize <= 0 {
		return nil, ErrInvalidCeiling
	}
	if len(data) == 0 {
		return nil, nil
	}

	chunks := make([][]byte, 0, (len(data)+maxSize-1)/maxSize)
	for start := 0; start < len(data); start += maxSize {
		end := start + maxSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[start:end])
	}
	return chunks, nil
}

// SplitText cuts text into chunks of at most maxChars characters, breaking
// only at sentence boundaries. Sentences are packed greedily: a sentence is
// appended to the current chunk unless doing so would exceed maxChars, in
// which case a new chunk starts. A single sentence longer than maxChars is
// emitted as its own oversized chunk rather than truncated.
//
// maxChars is measured in bytes, so multibyte UTF-8 text packs slightly
// under the ceiling. That keeps the bound conservative relative to provider
// limits, which count bytes too.
//
// Joining the returned chunks with no separator reproduces the input exactly.
func SplitText(text string, maxChars int) ([]string, error) {
	if maxChars <= 0 {
		return nil, ErrInvalidCeiling
	}
	if len(text) == 0 {
		return nil, nil
	}

	var (
		chunks  []string
		current strings.Builder
	)
	for _, sentence := range splitSentences(text) {
		if current.Len() > 0 && current.Len()+len(sentence) > maxChars {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks, nil
}

// Join reassembles per-chunk outputs into one whole-input output, in order,
// separated by delimiter. Empty parts are skipped so the delimiter never
// doubles up.
func Join(parts []string, delimiter string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, delimiter)
}

// splitSentences segments text at sentence-terminating punctuation. Each
// returned segment carries its terminator run and any trailing whitespace, so
// concatenating the segments reproduces the input byte for byte.
func splitSentences(text string) []string {
	var (
		sentences []string
		start     int
	)
	i := 0
	for i < len(text) {
		if !isTerminator(text[i]) {
			i++
			continue
		}
		// Consume the full terminator run ("...", "?!") and trailing space.
		for i < len(text) && isTerminator(text[i]) {
			i++
		}
		for i < len(text) && isSpace(text[i]) {
			i++
		}
		sentences = append(sentences, text[start:i])
		start = i
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

func isTerminator(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
