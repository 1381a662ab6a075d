package source

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Errors returned by allow-list construction.
var (
	// ErrNoIncludes is returned when no include patterns are provided.
	ErrNoIncludes = errors.New("at least one include pattern is required")
)

// Allowlist evaluates glob patterns against source references.
//
// A reference (scheme stripped) must match at least one include pattern and
// no exclude pattern. The Allowlist is safe for concurrent use after
// creation.
type Allowlist struct {
	includes []string
	excludes []string
}

// NewAllowlist compiles include and exclude patterns. Patterns use
// doublestar syntax: "recordings/**/*.mp3", "uploads/*".
func NewAllowlist(includes, excludes []string) (*Allowlist, error) {
	if len(includes) == 0 {
		return nil, ErrNoIncludes
	}
	for _, p := range append(append([]string{}, includes...), excludes...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern %q", p)
		}
	}
	return &Allowlist{
		includes: append([]string{}, includes...),
		excludes: append([]string{}, excludes...),
	}, nil
}

// AllowAll returns an allow-list that accepts every reference.
func AllowAll() *Allowlist {
	a, _ := NewAllowlist([]string{"**"}, nil)
	return a
}

// Allow reports whether ref passes the allow-list. ref is matched with its
// scheme already stripped.
func (a *Allowlist) Allow(ref string) bool {
	ref = strings.TrimPrefix(ref, "/")
	for _, p := range a.excludes {
		if ok, _ := doublestar.Match(p, ref); ok {
			return false
		}
	}
	for _, p := range a.includes {
		if ok, _ := doublestar.Match(p, ref); ok {
			return true
		}
	}
	return false
}
