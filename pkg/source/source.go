// Package source fetches job input audio by reference.
//
// A reference is one of:
//
//	s3://bucket/key    - object storage
//	https://host/path  - plain HTTP(S)
//	file:///path       - local file (also bare paths)
//
// References are checked against a glob allow-list before any fetch, so a
// caller cannot point the pipeline at arbitrary infrastructure.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Sentinel errors for source resolution.
var (
	// ErrNotFound indicates the referenced object does not exist.
	ErrNotFound = errors.New("source not found")

	// ErrDenied indicates the reference is outside the allow-list.
	ErrDenied = errors.New("source reference not allowed")

	// ErrUnreachable indicates the source could not be fetched.
	ErrUnreachable = errors.New("source unreachable")

	// ErrTooLarge indicates the source exceeds the configured fetch ceiling.
	ErrTooLarge = errors.New("source exceeds size limit")
)

// Resolver fetches raw audio bytes for a job input reference.
type Resolver interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// ObjectFetcher fetches a single object from bucketed storage.
type ObjectFetcher interface {
	FetchObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// Config configures the default resolver.
type Config struct {
	// Allow is the glob allow-list applied to every reference.
	// Required; use AllowAll() to accept anything.
	Allow *Allowlist

	// Objects handles s3:// references. Optional; s3 references fail with
	// ErrDenied when nil.
	Objects ObjectFetcher

	// HTTPTimeout bounds an HTTP(S) fetch. Default: 2 minutes.
	HTTPTimeout time.Duration

	// MaxBytes caps the fetched payload size. Zero means unlimited.
	MaxBytes int64
}

// DefaultResolver resolves references across the supported schemes.
type DefaultResolver struct {
	allow    *Allowlist
	objects  ObjectFetcher
	http     *http.Client
	maxBytes int64
}

var _ Resolver = (*DefaultResolver)(nil)

// NewResolver creates a resolver from cfg.
func NewResolver(cfg Config) (*DefaultResolver, error) {
	if cfg.Allow == nil {
		return nil, fmt.Errorf("allow-list is required")
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &DefaultResolver{
		allow:    cfg.Allow,
		objects:  cfg.Objects,
		http:     &http.Client{Timeout: timeout},
		maxBytes: cfg.MaxBytes,
	}, nil
}

// Fetch retrieves the bytes behind ref.
func (r *DefaultResolver) Fetch(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrDenied)
	}
	if !r.allow.Allow(normalizeForMatch(ref)) {
		return nil, fmt.Errorf("%w: %s", ErrDenied, ref)
	}

	switch {
	case strings.HasPrefix(ref, "s3://"):
		return r.fetchS3(ctx, ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return r.fetchHTTP(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		return r.fetchFile(strings.TrimPrefix(ref, "file://"))
	default:
		return r.fetchFile(ref)
	}
}

func (r *DefaultResolver) fetchS3(ctx context.Context, ref string) ([]byte, error) {
	if r.objects == nil {
		return nil, fmt.Errorf("%w: no object storage configured for %s", ErrDenied, ref)
	}
	bucket, key, err := splitObjectRef(ref)
	if err != nil {
		return nil, err
	}
	data, err := r.objects.FetchObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return r.capped(data, ref)
}

func (r *DefaultResolver) fetchHTTP(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, ref, err)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, ref, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: status %d", ErrUnreachable, ref, resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	if r.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, r.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, ref, err)
	}
	return r.capped(data, ref)
}

func (r *DefaultResolver) fetchFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, path, err)
	}
	return r.capped(data, path)
}

func (r *DefaultResolver) capped(data []byte, ref string) ([]byte, error) {
	if r.maxBytes > 0 && int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("%w: %s: %d bytes over %d limit", ErrTooLarge, ref, len(data), r.maxBytes)
	}
	return data, nil
}

// splitObjectRef parses "s3://bucket/key/with/slashes".
func splitObjectRef(ref string) (bucket, key string, err error) {
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" || strings.TrimPrefix(u.Path, "/") == "" {
		return "", "", fmt.Errorf("%w: malformed object reference %s", ErrDenied, ref)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// normalizeForMatch strips the scheme so one pattern set covers all schemes
// ("recordings/**" matches both s3 keys and local paths under recordings/).
func normalizeForMatch(ref string) string {
	for _, scheme := range []string{"s3://", "https://", "http://", "file://"} {
		if strings.HasPrefix(ref, scheme) {
			return strings.TrimPrefix(ref, scheme)
		}
	}
	return strings.TrimPrefix(ref, "/")
}
