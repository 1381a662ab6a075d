package capability

import (
	"errors"
	"fmt"
)

// Sentinel errors for capability operations.
var (
	// ErrThrottled indicates the provider rate-limited the request.
	ErrThrottled = errors.New("request throttled")

	// ErrUnavailable indicates the provider was unreachable or answered
	// with a server-side failure.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrInvalidInput indicates the provider rejected the payload
	// (oversized, unsupported format, malformed request).
	ErrInvalidInput = errors.New("provider rejected input")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMalformedResponse indicates the provider answered with a body the
	// client could not interpret.
	ErrMalformedResponse = errors.New("malformed provider response")
)

// Error wraps capability failures with operation context.
type Error struct {
	// Op is the operation that failed.
	Op OperationType

	// Provider names the provider implementation (e.g. "openai").
	Provider string

	// StatusCode is the upstream HTTP status, if any.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsThrottled returns true if the error indicates the provider rate-limited
// the request.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}

// IsUnavailable returns true if the error indicates a provider outage or
// network failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsInvalidInput returns true if the error indicates the provider rejected
// the payload.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsInvalidCredentials returns true if the error indicates authentication
// failed.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

// IsTransient reports whether an error is worth retrying: throttling and
// outages pass, everything else (bad input, bad credentials, malformed
// responses) escalates immediately.
func IsTransient(err error) bool {
	return IsThrottled(err) || IsUnavailable(err)
}
