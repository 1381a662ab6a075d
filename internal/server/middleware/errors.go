// Package middleware provides the HTTP middleware chain: request ID
// propagation, panic recovery, and structured request logging.
package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/skaldhq/skald/internal/errors"
	"github.com/skaldhq/skald/internal/observability"
)

// ErrorResponse is the envelope the middleware writes on failures. It is the
// same shape the handlers use.
type ErrorResponse = apperrors.HTTPErrorResponse

// Recovery converts handler panics into a 500 response with the standard
// error envelope, logging the stack. The connection stays usable.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			observability.Logger.Error("handler panic",
				zap.Any("panic", rec),
				zap.String("path", r.URL.Path),
				zap.String("request_id", GetRequestID(r.Context())),
				zap.ByteString("stack", debug.Stack()),
			)
			writeErrorResponse(w, http.StatusInternalServerError,
				apperrors.CodeInternalError,
				fmt.Sprintf("panic: %v", rec),
				GetRequestID(r.Context()),
			)
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is an alias for Recovery, kept for callers that wire the
// chain by concern name.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}

// Logging emits one structured log line per request with method, path,
// status, duration, and request ID.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		observability.Logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", GetRequestID(r.Context())),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: apperrors.HTTPErrorDetail{
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
	})
}
