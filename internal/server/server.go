// Package server assembles the HTTP API: routing, middleware chain, and
// lifecycle. Handlers live in the handlers subpackage; this package only
// wires them.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/skaldhq/skald/internal/errors"
	"github.com/skaldhq/skald/internal/observability"
	"github.com/skaldhq/skald/internal/server/handlers"
	"github.com/skaldhq/skald/internal/server/middleware"
	"github.com/skaldhq/skald/pkg/jobstore"
)

// Timeouts applied to the HTTP server. Job processing happens off the
// request path, so request handling stays short.
const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second
)

// Option customizes the server at construction.
type Option func(*Server)

// WithJobs mounts the job API under /v1.
func WithJobs(jobs *handlers.Jobs) Option {
	return func(s *Server) { s.jobs = jobs }
}

// WithTimeouts overrides the HTTP server timeouts.
func WithTimeouts(read, write, idle time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
		s.idleTimeout = idle
	}
}

// Server is the HTTP API server.
type Server struct {
	host string
	port int
	jobs *handlers.Jobs

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration

	router     chi.Router
	httpServer *http.Server
}

// New builds the server and its router. The health and version endpoints
// are always mounted; the job API appears when WithJobs is given.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:         host,
		port:         port,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		idleTimeout:  defaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the assembled router.
func (s *Server) Handler() http.Handler { return s.router }

// Port returns the configured listen port.
func (s *Server) Port() int { return s.port }

// Start listens and serves until the context is cancelled, then shuts down
// gracefully within the given timeout.
func (s *Server) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()
	observability.Logger.Info("http server listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)

	r.NotFound(apperrors.NotFoundHandler)
	r.MethodNotAllowed(apperrors.MethodNotAllowedHandler)

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler)

	if s.jobs != nil {
		r.Route("/v1", func(r chi.Router) {
			r.Post("/transcriptions", s.jobs.CreateTranscription)
			r.Get("/transcriptions/{id}", s.jobs.GetJob(jobstore.KindTranscription))
			r.Post("/summaries", s.jobs.CreateSummarization)
			r.Get("/summaries/{id}", s.jobs.GetJob(jobstore.KindSummarization))
		})
	}

	return r
}
