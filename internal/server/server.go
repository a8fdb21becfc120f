// Package server assembles the reference task/note backend: routes, middleware and
// the HTTP server lifecycle.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iudanet/taskkeeper/internal/server/handlers"
	"github.com/iudanet/taskkeeper/internal/server/middleware"
	"github.com/iudanet/taskkeeper/internal/server/storage"
)

const (
	// HealthPath is the unauthenticated reachability endpoint used by the client probe
	HealthPath = "/api/health/"
	// MetricsPath serves Prometheus metrics
	MetricsPath = "/metrics"
)

// Storage is everything the handlers need from the database
type Storage interface {
	storage.TaskStorage
	storage.NoteStorage
	handlers.Pinger
}

// Options configures the HTTP server
type Options struct {
	Listen         string
	Version        string
	RateLimitRPS   float64 // 0 отключает ограничение
	RateLimitBurst int
	AuthRequired   bool
}

// Server is the reference backend HTTP server
type Server struct {
	http    *http.Server
	limiter *middleware.RateLimiter
	logger  *slog.Logger
}

// New builds the server. tokens may be nil when opts.AuthRequired is false.
func New(st Storage, tokens middleware.TokenValidator, opts Options, logger *slog.Logger) (*Server, error) {
	if opts.AuthRequired && tokens == nil {
		return nil, errors.New("auth required but no token validator configured")
	}

	s := &Server{logger: logger}

	var handler http.Handler = routes(st, opts.Version, logger)
	if opts.AuthRequired {
		handler = middleware.AuthMiddleware(logger, tokens, HealthPath, MetricsPath)(handler)
	}
	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = middleware.NewRateLimiter(opts.RateLimitRPS, burst, 10*time.Minute)
		handler = middleware.RateLimitMiddleware(s.limiter, logger)(handler)
	}
	handler = middleware.RecoveryMiddleware(logger)(handler)
	handler = middleware.LoggingMiddleware(logger)(handler)

	s.http = &http.Server{
		Addr:              opts.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return s, nil
}

func routes(st Storage, version string, logger *slog.Logger) *http.ServeMux {
	health := handlers.NewHealthHandler(logger, st, version)
	tasks := handlers.NewTaskHandler(logger, st)
	notes := handlers.NewNoteHandler(logger, st)

	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, middleware.Route(pattern, h))
	}

	handle("GET "+HealthPath+"{$}", health.Health)
	mux.Handle("GET "+MetricsPath, middleware.Route(MetricsPath, promhttp.Handler()))

	handle("GET /api/tasks/{$}", tasks.List)
	handle("POST /api/tasks/{$}", tasks.Create)
	handle("GET /api/tasks/completed/{$}", tasks.Completed)
	handle("GET /api/tasks/pending/{$}", tasks.Pending)
	handle("GET /api/tasks/{id}/{$}", tasks.Get)
	handle("PUT /api/tasks/{id}/{$}", tasks.Update)
	handle("PATCH /api/tasks/{id}/{$}", tasks.Update)
	handle("DELETE /api/tasks/{id}/{$}", tasks.Delete)

	handle("GET /api/notes/{$}", notes.List)
	handle("POST /api/notes/{$}", notes.Create)
	handle("GET /api/notes/{id}/{$}", notes.Get)
	handle("PUT /api/notes/{id}/{$}", notes.Update)
	handle("PATCH /api/notes/{id}/{$}", notes.Update)
	handle("DELETE /api/notes/{id}/{$}", notes.Delete)

	return mux
}

// Handler returns the fully wrapped handler, used by tests and embedding
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks until the server stops. A graceful shutdown is not an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP API listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.http.Shutdown(ctx)
}
