// Package api exposes the controller surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/aebridge/internal/auth"
	"github.com/mattjoyce/aebridge/internal/channel"
	"github.com/mattjoyce/aebridge/internal/events"
)

// Controller is the command/result surface the API exposes.
type Controller interface {
	Submit(name string, args map[string]any) (channel.CommandRecord, error)
	GetResult() (json.RawMessage, error)
	Current() (channel.CommandRecord, bool)
}

// EventSource serves the activity feed.
type EventSource interface {
	SnapshotSince(lastID int64) []events.Event
	Subscribe() (<-chan events.Event, func())
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the legacy single bearer token (full access).
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
	// ChannelDir is reported by /healthz.
	ChannelDir string
}

// Server represents the HTTP API server
type Server struct {
	config     Config
	controller Controller
	events     EventSource
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
}

// New creates a new API server instance
func New(config Config, controller Controller, events EventSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:     config,
		controller: controller,
		events:     events,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		// Per-operation scope is checked in the handler once the name is known.
		r.With(s.requireScopes(auth.ScopeCommandsRO, auth.ScopeCommandsRW)).Post("/commands/{name}", s.handlePublish)
		r.With(s.requireScopes(auth.ScopeCommandsRO)).Get("/command", s.handleCurrent)
		r.With(s.requireScopes(auth.ScopeResultsRO)).Get("/result", s.handleResult)
		r.With(s.requireScopes(auth.ScopeEventsRO)).Get("/events", s.handleEvents)
		r.With(s.requireScopes(auth.ScopeEventsRO)).Get("/events/stream", s.handleEventStream)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
