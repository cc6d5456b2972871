// Package server provides the HTTP server setup and wiring.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/poolkeeper/internal/accounting/domain"
	accountingTransport "github.com/pendergraft/poolkeeper/internal/accounting/transport"
	"github.com/pendergraft/poolkeeper/internal/auth"
	"github.com/pendergraft/poolkeeper/internal/config"
	"github.com/pendergraft/poolkeeper/internal/middleware/logging"
	"github.com/pendergraft/poolkeeper/internal/middleware/ratelimit"
	"github.com/pendergraft/poolkeeper/internal/observability/metrics"
	"github.com/pendergraft/poolkeeper/internal/storage"
)

// Server is the HTTP server
type Server struct {
	cfg    *config.Config
	store  storage.Store
	logger *slog.Logger
	router *chi.Mux

	accountingSvc accountingTransport.Service
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	engineOpts []domain.EngineOption
}

// WithEngineOptions passes options to the accounting engine, such as a fixed clock in tests.
func WithEngineOptions(opts ...domain.EngineOption) Option {
	return func(o *serverOptions) { o.engineOpts = append(o.engineOpts, opts...) }
}

// New creates a new server. The pool state is restored from store, or created
// from cfg.Protocol when the store is empty.
func New(ctx context.Context, cfg *config.Config, store storage.Store, logger *slog.Logger, opts ...Option) (*Server, error) {
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	genesis, err := Genesis(cfg.Protocol)
	if err != nil {
		return nil, fmt.Errorf("building genesis: %w", err)
	}

	svc, err := domain.NewService(ctx, store, genesis, o.engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading pool: %w", err)
	}

	s := &Server{
		cfg:           cfg,
		store:         store,
		logger:        logger,
		router:        chi.NewRouter(),
		accountingSvc: domain.LoggingMiddleware(logger)(svc),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// MetricsHandler returns the metrics HTTP handler for separate metrics server
func (s *Server) MetricsHandler() http.Handler {
	return metrics.Handler()
}

func (s *Server) setupMiddleware() {
	// Client address first so rate limiting and logging see the forwarded one.
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)

	s.router.Use(ratelimit.Middleware(ratelimit.Config{
		Enabled:        s.cfg.RateLimit.Enabled,
		RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
		BurstSize:      s.cfg.RateLimit.BurstSize,
		CleanupMinutes: s.cfg.RateLimit.CleanupMinutes,
	}))
	s.router.Use(maxBodySize(int64(s.cfg.Server.MaxBodySizeKB) * 1024))
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(time.Duration(s.cfg.Server.RequestTimeout) * time.Second))
	}
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)

	accountingHandler := accountingTransport.NewHandler(s.accountingSvc)

	// Writes need an API key whose roles the engine checks. With auth
	// disabled every request acts as the all-roles system caller.
	requireAuth := func(r chi.Router) {
		if s.cfg.Auth.Type == "api-key" {
			r.Use(auth.Middleware(s.store, writeError))
			return
		}
		r.Use(auth.Disabled(domain.SystemCaller()))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalMiddleware(s.store))
			accountingHandler.RegisterReadRoutes(r)
		})

		r.Group(func(r chi.Router) {
			requireAuth(r)
			accountingHandler.RegisterWriteRoutes(r)
		})
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports whether the store is reachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", "Storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
