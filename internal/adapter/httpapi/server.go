// Package httpapi exposes the composite environment result over HTTP along
// with health, readiness, and metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cityforge/enviro-intel/internal/aggregate"
	"github.com/cityforge/enviro-intel/internal/domain"
)

// Provider serves composite results. Implemented by freshness.Manager.
type Provider interface {
	GetOrCompute(ctx context.Context, force bool) (aggregate.CompositeResult, error)
	CheckReadiness(ctx context.Context) error
}

// Server exposes the environment API plus operational endpoints.
type Server struct {
	httpServer *http.Server
	provider   Provider
	logger     *slog.Logger
}

// requestTimeout bounds how long a single request may wait on a
// recomputation before falling back to the cached result.
const requestTimeout = 15 * time.Second

// NewServer creates the HTTP server and its routes.
func NewServer(addr string, provider Provider, logger *slog.Logger) *Server {
	s := &Server{
		provider: provider,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/environment/overview", s.handleOverview)
	r.Get("/environment/refresh", s.handleRefresh)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// handleOverview serves the composite result, recomputing first if any
// source has gone stale.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	s.serveComposite(w, r, false)
}

// handleRefresh forces a recomputation regardless of freshness and serves
// the outcome.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.serveComposite(w, r, true)
}

func (s *Server) serveComposite(w http.ResponseWriter, r *http.Request, force bool) {
	result, err := s.provider.GetOrCompute(r.Context(), force)
	if err != nil {
		if errors.Is(err, domain.ErrNoDataAvailable) {
			writeError(w, http.StatusServiceUnavailable, "no environment data available yet")
			return
		}
		s.logger.Error("composite request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.provider.CheckReadiness(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
