// Package api exposes the HTTP interface for the harvester service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tastewell/harvester/internal/config"
	"github.com/tastewell/harvester/internal/dispatcher"
	"github.com/tastewell/harvester/internal/harvest"
	"github.com/tastewell/harvester/internal/job"
	"github.com/tastewell/harvester/internal/metrics"
	"github.com/tastewell/harvester/internal/telemetry"
)

// Server wires HTTP handlers to the harvest pipeline and stores.
type Server struct {
	router     chi.Router
	jobs       harvest.JobStore
	policies   harvest.PolicyStore
	recipes    harvest.RecipeStore
	runner     *job.Runner
	dispatcher *dispatcher.Dispatcher
	fetcher    harvest.Fetcher
	telemetry  *telemetry.Aggregator
	idGen      harvest.IDGenerator
	clock      harvest.Clock
	logger     *zap.Logger
	cfg        config.Config
	autoCache  *autoHarvestCache
}

// Deps are the collaborators a Server needs.
type Deps struct {
	Jobs       harvest.JobStore
	Policies   harvest.PolicyStore
	Recipes    harvest.RecipeStore
	Runner     *job.Runner
	Dispatcher *dispatcher.Dispatcher
	Fetcher    harvest.Fetcher
	Telemetry  *telemetry.Aggregator
	IDGen      harvest.IDGenerator
	Clock      harvest.Clock
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		jobs:       deps.Jobs,
		policies:   deps.Policies,
		recipes:    deps.Recipes,
		runner:     deps.Runner,
		dispatcher: deps.Dispatcher,
		fetcher:    deps.Fetcher,
		telemetry:  deps.Telemetry,
		idGen:      deps.IDGen,
		clock:      deps.Clock,
		logger:     logger,
		cfg:        cfg,
		autoCache:  newAutoHarvestCache(deps.Clock),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/harvest", func(r chi.Router) {
			r.Post("/auto", s.autoHarvest)
			r.Route("/jobs", func(r chi.Router) {
				r.Post("/", s.createJob)
				r.Get("/", s.listJobs)
				r.Route("/{job_id}", func(r chi.Router) {
					r.Get("/", s.getJob)
					r.Post("/run", s.runJob)
				})
			})
		})
		r.Route("/policies", func(r chi.Router) {
			r.Get("/", s.listPolicies)
			r.Get("/{policy_id}", s.getPolicy)
		})
		r.Route("/admin", func(r chi.Router) {
			if cfg.Auth.Enabled {
				r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
			}
			r.Post("/policies/{policy_id}/recovery-suggestion", s.recoverySuggestion)
			r.Get("/telemetry", s.telemetryReport)
			r.Post("/alerts/calibrate", s.calibrateAlerts)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The policy store is the lightest dependency that exercises storage.
	if _, err := s.policies.ListPolicies(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "policy store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
