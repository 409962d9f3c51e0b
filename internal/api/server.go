// Package api exposes the operational HTTP interface of a crawler
// worker: health, identity, partition watermarks, and the running-job
// recovery view.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clustermon/jobhistory-crawler/internal/harness"
	"github.com/clustermon/jobhistory-crawler/internal/metrics"
	"github.com/clustermon/jobhistory-crawler/internal/runningjob"
	"github.com/clustermon/jobhistory-crawler/internal/state"
)

// Server wires HTTP handlers to the worker's state and running-job
// managers.
type Server struct {
	router   chi.Router
	identity harness.Identity
	stateMgr *state.Manager
	running  *runningjob.Manager
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. A nil
// running manager disables the /v1/running route.
func NewServer(
	identity harness.Identity,
	stateMgr *state.Manager,
	running *runningjob.Manager,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		identity: identity,
		stateMgr: stateMgr,
		running:  running,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/identity", s.getIdentity)
		r.Get("/partitions", s.getPartitions)
		if s.running != nil {
			r.Get("/running", s.getRunning)
		}
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

// readyz proves the coordination store answers before reporting ready.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.stateMgr.ReadWatermark(r.Context(), 0); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "coordination store unreachable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getIdentity(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"site":       s.identity.Site,
		"partition":  s.identity.PartitionID,
		"partitions": s.identity.NumPartitions,
	})
}

type partitionStatus struct {
	Partition int   `json:"partition"`
	Watermark int64 `json:"watermark"`
}

func (s *Server) getPartitions(w http.ResponseWriter, r *http.Request) {
	watermarks, err := s.stateMgr.Watermarks(r.Context(), s.identity.NumPartitions)
	if err != nil {
		s.logger.Error("read partition watermarks failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read watermarks")
		return
	}
	statuses := make([]partitionStatus, len(watermarks))
	for i, wm := range watermarks {
		statuses[i] = partitionStatus{Partition: i, Watermark: wm}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"site":       s.identity.Site,
		"partitions": statuses,
	})
}

func (s *Server) getRunning(w http.ResponseWriter, r *http.Request) {
	apps, err := s.running.Recover(r.Context())
	if err != nil {
		s.logger.Error("recover running jobs failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to recover running jobs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"site": s.identity.Site,
		"apps": apps,
	})
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
			zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
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
