// Package api exposes the HTTP interface for the scoring service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/greenproof/fleetscore/internal/clock/system"
	"github.com/greenproof/fleetscore/internal/config"
	"github.com/greenproof/fleetscore/internal/dispatcher"
	idgen "github.com/greenproof/fleetscore/internal/id/uuid"
	"github.com/greenproof/fleetscore/internal/metrics"
	"github.com/greenproof/fleetscore/internal/queue"
	"github.com/greenproof/fleetscore/internal/store"
)

// Canceler stops an in-flight run by id.
type Canceler interface {
	Cancel(id uuid.UUID) bool
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator mints run identifiers.
type IDGenerator interface {
	NewID() (uuid.UUID, error)
}

// Server wires HTTP handlers to the dispatcher and run stores.
type Server struct {
	router   chi.Router
	runs     store.RunStore
	repo     store.RunRepository
	dispatch *dispatcher.Dispatcher
	cancels  Canceler
	idGen    IDGenerator
	clock    Clock
	metrics  http.Handler
	cfg      config.Config
	logger   *zap.Logger

	enqueueTimeout time.Duration
}

// NewServer constructs a Server with middleware and routes. repo and
// metricsHandler may be nil; the corresponding endpoints degrade
// gracefully.
func NewServer(
	runs store.RunStore,
	repo store.RunRepository,
	dispatch *dispatcher.Dispatcher,
	cancels Canceler,
	idGen IDGenerator,
	clock Clock,
	metricsHandler http.Handler,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if clock == nil {
		clock = system.New()
	}
	if idGen == nil {
		idGen = idgen.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runs:           runs,
		repo:           repo,
		dispatch:       dispatch,
		cancels:        cancels,
		idGen:          idGen,
		clock:          clock,
		metrics:        metricsHandler,
		cfg:            cfg,
		logger:         logger,
		enqueueTimeout: 5 * time.Second,
	}

	requestTimeout := cfg.Server.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	metrics.Init()

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(metrics.Middleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(requestTimeout))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.submitRun)
			r.Get("/", s.listRuns)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/", s.getRun)
				r.Get("/result", s.getRunResult)
				r.Post("/cancel", s.cancelRun)
				r.Get("/sites", s.listRunSites)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// The queue and stores are in-process; readiness equals liveness
	// until an external dependency gates startup.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type createRunRequest struct {
	Entity        string `json:"entity"`
	BudgetSeconds *int   `json:"budget_seconds"`
}

func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	entity := strings.TrimSpace(req.Entity)
	if entity == "" {
		writeError(w, http.StatusBadRequest, "entity is required")
		return
	}
	var budget time.Duration
	if req.BudgetSeconds != nil {
		if *req.BudgetSeconds <= 0 {
			writeError(w, http.StatusBadRequest, "budget_seconds must be positive")
			return
		}
		budget = time.Duration(*req.BudgetSeconds) * time.Second
	}

	runID, err := s.enqueueRun(r.Context(), entity, budget)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID.String()})
}

func (s *Server) enqueueRun(ctx context.Context, entity string, budget time.Duration) (uuid.UUID, error) {
	runID, err := s.idGen.NewID()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate run id: %w", err)
	}
	now := s.clock.Now()
	if err := s.runs.Create(ctx, store.Run{
		ID:        runID,
		Entity:    entity,
		Status:    store.StatusPending,
		CreatedAt: now,
	}); err != nil {
		return uuid.Nil, fmt.Errorf("create run: %w", err)
	}

	queueCtx, cancel := context.WithTimeout(ctx, s.enqueueTimeout)
	defer cancel()
	job := queue.Job{
		RunID:     runID,
		Entity:    entity,
		Budget:    budget,
		Attempt:   1,
		Submitted: now.Unix(),
	}
	if err := s.dispatch.Enqueue(queueCtx, job); err != nil {
		// The run record would sit pending forever; close it out.
		msg := "run queue is full"
		if completeErr := s.runs.Complete(ctx, runID, now, store.StatusFailed, &msg); completeErr != nil {
			s.logger.Error("orphaned run cleanup failed",
				zap.String("run_id", runID.String()),
				zap.Error(completeErr))
		}
		return uuid.Nil, fmt.Errorf("enqueue run: %w", err)
	}
	return runID, nil
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	run, err := s.runs.Get(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(run)})
}

func (s *Server) getRunResult(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	run, err := s.runs.Get(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	switch {
	case !run.Status.Terminal():
		writeError(w, http.StatusConflict, "run has not finished")
	case run.Status != store.StatusSucceeded:
		writeError(w, http.StatusConflict, fmt.Sprintf("run %s", run.Status))
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		payload := run.Result
		if len(payload) == 0 {
			payload = []byte("{}\n")
		}
		if _, err := w.Write(payload); err != nil {
			s.logger.Error("result write failed", zap.Error(err))
		}
	}
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	run, err := s.runs.Get(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	switch {
	case run.Status.Terminal():
		writeError(w, http.StatusConflict, fmt.Sprintf("run already %s", run.Status))
	case run.Status == store.StatusPending:
		// Not picked up yet; the worker skips runs that left pending.
		msg := "canceled via API"
		if err := s.runs.Complete(r.Context(), runID, s.clock.Now(), store.StatusCanceled, &msg); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to cancel run")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"run_id": runID.String(),
			"status": string(store.StatusCanceled),
		})
	default:
		if s.cancels == nil || !s.cancels.Cancel(runID) {
			// Finished between the status read and the cancel.
			writeError(w, http.StatusConflict, "run already finished")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"run_id": runID.String(),
			"status": "canceling",
		})
	}
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
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("request_id", reqID),
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
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
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
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
