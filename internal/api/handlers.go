// Package api exposes the pipeline to external orchestrators: starting
// runs, polling their status, and reading store statistics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/maltedev/pinterest-pipeline/internal/database"
	"github.com/maltedev/pinterest-pipeline/internal/jobs"
)

// StoreVerifier is the slice of the loader the API needs for stats.
type StoreVerifier interface {
	Verify(ctx context.Context) (database.StoreStats, error)
}

type Handlers struct {
	jobs     *jobs.Manager
	verifier StoreVerifier
	logger   *slog.Logger
}

func NewHandlers(manager *jobs.Manager, verifier StoreVerifier, logger *slog.Logger) *Handlers {
	return &Handlers{
		jobs:     manager,
		verifier: verifier,
		logger:   logger.With("component", "api"),
	}
}

// Router builds the chi router with middleware and all routes mounted.
func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", h.Health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/runs", h.StartRun)
		r.Get("/runs", h.ListRuns)
		r.Get("/runs/{id}", h.GetRun)
		r.Get("/stats", h.GetStats)
	})

	return r
}

// RunRequest is the body for starting a pipeline run.
type RunRequest struct {
	Query   string `json:"query"`
	MaxPins int    `json:"max_pins"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StartRun launches a pipeline run in the background. Returns 409 while
// another run is active.
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Query == "" {
		h.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.MaxPins < 1 {
		h.respondError(w, http.StatusBadRequest, "max_pins must be positive")
		return
	}

	run, err := h.jobs.Start(context.Background(), req.Query, req.MaxPins)
	if err != nil {
		if errors.Is(err, jobs.ErrRunActive) {
			h.respondError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("failed to start run", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	h.respondJSON(w, http.StatusAccepted, run)
}

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.jobs.Get(id)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	}

	h.respondJSON(w, http.StatusOK, run)
}

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.List())
}

// GetStats returns the loader's verification query result.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.verifier.Verify(r.Context())
	if err != nil {
		h.logger.Error("failed to verify store", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to query store stats")
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, map[string]string{"error": msg})
}
