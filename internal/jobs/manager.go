// Package jobs tracks pipeline runs started through the HTTP API and
// guarantees at most one run is active at a time.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/pinterest-pipeline/internal/pipeline"
)

// ErrRunActive is returned when a run is requested while another is still
// in progress. Overlapping runs would share a browser session and fight
// over the artifacts, so they are refused outright.
var ErrRunActive = errors.New("a pipeline run is already active")

// ErrRunNotFound is returned for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one tracked pipeline execution.
type Run struct {
	ID          string            `json:"id"`
	Query       string            `json:"query"`
	MaxPins     int               `json:"max_pins"`
	Status      string            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Summary     *pipeline.Summary `json:"summary,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// PipelineRunner is the slice of the pipeline the manager drives.
type PipelineRunner interface {
	Run(ctx context.Context, query string, maxPins int) (*pipeline.Summary, error)
}

type Manager struct {
	runner PipelineRunner
	logger *slog.Logger

	mu     sync.Mutex
	runs   map[string]*Run
	active string
}

func NewManager(runner PipelineRunner, logger *slog.Logger) *Manager {
	return &Manager{
		runner: runner,
		logger: logger.With("component", "job_manager"),
		runs:   make(map[string]*Run),
	}
}

// Start registers a new run and executes it in the background. Returns
// ErrRunActive while another run is in flight.
func (m *Manager) Start(ctx context.Context, query string, maxPins int) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != "" {
		return nil, ErrRunActive
	}

	run := &Run{
		ID:        uuid.New().String(),
		Query:     query,
		MaxPins:   maxPins,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}

	m.runs[run.ID] = run
	m.active = run.ID

	go m.execute(ctx, run.ID, query, maxPins)

	m.logger.Info("run queued", "id", run.ID, "query", query)
	return m.snapshot(run), nil
}

func (m *Manager) execute(ctx context.Context, id, query string, maxPins int) {
	m.mu.Lock()
	run := m.runs[id]
	now := time.Now()
	run.Status = StatusRunning
	run.StartedAt = &now
	m.mu.Unlock()

	summary, err := m.runner.Run(ctx, query, maxPins)

	m.mu.Lock()
	defer m.mu.Unlock()

	done := time.Now()
	run.CompletedAt = &done
	run.Summary = summary
	m.active = ""

	if err != nil {
		run.Status = StatusFailed
		run.Error = err.Error()
		m.logger.Error("run failed", "id", id, "error", err)
		return
	}

	run.Status = StatusCompleted
	m.logger.Info("run completed", "id", id)
}

// Get returns a snapshot of the run with the given ID.
func (m *Manager) Get(id string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}

	return m.snapshot(run), nil
}

// List returns snapshots of all tracked runs.
func (m *Manager) List() []*Run {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs := make([]*Run, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, m.snapshot(run))
	}
	return runs
}

// Active reports whether a run is currently in flight.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != ""
}

// snapshot copies a run so callers never share the tracked struct. Caller
// must hold the mutex.
func (m *Manager) snapshot(run *Run) *Run {
	copied := *run
	return &copied
}
