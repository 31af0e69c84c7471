// Package pipeline sequences the scrape, clean and load stages of one run
// and surfaces stage failures.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/pinterest-pipeline/internal/artifacts"
	"github.com/maltedev/pinterest-pipeline/internal/cleaner"
	"github.com/maltedev/pinterest-pipeline/internal/database"
	"github.com/maltedev/pinterest-pipeline/internal/events"
	"github.com/maltedev/pinterest-pipeline/internal/loader"
	"github.com/maltedev/pinterest-pipeline/internal/models"
	"github.com/maltedev/pinterest-pipeline/internal/scraper"
)

// State is the runner's position in one run. Transitions are strictly
// sequential; no state is ever re-entered. Error is terminal and reachable
// from any non-idle state.
type State string

const (
	StateIdle     State = "idle"
	StateScraping State = "scraping"
	StateCleaning State = "cleaning"
	StateLoading  State = "loading"
	StateDone     State = "done"
	StateError    State = "error"
)

// PinScraper produces the raw batch for a query.
type PinScraper interface {
	Scrape(ctx context.Context, query string, maxPins int) ([]models.RawPin, scraper.Stats, error)
}

// BatchCleaner normalizes and dedups a raw batch.
type BatchCleaner interface {
	Clean(raw *models.RawBatch) (*models.CleanedBatch, cleaner.Report, error)
}

// BatchLoader persists a cleaned batch and verifies the store.
type BatchLoader interface {
	Load(ctx context.Context, batch *models.CleanedBatch) (loader.Result, error)
	Verify(ctx context.Context) (database.StoreStats, error)
}

// RunPublisher emits run-lifecycle events. Publishing is best-effort; a
// publish failure never fails the run.
type RunPublisher interface {
	PublishRunEvent(ctx context.Context, eventType events.EventType, payload *events.RunEventPayload) error
}

// Summary is the run-level report, emitted both on completion and on error.
type Summary struct {
	RunID      string              `json:"run_id"`
	Query      string              `json:"query"`
	Requested  int                 `json:"requested"`
	Collected  int                 `json:"collected"`
	Cleaned    int                 `json:"cleaned"`
	Load       loader.Result       `json:"load"`
	Report     cleaner.Report      `json:"report"`
	Store      database.StoreStats `json:"store"`
	Shortfall  bool                `json:"yield_shortfall"`
	State      State               `json:"state"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Err        string              `json:"error,omitempty"`
}

type Runner struct {
	scraper   PinScraper
	cleaner   BatchCleaner
	loader    BatchLoader
	artifacts *artifacts.Store
	publisher RunPublisher
	logger    *slog.Logger

	mu    sync.Mutex
	state State
}

// New creates a Runner. artifacts is required for stage-granular execution;
// publisher may be nil.
func New(s PinScraper, c BatchCleaner, l BatchLoader, store *artifacts.Store, publisher RunPublisher) *Runner {
	return &Runner{
		scraper:   s,
		cleaner:   c,
		loader:    l,
		artifacts: store,
		publisher: publisher,
		logger:    slog.Default().With("component", "pipeline"),
		state:     StateIdle,
	}
}

// State returns the runner's current state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	r.logger.Info("state transition", "state", s)
}

// Run executes the full scrape → clean → load sequence. A yield shortfall
// is reported as a warning in the summary, not as a failure. Artifacts
// written before a failure are preserved; the store is only ever touched by
// the load stage.
func (r *Runner) Run(ctx context.Context, query string, maxPins int) (*Summary, error) {
	summary := &Summary{
		RunID:     uuid.New().String(),
		Query:     query,
		Requested: maxPins,
		StartedAt: time.Now(),
		State:     StateIdle,
	}

	r.logger.Info("starting run", "run_id", summary.RunID, "query", query, "max_pins", maxPins)

	r.setState(StateScraping)
	pins, stats, err := r.scraper.Scrape(ctx, query, maxPins)
	if err != nil {
		return r.fail(ctx, summary, fmt.Errorf("scrape stage failed: %w", err))
	}
	summary.Collected = stats.Collected

	raw := &models.RawBatch{
		Batch: models.Batch{Query: query, MaxPins: maxPins, StartedAt: summary.StartedAt},
		Pins:  pins,
	}

	r.setState(StateCleaning)
	cleanedBatch, report, err := r.cleaner.Clean(raw)
	summary.Report = report
	summary.Cleaned = report.Kept
	if err != nil {
		if !errors.Is(err, cleaner.ErrYieldShortfall) {
			return r.fail(ctx, summary, fmt.Errorf("clean stage failed: %w", err))
		}
		summary.Shortfall = true
		r.logger.Warn("yield shortfall, continuing", "error", err)
	}

	r.setState(StateLoading)
	result, err := r.loader.Load(ctx, cleanedBatch)
	if err != nil {
		return r.fail(ctx, summary, fmt.Errorf("load stage failed: %w", err))
	}
	summary.Load = result

	if stats, err := r.loader.Verify(ctx); err != nil {
		r.logger.Warn("store verification failed", "error", err)
	} else {
		summary.Store = stats
	}

	r.setState(StateDone)
	summary.State = StateDone
	summary.FinishedAt = time.Now()

	r.emitSummary(summary)
	r.publish(ctx, events.EventTypeRunCompleted, summary)

	return summary, nil
}

// RunScrape executes only the scrape stage and writes the raw artifact as
// the handoff to the clean task.
func (r *Runner) RunScrape(ctx context.Context, query string, maxPins int) (*models.RawBatch, error) {
	if r.artifacts == nil {
		return nil, errors.New("stage execution requires an artifact store")
	}

	pins, _, err := r.scraper.Scrape(ctx, query, maxPins)
	if err != nil {
		return nil, fmt.Errorf("scrape stage failed: %w", err)
	}

	raw := &models.RawBatch{
		Batch: models.Batch{Query: query, MaxPins: maxPins, StartedAt: time.Now()},
		Pins:  pins,
	}

	if err := r.artifacts.SaveRaw(raw); err != nil {
		return nil, fmt.Errorf("failed to persist raw artifact: %w", err)
	}

	return raw, nil
}

// RunClean reads the raw artifact, cleans it and writes the cleaned
// artifact as the handoff to the load task. A yield shortfall is passed
// through for the caller to judge.
func (r *Runner) RunClean(ctx context.Context) (*models.CleanedBatch, cleaner.Report, error) {
	if r.artifacts == nil {
		return nil, cleaner.Report{}, errors.New("stage execution requires an artifact store")
	}

	raw, err := r.artifacts.LoadRaw()
	if err != nil {
		return nil, cleaner.Report{}, fmt.Errorf("failed to load raw artifact: %w", err)
	}

	cleanedBatch, report, cleanErr := r.cleaner.Clean(raw)
	if cleanErr != nil && !errors.Is(cleanErr, cleaner.ErrYieldShortfall) {
		return nil, report, fmt.Errorf("clean stage failed: %w", cleanErr)
	}

	if err := r.artifacts.SaveCleaned(cleanedBatch); err != nil {
		return nil, report, fmt.Errorf("failed to persist cleaned artifact: %w", err)
	}

	return cleanedBatch, report, cleanErr
}

// RunLoad reads the cleaned artifact and upserts it into the store.
// Re-running it is safe: upserts are idempotent per dedup key.
func (r *Runner) RunLoad(ctx context.Context) (loader.Result, database.StoreStats, error) {
	if r.artifacts == nil {
		return loader.Result{}, database.StoreStats{}, errors.New("stage execution requires an artifact store")
	}

	cleanedBatch, err := r.artifacts.LoadCleaned()
	if err != nil {
		return loader.Result{}, database.StoreStats{}, fmt.Errorf("failed to load cleaned artifact: %w", err)
	}

	result, err := r.loader.Load(ctx, cleanedBatch)
	if err != nil {
		return loader.Result{}, database.StoreStats{}, fmt.Errorf("load stage failed: %w", err)
	}

	stats, err := r.loader.Verify(ctx)
	if err != nil {
		r.logger.Warn("store verification failed", "error", err)
		stats = database.StoreStats{}
	}

	return result, stats, nil
}

func (r *Runner) fail(ctx context.Context, summary *Summary, err error) (*Summary, error) {
	r.setState(StateError)
	summary.State = StateError
	summary.FinishedAt = time.Now()
	summary.Err = err.Error()

	r.emitSummary(summary)
	r.publish(ctx, events.EventTypeRunFailed, summary)

	return summary, err
}

func (r *Runner) emitSummary(summary *Summary) {
	r.logger.Info("run summary",
		"run_id", summary.RunID,
		"state", summary.State,
		"collected", summary.Collected,
		"cleaned", summary.Cleaned,
		"inserted", summary.Load.Inserted,
		"updated", summary.Load.Updated,
		"failed", summary.Load.Failed,
		"empty_title", summary.Report.EmptyTitle,
		"duplicate", summary.Report.Duplicate,
		"other", summary.Report.Other,
		"yield_shortfall", summary.Shortfall,
		"store_records", summary.Store.TotalRecords,
		"avg_save_count", summary.Store.AverageSaveCount,
		"error", summary.Err)
}

func (r *Runner) publish(ctx context.Context, eventType events.EventType, summary *Summary) {
	if r.publisher == nil {
		return
	}

	payload := &events.RunEventPayload{
		RunID:      summary.RunID,
		Query:      summary.Query,
		Requested:  summary.Requested,
		Collected:  summary.Collected,
		Cleaned:    summary.Cleaned,
		Loaded:     summary.Load.Inserted + summary.Load.Updated,
		Rejections: summary.Report.Breakdown(),
		Shortfall:  summary.Shortfall,
		Error:      summary.Err,
	}

	if err := r.publisher.PublishRunEvent(ctx, eventType, payload); err != nil {
		r.logger.Warn("failed to publish run event", "error", err)
	}
}
