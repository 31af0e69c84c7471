// Package loader persists cleaned batches into the relational store with
// idempotent upserts keyed on the dedup key.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/pinterest-pipeline/internal/database"
	"github.com/maltedev/pinterest-pipeline/internal/models"
)

// PinStore is the slice of the database layer the loader needs. Satisfied
// by *database.DB; tests use an in-memory fake.
type PinStore interface {
	EnsureSchema(ctx context.Context) error
	UpsertPin(ctx context.Context, row *database.PinRow) (bool, error)
	Stats(ctx context.Context) (database.StoreStats, error)
}

// Result summarises one batch load. Batch application is best-effort per
// record: a failed upsert is counted and skipped, it never aborts the rest
// of the batch. Only connection and schema failures are fatal.
type Result struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Failed   int `json:"failed"`
}

// RowDelta is the number of rows the load added to the store.
func (r Result) RowDelta() int {
	return r.Inserted
}

type Loader struct {
	store  PinStore
	logger *slog.Logger
	now    func() time.Time
}

func New(store PinStore) *Loader {
	return &Loader{
		store:  store,
		logger: slog.Default().With("component", "loader"),
		now:    time.Now,
	}
}

// Load ensures the schema and upserts every record of batch. Loading the
// same batch twice yields the same row count as loading it once.
func (l *Loader) Load(ctx context.Context, batch *models.CleanedBatch) (Result, error) {
	if err := l.store.EnsureSchema(ctx); err != nil {
		return Result{}, fmt.Errorf("failed to ensure schema: %w", err)
	}

	loadedAt := l.now()
	var result Result

	for _, pin := range batch.Pins {
		row := &database.PinRow{
			DedupKey:    pin.DedupKey(),
			Title:       pin.Title,
			Description: pin.Description,
			ImageURL:    pin.ImageURL,
			PinLink:     pin.PinLink,
			BoardName:   pin.BoardName,
			Author:      pin.Author,
			SaveCount:   pin.SaveCount,
			ScrapedAt:   pin.ScrapedAt,
			LoadedAt:    loadedAt,
		}

		inserted, err := l.store.UpsertPin(ctx, row)
		if err != nil {
			result.Failed++
			l.logger.Error("failed to upsert pin", "key", row.DedupKey, "error", err)
			continue
		}

		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	l.logger.Info("load completed",
		"inserted", result.Inserted,
		"updated", result.Updated,
		"failed", result.Failed)

	return result, nil
}

// Verify returns the store's row count and aggregate stats for post-run
// sanity reporting.
func (l *Loader) Verify(ctx context.Context) (database.StoreStats, error) {
	stats, err := l.store.Stats(ctx)
	if err != nil {
		return database.StoreStats{}, fmt.Errorf("failed to verify store: %w", err)
	}

	l.logger.Info("store verified",
		"total_records", stats.TotalRecords,
		"with_images", stats.RecordsWithImage,
		"avg_save_count", stats.AverageSaveCount)

	return stats, nil
}
