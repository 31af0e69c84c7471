package database

import (
	"context"
	"fmt"
	"time"
)

// PinRow mirrors one row of the pins table. The surrogate id is assigned by
// the store on first insert and never changes afterwards.
type PinRow struct {
	ID          int64     `db:"id"`
	DedupKey    string    `db:"dedup_key"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	ImageURL    string    `db:"image_url"`
	PinLink     string    `db:"pin_link"`
	BoardName   string    `db:"board_name"`
	Author      string    `db:"author"`
	SaveCount   int       `db:"save_count"`
	ScrapedAt   time.Time `db:"scraped_at"`
	LoadedAt    time.Time `db:"loaded_at"`
}

// SampleRow is one row of the verification sample.
type SampleRow struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	SaveCount int    `json:"save_count"`
}

// StoreStats is the verification query result.
type StoreStats struct {
	TotalRecords     int         `json:"total_records"`
	RecordsWithImage int         `json:"records_with_images"`
	AverageSaveCount float64     `json:"average_save_count"`
	Samples          []SampleRow `json:"sample_records,omitempty"`
}

// EnsureSchema creates the pins table and its indexes if absent. It never
// drops or rewrites existing objects.
func (db *DB) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS pins (
			id BIGSERIAL PRIMARY KEY,
			dedup_key TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			pin_link TEXT NOT NULL DEFAULT '',
			board_name TEXT NOT NULL DEFAULT 'unknown',
			author TEXT NOT NULL DEFAULT 'unknown',
			save_count INTEGER NOT NULL DEFAULT 0,
			scraped_at TIMESTAMPTZ NOT NULL,
			loaded_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pins_dedup_key ON pins(dedup_key)`,
		`CREATE INDEX IF NOT EXISTS idx_pins_author ON pins(author)`,
		`CREATE INDEX IF NOT EXISTS idx_pins_scraped_at ON pins(scraped_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	return nil
}

// UpsertPin inserts row or, when its dedup key already exists, updates the
// mutable fields. The surrogate id and the original scraped_at are left
// untouched on update. Reports whether a new row was created.
func (db *DB) UpsertPin(ctx context.Context, row *PinRow) (bool, error) {
	query := `
		INSERT INTO pins (
			dedup_key, title, description, image_url, pin_link,
			board_name, author, save_count, scraped_at, loaded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (dedup_key) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			image_url = EXCLUDED.image_url,
			pin_link = EXCLUDED.pin_link,
			board_name = EXCLUDED.board_name,
			author = EXCLUDED.author,
			save_count = EXCLUDED.save_count,
			loaded_at = EXCLUDED.loaded_at
		RETURNING id, (xmax = 0) AS inserted`

	var inserted bool
	err := db.pool.QueryRow(ctx, query,
		row.DedupKey, row.Title, row.Description, row.ImageURL, row.PinLink,
		row.BoardName, row.Author, row.SaveCount, row.ScrapedAt, row.LoadedAt,
	).Scan(&row.ID, &inserted)

	if err != nil {
		return false, fmt.Errorf("failed to upsert pin: %w", err)
	}

	return inserted, nil
}

// Stats runs the verification query: row count, image coverage, average
// save count and a small sample for the run summary.
func (db *DB) Stats(ctx context.Context) (StoreStats, error) {
	var stats StoreStats

	err := db.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE image_url <> ''),
		       COALESCE(AVG(save_count), 0)
		FROM pins`).Scan(&stats.TotalRecords, &stats.RecordsWithImage, &stats.AverageSaveCount)
	if err != nil {
		return StoreStats{}, fmt.Errorf("failed to query pin stats: %w", err)
	}

	rows, err := db.pool.Query(ctx, `
		SELECT title, author, save_count
		FROM pins
		ORDER BY loaded_at DESC
		LIMIT 5`)
	if err != nil {
		return StoreStats{}, fmt.Errorf("failed to query sample rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sample SampleRow
		if err := rows.Scan(&sample.Title, &sample.Author, &sample.SaveCount); err != nil {
			return StoreStats{}, fmt.Errorf("failed to scan sample row: %w", err)
		}
		stats.Samples = append(stats.Samples, sample)
	}

	if err := rows.Err(); err != nil {
		return StoreStats{}, fmt.Errorf("error iterating sample rows: %w", err)
	}

	return stats, nil
}
