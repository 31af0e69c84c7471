package models

import (
	"time"
)

// RawPin is a single pin as extracted from the search results page.
// Every field except ScrapedAt may be empty depending on what the page
// exposed for that card. SaveCount stays the raw on-page text ("1.2K",
// "500", ...) until the cleaner coerces it.
type RawPin struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	PinLink     string    `json:"pin_link"`
	BoardName   string    `json:"board_name"`
	Author      string    `json:"author"`
	SaveCount   string    `json:"save_count"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// CleanedPin is a validated pin record. Title is non-empty, SaveCount is a
// non-negative integer, and optional text fields carry their documented
// defaults instead of being empty-or-missing.
type CleanedPin struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	PinLink     string    `json:"pin_link"`
	BoardName   string    `json:"board_name"`
	Author      string    `json:"author"`
	SaveCount   int       `json:"save_count"`
	ScrapedAt   time.Time `json:"scraped_at"`
	LoadedAt    time.Time `json:"loaded_at,omitempty"`
}

// DefaultUnknown is the filler for missing board and author names.
const DefaultUnknown = "unknown"

// DedupKey returns the identity used for batch dedup and for the store's
// uniqueness constraint: the pin link when present, else the image URL,
// else a synthetic key that is at least unique within one scrape run.
func (p CleanedPin) DedupKey() string {
	if p.PinLink != "" {
		return p.PinLink
	}
	if p.ImageURL != "" {
		return p.ImageURL
	}
	return SyntheticKey(p.Title, p.ScrapedAt)
}

// SyntheticKey builds the fallback dedup key for pins that expose neither a
// link nor an image. ScrapedAt is set per extracted item, so title plus
// timestamp is unique within a batch.
func SyntheticKey(title string, scrapedAt time.Time) string {
	return "synthetic:" + title + ":" + scrapedAt.UTC().Format(time.RFC3339Nano)
}

// Batch carries one pipeline run's records together with the run metadata.
type Batch struct {
	Query     string    `json:"query"`
	MaxPins   int       `json:"max_pins"`
	StartedAt time.Time `json:"started_at"`
}

// RawBatch is the scraper's output artifact.
type RawBatch struct {
	Batch
	Pins []RawPin `json:"pins"`
}

// CleanedBatch is the cleaner's output artifact.
type CleanedBatch struct {
	Batch
	Pins []CleanedPin `json:"pins"`
}
