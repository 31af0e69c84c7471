// Package cleaner turns a raw scraped batch into validated, deduplicated
// records plus an accounting of everything that was rejected.
package cleaner

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/pinterest-pipeline/internal/artifacts"
	"github.com/maltedev/pinterest-pipeline/internal/models"
)

// ErrYieldShortfall signals that fewer valid records survived cleaning than
// the configured minimum. The short batch is still returned; the caller
// decides whether the run passes or fails.
var ErrYieldShortfall = errors.New("cleaned yield below minimum")

// Rejection reasons as reported in the cleaning report.
const (
	ReasonEmptyTitle = "empty_title"
	ReasonDuplicate  = "duplicate"
	ReasonOther      = "other"
)

// Report accounts for every raw record: Kept plus all rejection counts
// always sums to Raw.
type Report struct {
	Raw        int `json:"raw"`
	Kept       int `json:"kept"`
	EmptyTitle int `json:"empty_title"`
	Duplicate  int `json:"duplicate"`
	Other      int `json:"other"`
}

// Rejected returns the total number of dropped records.
func (r Report) Rejected() int {
	return r.EmptyTitle + r.Duplicate + r.Other
}

// Breakdown returns the rejection counts keyed by reason.
func (r Report) Breakdown() map[string]int {
	return map[string]int{
		ReasonEmptyTitle: r.EmptyTitle,
		ReasonDuplicate:  r.Duplicate,
		ReasonOther:      r.Other,
	}
}

type Cleaner struct {
	minRecords int
	artifacts  *artifacts.Store
	logger     *slog.Logger
}

// New creates a Cleaner. store may be nil, in which case no artifacts are
// written; artifact writes are best-effort either way.
func New(minRecords int, store *artifacts.Store) *Cleaner {
	return &Cleaner{
		minRecords: minRecords,
		artifacts:  store,
		logger:     slog.Default().With("component", "cleaner"),
	}
}

// Clean normalizes and deduplicates raw. A yield shortfall is returned as
// ErrYieldShortfall alongside the short batch; every other data-quality
// problem is recovered locally and only counted.
func (c *Cleaner) Clean(raw *models.RawBatch) (*models.CleanedBatch, Report, error) {
	report := Report{Raw: len(raw.Pins)}

	c.logger.Info("starting clean", "records", report.Raw, "query", raw.Query)

	c.saveRawArtifact(raw)

	cleaned := &models.CleanedBatch{
		Batch: raw.Batch,
		Pins:  make([]models.CleanedPin, 0, len(raw.Pins)),
	}
	seen := make(map[string]struct{}, len(raw.Pins))

	for _, pin := range raw.Pins {
		record, reason := normalizeRecord(pin)
		if reason != "" {
			c.count(&report, reason)
			c.logger.Debug("record rejected", "reason", reason, "pin_link", pin.PinLink)
			continue
		}

		key := record.DedupKey()
		if _, dup := seen[key]; dup {
			c.count(&report, ReasonDuplicate)
			c.logger.Debug("record rejected", "reason", ReasonDuplicate, "key", key)
			continue
		}
		seen[key] = struct{}{}

		cleaned.Pins = append(cleaned.Pins, record)
	}

	report.Kept = len(cleaned.Pins)

	c.saveCleanedArtifact(cleaned)

	c.logger.Info("clean completed",
		"kept", report.Kept,
		"empty_title", report.EmptyTitle,
		"duplicate", report.Duplicate,
		"other", report.Other)

	if report.Kept < c.minRecords {
		return cleaned, report, fmt.Errorf("%w: got %d, want at least %d",
			ErrYieldShortfall, report.Kept, c.minRecords)
	}

	return cleaned, report, nil
}

// normalizeRecord converts one raw pin into a cleaned record, or names the
// rejection reason.
func normalizeRecord(pin models.RawPin) (models.CleanedPin, string) {
	title := NormalizeText(pin.Title)
	if title == "" {
		return models.CleanedPin{}, ReasonEmptyTitle
	}

	scrapedAt := pin.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now()
	}

	record := models.CleanedPin{
		Title:       title,
		Description: NormalizeText(pin.Description),
		ImageURL:    pin.ImageURL,
		PinLink:     pin.PinLink,
		BoardName:   NormalizeText(pin.BoardName),
		Author:      NormalizeText(pin.Author),
		SaveCount:   CoerceSaveCount(pin.SaveCount),
		ScrapedAt:   scrapedAt,
	}

	if record.BoardName == "" {
		record.BoardName = models.DefaultUnknown
	}
	if record.Author == "" {
		record.Author = models.DefaultUnknown
	}

	return record, ""
}

func (c *Cleaner) count(report *Report, reason string) {
	switch reason {
	case ReasonEmptyTitle:
		report.EmptyTitle++
	case ReasonDuplicate:
		report.Duplicate++
	default:
		report.Other++
	}
}

func (c *Cleaner) saveRawArtifact(batch *models.RawBatch) {
	if c.artifacts == nil {
		return
	}
	if err := c.artifacts.SaveRaw(batch); err != nil {
		c.logger.Warn("failed to persist raw artifact", "error", err)
	}
}

func (c *Cleaner) saveCleanedArtifact(batch *models.CleanedBatch) {
	if c.artifacts == nil {
		return
	}
	if err := c.artifacts.SaveCleaned(batch); err != nil {
		c.logger.Warn("failed to persist cleaned artifact", "error", err)
	}
}
