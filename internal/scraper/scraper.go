// Package scraper collects raw pin records from a search results view that
// loads content incrementally as the page is scrolled.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/pinterest-pipeline/internal/browser"
	"github.com/maltedev/pinterest-pipeline/internal/models"
	"github.com/maltedev/pinterest-pipeline/internal/ratelimit"
)

// ErrNavigation marks a failed initial page load. It is fatal for the run;
// retries happen at the orchestrator's task level, not in here.
var ErrNavigation = errors.New("failed to open search results")

// stableRevealLimit is the number of consecutive reveals without new items
// after which the scraper treats the feed as exhausted.
const stableRevealLimit = 2

// ContentSource abstracts the dynamically loading results view so the
// collection loop can be tested against a simulated feed.
type ContentSource interface {
	// Items returns the currently visible pin cards as HTML fragments.
	Items(ctx context.Context) ([]string, error)
	// Reveal triggers one scroll-to-bottom and reports whether the
	// document grew as a result.
	Reveal(ctx context.Context) (bool, error)
	Close() error
}

type Options struct {
	SearchBaseURL string
	MaxReveals    int
	RevealDelay   time.Duration
	NavRetries    int
	Browser       *browser.Options
}

func DefaultScrapeOptions() *Options {
	return &Options{
		SearchBaseURL: "https://www.pinterest.com/search/pins/",
		MaxReveals:    20,
		RevealDelay:   2 * time.Second,
		NavRetries:    3,
		Browser:       browser.DefaultOptions(),
	}
}

// Stats summarises one scrape.
type Stats struct {
	Requested int `json:"requested"`
	Collected int `json:"collected"`
	Reveals   int `json:"reveals"`
}

// Scraper drives one browser session per Scrape call. The session is
// acquired at entry and released on every exit path; nothing is held
// across runs.
type Scraper struct {
	opts    *Options
	limiter *ratelimit.SimpleRateLimiter
	logger  *slog.Logger
}

func New(opts *Options) *Scraper {
	if opts == nil {
		opts = DefaultScrapeOptions()
	}

	return &Scraper{
		opts:    opts,
		limiter: ratelimit.NewSimpleRateLimiter(opts.RevealDelay, opts.RevealDelay*2),
		logger:  slog.Default().With("component", "scraper"),
	}
}

// Scrape opens a search results view for query and collects up to maxPins
// raw records. It terminates when enough pins are collected, when the feed
// stops yielding new items, or when the reveal budget runs out.
func (s *Scraper) Scrape(ctx context.Context, query string, maxPins int) ([]models.RawPin, Stats, error) {
	if maxPins < 1 {
		return nil, Stats{}, fmt.Errorf("maxPins must be positive, got %d", maxPins)
	}

	s.logger.Info("starting scrape", "query", query, "max_pins", maxPins)

	b, err := browser.New(s.opts.Browser)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to start browser session: %w", err)
	}
	defer b.Close()

	src, err := newPageSource(b, s.opts, query)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("%w: %v", ErrNavigation, err)
	}
	defer src.Close()

	return s.collect(ctx, src, query, maxPins)
}

// collect runs the reveal loop against src. Split out of Scrape so it can be
// exercised with a simulated content source.
func (s *Scraper) collect(ctx context.Context, src ContentSource, query string, maxPins int) ([]models.RawPin, Stats, error) {
	var pins []models.RawPin
	seen := make(map[string]struct{})
	stats := Stats{Requested: maxPins}
	noNew := 0

	for attempt := 0; attempt < s.opts.MaxReveals; attempt++ {
		if err := ctx.Err(); err != nil {
			return pins, s.finish(stats, pins), err
		}

		items, err := src.Items(ctx)
		if err != nil {
			return pins, s.finish(stats, pins), fmt.Errorf("failed to list visible pins: %w", err)
		}

		added := 0
		for i, html := range items {
			if len(pins) >= maxPins {
				break
			}

			pin, err := ParsePin(html, time.Now())
			if err != nil {
				// A single broken card never aborts the scrape.
				s.logger.Warn("skipping pin", "position", i, "error", err)
				continue
			}

			key := provisionalKey(pin, i)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			pins = append(pins, pin)
			added++
		}

		s.logger.Info("reveal processed",
			"attempt", attempt+1,
			"visible", len(items),
			"collected", len(pins))

		if len(pins) >= maxPins {
			break
		}

		if added == 0 {
			noNew++
			if noNew >= stableRevealLimit {
				s.logger.Info("feed stable, stopping", "attempts", attempt+1)
				break
			}
		} else {
			noNew = 0
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return pins, s.finish(stats, pins), err
		}

		stats.Reveals++
		grew, err := src.Reveal(ctx)
		if err != nil {
			s.logger.Warn("reveal failed, stopping with collected pins", "error", err)
			break
		}
		if !grew {
			noNew++
			if noNew >= stableRevealLimit {
				s.logger.Info("page stopped growing, stopping", "attempts", attempt+1)
				break
			}
		}
	}

	if len(pins) > maxPins {
		pins = pins[:maxPins]
	}

	stats = s.finish(stats, pins)
	s.logger.Info("scrape completed", "query", query, "collected", stats.Collected, "reveals", stats.Reveals)
	return pins, stats, nil
}

func (s *Scraper) finish(stats Stats, pins []models.RawPin) Stats {
	stats.Collected = len(pins)
	return stats
}

// provisionalKey identifies a pin across reveals before cleaning: the pin
// link when present, else list position plus title.
func provisionalKey(pin models.RawPin, position int) string {
	if pin.PinLink != "" {
		return pin.PinLink
	}
	return fmt.Sprintf("pos:%d:%s", position, pin.Title)
}
