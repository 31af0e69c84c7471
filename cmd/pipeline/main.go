package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/pinterest-pipeline/internal/artifacts"
	"github.com/maltedev/pinterest-pipeline/internal/browser"
	"github.com/maltedev/pinterest-pipeline/internal/cleaner"
	"github.com/maltedev/pinterest-pipeline/internal/config"
	"github.com/maltedev/pinterest-pipeline/internal/database"
	"github.com/maltedev/pinterest-pipeline/internal/events"
	"github.com/maltedev/pinterest-pipeline/internal/loader"
	"github.com/maltedev/pinterest-pipeline/internal/pipeline"
	"github.com/maltedev/pinterest-pipeline/internal/scraper"
	"github.com/maltedev/pinterest-pipeline/pkg/logger"
)

func main() {
	var (
		query    = flag.String("query", "data science", "Search query to scrape pins for")
		maxPins  = flag.Int("max-pins", 150, "Maximum number of pins to collect")
		stage    = flag.String("stage", "all", "Pipeline stage to run: scrape, clean, load, all")
		headless = flag.Bool("headless", true, "Run browser in headless mode")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logg := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	logg.Info("starting pipeline", "stage", *stage, "query", *query, "max_pins", *maxPins)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logg.Info("shutdown signal received")
		cancel()
	}()

	if err := run(ctx, cfg, *stage, *query, *maxPins, *headless); err != nil {
		logg.Error("pipeline failed", "stage", *stage, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, stage, query string, maxPins int, headless bool) error {
	store := artifacts.NewStore(cfg.Artifacts.Dir, cfg.Artifacts.RawFile, cfg.Artifacts.CleanedFile)

	scrapeOpts := &scraper.Options{
		SearchBaseURL: cfg.Scraper.SearchBaseURL,
		MaxReveals:    cfg.Scraper.MaxReveals,
		RevealDelay:   cfg.Scraper.RevealDelay,
		NavRetries:    cfg.Scraper.NavRetries,
		Browser: &browser.Options{
			Headless:       headless && cfg.Browser.Headless,
			Timeout:        cfg.Browser.Timeout,
			UserAgent:      cfg.Browser.UserAgent,
			ViewportWidth:  cfg.Browser.ViewportWidth,
			ViewportHeight: cfg.Browser.ViewportHeight,
			AcceptLanguage: cfg.Browser.AcceptLanguage,
			TimezoneID:     cfg.Browser.TimezoneID,
			Locale:         cfg.Browser.Locale,
		},
	}

	pinScraper := scraper.New(scrapeOpts)
	pinCleaner := cleaner.New(cfg.Cleaner.MinRecords, store)

	// The store connection is only opened for stages that touch it.
	var (
		pinLoader *loader.Loader
		publisher *events.Publisher
	)
	if stage == "load" || stage == "all" {
		db, err := database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := database.NewOutboxRepository(db).EnsureSchema(ctx); err != nil {
			return err
		}

		pinLoader = loader.New(db)
		publisher = events.NewPublisher(db, slog.Default())
	}

	runner := pipeline.New(pinScraper, pinCleaner, loaderOrNil(pinLoader), store, publisherOrNil(publisher))

	switch stage {
	case "scrape":
		raw, err := runner.RunScrape(ctx, query, maxPins)
		if err != nil {
			return err
		}
		slog.Default().Info("scrape stage done", "collected", len(raw.Pins), "artifact", store.RawPath())
		return nil

	case "clean":
		cleanedBatch, report, err := runner.RunClean(ctx)
		if err != nil && !errors.Is(err, cleaner.ErrYieldShortfall) {
			return err
		}
		if errors.Is(err, cleaner.ErrYieldShortfall) {
			slog.Default().Warn("yield shortfall", "error", err)
		}
		slog.Default().Info("clean stage done",
			"kept", len(cleanedBatch.Pins),
			"rejected", report.Rejected(),
			"artifact", store.CleanedPath())
		return nil

	case "load":
		result, stats, err := runner.RunLoad(ctx)
		if err != nil {
			return err
		}
		slog.Default().Info("load stage done",
			"inserted", result.Inserted,
			"updated", result.Updated,
			"failed", result.Failed,
			"store_records", stats.TotalRecords)
		return nil

	case "all":
		_, err := runner.Run(ctx, query, maxPins)
		return err

	default:
		return fmt.Errorf("unknown stage %q (want scrape, clean, load or all)", stage)
	}
}

func loaderOrNil(l *loader.Loader) pipeline.BatchLoader {
	if l == nil {
		return nil
	}
	return l
}

func publisherOrNil(p *events.Publisher) pipeline.RunPublisher {
	if p == nil {
		return nil
	}
	return p
}
