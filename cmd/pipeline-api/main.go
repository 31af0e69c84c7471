package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/pinterest-pipeline/internal/api"
	"github.com/maltedev/pinterest-pipeline/internal/artifacts"
	"github.com/maltedev/pinterest-pipeline/internal/browser"
	"github.com/maltedev/pinterest-pipeline/internal/cleaner"
	"github.com/maltedev/pinterest-pipeline/internal/config"
	"github.com/maltedev/pinterest-pipeline/internal/database"
	"github.com/maltedev/pinterest-pipeline/internal/events"
	"github.com/maltedev/pinterest-pipeline/internal/jobs"
	"github.com/maltedev/pinterest-pipeline/internal/loader"
	"github.com/maltedev/pinterest-pipeline/internal/pipeline"
	"github.com/maltedev/pinterest-pipeline/internal/scraper"
	"github.com/maltedev/pinterest-pipeline/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logg := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	logg.Info("starting pipeline API")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logg.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		logg.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	if err := database.NewOutboxRepository(db).EnsureSchema(ctx); err != nil {
		logg.Error("failed to ensure outbox schema", "error", err)
		os.Exit(1)
	}

	store := artifacts.NewStore(cfg.Artifacts.Dir, cfg.Artifacts.RawFile, cfg.Artifacts.CleanedFile)

	pinScraper := scraper.New(&scraper.Options{
		SearchBaseURL: cfg.Scraper.SearchBaseURL,
		MaxReveals:    cfg.Scraper.MaxReveals,
		RevealDelay:   cfg.Scraper.RevealDelay,
		NavRetries:    cfg.Scraper.NavRetries,
		Browser: &browser.Options{
			Headless:       cfg.Browser.Headless,
			Timeout:        cfg.Browser.Timeout,
			UserAgent:      cfg.Browser.UserAgent,
			ViewportWidth:  cfg.Browser.ViewportWidth,
			ViewportHeight: cfg.Browser.ViewportHeight,
			AcceptLanguage: cfg.Browser.AcceptLanguage,
			TimezoneID:     cfg.Browser.TimezoneID,
			Locale:         cfg.Browser.Locale,
		},
	})

	pinLoader := loader.New(db)
	pinCleaner := cleaner.New(cfg.Cleaner.MinRecords, store)
	publisher := events.NewPublisher(db, logg)

	runner := pipeline.New(pinScraper, pinCleaner, pinLoader, store, publisher)
	manager := jobs.NewManager(runner, logg)
	handlers := api.NewHandlers(manager, pinLoader, logg)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handlers.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logg.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error("server shutdown failed", "error", err)
		}
		cancel()
	}()

	logg.Info("listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error("server failed", "error", err)
		os.Exit(1)
	}
}
