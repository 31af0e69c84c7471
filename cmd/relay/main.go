package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/pinterest-pipeline/internal/config"
	"github.com/maltedev/pinterest-pipeline/internal/database"
	"github.com/maltedev/pinterest-pipeline/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	logg.Info("starting outbox relay")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logg.Info("shutdown signal received")
		cancel()
	}()

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

	if err := database.NewOutboxRepository(db).EnsureSchema(ctx); err != nil {
		logg.Error("failed to ensure outbox schema", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logg.Error("failed to ping redis", "error", err)
		os.Exit(1)
	}

	relay := database.NewRelay(db, redisClient, logg, database.RelayConfig{
		PollInterval: cfg.Redis.PollInterval,
		BatchSize:    cfg.Redis.BatchSize,
	})

	if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error("relay stopped with error", "error", err)
		os.Exit(1)
	}

	logg.Info("relay shut down")
}
