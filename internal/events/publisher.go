// Package events publishes run-lifecycle events through a transactional
// outbox; a separate relay ships them to Redis streams.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/pinterest-pipeline/internal/database"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeRunCompleted is published when a pipeline run finishes
	EventTypeRunCompleted EventType = "PIPELINE_RUN_COMPLETED"
	// EventTypeRunFailed is published when a pipeline run hits a fatal error
	EventTypeRunFailed EventType = "PIPELINE_RUN_FAILED"
)

// RunEventPayload is the payload for run-lifecycle events.
type RunEventPayload struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	Timestamp  time.Time      `json:"timestamp"`
	RunID      string         `json:"run_id"`
	Query      string         `json:"query"`
	Requested  int            `json:"requested"`
	Collected  int            `json:"collected"`
	Cleaned    int            `json:"cleaned"`
	Loaded     int            `json:"loaded"`
	Rejections map[string]int `json:"rejections,omitempty"`
	Shortfall  bool           `json:"yield_shortfall,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Publisher writes run events into the transactional outbox.
type Publisher struct {
	db     *database.DB
	outbox *database.OutboxRepository
	logger *slog.Logger
}

func NewPublisher(db *database.DB, logger *slog.Logger) *Publisher {
	return &Publisher{
		db:     db,
		outbox: database.NewOutboxRepository(db),
		logger: logger.With("component", "event_publisher"),
	}
}

// PublishRunEvent records one run-lifecycle event. The outbox insert and
// any surrounding store work commit atomically.
func (p *Publisher) PublishRunEvent(ctx context.Context, eventType EventType, payload *RunEventPayload) error {
	if payload.EventID == "" {
		payload.EventID = uuid.New().String()
	}
	payload.EventType = string(eventType)
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := &database.OutboxEvent{
		AggregateType: "pipeline_run",
		AggregateID:   payload.RunID,
		EventType:     string(eventType),
		Payload:       data,
		TargetStream:  database.DefaultRunStream,
	}

	err = p.db.Transaction(ctx, func(tx pgx.Tx) error {
		return p.outbox.InsertWithTx(ctx, tx, outboxEvent)
	})

	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"event_id", outboxEvent.ID,
		"event_type", eventType,
		"run_id", payload.RunID)

	return nil
}
