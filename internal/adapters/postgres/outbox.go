package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"go.uber.org/zap"
)

// Ensure Outbox implements the port
var _ ports.MessageBus = (*Outbox)(nil)

// Outbox is a MessageBus that writes events to the outbox table. A Relay
// forwards them to the real sink, so publishing never waits on the broker.
type Outbox struct {
	db *DB
}

// NewOutbox creates an outbox bus on db
func NewOutbox(db *DB) *Outbox {
	return &Outbox{db: db}
}

// Publish stores the payload for later dispatch
func (o *Outbox) Publish(ctx context.Context, topic string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	ctx, cancel := o.db.queryContext(ctx)
	defer cancel()

	if _, err := o.db.pool.Exec(ctx,
		`INSERT INTO outbox (id, topic, payload) VALUES ($1, $2, $3)`,
		uuid.New(), topic, body,
	); err != nil {
		return fmt.Errorf("insert outbox %s: %w", topic, err)
	}
	return nil
}

// RelayConfig tunes the outbox relay
type RelayConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

// DefaultRelayConfig returns the relay defaults
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{Interval: time.Second, BatchSize: 100, MaxAttempts: 10}
}

// Relay moves pending outbox rows to a sink
type Relay struct {
	db     *DB
	sink   ports.MessageBus
	cfg    RelayConfig
	logger *zap.Logger
}

// NewRelay creates a relay forwarding to sink
func NewRelay(db *DB, sink ports.MessageBus, cfg RelayConfig, logger *zap.Logger) *Relay {
	return &Relay{db: db, sink: sink, cfg: cfg, logger: logger}
}

// Run dispatches batches until ctx is done
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.DispatchBatch(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("outbox dispatch failed", zap.Error(err))
			}
		}
	}
}

type outboxRow struct {
	id       uuid.UUID
	topic    string
	payload  json.RawMessage
	attempts int
}

// DispatchBatch locks one batch of pending rows, forwards them and records
// the outcome. Rows locked by another relay are skipped.
func (r *Relay) DispatchBatch(ctx context.Context) (int, error) {
	dispatched := 0
	err := r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, topic, payload, attempts FROM outbox
			WHERE dispatched_at IS NULL AND attempts < $1
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED`,
			r.cfg.MaxAttempts, r.cfg.BatchSize,
		)
		if err != nil {
			return fmt.Errorf("select outbox: %w", err)
		}
		batch, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (outboxRow, error) {
			var o outboxRow
			err := row.Scan(&o.id, &o.topic, &o.payload, &o.attempts)
			return o, err
		})
		if err != nil {
			return fmt.Errorf("scan outbox: %w", err)
		}

		for _, o := range batch {
			if pubErr := r.sink.Publish(ctx, o.topic, o.payload); pubErr != nil {
				r.logger.Warn("outbox event not delivered",
					zap.String("id", o.id.String()),
					zap.String("topic", o.topic),
					zap.Int("attempts", o.attempts+1),
					zap.Error(pubErr),
				)
				if _, err := tx.Exec(ctx,
					`UPDATE outbox SET attempts = attempts + 1, last_error = $2 WHERE id = $1`,
					o.id, pubErr.Error(),
				); err != nil {
					return fmt.Errorf("record outbox failure: %w", err)
				}
				continue
			}
			if _, err := tx.Exec(ctx,
				`UPDATE outbox SET attempts = attempts + 1, dispatched_at = now() WHERE id = $1`, o.id,
			); err != nil {
				return fmt.Errorf("mark outbox dispatched: %w", err)
			}
			dispatched++
		}
		return nil
	})
	return dispatched, err
}
