// Package postgres is the production persistence layer: transaction and token
// stores, the event outbox and the merchant lookup, all on a pgx connection pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/kevin07696/transaction-orchestrator/pkg/observability"
)

// Config contains configuration for the PostgreSQL pool
type Config struct {
	// Example: "host=localhost port=5432 user=postgres password=... dbname=transaction_orchestrator sslmode=disable"
	DatabaseURL string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// QueryTimeout bounds single-row statements
	QueryTimeout time.Duration
}

// DefaultConfig returns default pool settings
func DefaultConfig(databaseURL string) *Config {
	return &Config{
		DatabaseURL:     databaseURL,
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		QueryTimeout:    2 * time.Second,
	}
}

// querier is satisfied by both the pool and a pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB owns the connection pool shared by every store in this package
type DB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	cfg    *Config
}

// Open creates the pool and verifies connectivity
func Open(ctx context.Context, cfg *Config, logger *zap.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("PostgreSQL pool initialized",
		zap.String("database", poolConfig.ConnConfig.Database),
		zap.String("host", poolConfig.ConnConfig.Host),
		zap.Uint16("port", poolConfig.ConnConfig.Port),
		zap.Int32("max_conns", cfg.MaxConns),
	)

	return NewDB(pool, cfg, logger), nil
}

// NewDB wraps an existing pool
func NewDB(pool *pgxpool.Pool, cfg *Config, logger *zap.Logger) *DB {
	if cfg == nil {
		cfg = DefaultConfig("")
	}
	return &DB{pool: pool, logger: logger, cfg: cfg}
}

// Pool returns the underlying connection pool
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks the database connection
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// RecordPoolStats exports the current pool usage and warns above 80% utilization
func (db *DB) RecordPoolStats(context.Context) {
	stat := db.pool.Stat()
	acquired := stat.AcquiredConns()
	observability.RecordDBPool(stat.TotalConns(), stat.IdleConns(), acquired)

	total := stat.MaxConns()
	if total == 0 {
		return
	}
	utilization := float64(acquired) / float64(total) * 100
	if utilization > 80 {
		db.logger.Warn("Database connection pool highly utilized",
			zap.Float64("utilization_percent", utilization),
			zap.Int32("acquired", acquired),
			zap.Int32("total", total),
		)
	}
}

// Close closes the pool
func (db *DB) Close() {
	db.logger.Info("Closing PostgreSQL connection pool")
	db.pool.Close()
}

// queryContext bounds a single statement with the configured query timeout
func (db *DB) queryContext(parent context.Context) (context.Context, context.CancelFunc) {
	if db.cfg.QueryTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, db.cfg.QueryTimeout)
}

// WithTransaction executes fn within a database transaction.
// The transaction is rolled back when fn returns an error or panics.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			db.logger.Error("Failed to rollback transaction",
				zap.Error(rbErr),
				zap.NamedError("original_error", err),
			)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
