package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
)

// Ensure TokenStore implements the port
var _ ports.TokenStore = (*TokenStore)(nil)

// TokenStore keeps issued tokens; the consumed flag is a column so the single-use
// transition is one guarded UPDATE.
type TokenStore struct {
	db  *DB
	now func() time.Time
}

// NewTokenStore creates a token store on db
func NewTokenStore(db *DB) *TokenStore {
	return &TokenStore{db: db, now: time.Now}
}

// Get returns ports.ErrNotFound for unknown tokens
func (s *TokenStore) Get(ctx context.Context, tokenID string) (*domain.Token, error) {
	ctx, cancel := s.db.queryContext(ctx)
	defer cancel()

	var (
		record     []byte
		consumed   bool
		consumedBy pgtype.Text
		consumedAt pgtype.Timestamptz
	)
	err := s.db.pool.QueryRow(ctx,
		`SELECT record, consumed, consumed_by, consumed_at FROM tokens WHERE id = $1`, tokenID,
	).Scan(&record, &consumed, &consumedBy, &consumedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	var token domain.Token
	if err := json.Unmarshal(record, &token); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	token.Consumed = consumed
	token.ConsumedBy = consumedBy.String
	if consumedAt.Valid {
		at := consumedAt.Time
		token.ConsumedAt = &at
	}
	return &token, nil
}

// ConditionalPut stores a new token; an existing id is ports.ErrAlreadyExists
func (s *TokenStore) ConditionalPut(ctx context.Context, token *domain.Token) error {
	ctx, cancel := s.db.queryContext(ctx)
	defer cancel()

	record, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	tag, err := s.db.pool.Exec(ctx, `
		INSERT INTO tokens (id, merchant_id, consumed, record, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		token.ID, token.MerchantID, token.Consumed, record, token.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ports.ErrAlreadyExists
		}
		return fmt.Errorf("insert token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrAlreadyExists
	}
	return nil
}

// MarkConsumed flips consumed only from false; a second caller gets ports.ErrConditionFailed
func (s *TokenStore) MarkConsumed(ctx context.Context, tokenID, transactionID string) error {
	ctx, cancel := s.db.queryContext(ctx)
	defer cancel()

	tag, err := s.db.pool.Exec(ctx, `
		UPDATE tokens SET consumed = TRUE, consumed_by = $2, consumed_at = $3
		WHERE id = $1 AND consumed = FALSE`,
		tokenID, transactionID, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("consume token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrConditionFailed
	}
	return nil
}
