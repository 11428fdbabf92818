// Package idempotency enforces at-most-once use of tokens through conditional writes.
package idempotency

import (
	"context"
	"errors"
	"fmt"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
)

// Guard detects and blocks reuse of a consumed token
type Guard struct {
	tokens ports.TokenStore
	logger ports.Logger
}

// NewGuard creates a new idempotency guard
func NewGuard(tokens ports.TokenStore, logger ports.Logger) *Guard {
	return &Guard{tokens: tokens, logger: logger}
}

// LoadUnconsumed returns the token if it exists and has not been consumed yet.
// This is an early check only; Consume is the authoritative one.
func (g *Guard) LoadUnconsumed(ctx context.Context, tokenID string) (*domain.Token, error) {
	token, err := g.tokens.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, domain.ErrTokenExpired(tokenID).WithDetail("reason", "token not found")
		}
		return nil, fmt.Errorf("get token: %w", err)
	}

	if token.Consumed {
		g.logger.Warn("token reuse attempt",
			ports.String("token", tokenID),
			ports.String("consumed_by", token.ConsumedBy),
		)
		return nil, domain.ErrTokenAlreadyUsed(tokenID)
	}
	return token, nil
}

// Consume marks the token as used by transactionID. Losing the conditional
// update to a concurrent request is an IdempotencyConflict, not a store failure.
func (g *Guard) Consume(ctx context.Context, tokenID, transactionID string) error {
	err := g.tokens.MarkConsumed(ctx, tokenID, transactionID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ports.ErrConditionFailed):
		g.logger.Warn("token consumed concurrently",
			ports.String("token", tokenID),
			ports.String("transaction_id", transactionID),
		)
		return domain.ErrTokenAlreadyUsed(tokenID)
	default:
		return fmt.Errorf("consume token: %w", err)
	}
}

// Register stores a freshly created token. An existing id means the token was already issued.
func (g *Guard) Register(ctx context.Context, token *domain.Token) error {
	err := g.tokens.ConditionalPut(ctx, token)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ports.ErrAlreadyExists):
		g.logger.Warn("token id conflict", ports.String("token", token.ID))
		return domain.ErrTokenAlreadyUsed(token.ID)
	default:
		return fmt.Errorf("store token: %w", err)
	}
}
