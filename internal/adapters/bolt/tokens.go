package bolt

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "github.com/boltdb/bolt"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
)

// Get returns ports.ErrNotFound for unknown tokens
func (s *TokenStore) Get(ctx context.Context, tokenID string) (*domain.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var token domain.Token
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(tokensBucket).Get([]byte(tokenID))
		if v == nil {
			return ports.ErrNotFound
		}
		return json.Unmarshal(v, &token)
	})
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// ConditionalPut stores a new token; an existing id is ports.ErrAlreadyExists
func (s *TokenStore) ConditionalPut(ctx context.Context, token *domain.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(tokensBucket)
		if b.Get([]byte(token.ID)) != nil {
			return ports.ErrAlreadyExists
		}
		return b.Put([]byte(token.ID), data)
	})
}

// MarkConsumed flips consumed only from false
func (s *TokenStore) MarkConsumed(ctx context.Context, tokenID, transactionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(tokensBucket)
		v := b.Get([]byte(tokenID))
		if v == nil {
			return ports.ErrConditionFailed
		}
		var token domain.Token
		if err := json.Unmarshal(v, &token); err != nil {
			return err
		}
		if token.Consumed {
			return ports.ErrConditionFailed
		}
		at := s.now().UTC()
		token.Consumed = true
		token.ConsumedBy = transactionID
		token.ConsumedAt = &at

		data, err := json.Marshal(&token)
		if err != nil {
			return err
		}
		return b.Put([]byte(tokenID), data)
	})
}
