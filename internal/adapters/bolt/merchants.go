package bolt

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "github.com/boltdb/bolt"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
)

// GetMerchant returns ports.ErrNotFound for unknown merchants
func (s *MerchantStore) GetMerchant(ctx context.Context, merchantID string) (*domain.Merchant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var merchant domain.Merchant
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(merchantsBucket).Get([]byte(merchantID))
		if v == nil {
			return ports.ErrNotFound
		}
		return json.Unmarshal(v, &merchant)
	})
	if err != nil {
		return nil, err
	}
	return &merchant, nil
}

// PutMerchant creates or replaces a merchant
func (s *MerchantStore) PutMerchant(ctx context.Context, merchant *domain.Merchant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(merchant)
	if err != nil {
		return fmt.Errorf("encode merchant %s: %w", merchant.ID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(merchantsBucket).Put([]byte(merchant.ID), data)
	})
}
