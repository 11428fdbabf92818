package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
)

// Ensure MerchantStore implements the port
var _ ports.MerchantFetcher = (*MerchantStore)(nil)

type cachedMerchant struct {
	merchant  *domain.Merchant
	expiresAt time.Time
}

// MerchantStore reads merchant configuration with a short read-through cache.
// Misses are not cached.
type MerchantStore struct {
	db  *DB
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedMerchant
}

// NewMerchantStore creates a merchant lookup; ttl <= 0 disables caching
func NewMerchantStore(db *DB, ttl time.Duration) *MerchantStore {
	return &MerchantStore{db: db, ttl: ttl, now: time.Now, cache: make(map[string]cachedMerchant)}
}

// GetMerchant returns ports.ErrNotFound for unknown merchants
func (s *MerchantStore) GetMerchant(ctx context.Context, merchantID string) (*domain.Merchant, error) {
	if m, ok := s.cached(merchantID); ok {
		return m, nil
	}

	ctx, cancel := s.db.queryContext(ctx)
	defer cancel()

	var record []byte
	err := s.db.pool.QueryRow(ctx, `SELECT record FROM merchants WHERE id = $1`, merchantID).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get merchant %s: %w", merchantID, err)
	}

	var merchant domain.Merchant
	if err := json.Unmarshal(record, &merchant); err != nil {
		return nil, fmt.Errorf("decode merchant %s: %w", merchantID, err)
	}
	if merchant.ID == "" {
		merchant.ID = merchantID
	}

	if s.ttl > 0 {
		s.mu.Lock()
		s.cache[merchantID] = cachedMerchant{merchant: &merchant, expiresAt: s.now().Add(s.ttl)}
		s.mu.Unlock()
	}
	return copyMerchant(&merchant), nil
}

// PutMerchant upserts a merchant and drops its cache entry
func (s *MerchantStore) PutMerchant(ctx context.Context, merchant *domain.Merchant) error {
	record, err := json.Marshal(merchant)
	if err != nil {
		return fmt.Errorf("encode merchant %s: %w", merchant.ID, err)
	}

	ctx, cancel := s.db.queryContext(ctx)
	defer cancel()

	if _, err := s.db.pool.Exec(ctx, `
		INSERT INTO merchants (id, record) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET record = EXCLUDED.record, updated_at = now()`,
		merchant.ID, record,
	); err != nil {
		return fmt.Errorf("upsert merchant %s: %w", merchant.ID, err)
	}

	s.mu.Lock()
	delete(s.cache, merchant.ID)
	s.mu.Unlock()
	return nil
}

func (s *MerchantStore) cached(merchantID string) (*domain.Merchant, bool) {
	s.mu.RLock()
	entry, ok := s.cache[merchantID]
	s.mu.RUnlock()
	if !ok || !s.now().Before(entry.expiresAt) {
		return nil, false
	}
	return copyMerchant(entry.merchant), true
}

// copyMerchant keeps callers from mutating the cached value
func copyMerchant(m *domain.Merchant) *domain.Merchant {
	c := *m
	c.DeferredOptions = append([]domain.DeferredOption(nil), m.DeferredOptions...)
	return &c
}
