// Package bolt is the embedded persistence layer used for local runs and tests.
// Every conditional write happens inside a single bolt Update transaction, which
// bolt serializes, so check-and-set is atomic.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/shopspring/decimal"
)

var (
	transactionsBucket = []byte("transactions")
	referencesBucket   = []byte("references")
	tokensBucket       = []byte("tokens")
	merchantsBucket    = []byte("merchants")
)

// Ensure the stores implement the ports
var (
	_ ports.TransactionStore = (*TransactionStore)(nil)
	_ ports.TokenStore       = (*TokenStore)(nil)
	_ ports.MerchantFetcher  = (*MerchantStore)(nil)
)

// Store wraps a bolt database file shared by the transaction, token and merchant stores
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// TransactionStore persists transaction records keyed by ticket number
type TransactionStore struct{ *Store }

// TokenStore persists tokens keyed by id
type TokenStore struct{ *Store }

// MerchantStore holds merchant configuration
type MerchantStore struct{ *Store }

// Transactions returns the transaction store view
func (s *Store) Transactions() *TransactionStore { return &TransactionStore{s} }

// Tokens returns the token store view
func (s *Store) Tokens() *TokenStore { return &TokenStore{s} }

// Merchants returns the merchant store view
func (s *Store) Merchants() *MerchantStore { return &MerchantStore{s} }

// Open opens (or creates) the database at path and ensures the buckets exist
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{transactionsBucket, referencesBucket, tokensBucket, merchantsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database file lock
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is still open
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(transactionsBucket) == nil {
			return fmt.Errorf("bucket %s missing", transactionsBucket)
		}
		return nil
	})
}

// GetByTicket returns ports.ErrNotFound when the ticket is unknown
func (s *TransactionStore) GetByTicket(ctx context.Context, ticketNumber string) (*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var txn domain.Transaction
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(transactionsBucket).Get([]byte(ticketNumber))
		if v == nil {
			return ports.ErrNotFound
		}
		return json.Unmarshal(v, &txn)
	})
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// ConditionalPut writes the record only when the ticket is free
func (s *TransactionStore) ConditionalPut(ctx context.Context, txn *domain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(txn)
	if err != nil {
		return fmt.Errorf("encode transaction %s: %w", txn.TicketNumber, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(transactionsBucket)
		key := []byte(txn.TicketNumber)
		if b.Get(key) != nil {
			return ports.ErrAlreadyExists
		}
		if err := b.Put(key, data); err != nil {
			return err
		}
		return tx.Bucket(referencesBucket).Put(referenceKey(txn.TransactionReference, txn.TicketNumber), nil)
	})
}

// QueryByReference lists records sharing a reference, oldest first
func (s *TransactionStore) QueryByReference(ctx context.Context, reference string) ([]*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*domain.Transaction
	err := s.db.View(func(tx *bolt.Tx) error {
		txns := tx.Bucket(transactionsBucket)
		prefix := referenceKey(reference, "")
		c := tx.Bucket(referencesBucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			v := txns.Get(k[len(prefix):])
			if v == nil {
				continue
			}
			var txn domain.Transaction
			if err := json.Unmarshal(v, &txn); err != nil {
				return err
			}
			out = append(out, &txn)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByCreated(out)
	return out, nil
}

// UpdateValues applies the non-nil fields when the captured guard holds
func (s *TransactionStore) UpdateValues(ctx context.Context, ticketNumber string, update ports.TransactionUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.mutate(ticketNumber, func(txn *domain.Transaction) error {
		if update.ExpectCaptured != nil && txn.Captured != *update.ExpectCaptured {
			return ports.ErrConditionFailed
		}
		if update.ExpectPending != nil && !txn.PendingAmount.Equal(*update.ExpectPending) {
			return ports.ErrConditionFailed
		}
		if update.PendingAmount != nil {
			txn.PendingAmount = *update.PendingAmount
		}
		if update.Captured != nil {
			txn.Captured = *update.Captured
		}
		if len(update.Metadata) > 0 {
			if txn.Metadata == nil {
				txn.Metadata = make(map[string]string, len(update.Metadata))
			}
			for k, v := range update.Metadata {
				txn.Metadata[k] = v
			}
		}
		return nil
	})
}

// DecrementPending subtracts amount only when at least that much is pending
func (s *TransactionStore) DecrementPending(ctx context.Context, ticketNumber string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	var remaining decimal.Decimal
	err := s.mutate(ticketNumber, func(txn *domain.Transaction) error {
		if !amount.IsPositive() || txn.PendingAmount.LessThan(amount) {
			return ports.ErrConditionFailed
		}
		txn.PendingAmount = txn.PendingAmount.Sub(amount)
		remaining = txn.PendingAmount
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return remaining, nil
}

// RestorePending adds amount back to the pending amount
func (s *TransactionStore) RestorePending(ctx context.Context, ticketNumber string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	var remaining decimal.Decimal
	err := s.mutate(ticketNumber, func(txn *domain.Transaction) error {
		if !amount.IsPositive() {
			return ports.ErrConditionFailed
		}
		txn.PendingAmount = txn.PendingAmount.Add(amount)
		remaining = txn.PendingAmount
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return remaining, nil
}

// mutate loads, changes and stores one record in a single Update transaction.
// A missing ticket is ports.ErrConditionFailed.
func (s *TransactionStore) mutate(ticketNumber string, fn func(*domain.Transaction) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(transactionsBucket)
		key := []byte(ticketNumber)
		v := b.Get(key)
		if v == nil {
			return ports.ErrConditionFailed
		}
		var txn domain.Transaction
		if err := json.Unmarshal(v, &txn); err != nil {
			return err
		}
		if err := fn(&txn); err != nil {
			return err
		}
		data, err := json.Marshal(&txn)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// referenceKey is "<reference>\x00<ticket>", so a prefix scan lists one reference
func referenceKey(reference, ticket string) []byte {
	key := make([]byte, 0, len(reference)+1+len(ticket))
	key = append(key, reference...)
	key = append(key, 0)
	return append(key, ticket...)
}

func sortByCreated(txns []*domain.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool { return txns[i].CreatedAt.Before(txns[j].CreatedAt) })
}
