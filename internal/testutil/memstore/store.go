// Package memstore provides in-memory stores with the same conditional-write
// semantics as the real adapters, for orchestrator tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/shopspring/decimal"
)

// Transactions is an in-memory TransactionStore
type Transactions struct {
	mu      sync.Mutex
	records map[string]domain.Transaction
	order   []string
}

// NewTransactions creates a store seeded with txns
func NewTransactions(txns ...*domain.Transaction) *Transactions {
	s := &Transactions{records: make(map[string]domain.Transaction)}
	for _, txn := range txns {
		s.records[txn.TicketNumber] = *txn
		s.order = append(s.order, txn.TicketNumber)
	}
	return s
}

func (s *Transactions) GetByTicket(_ context.Context, ticketNumber string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.records[ticketNumber]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &txn, nil
}

func (s *Transactions) ConditionalPut(_ context.Context, txn *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.records[txn.TicketNumber]; taken {
		return ports.ErrAlreadyExists
	}
	s.records[txn.TicketNumber] = *txn
	s.order = append(s.order, txn.TicketNumber)
	return nil
}

func (s *Transactions) QueryByReference(_ context.Context, reference string) ([]*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Transaction
	for _, ticket := range s.order {
		txn := s.records[ticket]
		if txn.TransactionReference == reference {
			out = append(out, &txn)
		}
	}
	return out, nil
}

func (s *Transactions) UpdateValues(_ context.Context, ticketNumber string, update ports.TransactionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.records[ticketNumber]
	if !ok {
		return ports.ErrNotFound
	}
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
		merged := make(map[string]string, len(txn.Metadata)+len(update.Metadata))
		for k, v := range txn.Metadata {
			merged[k] = v
		}
		for k, v := range update.Metadata {
			merged[k] = v
		}
		txn.Metadata = merged
	}
	s.records[ticketNumber] = txn
	return nil
}

func (s *Transactions) DecrementPending(_ context.Context, ticketNumber string, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.records[ticketNumber]
	if !ok {
		return decimal.Zero, ports.ErrNotFound
	}
	if !amount.IsPositive() || txn.PendingAmount.LessThan(amount) {
		return decimal.Zero, ports.ErrConditionFailed
	}
	txn.PendingAmount = txn.PendingAmount.Sub(amount)
	s.records[ticketNumber] = txn
	return txn.PendingAmount, nil
}

func (s *Transactions) RestorePending(_ context.Context, ticketNumber string, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.records[ticketNumber]
	if !ok {
		return decimal.Zero, ports.ErrNotFound
	}
	if !amount.IsPositive() {
		return decimal.Zero, ports.ErrConditionFailed
	}
	txn.PendingAmount = txn.PendingAmount.Add(amount)
	s.records[ticketNumber] = txn
	return txn.PendingAmount, nil
}

func (s *Transactions) Ping(context.Context) error { return nil }

// All returns every record in insertion order
func (s *Transactions) All() []*domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Transaction, 0, len(s.order))
	for _, ticket := range s.order {
		txn := s.records[ticket]
		out = append(out, &txn)
	}
	return out
}

// Tokens is an in-memory TokenStore
type Tokens struct {
	mu     sync.Mutex
	tokens map[string]domain.Token
}

// NewTokens creates a store seeded with tokens
func NewTokens(tokens ...*domain.Token) *Tokens {
	s := &Tokens{tokens: make(map[string]domain.Token)}
	for _, token := range tokens {
		s.tokens[token.ID] = *token
	}
	return s
}

func (s *Tokens) Get(_ context.Context, tokenID string) (*domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[tokenID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &token, nil
}

func (s *Tokens) ConditionalPut(_ context.Context, token *domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.tokens[token.ID]; taken {
		return ports.ErrAlreadyExists
	}
	s.tokens[token.ID] = *token
	return nil
}

func (s *Tokens) MarkConsumed(_ context.Context, tokenID, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[tokenID]
	if !ok {
		return ports.ErrNotFound
	}
	if token.Consumed {
		return ports.ErrConditionFailed
	}
	now := time.Now()
	token.Consumed = true
	token.ConsumedBy = transactionID
	token.ConsumedAt = &now
	s.tokens[tokenID] = token
	return nil
}

// Len returns the number of stored tokens
func (s *Tokens) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
