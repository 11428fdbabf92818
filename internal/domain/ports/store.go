package ports

import (
	"context"
	"errors"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/shopspring/decimal"
)

// Store outcomes. Implementations translate their own conflict and miss
// errors into these so callers never inspect driver error shapes.
var (
	ErrNotFound        = errors.New("record not found")
	ErrAlreadyExists   = errors.New("record already exists")
	ErrConditionFailed = errors.New("conditional update rejected")
)

// TransactionUpdate lists the fields UpdateValues may change; nil fields are left alone
type TransactionUpdate struct {
	PendingAmount *decimal.Decimal
	Captured      *bool
	// ExpectCaptured and ExpectPending guard the update: it only applies when the stored values equal them
	ExpectCaptured *bool
	ExpectPending  *decimal.Decimal
	Metadata       map[string]string
}

// TransactionStore persists Transaction records keyed by ticket number
type TransactionStore interface {
	// GetByTicket returns ErrNotFound when the ticket is unknown
	GetByTicket(ctx context.Context, ticketNumber string) (*domain.Transaction, error)

	// ConditionalPut writes a new record and returns ErrAlreadyExists when the ticket is taken
	ConditionalPut(ctx context.Context, txn *domain.Transaction) error

	// QueryByReference lists records sharing a transaction reference
	QueryByReference(ctx context.Context, reference string) ([]*domain.Transaction, error)

	// UpdateValues applies a partial update; a failed guard returns ErrConditionFailed
	UpdateValues(ctx context.Context, ticketNumber string, update TransactionUpdate) error

	// DecrementPending atomically subtracts amount from pending_amount when enough is pending.
	// Returns the new pending amount or ErrConditionFailed.
	DecrementPending(ctx context.Context, ticketNumber string, amount decimal.Decimal) (decimal.Decimal, error)

	// RestorePending atomically adds back an amount taken by DecrementPending
	RestorePending(ctx context.Context, ticketNumber string, amount decimal.Decimal) (decimal.Decimal, error)

	Ping(ctx context.Context) error
}

// TokenStore persists tokens
type TokenStore interface {
	Get(ctx context.Context, tokenID string) (*domain.Token, error)

	// ConditionalPut returns ErrAlreadyExists when the token id is taken
	ConditionalPut(ctx context.Context, token *domain.Token) error

	// MarkConsumed flips the consumed flag only if it is not set yet; otherwise ErrConditionFailed
	MarkConsumed(ctx context.Context, tokenID, transactionID string) error
}
