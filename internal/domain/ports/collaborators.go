package ports

import (
	"context"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/shopspring/decimal"
)

// AntifraudClient asks the antifraud engine for a workflow decision
type AntifraudClient interface {
	GetWorkflowDecision(ctx context.Context, req *domain.AntifraudContext) (*domain.AntifraudDecision, error)
}

// MessageBus publishes payloads to a topic or queue
type MessageBus interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// OperationalAlerter reports integrity violations to operators
type OperationalAlerter interface {
	Report(ctx context.Context, alert *domain.OperationalAlert) error
}

// MerchantFetcher loads merchant configuration
type MerchantFetcher interface {
	GetMerchant(ctx context.Context, merchantID string) (*domain.Merchant, error)
}

// BinFetcher loads bin metadata
type BinFetcher interface {
	GetBin(ctx context.Context, bin string) (*domain.BinInfo, error)
}

// ReceivableChecker asks whether a transaction has already been paid out to the merchant
type ReceivableChecker interface {
	IsReceivable(ctx context.Context, txn *domain.Transaction) (bool, error)
}

// CurrencyConverter converts between a unit of account and its settlement currency
type CurrencyConverter interface {
	Convert(ctx context.Context, from, to string, amount decimal.Decimal) (*domain.ConvertedAmount, error)
}
