package fixtures

import (
	"time"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/shopspring/decimal"
)

// TransactionBuilder provides fluent API for building test transactions.
type TransactionBuilder struct {
	transaction *domain.Transaction
}

// NewTransaction creates an approved USD charge of 100 with sensible defaults.
func NewTransaction() *TransactionBuilder {
	amount := decimal.NewFromInt(100)
	return &TransactionBuilder{
		transaction: &domain.Transaction{
			CreatedAt:                 time.Now(),
			Amount:                    domain.FullAmount(domain.CurrencyUSD, amount),
			RequestAmount:             amount,
			ApprovedTransactionAmount: amount,
			PendingAmount:             amount,
			Card: domain.CardInfo{
				Bin:      "411111",
				LastFour: "1111",
				Brand:    "visa",
				Type:     "credit",
			},
			TicketNumber:         "07874520255",
			TransactionReference: "84383487834",
			TransactionID:        "txn-0001",
			MerchantID:           "m-1",
			ProcessorID:          "proc-private-1",
			ProcessorName:        "Datafast Processor",
			IntegrationMode:      domain.IntegrationAggregator,
			TransactionType:      domain.TransactionTypeCharge,
			Status:               domain.TransactionStatusApproval,
			CurrencyCode:         domain.CurrencyUSD,
			Country:              "Ecuador",
			TokenID:              "tok-1",
			ApprovalCode:         "123456",
		},
	}
}

func (b *TransactionBuilder) WithTicket(ticket string) *TransactionBuilder {
	b.transaction.TicketNumber = ticket
	return b
}

func (b *TransactionBuilder) WithMerchant(merchantID string) *TransactionBuilder {
	b.transaction.MerchantID = merchantID
	return b
}

func (b *TransactionBuilder) WithType(t domain.TransactionType) *TransactionBuilder {
	b.transaction.TransactionType = t
	return b
}

func (b *TransactionBuilder) WithStatus(status domain.TransactionStatus) *TransactionBuilder {
	b.transaction.Status = status
	return b
}

// WithAmounts sets the approved and pending amounts
func (b *TransactionBuilder) WithAmounts(approved, pending string) *TransactionBuilder {
	b.transaction.ApprovedTransactionAmount = Dec(approved)
	b.transaction.PendingAmount = Dec(pending)
	b.transaction.RequestAmount = Dec(approved)
	b.transaction.Amount = domain.FullAmount(b.transaction.CurrencyCode, Dec(approved))
	return b
}

func (b *TransactionBuilder) WithCurrency(currency string) *TransactionBuilder {
	b.transaction.CurrencyCode = currency
	b.transaction.Amount.Currency = currency
	return b
}

func (b *TransactionBuilder) WithConversion(converted *domain.ConvertedAmount) *TransactionBuilder {
	b.transaction.ConvertedAmount = converted
	return b
}

func (b *TransactionBuilder) WithProcessor(name string) *TransactionBuilder {
	b.transaction.ProcessorName = name
	return b
}

func (b *TransactionBuilder) WithCountry(country string) *TransactionBuilder {
	b.transaction.Country = country
	return b
}

func (b *TransactionBuilder) WithCreatedAt(t time.Time) *TransactionBuilder {
	b.transaction.CreatedAt = t
	return b
}

func (b *TransactionBuilder) WithSecurity(security *domain.SecurityBlock) *TransactionBuilder {
	b.transaction.Security = security
	return b
}

func (b *TransactionBuilder) WithAcquirerBank(bank string) *TransactionBuilder {
	b.transaction.AcquirerBank = bank
	return b
}

func (b *TransactionBuilder) Captured() *TransactionBuilder {
	b.transaction.Captured = true
	return b
}

// Build returns the transaction.
func (b *TransactionBuilder) Build() *domain.Transaction {
	return b.transaction
}
