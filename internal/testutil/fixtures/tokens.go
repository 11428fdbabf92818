package fixtures

import (
	"time"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/shopspring/decimal"
)

// TokenBuilder provides fluent API for building test tokens.
type TokenBuilder struct {
	token *domain.Token
}

// NewToken creates a fresh, unconsumed USD token for merchant m-1.
func NewToken() *TokenBuilder {
	return &TokenBuilder{
		token: &domain.Token{
			CreatedAt: time.Now(),
			Amount:    decimal.RequireFromString("1012.04"),
			Card: domain.CardInfo{
				Bin:      "411111",
				LastFour: "1111",
				Brand:    "visa",
				Type:     "credit",
			},
			ID:                "tok-1",
			MerchantID:        "m-1",
			Currency:          domain.CurrencyUSD,
			TransactionCardID: "card-1",
		},
	}
}

func (b *TokenBuilder) WithID(id string) *TokenBuilder {
	b.token.ID = id
	return b
}

func (b *TokenBuilder) WithMerchant(merchantID string) *TokenBuilder {
	b.token.MerchantID = merchantID
	return b
}

func (b *TokenBuilder) WithCurrency(currency string) *TokenBuilder {
	b.token.Currency = currency
	return b
}

func (b *TokenBuilder) WithCreatedAt(t time.Time) *TokenBuilder {
	b.token.CreatedAt = t
	return b
}

func (b *TokenBuilder) WithSecurity(security *domain.SecurityBlock) *TokenBuilder {
	b.token.Security = security
	return b
}

func (b *TokenBuilder) Consumed(by string) *TokenBuilder {
	b.token.Consumed = true
	b.token.ConsumedBy = by
	return b
}

// Build returns the token.
func (b *TokenBuilder) Build() *domain.Token {
	return b.token
}
