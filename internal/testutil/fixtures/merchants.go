package fixtures

import (
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
)

// MerchantBuilder provides fluent API for building test merchants.
type MerchantBuilder struct {
	merchant *domain.Merchant
}

// NewMerchant creates an active Ecuadorian merchant without antifraud or deferred options.
func NewMerchant() *MerchantBuilder {
	return &MerchantBuilder{
		merchant: &domain.Merchant{
			ID:       "m-1",
			Name:     "Test Merchant",
			Country:  "Ecuador",
			MCC:      "5411",
			IsActive: true,
		},
	}
}

func (b *MerchantBuilder) WithID(id string) *MerchantBuilder {
	b.merchant.ID = id
	return b
}

func (b *MerchantBuilder) WithCountry(country string) *MerchantBuilder {
	b.merchant.Country = country
	return b
}

func (b *MerchantBuilder) WithAntifraud(settings domain.AntifraudSettings) *MerchantBuilder {
	b.merchant.Antifraud = settings
	return b
}

func (b *MerchantBuilder) WithDeferred(options ...domain.DeferredOption) *MerchantBuilder {
	b.merchant.DeferredEnabled = true
	b.merchant.DeferredOptions = options
	return b
}

func (b *MerchantBuilder) OmittingCVV() *MerchantBuilder {
	b.merchant.OmitCVV = true
	return b
}

func (b *MerchantBuilder) AcceptingRisk() *MerchantBuilder {
	b.merchant.AcceptRisk3DS = true
	return b
}

// Build returns the merchant.
func (b *MerchantBuilder) Build() *domain.Merchant {
	return b.merchant
}
