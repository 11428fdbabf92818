// Package amount holds the amount rules shared by the charge, void and capture flows.
package amount

import (
	"slices"

	"github.com/kevin07696/transaction-orchestrator/internal/config"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/shopspring/decimal"
)

// Policy resolves and bounds request amounts against stored transactions
type Policy struct {
	policy *config.Policy
}

// NewPolicy creates a new amount policy
func NewPolicy(policy *config.Policy) *Policy {
	return &Policy{policy: policy}
}

// VoidResolution is the amount a void will reverse and how the processor must apply it
type VoidResolution struct {
	Amount      decimal.Decimal
	PartialVoid bool
	ForceRefund bool
}

// ResolveVoid returns the amount to void. A nil request voids the whole pending amount.
// The result never exceeds the transaction's pending amount.
func (p *Policy) ResolveVoid(txn *domain.Transaction, requested *domain.Amount) (*VoidResolution, error) {
	if !txn.PendingAmount.IsPositive() {
		return nil, domain.ErrVoidOverPending(requestedTotal(requested), txn.PendingAmount)
	}

	value := txn.PendingAmount
	if requested != nil {
		normalized, err := p.Normalize(txn, *requested)
		if err != nil {
			return nil, err
		}
		if !normalized.IsPositive() {
			return nil, domain.ErrVoidAmountNotPositive()
		}
		if normalized.GreaterThan(txn.PendingAmount) {
			return nil, domain.ErrVoidOverPending(normalized, txn.PendingAmount)
		}
		value = normalized
	}

	resolution := &VoidResolution{Amount: value}
	if value.LessThan(txn.ApprovedTransactionAmount) {
		resolution.PartialVoid = true
		resolution.ForceRefund = p.policy.ForceRefundFor(txn.Country, txn.ProcessorName)
	}
	return resolution, nil
}

// ResolveCapture returns the amount to capture. A nil request captures what is still pending.
// The result never exceeds CaptureLimit.
func (p *Policy) ResolveCapture(txn *domain.Transaction, requested *domain.Amount) (decimal.Decimal, error) {
	if requested == nil {
		return txn.PendingAmount, nil
	}

	value, err := p.Normalize(txn, *requested)
	if err != nil {
		return decimal.Zero, err
	}
	if !value.IsPositive() {
		return decimal.Zero, domain.ErrInvalidRequest("amount", "capture amount must be greater than zero")
	}

	limit := p.CaptureLimit(txn)
	if value.GreaterThan(limit) {
		return decimal.Zero, domain.ErrCaptureOverLimit(value, limit)
	}
	return value, nil
}

// CaptureLimit is the approved amount plus the processor's capture tolerance.
// Once part of the authorization was voided the limit is the pending amount, with no tolerance.
func (p *Policy) CaptureLimit(txn *domain.Transaction) decimal.Decimal {
	if txn.PendingAmount.LessThan(txn.ApprovedTransactionAmount) {
		return txn.PendingAmount
	}
	tolerance := p.policy.CaptureTolerance(txn.ProcessorName)
	return txn.ApprovedTransactionAmount.Mul(decimal.NewFromInt(1).Add(tolerance)).Round(2)
}

// Normalize expresses a request amount in the transaction's settlement currency.
// An empty currency means the transaction's own currency.
func (p *Policy) Normalize(txn *domain.Transaction, requested domain.Amount) (decimal.Decimal, error) {
	currency := requested.Currency
	if currency == "" {
		currency = txn.CurrencyCode
	}

	total := requested.Total()
	switch {
	case currency == txn.SettlementCurrency():
		return total, nil
	case currency == txn.CurrencyCode && txn.ConvertedAmount != nil:
		return txn.ConvertedAmount.Apply(total), nil
	default:
		return decimal.Zero, domain.ErrCurrencyMismatch(txn.CurrencyCode, currency)
	}
}

// CheckFraudThreshold rejects amounts above the merchant's cap. Requests whose extra taxes
// are all listed as exceptions are exempt.
func (p *Policy) CheckFraudThreshold(merchantID string, requested domain.Amount) error {
	threshold, ok := p.policy.FraudThresholdFor(merchantID)
	if !ok {
		return nil
	}
	if p.exemptByExtraTaxes(requested) {
		return nil
	}
	if total := requested.Total(); total.GreaterThan(threshold) {
		return domain.ErrFraudThreshold(total, threshold)
	}
	return nil
}

func (p *Policy) exemptByExtraTaxes(requested domain.Amount) bool {
	keys := requested.ExtraTaxKeys()
	exceptions := p.policy.FraudThreshold.ExtraTaxExceptions
	if len(keys) == 0 || len(exceptions) == 0 {
		return false
	}
	for _, k := range keys {
		if !slices.Contains(exceptions, k) {
			return false
		}
	}
	return true
}

// CheckTokenCurrency rejects a charge whose currency differs from the token's
func (p *Policy) CheckTokenCurrency(token *domain.Token, requested domain.Amount) error {
	if requested.Currency == "" || token.Currency == "" || requested.Currency == token.Currency {
		return nil
	}
	return domain.ErrCurrencyMismatch(token.Currency, requested.Currency)
}

func requestedTotal(requested *domain.Amount) decimal.Decimal {
	if requested == nil {
		return decimal.Zero
	}
	return requested.Total()
}
