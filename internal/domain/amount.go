package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Currencies with special handling
const (
	CurrencyUF  = "UF" // Chilean unit of account, always settled in CLP
	CurrencyCLP = "CLP"
	CurrencyUSD = "USD"
	CurrencyCOP = "COP"
	CurrencyMXN = "MXN"
	CurrencyPEN = "PEN"
)

// Amount is the caller-supplied monetary breakdown of a request
type Amount struct {
	ExtraTaxes   map[string]decimal.Decimal `json:"extraTaxes,omitempty"`
	Currency     string                     `json:"currency"`
	SubtotalIva  decimal.Decimal            `json:"subtotalIva"`
	SubtotalIva0 decimal.Decimal            `json:"subtotalIva0"`
	Iva          decimal.Decimal            `json:"iva"`
	Ice          decimal.Decimal            `json:"ice"`
}

// Total sums every component of the amount
func (a Amount) Total() decimal.Decimal {
	total := a.SubtotalIva.Add(a.SubtotalIva0).Add(a.Iva).Add(a.Ice)
	for _, v := range a.ExtraTaxes {
		total = total.Add(v)
	}
	return total
}

// IsZero reports whether the amount adds up to nothing
func (a Amount) IsZero() bool {
	return a.Total().IsZero()
}

// ExtraTaxKeys returns the sorted names of extra taxes with a non-zero value
func (a Amount) ExtraTaxKeys() []string {
	keys := make([]string, 0, len(a.ExtraTaxes))
	for k, v := range a.ExtraTaxes {
		if !v.IsZero() {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// FullAmount builds an amount holding the whole value in the taxable subtotal
func FullAmount(currency string, total decimal.Decimal) Amount {
	return Amount{Currency: currency, SubtotalIva: total}
}

// ConvertedAmount records a conversion applied at charge or tokenization time
type ConvertedAmount struct {
	Currency string          `json:"currency"`
	Rate     decimal.Decimal `json:"rate"`
	Total    decimal.Decimal `json:"totalAmount"`
}

// Apply converts a value expressed in the source currency using the stored rate
func (c ConvertedAmount) Apply(v decimal.Decimal) decimal.Decimal {
	return v.Mul(c.Rate).Round(2)
}
