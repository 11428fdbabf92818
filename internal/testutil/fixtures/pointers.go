// Package fixtures provides test data builders and helpers.
package fixtures

import (
	"github.com/shopspring/decimal"
)

// BoolPtr returns a pointer to the given bool.
func BoolPtr(b bool) *bool {
	return &b
}

// DecimalPtr returns a pointer to the given decimal.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// Dec parses a decimal literal and panics on malformed input.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
