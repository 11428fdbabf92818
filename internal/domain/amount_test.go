package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAmount_Total(t *testing.T) {
	amount := Amount{
		Currency:     CurrencyUSD,
		SubtotalIva0: decimal.RequireFromString("1000.04"),
		Iva:          decimal.NewFromInt(12),
		ExtraTaxes: map[string]decimal.Decimal{
			"propina": decimal.NewFromInt(5),
		},
	}

	assert.True(t, amount.Total().Equal(decimal.RequireFromString("1017.04")))
	assert.False(t, amount.IsZero())
	assert.Equal(t, []string{"propina"}, amount.ExtraTaxKeys())
}

func TestAmount_ExtraTaxKeysSkipsZero(t *testing.T) {
	amount := Amount{ExtraTaxes: map[string]decimal.Decimal{
		"tasaAeroportuaria": decimal.Zero,
		"iac":               decimal.NewFromInt(1),
		"agenciaDeViaje":    decimal.NewFromInt(2),
	}}

	assert.Equal(t, []string{"agenciaDeViaje", "iac"}, amount.ExtraTaxKeys())
}

func TestConvertedAmount_Apply(t *testing.T) {
	conv := ConvertedAmount{Currency: CurrencyCLP, Rate: decimal.RequireFromString("36000.5")}
	assert.True(t, conv.Apply(decimal.NewFromInt(2)).Equal(decimal.NewFromInt(72001)))
}

func TestToken_IsExpired(t *testing.T) {
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	token := &Token{CreatedAt: created}

	assert.False(t, token.IsExpired(created.Add(29*time.Minute), 30*time.Minute))
	assert.True(t, token.IsExpired(created.Add(31*time.Minute), 30*time.Minute))
	assert.False(t, token.IsExpired(created.Add(24*time.Hour), 0), "zero max age disables expiry")
}

func TestTraceability_MergeKeepsCallerValues(t *testing.T) {
	caller := &Traceability{
		KushkiInfo:       map[string]string{"origin": "checkout"},
		SecurityIdentity: []SecurityIdentity{{IdentityCategory: "CHALLENGER", PartnerName: "3DS"}},
	}
	ours := &Traceability{
		KushkiInfo:       map[string]string{"origin": "tokenization", "processor": "Kushki"},
		SecurityIdentity: []SecurityIdentity{{IdentityCategory: "VALIDATION", PartnerName: "KUSHKI"}},
	}

	merged := caller.Merge(ours)

	assert.Equal(t, "checkout", merged.KushkiInfo["origin"])
	assert.Equal(t, "Kushki", merged.KushkiInfo["processor"])
	assert.Len(t, merged.SecurityIdentity, 2)
	assert.Equal(t, "3DS", merged.SecurityIdentity[0].PartnerName)
	assert.Equal(t, "checkout", caller.KushkiInfo["origin"], "caller block is not mutated")
	assert.Len(t, caller.SecurityIdentity, 1)
}

func TestTraceability_MergeNilCaller(t *testing.T) {
	var caller *Traceability
	merged := caller.Merge(&Traceability{KushkiInfo: map[string]string{"a": "b"}})
	assert.Equal(t, "b", merged.KushkiInfo["a"])
}
