package charge

import (
	"testing"

	"github.com/kevin07696/transaction-orchestrator/internal/config"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/testutil/fixtures"
	"github.com/stretchr/testify/assert"
)

func TestCheckThreeDS(t *testing.T) {
	policy := config.DefaultPolicy().ThreeDS
	merchant := &domain.Merchant{ID: "m-1"}

	tests := []struct {
		name       string
		security   *domain.SecurityBlock
		brand      string
		merchant   *domain.Merchant
		wantReason string
	}{
		{name: "no_block", brand: "visa", merchant: merchant},
		{name: "empty_block", security: &domain.SecurityBlock{}, brand: "visa", merchant: merchant},
		{
			name:     "visa_full_authentication",
			security: &domain.SecurityBlock{ECI: "05", CAVV: "AAABBB", Status: "authenticated"},
			brand:    "Visa",
			merchant: merchant,
		},
		{
			name:       "visa_non_shifting_eci",
			security:   &domain.SecurityBlock{ECI: "07", CAVV: "AAABBB"},
			brand:      "visa",
			merchant:   merchant,
			wantReason: "eci 07 does not shift liability for visa",
		},
		{
			name:       "mastercard_missing_cavv",
			security:   &domain.SecurityBlock{ECI: "02"},
			brand:      "mastercard",
			merchant:   merchant,
			wantReason: "missing cavv",
		},
		{
			name:       "failed_status",
			security:   &domain.SecurityBlock{ECI: "05", CAVV: "AAABBB", Status: "Rejected"},
			brand:      "visa",
			merchant:   merchant,
			wantReason: "3ds authentication rejected",
		},
		{
			name:       "explicit_failure_reason",
			security:   &domain.SecurityBlock{ECI: "05", FailureReason: "signature invalid"},
			brand:      "visa",
			merchant:   merchant,
			wantReason: "signature invalid",
		},
		{
			name:     "unknown_brand_not_checked",
			security: &domain.SecurityBlock{ECI: "07"},
			brand:    "diners",
			merchant: merchant,
		},
		{
			name:     "token_accepts_risk",
			security: &domain.SecurityBlock{ECI: "07", AcceptRisk: true},
			brand:    "visa",
			merchant: merchant,
		},
		{
			name:     "merchant_accepts_risk",
			security: &domain.SecurityBlock{ECI: "07"},
			brand:    "visa",
			merchant: fixtures.NewMerchant().AcceptingRisk().Build(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantReason, checkThreeDS(tt.security, tt.brand, tt.merchant, policy))
		})
	}
}
