package antifraud_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kevin07696/transaction-orchestrator/internal/config"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/services/antifraud"
	"github.com/kevin07696/transaction-orchestrator/internal/testutil/fixtures"
	"github.com/kevin07696/transaction-orchestrator/internal/testutil/mocks"
	"github.com/kevin07696/transaction-orchestrator/pkg/resilience"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestGate_Evaluate(t *testing.T) {
	enabled := fixtures.NewMerchant().WithAntifraud(domain.AntifraudSettings{Enabled: true}).Build()
	strict := fixtures.NewMerchant().
		WithID("m-2").
		WithAntifraud(domain.AntifraudSettings{Enabled: true, ScoreCeiling: decimal.NewFromInt(300)}).
		Build()

	tests := []struct {
		name     string
		merchant *domain.Merchant
		decision *domain.AntifraudDecision
		wantErr  bool
	}{
		{
			name:     "score_below_default_ceiling",
			merchant: enabled,
			decision: &domain.AntifraudDecision{Score: decimal.NewFromInt(500)},
		},
		{
			name:     "score_above_default_ceiling",
			merchant: enabled,
			decision: &domain.AntifraudDecision{Score: decimal.NewFromInt(801)},
			wantErr:  true,
		},
		{
			name:     "score_equal_to_ceiling_passes",
			merchant: enabled,
			decision: &domain.AntifraudDecision{Score: decimal.NewFromInt(800)},
		},
		{
			name:     "merchant_ceiling_overrides_default",
			merchant: strict,
			decision: &domain.AntifraudDecision{Score: decimal.NewFromInt(301)},
			wantErr:  true,
		},
		{
			name:     "terminal_decline",
			merchant: enabled,
			decision: &domain.AntifraudDecision{
				Score: decimal.NewFromInt(10),
				History: []domain.WorkflowNode{
					{Name: "velocity", Decision: domain.WorkflowApproved},
					{Name: "blacklist", Decision: domain.WorkflowDeclined, Terminal: true},
				},
			},
			wantErr: true,
		},
		{
			name:     "decline_followed_by_manual_approval",
			merchant: enabled,
			decision: &domain.AntifraudDecision{
				Score: decimal.NewFromInt(10),
				History: []domain.WorkflowNode{
					{Name: "blacklist", Decision: domain.WorkflowDeclined, Terminal: true},
					{Name: "manual-review", Decision: domain.WorkflowApproved},
				},
			},
		},
		{
			name:     "non_terminal_decline",
			merchant: enabled,
			decision: &domain.AntifraudDecision{
				Score:   decimal.NewFromInt(10),
				History: []domain.WorkflowNode{{Name: "soft-check", Decision: domain.WorkflowDeclined}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(mocks.MockAntifraudClient)
			client.On("GetWorkflowDecision", mock.Anything, mock.Anything).Return(tt.decision, nil)
			gate := antifraud.NewGate(client, config.DefaultPolicy(), resilience.TestTimeoutConfig(), mocks.NewRecordingLogger())

			err := gate.Evaluate(context.Background(), tt.merchant, &domain.AntifraudContext{MerchantID: tt.merchant.ID})

			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, domain.ErrorCodeAntifraudDeclined, domain.GetErrorCode(err))
			assert.Equal(t, domain.KindBusinessRuleDecline, domain.GetErrorKind(err))
		})
	}
}

func TestGate_DisabledMerchantSkipsEngine(t *testing.T) {
	client := new(mocks.MockAntifraudClient)
	gate := antifraud.NewGate(client, config.DefaultPolicy(), resilience.TestTimeoutConfig(), mocks.NewRecordingLogger())

	err := gate.Evaluate(context.Background(), &domain.Merchant{ID: "m-1"}, &domain.AntifraudContext{})

	assert.NoError(t, err)
	client.AssertNotCalled(t, "GetWorkflowDecision", mock.Anything, mock.Anything)
}

func TestGate_EngineFailurePropagates(t *testing.T) {
	boom := errors.New("antifraud unavailable")
	client := new(mocks.MockAntifraudClient)
	client.On("GetWorkflowDecision", mock.Anything, mock.Anything).Return(nil, boom)
	gate := antifraud.NewGate(client, config.DefaultPolicy(), resilience.TestTimeoutConfig(), mocks.NewRecordingLogger())

	err := gate.Evaluate(context.Background(), &domain.Merchant{ID: "m-1", Antifraud: domain.AntifraudSettings{Enabled: true}}, &domain.AntifraudContext{})

	assert.ErrorIs(t, err, boom)
}
