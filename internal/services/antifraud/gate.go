// Package antifraud turns an antifraud workflow decision into a go/no-go for a charge.
package antifraud

import (
	"context"
	"fmt"

	"github.com/kevin07696/transaction-orchestrator/internal/config"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/kevin07696/transaction-orchestrator/internal/services/external"
	"github.com/kevin07696/transaction-orchestrator/pkg/resilience"
	"github.com/shopspring/decimal"
)

// Gate consults the antifraud engine for merchants that enabled it
type Gate struct {
	client   ports.AntifraudClient
	policy   *config.Policy
	timeouts *resilience.TimeoutConfig
	logger   ports.Logger
}

// NewGate creates a new antifraud gate
func NewGate(client ports.AntifraudClient, policy *config.Policy, timeouts *resilience.TimeoutConfig, logger ports.Logger) *Gate {
	return &Gate{client: client, policy: policy, timeouts: timeouts, logger: logger}
}

// Evaluate returns nil when the charge may proceed and AntifraudDeclined (K021) otherwise
func (g *Gate) Evaluate(ctx context.Context, merchant *domain.Merchant, req *domain.AntifraudContext) error {
	if merchant == nil || !merchant.Antifraud.Enabled {
		return nil
	}

	decision, err := external.Call(ctx, g.timeouts.External, "antifraud", func(ctx context.Context) (*domain.AntifraudDecision, error) {
		return g.client.GetWorkflowDecision(ctx, req)
	})
	if err != nil {
		return fmt.Errorf("antifraud decision: %w", err)
	}

	ceiling := g.ceiling(merchant)
	if decision.Score.GreaterThan(ceiling) {
		g.logger.Warn("antifraud score above ceiling",
			ports.String("merchant_id", merchant.ID),
			ports.String("score", decision.Score.String()),
			ports.String("ceiling", ceiling.String()),
		)
		return domain.ErrAntifraudDeclined(fmt.Sprintf("score %s above %s", decision.Score, ceiling))
	}

	if node, declined := finalDecline(decision.History); declined {
		g.logger.Warn("antifraud workflow declined",
			ports.String("merchant_id", merchant.ID),
			ports.String("node", node.Name),
		)
		return domain.ErrAntifraudDeclined("workflow declined at " + node.Name)
	}
	return nil
}

func (g *Gate) ceiling(merchant *domain.Merchant) decimal.Decimal {
	if merchant.Antifraud.ScoreCeiling.IsPositive() {
		return merchant.Antifraud.ScoreCeiling
	}
	return decimal.NewFromFloat(g.policy.Antifraud.DefaultScoreCeiling)
}

// finalDecline reports the last terminal declined node unless an approval follows it
func finalDecline(history []domain.WorkflowNode) (domain.WorkflowNode, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		node := history[i]
		switch {
		case node.Decision == domain.WorkflowApproved:
			return domain.WorkflowNode{}, false
		case node.Terminal && node.Decision == domain.WorkflowDeclined:
			return node, true
		}
	}
	return domain.WorkflowNode{}, false
}
