package collaborators

import (
	"context"
	"errors"
	"net/http"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/kevin07696/transaction-orchestrator/pkg/httpclient"
)

// Ensure RuleEngine implements the port
var _ ports.RuleEngineClient = (*RuleEngine)(nil)

// RuleEngine resolves processors and validates deferred limits
type RuleEngine struct {
	client *httpclient.JSONClient
}

// NewRuleEngine creates a rule engine client
func NewRuleEngine(baseURL, apiKey string, client *http.Client) *RuleEngine {
	return &RuleEngine{client: newClient("rule-engine", baseURL, apiKey, client)}
}

// Resolve returns the routing decision. A 422 answer is a rule decline.
func (r *RuleEngine) Resolve(ctx context.Context, input *domain.RoutingInput) (*domain.ProcessorRuleResult, error) {
	var result domain.ProcessorRuleResult
	if err := r.client.Do(ctx, http.MethodPost, "/v1/rules/processor", input, &result); err != nil {
		return nil, asRuleDecline(err, input.Currency)
	}
	return &result, nil
}

// ValidateDeferred returns nil when the deferred limits allow the request
func (r *RuleEngine) ValidateDeferred(ctx context.Context, input *domain.DeferredLimitInput) error {
	if err := r.client.Do(ctx, http.MethodPost, "/v1/rules/deferred", input, nil); err != nil {
		return asRuleDecline(err, "")
	}
	return nil
}

// asRuleDecline turns a 422 with a rule code into a DeclinedByRuleError
func asRuleDecline(err error, currency string) error {
	var se *httpclient.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnprocessableEntity {
		return err
	}
	var body ruleDecline
	if se.Decode(&body) != nil || body.Code == "" {
		return err
	}
	return &domain.DeclinedByRuleError{Context: domain.RuleDeclineContext{
		Code:          body.Code,
		Message:       body.Message,
		ApprovalCode:  body.ApprovalCode,
		ProcessorName: body.Processor,
		Currency:      currency,
	}}
}
