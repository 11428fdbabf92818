// Package routing resolves which processor and integration mode serve a request.
package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/kevin07696/transaction-orchestrator/internal/config"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/kevin07696/transaction-orchestrator/internal/services/external"
	"github.com/kevin07696/transaction-orchestrator/pkg/resilience"
	"github.com/shopspring/decimal"
)

// Request is the routing input of one orchestration
type Request struct {
	Prior           *domain.ProcessorRuleResult
	BinInfo         *domain.BinInfo
	Amount          decimal.Decimal
	Authorizer      domain.AuthorizerContext
	Bin             string
	Currency        string
	Country         string
	TransactionType domain.TransactionType
	IsDeferred      bool
}

// Route is the resolved routing decision
type Route struct {
	Result *domain.ProcessorRuleResult
	// MerchantID is the merchant whose processor configuration was used
	MerchantID string
	// EngineCalls counts remote rule engine invocations
	EngineCalls int
}

// Router is the processor-rule router
type Router struct {
	engine    ports.RuleEngineClient
	bins      ports.BinFetcher
	converter ports.CurrencyConverter
	policy    *config.Policy
	timeouts  *resilience.TimeoutConfig
	logger    ports.Logger
}

// NewRouter creates a new router
func NewRouter(
	engine ports.RuleEngineClient,
	bins ports.BinFetcher,
	converter ports.CurrencyConverter,
	policy *config.Policy,
	timeouts *resilience.TimeoutConfig,
	logger ports.Logger,
) *Router {
	return &Router{
		engine:    engine,
		bins:      bins,
		converter: converter,
		policy:    policy,
		timeouts:  timeouts,
		logger:    logger,
	}
}

// Route resolves the processor for req. A prior result is reused as-is; otherwise the
// rule engine is called once, and a second time only for currency conversion or PLCC detection.
func (r *Router) Route(ctx context.Context, req *Request) (*Route, error) {
	merchantID := domain.ResolveEffectiveMerchant(domain.HierarchyRoleProcessors, req.Authorizer)
	route := &Route{MerchantID: merchantID}

	if req.Prior != nil {
		result := *req.Prior
		route.Result = &result
	} else {
		result, calls, err := r.resolve(ctx, merchantID, req)
		route.EngineCalls = calls
		if err != nil {
			return route, err
		}
		route.Result = result
	}

	if route.Result.RiskDecision.Declines() {
		return route, &domain.DeclinedByRuleError{Context: domain.RuleDeclineContext{
			Code:          route.Result.RiskDecision.Code,
			Message:       route.Result.RiskDecision.Message,
			ProcessorName: route.Result.ProcessorName,
			RequestAmount: req.Amount,
			Currency:      req.Currency,
		}}
	}

	r.applyIntegrationMode(route.Result, merchantID, req.Bin)

	r.logger.Info("processor resolved",
		ports.String("merchant_id", merchantID),
		ports.String("processor", route.Result.ProcessorName),
		ports.String("integration", string(route.Result.IntegrationMode)),
		ports.Int("engine_calls", route.EngineCalls),
	)
	return route, nil
}

func (r *Router) resolve(ctx context.Context, merchantID string, req *Request) (*domain.ProcessorRuleResult, int, error) {
	input := &domain.RoutingInput{
		BinInfo:         req.BinInfo,
		Amount:          req.Amount,
		MerchantID:      merchantID,
		Bin:             req.Bin,
		Currency:        req.Currency,
		Country:         req.Country,
		TransactionType: req.TransactionType,
		IsDeferred:      req.IsDeferred,
		Sandbox:         req.Authorizer.Sandbox,
	}

	result, err := r.callEngine(ctx, input)
	if err != nil {
		return nil, 1, err
	}

	needsBin := result.Plcc != nil && result.Plcc.Required && input.BinInfo == nil
	resolvedCurrency := result.CurrencyCode
	if resolvedCurrency == "" {
		resolvedCurrency = req.Currency
	}
	target, needsConversion := r.policy.ConversionTarget(resolvedCurrency)
	if !needsBin && !needsConversion {
		return result, 1, nil
	}

	if needsBin {
		binInfo, err := external.Call(ctx, r.timeouts.External, "bin-lookup", func(ctx context.Context) (*domain.BinInfo, error) {
			return r.bins.GetBin(ctx, req.Bin)
		})
		if err != nil {
			return nil, 1, fmt.Errorf("plcc bin lookup: %w", err)
		}
		input.BinInfo = binInfo
	}

	var converted *domain.ConvertedAmount
	if needsConversion {
		converted, err = external.Call(ctx, r.timeouts.External, "currency-conversion", func(ctx context.Context) (*domain.ConvertedAmount, error) {
			return r.converter.Convert(ctx, resolvedCurrency, target, req.Amount)
		})
		if err != nil {
			return nil, 1, fmt.Errorf("convert %s to %s: %w", resolvedCurrency, target, err)
		}
		input.Amount = converted.Total
		input.Currency = converted.Currency
	}

	second, err := r.callEngine(ctx, input)
	if err != nil {
		return nil, 2, err
	}
	if converted != nil {
		second.ConvertedAmount = converted
	}
	if needsBin && second.Plcc != nil && input.BinInfo != nil {
		second.Plcc.IsPlcc = input.BinInfo.IsPrivate
	}
	return second, 2, nil
}

func (r *Router) callEngine(ctx context.Context, input *domain.RoutingInput) (*domain.ProcessorRuleResult, error) {
	result, err := external.Call(ctx, r.timeouts.External, "rule-engine", func(ctx context.Context) (*domain.ProcessorRuleResult, error) {
		return r.engine.Resolve(ctx, input)
	})
	if err != nil {
		var declined *domain.DeclinedByRuleError
		if errors.As(err, &declined) {
			if declined.Context.RequestAmount.IsZero() {
				declined.Context.RequestAmount = input.Amount
				declined.Context.Currency = input.Currency
			}
			return nil, declined
		}
		return nil, fmt.Errorf("resolve processor: %w", err)
	}
	return result, nil
}

// applyIntegrationMode picks the direct adapter variant when the merchant and bin are allow-listed
func (r *Router) applyIntegrationMode(result *domain.ProcessorRuleResult, merchantID, bin string) {
	result.IntegrationMode = domain.IntegrationAggregator
	if r.policy.DirectIntegrationFor(result.ProcessorName, merchantID, bin) {
		result.IntegrationMode = domain.IntegrationDirect
	}

	if result.FailOver != nil {
		result.FailOver.IntegrationMode = domain.IntegrationAggregator
		if r.policy.DirectIntegrationFor(result.FailOver.ProcessorName, merchantID, bin) {
			result.FailOver.IntegrationMode = domain.IntegrationDirect
		}
	}
}
