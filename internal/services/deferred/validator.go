// Package deferred validates installment ("deferred") parameters of a charge.
package deferred

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

// Request is the deferred part of a charge plus what is needed to check it
type Request struct {
	Deferred    *domain.DeferredInfo
	Merchant    *domain.Merchant
	Authorizer  domain.AuthorizerContext
	Amount      decimal.Decimal
	Country     string
	Bin         string
	IssuingBank string
	IsDeferred  bool
}

// Validator checks deferred parameters against merchant options and rule engine limits
type Validator struct {
	engine    ports.RuleEngineClient
	merchants ports.MerchantFetcher
	policy    *config.Policy
	timeouts  *resilience.TimeoutConfig
	logger    ports.Logger
}

// NewValidator creates a new deferred validator
func NewValidator(
	engine ports.RuleEngineClient,
	merchants ports.MerchantFetcher,
	policy *config.Policy,
	timeouts *resilience.TimeoutConfig,
	logger ports.Logger,
) *Validator {
	return &Validator{
		engine:    engine,
		merchants: merchants,
		policy:    policy,
		timeouts:  timeouts,
		logger:    logger,
	}
}

// Validate returns nil for non-deferred requests and for deferred parameters allowed
// by the effective merchant and the rule engine.
func (v *Validator) Validate(ctx context.Context, req *Request) error {
	if !req.IsDeferred && req.Deferred == nil {
		return nil
	}
	if !req.Deferred.Valid() {
		return domain.ErrDeferredInvalid("missing or malformed deferred parameters")
	}
	params := *req.Deferred

	if v.policy.IsAlwaysDeferred(req.Country) {
		if !anyMatch(v.policy.Deferred.DefaultOptions, params, req.IssuingBank) {
			return domain.ErrDeferredNotConfigured().WithDetail("country", req.Country)
		}
		return nil
	}

	merchant, err := v.effectiveMerchant(ctx, req)
	if err != nil {
		return err
	}
	if !merchant.DeferredEnabled || !anyMatch(merchant.DeferredOptions, params, req.IssuingBank) {
		v.logger.Info("deferred option not configured",
			ports.String("merchant_id", merchant.ID),
			ports.String("credit_type", params.CreditType),
			ports.Int("months", params.Months),
		)
		return domain.ErrDeferredNotConfigured().WithDetail("merchant_id", merchant.ID)
	}

	err = external.Do(ctx, v.timeouts.External, "rule-engine", func(ctx context.Context) error {
		return v.engine.ValidateDeferred(ctx, &domain.DeferredLimitInput{
			Deferred:   params,
			Amount:     req.Amount,
			MerchantID: merchant.ID,
			Bin:        req.Bin,
			Country:    req.Country,
		})
	})
	if err != nil {
		var declined *domain.DeclinedByRuleError
		if errors.As(err, &declined) {
			return domain.ErrDeclinedByRule(declined.Context.Code, declined.Context.Message)
		}
		return fmt.Errorf("validate deferred limits: %w", err)
	}
	return nil
}

// effectiveMerchant returns the merchant owning the deferred configuration
func (v *Validator) effectiveMerchant(ctx context.Context, req *Request) (*domain.Merchant, error) {
	ownerID := domain.ResolveEffectiveMerchant(domain.HierarchyRoleDeferred, req.Authorizer)
	if req.Merchant != nil && req.Merchant.ID == ownerID {
		return req.Merchant, nil
	}

	merchant, err := external.Call(ctx, v.timeouts.External, "merchant-lookup", func(ctx context.Context) (*domain.Merchant, error) {
		return v.merchants.GetMerchant(ctx, ownerID)
	})
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, domain.ErrDeferredNotConfigured().WithDetail("merchant_id", ownerID)
		}
		return nil, fmt.Errorf("get deferred owner %s: %w", ownerID, err)
	}
	return merchant, nil
}

func anyMatch(options []domain.DeferredOption, params domain.DeferredInfo, issuingBank string) bool {
	for _, option := range options {
		if option.Matches(params, issuingBank) {
			return true
		}
	}
	return false
}
