// Package charge drives charges, pre-authorizations and re-authorizations from token
// validation through routing, authorization, fail-over, persistence and notification.
package charge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kevin07696/transaction-orchestrator/internal/config"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/kevin07696/transaction-orchestrator/internal/services/amount"
	"github.com/kevin07696/transaction-orchestrator/internal/services/antifraud"
	"github.com/kevin07696/transaction-orchestrator/internal/services/deferred"
	"github.com/kevin07696/transaction-orchestrator/internal/services/events"
	"github.com/kevin07696/transaction-orchestrator/internal/services/external"
	"github.com/kevin07696/transaction-orchestrator/internal/services/idempotency"
	"github.com/kevin07696/transaction-orchestrator/internal/services/routing"
	"github.com/kevin07696/transaction-orchestrator/pkg/observability"
	"github.com/kevin07696/transaction-orchestrator/pkg/resilience"
	"github.com/kevin07696/transaction-orchestrator/pkg/timeutil"
)

// Dependencies are the collaborators of the charge orchestrator
type Dependencies struct {
	Guard        *idempotency.Guard
	Router       *routing.Router
	Antifraud    *antifraud.Gate
	Deferred     *deferred.Validator
	Amounts      *amount.Policy
	Publisher    *events.Publisher
	Registry     ports.ProcessorRegistry
	Transactions ports.TransactionStore
	Merchants    ports.MerchantFetcher
	Bins         ports.BinFetcher
	Policy       *config.Policy
	Timeouts     *resilience.TimeoutConfig
	Logger       ports.Logger
}

// Orchestrator runs the charge state machine
type Orchestrator struct {
	Dependencies
	now   func() time.Time
	newID func() string
}

// NewOrchestrator creates a new charge orchestrator
func NewOrchestrator(deps Dependencies) *Orchestrator {
	return &Orchestrator{
		Dependencies: deps,
		now:          timeutil.Now,
		newID:        func() string { return uuid.New().String() },
	}
}

// WithClock replaces the clock, for tests
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// attempt is the per-request state carried through the stages
type attempt struct {
	req           *domain.ChargeRequest
	token         *domain.Token
	merchant      *domain.Merchant
	bin           *domain.BinInfo
	reference     *domain.Transaction
	route         *domain.ProcessorRuleResult
	budget        *resilience.Budget
	transactionID string
	consumed      bool
}

// Charge authorizes and captures in one step
func (o *Orchestrator) Charge(ctx context.Context, req *domain.ChargeRequest) (*domain.ChargeResult, error) {
	req.TransactionType = domain.TransactionTypeCharge
	return o.process(ctx, req)
}

// PreAuthorize reserves funds for a later capture
func (o *Orchestrator) PreAuthorize(ctx context.Context, req *domain.ChargeRequest) (*domain.ChargeResult, error) {
	req.TransactionType = domain.TransactionTypePreAuth
	return o.process(ctx, req)
}

// ReAuthorize replaces the authorization of an approved, uncaptured pre-authorization
func (o *Orchestrator) ReAuthorize(ctx context.Context, req *domain.ChargeRequest) (*domain.ChargeResult, error) {
	req.TransactionType = domain.TransactionTypeReAuth
	return o.process(ctx, req)
}

// process runs VALIDATING, ROUTING, AUTHORIZING, PERSISTING and NOTIFIED.
// When a declined record was persisted the result is returned together with the error.
func (o *Orchestrator) process(ctx context.Context, req *domain.ChargeRequest) (result *domain.ChargeResult, err error) {
	start := o.now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(domain.GetErrorKind(err))
		}
		observability.RecordOperation(string(req.TransactionType), outcome, o.now().Sub(start))
	}()

	a := &attempt{
		req:    req,
		budget: resilience.NewBudgetWithClock(ctx, o.Timeouts.DefaultRequestBudget, o.now),
	}
	ctx, cancel := context.WithDeadline(ctx, a.budget.Deadline())
	defer cancel()

	if err := o.validate(ctx, a); err != nil {
		return o.declineBeforeAuthorize(ctx, a, err)
	}
	if err := o.resolveRoute(ctx, a); err != nil {
		return o.declineBeforeAuthorize(ctx, a, err)
	}

	adapter, err := o.Registry.Adapter(a.route.ProcessorName, a.route.IntegrationMode)
	if err != nil {
		return nil, fmt.Errorf("resolve adapter %s: %w", a.route.ProcessorName, err)
	}

	a.transactionID = o.newID()
	if err := o.Guard.Consume(ctx, a.token.ID, a.transactionID); err != nil {
		if domain.GetErrorKind(err) == domain.KindIdempotencyConflict {
			observability.RecordIdempotencyConflict(string(req.TransactionType))
		}
		return nil, err
	}
	a.consumed = true

	o.Logger.Info("authorizing",
		ports.String("merchant_id", a.token.MerchantID),
		ports.String("transaction_type", string(req.TransactionType)),
		ports.String("processor", a.route.ProcessorName),
		ports.String("transaction_id", a.transactionID),
	)

	return o.authorize(ctx, a, adapter)
}

// validate runs every check that must pass before a processor is chosen
func (o *Orchestrator) validate(ctx context.Context, a *attempt) error {
	req := a.req
	if req.TokenID == "" {
		return domain.ErrInvalidRequest("token", "token is required")
	}

	token, err := o.Guard.LoadUnconsumed(ctx, req.TokenID)
	if err != nil {
		if domain.GetErrorKind(err) == domain.KindIdempotencyConflict {
			observability.RecordIdempotencyConflict(string(req.TransactionType))
		}
		return err
	}
	a.token = token

	if token.MerchantID != req.Authorizer.MerchantID {
		return domain.ErrMerchantMismatch()
	}
	if token.IsExpired(o.now(), o.Policy.TokenMaxAge) {
		return domain.ErrTokenExpired(token.ID).WithDetail("age", token.Age(o.now()).String())
	}
	if err := o.Amounts.CheckTokenCurrency(token, req.Amount); err != nil {
		return err
	}
	if !req.Amount.Total().IsPositive() && !token.IsCardValidation() {
		return domain.ErrInvalidRequest("amount", "amount must be greater than zero")
	}

	if req.TransactionType == domain.TransactionTypeReAuth {
		if err := o.loadReference(ctx, a); err != nil {
			return err
		}
	}

	if err := o.fetchMerchantAndBin(ctx, a); err != nil {
		return err
	}

	if err := o.Amounts.CheckFraudThreshold(a.merchant.ID, req.Amount); err != nil {
		return err
	}

	if err := o.Deferred.Validate(ctx, &deferred.Request{
		Deferred:    req.Deferred,
		Merchant:    a.merchant,
		Authorizer:  req.Authorizer,
		Amount:      req.Amount.Total(),
		Country:     a.merchant.Country,
		Bin:         token.Card.Bin,
		IssuingBank: a.issuingBank(),
		IsDeferred:  req.IsDeferred,
	}); err != nil {
		return err
	}

	if reason := checkThreeDS(token.Security, a.brand(), a.merchant, o.Policy.ThreeDS); reason != "" {
		return domain.ErrThreeDSDeclined(reason)
	}

	return o.Antifraud.Evaluate(ctx, a.merchant, &domain.AntifraudContext{
		Amount:     req.Amount.Total(),
		Card:       token.Card,
		MerchantID: a.merchant.ID,
		TokenID:    token.ID,
		Currency:   a.currency(),
	})
}

// loadReference loads the pre-authorization a re-authorization replaces
func (o *Orchestrator) loadReference(ctx context.Context, a *attempt) error {
	if a.req.ReferenceTicket == "" {
		return domain.ErrInvalidRequest("ticketNumber", "re-authorization needs the pre-authorization ticket")
	}

	ref, err := o.Transactions.GetByTicket(ctx, a.req.ReferenceTicket)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return domain.ErrTransactionNotFound(a.req.ReferenceTicket)
		}
		return fmt.Errorf("get reference transaction: %w", err)
	}
	if ref.MerchantID != a.req.Authorizer.MerchantID {
		return domain.ErrMerchantMismatch()
	}
	if ref.IsTerminal() || ref.TransactionType != domain.TransactionTypePreAuth || !ref.CanBeCaptured() {
		return domain.ErrNotCapturable("only approved, uncaptured pre-authorizations can be re-authorized")
	}
	if !ref.PendingAmount.IsPositive() {
		return domain.ErrNotCapturable("pre-authorization has no pending amount")
	}
	a.reference = ref
	return nil
}

// fetchMerchantAndBin loads both lookups concurrently. A failed bin lookup is not fatal.
func (o *Orchestrator) fetchMerchantAndBin(ctx context.Context, a *attempt) error {
	var binInfo *domain.BinInfo
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		merchant, err := external.Call(gctx, o.Timeouts.External, "merchant-lookup", func(ctx context.Context) (*domain.Merchant, error) {
			return o.Merchants.GetMerchant(ctx, a.token.MerchantID)
		})
		if err != nil {
			if errors.Is(err, ports.ErrNotFound) {
				return domain.ErrMerchantNotFound(a.token.MerchantID)
			}
			return fmt.Errorf("get merchant: %w", err)
		}
		a.merchant = merchant
		return nil
	})

	if a.token.Card.Bin != "" {
		g.Go(func() error {
			info, err := external.Call(gctx, o.Timeouts.External, "bin-lookup", func(ctx context.Context) (*domain.BinInfo, error) {
				return o.Bins.GetBin(ctx, a.token.Card.Bin)
			})
			if err != nil {
				o.Logger.Warn("bin lookup failed",
					ports.String("bin", a.token.Card.Bin),
					ports.Err(err),
				)
				return nil
			}
			binInfo = info
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	a.bin = binInfo
	return nil
}

// resolveRoute picks the processor. Re-authorizations stay on the pre-authorization's processor.
func (o *Orchestrator) resolveRoute(ctx context.Context, a *attempt) error {
	prior := a.req.PriorRuleResult
	if prior == nil && a.reference != nil {
		prior = &domain.ProcessorRuleResult{
			ProcessorName:   a.reference.ProcessorName,
			PrivateID:       a.reference.ProcessorID,
			IntegrationMode: a.reference.IntegrationMode,
			CurrencyCode:    a.reference.CurrencyCode,
			ConvertedAmount: a.reference.ConvertedAmount,
			AcquirerBank:    a.reference.AcquirerBank,
			MCC:             a.reference.MCC,
		}
	}

	route, err := o.Router.Route(ctx, &routing.Request{
		Prior:           prior,
		BinInfo:         a.bin,
		Amount:          a.req.Amount.Total(),
		Authorizer:      a.req.Authorizer,
		Bin:             a.token.Card.Bin,
		Currency:        a.currency(),
		Country:         a.merchant.Country,
		TransactionType: a.req.TransactionType,
		IsDeferred:      a.req.IsDeferred || a.req.Deferred != nil,
	})
	if err != nil {
		var declined *domain.DeclinedByRuleError
		if errors.As(err, &declined) {
			if route != nil && route.Result != nil {
				a.route = route.Result
			}
			return &ruleDecline{context: declined.Context}
		}
		return err
	}
	a.route = route.Result
	return nil
}

// declineBeforeAuthorize persists a declined record for business-rule declines and returns err.
// Other validation failures leave no record.
func (o *Orchestrator) declineBeforeAuthorize(ctx context.Context, a *attempt, err error) (*domain.ChargeResult, error) {
	var rule *ruleDecline
	if errors.As(err, &rule) {
		err = domain.ErrDeclinedByRule(rule.context.Code, rule.context.Message)
		txn := o.persistDeclined(ctx, a, declineInfo{
			code:         string(domain.ErrorCodeDeclinedByRule),
			message:      rule.context.Message,
			approvalCode: rule.context.ApprovalCode,
			processor:    rule.context.ProcessorName,
		})
		return resultFor(txn, false), err
	}

	if domain.GetErrorKind(err) != domain.KindBusinessRuleDecline || a.token == nil || a.merchant == nil {
		o.Logger.Info("charge rejected",
			ports.String("token", a.req.TokenID),
			ports.String("code", string(domain.GetErrorCode(err))),
			ports.Err(err),
		)
		return nil, err
	}

	txn := o.persistDeclined(ctx, a, declineInfo{
		code:    string(domain.GetErrorCode(err)),
		message: declineMessage(err),
	})
	return resultFor(txn, false), err
}

// ruleDecline marks a routing decline so it is persisted from the rule context
type ruleDecline struct {
	context domain.RuleDeclineContext
}

func (e *ruleDecline) Error() string {
	return fmt.Sprintf("declined by rule %s: %s", e.context.Code, e.context.Message)
}

func (a *attempt) currency() string {
	if a.req.Amount.Currency != "" {
		return a.req.Amount.Currency
	}
	return a.token.Currency
}

func (a *attempt) brand() string {
	if a.token.Card.Brand != "" {
		return a.token.Card.Brand
	}
	if a.bin != nil {
		return a.bin.Brand
	}
	return ""
}

func (a *attempt) issuingBank() string {
	if a.bin != nil {
		return a.bin.Bank
	}
	return ""
}

// declineMessage prefers the detailed reason of a domain error
func declineMessage(err error) string {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		if reason, ok := domainErr.Details["reason"].(string); ok && reason != "" {
			return reason
		}
		return domainErr.Message
	}
	return err.Error()
}
