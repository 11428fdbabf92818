// Package tokenization vaults card data with a token provider and stores the single-use token.
package tokenization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kevin07696/transaction-orchestrator/internal/config"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/kevin07696/transaction-orchestrator/internal/services/external"
	"github.com/kevin07696/transaction-orchestrator/internal/services/idempotency"
	"github.com/kevin07696/transaction-orchestrator/pkg/observability"
	"github.com/kevin07696/transaction-orchestrator/pkg/resilience"
	"github.com/kevin07696/transaction-orchestrator/pkg/timeutil"
)

// Traceability keys written by the orchestrator
const (
	traceTokenProvider = "tokenProvider"
	traceIntegration   = "integration"
	traceCardBrand     = "cardBrand"
	traceCVVOmitted    = "cvvOmitted"
)

// Dependencies are the collaborators of the tokenization orchestrator
type Dependencies struct {
	Guard     *idempotency.Guard
	Registry  ports.ProcessorRegistry
	Merchants ports.MerchantFetcher
	Converter ports.CurrencyConverter
	Policy    *config.Policy
	Timeouts  *resilience.TimeoutConfig
	Logger    ports.Logger
}

// Orchestrator issues tokens
type Orchestrator struct {
	Dependencies
	now func() time.Time
}

// NewOrchestrator creates a new tokenization orchestrator
func NewOrchestrator(deps Dependencies) *Orchestrator {
	return &Orchestrator{Dependencies: deps, now: timeutil.Now}
}

// Tokenize validates the card, vaults it with the selected provider and stores the token
func (o *Orchestrator) Tokenize(ctx context.Context, req *domain.TokenizeRequest) (result *domain.TokenizeResult, err error) {
	start := o.now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(domain.GetErrorKind(err))
		}
		observability.RecordOperation("TOKENIZE", outcome, o.now().Sub(start))
	}()

	budget := resilience.NewBudgetWithClock(ctx, o.Timeouts.DefaultRequestBudget, o.now)
	ctx, cancel := context.WithDeadline(ctx, budget.Deadline())
	defer cancel()

	pan := normalizePAN(req.Card.Number)
	if len(pan) < 6 {
		return nil, domain.ErrInvalidCard("card number too short")
	}
	bin := pan[:6]
	if o.Policy.IsBinDenied(bin) {
		o.Logger.Warn("bin denied", ports.String("bin", bin), ports.String("merchant_id", req.Authorizer.MerchantID))
		return nil, domain.ErrBinDenied(bin)
	}
	brand, err := validatePAN(pan)
	if err != nil {
		return nil, domain.ErrInvalidCard(err.Error())
	}
	if err := validateExpiry(req.Card.ExpiryMonth, req.Card.ExpiryYear); err != nil {
		return nil, domain.ErrInvalidCard(err.Error())
	}

	merchant, err := external.Call(ctx, o.Timeouts.External, "merchant-lookup", func(ctx context.Context) (*domain.Merchant, error) {
		return o.Merchants.GetMerchant(ctx, req.Authorizer.MerchantID)
	})
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, domain.ErrMerchantNotFound(req.Authorizer.MerchantID)
		}
		return nil, fmt.Errorf("get merchant: %w", err)
	}

	cvvOmitted := req.Card.CVV == ""
	if cvvOmitted && !cvvOmissionAllowed(req, merchant) {
		return nil, domain.ErrCVVOmissionDenied()
	}

	converted, err := o.convert(ctx, req)
	if err != nil {
		return nil, err
	}

	providerName, mode := o.Policy.TokenProviderFor(merchant.ID, bin)
	provider, err := o.Registry.TokenProvider(providerName, mode)
	if err != nil {
		return nil, fmt.Errorf("resolve token provider %s: %w", providerName, err)
	}

	providerReq := &domain.TokenProviderRequest{
		Security:        req.Security,
		Card:            req.Card,
		Amount:          req.Amount,
		MerchantID:      merchant.ID,
		ProcessorName:   providerName,
		Currency:        req.Currency,
		TransactionMode: req.TransactionMode,
	}
	providerReq.Card.Number = pan
	if converted != nil {
		providerReq.Amount = converted.Total
		providerReq.Currency = converted.Currency
	}

	resp, err := external.Call(ctx, o.Timeouts.External, "token-provider:"+providerName, func(ctx context.Context) (*domain.TokenProviderResponse, error) {
		return provider.Tokenize(ctx, providerReq)
	})
	if err != nil {
		o.Logger.Error("tokenization failed",
			ports.String("provider", providerName),
			ports.String("merchant_id", merchant.ID),
			ports.String("bin", bin),
			ports.Err(err),
		)
		return nil, external.ProcessorFailure(providerName, "tokenize", err)
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("tokenize with %s: empty token", providerName)
	}

	security := resp.Security
	if security == nil {
		security = req.Security
	}

	token := &domain.Token{
		CreatedAt:       o.now(),
		Amount:          req.Amount,
		ConvertedAmount: converted,
		Security:        security,
		Traceability:    req.Traceability.Merge(traceability(providerName, mode, brand, cvvOmitted, security)),
		Card: domain.CardInfo{
			Bin:        bin,
			LastFour:   pan[len(pan)-4:],
			Brand:      brand,
			HolderName: req.Card.Name,
		},
		ID:                resp.Token,
		MerchantID:        merchant.ID,
		Currency:          req.Currency,
		TransactionCardID: resp.TransactionCardID,
		TransactionMode:   req.TransactionMode,
		ProcessorName:     providerName,
		IntegrationMode:   mode,
		CVVOmitted:        cvvOmitted,
	}
	if err := o.Guard.Register(ctx, token); err != nil {
		return nil, err
	}

	observability.RecordTokenIssued(merchant.ID, providerName, string(mode))
	o.Logger.Info("token issued",
		ports.String("merchant_id", merchant.ID),
		ports.String("provider", providerName),
		ports.String("integration", string(mode)),
		ports.String("bin", bin),
	)

	return &domain.TokenizeResult{Security: security, Token: token.ID, URL: resp.URL}, nil
}

// convert converts unit-of-account amounts once. Card validation tokens carry no amount to convert.
func (o *Orchestrator) convert(ctx context.Context, req *domain.TokenizeRequest) (*domain.ConvertedAmount, error) {
	target, ok := o.Policy.ConversionTarget(req.Currency)
	if !ok || !req.Amount.IsPositive() {
		return nil, nil
	}
	if req.TransactionMode == domain.TransactionModeValidateCard || req.TransactionMode == domain.TransactionModeAccountValidation {
		return nil, nil
	}

	converted, err := external.Call(ctx, o.Timeouts.External, "currency-conversion", func(ctx context.Context) (*domain.ConvertedAmount, error) {
		return o.Converter.Convert(ctx, req.Currency, target, req.Amount)
	})
	if err != nil {
		return nil, fmt.Errorf("convert %s to %s: %w", req.Currency, target, err)
	}
	return converted, nil
}

// cvvOmissionAllowed covers merchants allowed to omit, subsequent recurring charges and card-present flows
func cvvOmissionAllowed(req *domain.TokenizeRequest, merchant *domain.Merchant) bool {
	return merchant.OmitCVV ||
		req.TransactionMode == domain.TransactionModeSubsequentRecurrence ||
		req.CardPresent
}

func traceability(provider string, mode domain.IntegrationMode, brand string, cvvOmitted bool, security *domain.SecurityBlock) *domain.Traceability {
	t := &domain.Traceability{
		KushkiInfo: map[string]string{
			traceTokenProvider: provider,
			traceIntegration:   string(mode),
			traceCVVOmitted:    fmt.Sprint(cvvOmitted),
		},
	}
	if brand != "" {
		t.KushkiInfo[traceCardBrand] = brand
	}
	if security != nil && security.Service != "" {
		t.SecurityIdentity = append(t.SecurityIdentity, domain.SecurityIdentity{
			IdentityCategory: "CHALLENGER",
			IdentityCode:     "SI006",
			PartnerName:      security.Service,
			Info:             map[string]string{"status": security.Status, "version": security.Version},
		})
	}
	return t
}
