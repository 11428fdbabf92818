package tokenization_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kevin07696/transaction-orchestrator/internal/config"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/kevin07696/transaction-orchestrator/internal/services/idempotency"
	"github.com/kevin07696/transaction-orchestrator/internal/services/tokenization"
	"github.com/kevin07696/transaction-orchestrator/internal/testutil/fixtures"
	"github.com/kevin07696/transaction-orchestrator/internal/testutil/memstore"
	"github.com/kevin07696/transaction-orchestrator/internal/testutil/mocks"
	"github.com/kevin07696/transaction-orchestrator/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type tokenHarness struct {
	orch      *tokenization.Orchestrator
	tokens    *memstore.Tokens
	policy    *config.Policy
	registry  *mocks.MockProcessorRegistry
	provider  *mocks.MockTokenProvider
	merchants *mocks.MockMerchantFetcher
	converter *mocks.MockCurrencyConverter
}

func newTokenHarness(t *testing.T, merchant *domain.Merchant) *tokenHarness {
	t.Helper()
	logger := mocks.NewRecordingLogger()
	h := &tokenHarness{
		tokens:    memstore.NewTokens(),
		policy:    config.DefaultPolicy(),
		registry:  new(mocks.MockProcessorRegistry),
		provider:  new(mocks.MockTokenProvider),
		merchants: new(mocks.MockMerchantFetcher),
		converter: new(mocks.MockCurrencyConverter),
	}
	h.policy.BinDenylist = []string{"434343"}
	h.merchants.On("GetMerchant", mock.Anything, merchant.ID).Return(merchant, nil).Maybe()
	h.registry.On("TokenProvider", mock.Anything, mock.Anything).Return(h.provider, nil).Maybe()

	h.orch = tokenization.NewOrchestrator(tokenization.Dependencies{
		Guard:     idempotency.NewGuard(h.tokens, logger),
		Registry:  h.registry,
		Merchants: h.merchants,
		Converter: h.converter,
		Policy:    h.policy,
		Timeouts:  resilience.TestTimeoutConfig(),
		Logger:    logger,
	})
	return h
}

func tokenizeRequest(number string) *domain.TokenizeRequest {
	return &domain.TokenizeRequest{
		Authorizer: domain.AuthorizerContext{MerchantID: "m-1"},
		Card: domain.CardData{
			Number:      number,
			Name:        "Jane Doe",
			ExpiryMonth: "12",
			ExpiryYear:  "29",
			CVV:         "123",
		},
		Amount:   fixtures.Dec("1012.04"),
		Currency: domain.CurrencyUSD,
	}
}

func TestTokenize_IssuesToken(t *testing.T) {
	h := newTokenHarness(t, fixtures.NewMerchant().Build())
	h.provider.On("Tokenize", mock.Anything, mock.MatchedBy(func(r *domain.TokenProviderRequest) bool {
		return r.Card.Number == "4111111111111111" && r.ProcessorName == "Kushki" && r.Currency == domain.CurrencyUSD
	})).Return(&domain.TokenProviderResponse{Token: "tok-abc", TransactionCardID: "card-9"}, nil).Once()

	result, err := h.orch.Tokenize(context.Background(), tokenizeRequest("4111 1111 1111 1111"))

	require.NoError(t, err)
	assert.Equal(t, "tok-abc", result.Token)

	token, err := h.tokens.Get(context.Background(), "tok-abc")
	require.NoError(t, err)
	assert.Equal(t, "411111", token.Card.Bin)
	assert.Equal(t, "1111", token.Card.LastFour)
	assert.Equal(t, "visa", token.Card.Brand)
	assert.Equal(t, domain.IntegrationAggregator, token.IntegrationMode)
	assert.False(t, token.Consumed)
	assert.False(t, token.CVVOmitted)
	assert.Equal(t, "Kushki", token.Traceability.KushkiInfo["tokenProvider"])
}

func TestTokenize_DeniedBinWritesNothing(t *testing.T) {
	h := newTokenHarness(t, fixtures.NewMerchant().Build())

	_, err := h.orch.Tokenize(context.Background(), tokenizeRequest("4343430000000005"))

	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeBinDenied, domain.GetErrorCode(err))
	assert.Equal(t, 0, h.tokens.Len())
	h.provider.AssertNotCalled(t, "Tokenize", mock.Anything, mock.Anything)
	h.merchants.AssertNotCalled(t, "GetMerchant", mock.Anything, mock.Anything)
}

func TestTokenize_InvalidCards(t *testing.T) {
	tests := []struct {
		name   string
		number string
		month  string
		year   string
	}{
		{name: "bad_luhn", number: "4111111111111112", month: "12", year: "29"},
		{name: "letters", number: "4111abcd11111111", month: "12", year: "29"},
		{name: "too_short", number: "41111", month: "12", year: "29"},
		{name: "amex_wrong_length", number: "3782822463100050", month: "12", year: "29"},
		{name: "bad_month", number: "4111111111111111", month: "13", year: "29"},
		{name: "bad_year", number: "4111111111111111", month: "01", year: "202"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTokenHarness(t, fixtures.NewMerchant().Build())
			req := tokenizeRequest(tt.number)
			req.Card.ExpiryMonth, req.Card.ExpiryYear = tt.month, tt.year

			_, err := h.orch.Tokenize(context.Background(), req)

			assert.Equal(t, domain.ErrorCodeInvalidCard, domain.GetErrorCode(err))
			assert.Equal(t, 0, h.tokens.Len())
		})
	}
}

func TestTokenize_CVVOmission(t *testing.T) {
	tests := []struct {
		name     string
		merchant *domain.Merchant
		mode     domain.TransactionMode
		present  bool
		wantErr  bool
	}{
		{name: "not_allowed", merchant: fixtures.NewMerchant().Build(), wantErr: true},
		{name: "merchant_allows", merchant: fixtures.NewMerchant().OmittingCVV().Build()},
		{name: "subsequent_recurrence", merchant: fixtures.NewMerchant().Build(), mode: domain.TransactionModeSubsequentRecurrence},
		{name: "card_present", merchant: fixtures.NewMerchant().Build(), present: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTokenHarness(t, tt.merchant)
			h.provider.On("Tokenize", mock.Anything, mock.Anything).
				Return(&domain.TokenProviderResponse{Token: "tok-" + tt.name}, nil).Maybe()
			req := tokenizeRequest("5555555555554444")
			req.Card.CVV = ""
			req.TransactionMode = tt.mode
			req.CardPresent = tt.present

			_, err := h.orch.Tokenize(context.Background(), req)

			if tt.wantErr {
				assert.Equal(t, domain.ErrorCodeCVVOmissionDenied, domain.GetErrorCode(err))
				h.provider.AssertNotCalled(t, "Tokenize", mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			token, err := h.tokens.Get(context.Background(), "tok-"+tt.name)
			require.NoError(t, err)
			assert.True(t, token.CVVOmitted)
			assert.Equal(t, "mastercard", token.Card.Brand)
		})
	}
}

func TestTokenize_DirectProviderFromAllowList(t *testing.T) {
	h := newTokenHarness(t, fixtures.NewMerchant().Build())
	h.policy.TokenProviders["Transbank Processor"] = config.AllowList{Bins: []string{"411111"}, Merchants: []string{config.AllMembers}}
	h.registry.ExpectedCalls = nil
	h.registry.On("TokenProvider", "Transbank Processor", domain.IntegrationDirect).Return(h.provider, nil).Once()
	h.provider.On("Tokenize", mock.Anything, mock.Anything).Return(&domain.TokenProviderResponse{Token: "tok-direct"}, nil).Once()

	_, err := h.orch.Tokenize(context.Background(), tokenizeRequest("4111111111111111"))

	require.NoError(t, err)
	token, _ := h.tokens.Get(context.Background(), "tok-direct")
	assert.Equal(t, domain.IntegrationDirect, token.IntegrationMode)
	assert.Equal(t, "Transbank Processor", token.ProcessorName)
	h.registry.AssertExpectations(t)
}

func TestTokenize_ConvertsUnitOfAccountOnce(t *testing.T) {
	h := newTokenHarness(t, fixtures.NewMerchant().WithCountry(config.CountryChile).Build())
	converted := &domain.ConvertedAmount{Currency: domain.CurrencyCLP, Rate: fixtures.Dec("36000"), Total: fixtures.Dec("72000")}
	h.converter.On("Convert", mock.Anything, domain.CurrencyUF, domain.CurrencyCLP, fixtures.Dec("2")).Return(converted, nil).Once()
	h.provider.On("Tokenize", mock.Anything, mock.MatchedBy(func(r *domain.TokenProviderRequest) bool {
		return r.Currency == domain.CurrencyCLP && r.Amount.Equal(fixtures.Dec("72000"))
	})).Return(&domain.TokenProviderResponse{Token: "tok-uf"}, nil).Once()

	req := tokenizeRequest("4111111111111111")
	req.Currency = domain.CurrencyUF
	req.Amount = fixtures.Dec("2")
	_, err := h.orch.Tokenize(context.Background(), req)

	require.NoError(t, err)
	token, _ := h.tokens.Get(context.Background(), "tok-uf")
	require.NotNil(t, token.ConvertedAmount)
	assert.True(t, token.ConvertedAmount.Total.Equal(fixtures.Dec("72000")))
	assert.Equal(t, domain.CurrencyUF, token.Currency)
	h.converter.AssertNumberOfCalls(t, "Convert", 1)
}

func TestTokenize_CardValidationSkipsConversion(t *testing.T) {
	h := newTokenHarness(t, fixtures.NewMerchant().Build())
	h.provider.On("Tokenize", mock.Anything, mock.Anything).Return(&domain.TokenProviderResponse{Token: "tok-validate"}, nil).Once()

	req := tokenizeRequest("4111111111111111")
	req.Currency = domain.CurrencyUF
	req.TransactionMode = domain.TransactionModeValidateCard
	_, err := h.orch.Tokenize(context.Background(), req)

	require.NoError(t, err)
	h.converter.AssertNotCalled(t, "Convert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTokenize_TraceabilityKeepsCallerContext(t *testing.T) {
	h := newTokenHarness(t, fixtures.NewMerchant().Build())
	h.provider.On("Tokenize", mock.Anything, mock.Anything).Return(&domain.TokenProviderResponse{
		Token:    "tok-trace",
		Security: &domain.SecurityBlock{Service: "3dsecure", Status: "authenticated", Version: "2.2.0"},
	}, nil).Once()

	req := tokenizeRequest("4111111111111111")
	req.Traceability = &domain.Traceability{
		KushkiInfo: map[string]string{"tokenProvider": "caller-value", "platform": "web"},
		SecurityIdentity: []domain.SecurityIdentity{
			{IdentityCategory: "TOKEN", IdentityCode: "SI001", PartnerName: "merchant-sdk"},
		},
	}
	_, err := h.orch.Tokenize(context.Background(), req)

	require.NoError(t, err)
	token, _ := h.tokens.Get(context.Background(), "tok-trace")
	info := token.Traceability.KushkiInfo
	assert.Equal(t, "caller-value", info["tokenProvider"])
	assert.Equal(t, "web", info["platform"])
	assert.Equal(t, "aggregator", info["integration"])
	require.Len(t, token.Traceability.SecurityIdentity, 2)
	assert.Equal(t, "merchant-sdk", token.Traceability.SecurityIdentity[0].PartnerName)
	assert.Equal(t, "3dsecure", token.Traceability.SecurityIdentity[1].PartnerName)
}

func TestTokenize_DuplicateTokenIsIdempotencyConflict(t *testing.T) {
	h := newTokenHarness(t, fixtures.NewMerchant().Build())
	require.NoError(t, h.tokens.ConditionalPut(context.Background(), fixtures.NewToken().WithID("tok-dup").Build()))
	h.provider.On("Tokenize", mock.Anything, mock.Anything).Return(&domain.TokenProviderResponse{Token: "tok-dup"}, nil).Once()

	_, err := h.orch.Tokenize(context.Background(), tokenizeRequest("4111111111111111"))

	assert.Equal(t, domain.ErrorCodeTokenAlreadyUsed, domain.GetErrorCode(err))
	assert.Equal(t, domain.KindIdempotencyConflict, domain.GetErrorKind(err))
}

func TestTokenize_ProviderFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode domain.ErrorCode
	}{
		{name: "declined", err: &domain.ProcessorError{ProcessorCode: "14", ProcessorMessage: "Invalid card number"}, wantCode: domain.ErrorCodeProcessorDeclined},
		{name: "unreachable", err: &domain.ReachabilityError{Err: errors.New("refused")}, wantCode: domain.ErrorCodeProcessorUnreachable},
		{name: "timeout", err: context.DeadlineExceeded, wantCode: domain.ErrorCodeExternalTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTokenHarness(t, fixtures.NewMerchant().Build())
			h.provider.On("Tokenize", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			_, err := h.orch.Tokenize(context.Background(), tokenizeRequest("4111111111111111"))

			assert.Equal(t, tt.wantCode, domain.GetErrorCode(err))
			assert.Equal(t, 0, h.tokens.Len())
		})
	}
}

func TestTokenize_UnknownMerchant(t *testing.T) {
	h := newTokenHarness(t, fixtures.NewMerchant().WithID("m-2").Build())
	h.merchants.On("GetMerchant", mock.Anything, "m-1").Return(nil, ports.ErrNotFound).Once()

	_, err := h.orch.Tokenize(context.Background(), tokenizeRequest("4111111111111111"))

	assert.Equal(t, domain.KindNotFound, domain.GetErrorKind(err))
}
