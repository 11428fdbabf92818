// Package mocks provides shared testify mocks for the domain ports.
package mocks

import (
	"context"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockProcessorAdapter mocks a processor adapter
type MockProcessorAdapter struct {
	mock.Mock
	ProcessorName string
}

func (m *MockProcessorAdapter) Name() string {
	return m.ProcessorName
}

func (m *MockProcessorAdapter) Charge(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	args := m.Called(ctx, req)
	return providerResponse(args)
}

func (m *MockProcessorAdapter) PreAuthorize(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	args := m.Called(ctx, req)
	return providerResponse(args)
}

func (m *MockProcessorAdapter) ReAuthorize(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	args := m.Called(ctx, req)
	return providerResponse(args)
}

func (m *MockProcessorAdapter) Capture(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	args := m.Called(ctx, req)
	return providerResponse(args)
}

func (m *MockProcessorAdapter) Void(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	args := m.Called(ctx, req)
	return providerResponse(args)
}

func providerResponse(args mock.Arguments) (*domain.ProviderResponse, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProviderResponse), args.Error(1)
}

// MockTokenProvider mocks a token provider
type MockTokenProvider struct {
	mock.Mock
}

func (m *MockTokenProvider) Tokenize(ctx context.Context, req *domain.TokenProviderRequest) (*domain.TokenProviderResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TokenProviderResponse), args.Error(1)
}

// MockProcessorRegistry mocks the adapter registry
type MockProcessorRegistry struct {
	mock.Mock
}

func (m *MockProcessorRegistry) Adapter(processorName string, mode domain.IntegrationMode) (ports.ProcessorAdapter, error) {
	args := m.Called(processorName, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ports.ProcessorAdapter), args.Error(1)
}

func (m *MockProcessorRegistry) TokenProvider(processorName string, mode domain.IntegrationMode) (ports.TokenProvider, error) {
	args := m.Called(processorName, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ports.TokenProvider), args.Error(1)
}

// MockRuleEngine mocks the rule engine client
type MockRuleEngine struct {
	mock.Mock
}

func (m *MockRuleEngine) Resolve(ctx context.Context, input *domain.RoutingInput) (*domain.ProcessorRuleResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessorRuleResult), args.Error(1)
}

func (m *MockRuleEngine) ValidateDeferred(ctx context.Context, input *domain.DeferredLimitInput) error {
	args := m.Called(ctx, input)
	return args.Error(0)
}

// MockTransactionStore mocks the transaction store
type MockTransactionStore struct {
	mock.Mock
}

func (m *MockTransactionStore) GetByTicket(ctx context.Context, ticketNumber string) (*domain.Transaction, error) {
	args := m.Called(ctx, ticketNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionStore) ConditionalPut(ctx context.Context, txn *domain.Transaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *MockTransactionStore) QueryByReference(ctx context.Context, reference string) ([]*domain.Transaction, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Transaction), args.Error(1)
}

func (m *MockTransactionStore) UpdateValues(ctx context.Context, ticketNumber string, update ports.TransactionUpdate) error {
	args := m.Called(ctx, ticketNumber, update)
	return args.Error(0)
}

func (m *MockTransactionStore) DecrementPending(ctx context.Context, ticketNumber string, amount decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, ticketNumber, amount)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockTransactionStore) RestorePending(ctx context.Context, ticketNumber string, amount decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, ticketNumber, amount)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockTransactionStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockTokenStore mocks the token store
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) Get(ctx context.Context, tokenID string) (*domain.Token, error) {
	args := m.Called(ctx, tokenID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Token), args.Error(1)
}

func (m *MockTokenStore) ConditionalPut(ctx context.Context, token *domain.Token) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenStore) MarkConsumed(ctx context.Context, tokenID, transactionID string) error {
	args := m.Called(ctx, tokenID, transactionID)
	return args.Error(0)
}

// MockAntifraudClient mocks the antifraud engine
type MockAntifraudClient struct {
	mock.Mock
}

func (m *MockAntifraudClient) GetWorkflowDecision(ctx context.Context, req *domain.AntifraudContext) (*domain.AntifraudDecision, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AntifraudDecision), args.Error(1)
}

// MockMessageBus mocks the message bus
type MockMessageBus struct {
	mock.Mock
}

func (m *MockMessageBus) Publish(ctx context.Context, topic string, payload interface{}) error {
	args := m.Called(ctx, topic, payload)
	return args.Error(0)
}

// MockAlerter mocks the operational alerting channel
type MockAlerter struct {
	mock.Mock
}

func (m *MockAlerter) Report(ctx context.Context, alert *domain.OperationalAlert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

// MockMerchantFetcher mocks merchant lookups
type MockMerchantFetcher struct {
	mock.Mock
}

func (m *MockMerchantFetcher) GetMerchant(ctx context.Context, merchantID string) (*domain.Merchant, error) {
	args := m.Called(ctx, merchantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Merchant), args.Error(1)
}

// MockBinFetcher mocks bin lookups
type MockBinFetcher struct {
	mock.Mock
}

func (m *MockBinFetcher) GetBin(ctx context.Context, bin string) (*domain.BinInfo, error) {
	args := m.Called(ctx, bin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BinInfo), args.Error(1)
}

// MockReceivableChecker mocks the receivable check
type MockReceivableChecker struct {
	mock.Mock
}

func (m *MockReceivableChecker) IsReceivable(ctx context.Context, txn *domain.Transaction) (bool, error) {
	args := m.Called(ctx, txn)
	return args.Bool(0), args.Error(1)
}

// MockCurrencyConverter mocks currency conversion
type MockCurrencyConverter struct {
	mock.Mock
}

func (m *MockCurrencyConverter) Convert(ctx context.Context, from, to string, amount decimal.Decimal) (*domain.ConvertedAmount, error) {
	args := m.Called(ctx, from, to, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ConvertedAmount), args.Error(1)
}
