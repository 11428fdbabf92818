package orchestration_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
)

type mockCharger struct{ mock.Mock }

func (m *mockCharger) Charge(ctx context.Context, req *domain.ChargeRequest) (*domain.ChargeResult, error) {
	return m.result(m.Called(ctx, req))
}

func (m *mockCharger) PreAuthorize(ctx context.Context, req *domain.ChargeRequest) (*domain.ChargeResult, error) {
	return m.result(m.Called(ctx, req))
}

func (m *mockCharger) ReAuthorize(ctx context.Context, req *domain.ChargeRequest) (*domain.ChargeResult, error) {
	return m.result(m.Called(ctx, req))
}

func (m *mockCharger) result(args mock.Arguments) (*domain.ChargeResult, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChargeResult), args.Error(1)
}

type mockVoider struct{ mock.Mock }

func (m *mockVoider) Void(ctx context.Context, req *domain.VoidRequest) (*domain.VoidResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VoidResult), args.Error(1)
}

type mockCapturer struct{ mock.Mock }

func (m *mockCapturer) Capture(ctx context.Context, req *domain.CaptureRequest) (*domain.CaptureResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CaptureResult), args.Error(1)
}

type mockTokenizer struct{ mock.Mock }

func (m *mockTokenizer) Tokenize(ctx context.Context, req *domain.TokenizeRequest) (*domain.TokenizeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TokenizeResult), args.Error(1)
}

type mockReader struct{ mock.Mock }

func (m *mockReader) GetByTicket(ctx context.Context, ticket string) (*domain.Transaction, error) {
	args := m.Called(ctx, ticket)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

type deps struct {
	charges  *mockCharger
	voids    *mockVoider
	captures *mockCapturer
	tokens   *mockTokenizer
	reader   *mockReader
}

func newDeps() *deps {
	return &deps{
		charges:  &mockCharger{},
		voids:    &mockVoider{},
		captures: &mockCapturer{},
		tokens:   &mockTokenizer{},
		reader:   &mockReader{},
	}
}
