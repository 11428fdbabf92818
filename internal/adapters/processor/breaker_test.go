package processor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kevin07696/transaction-orchestrator/internal/adapters/processor"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedAdapter struct {
	name  string
	err   error
	calls int
}

func (s *scriptedAdapter) Name() string { return s.name }

func (s *scriptedAdapter) respond() (*domain.ProviderResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &domain.ProviderResponse{TicketNumber: "t-1"}, nil
}

func (s *scriptedAdapter) Charge(context.Context, *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	return s.respond()
}

func (s *scriptedAdapter) PreAuthorize(context.Context, *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	return s.respond()
}

func (s *scriptedAdapter) ReAuthorize(context.Context, *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	return s.respond()
}

func (s *scriptedAdapter) Capture(context.Context, *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	return s.respond()
}

func (s *scriptedAdapter) Void(context.Context, *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	return s.respond()
}

func breakerConfig() resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig("")
	cfg.MaxFailures = 2
	cfg.OpenTimeout = time.Hour
	return cfg
}

func TestBreakerAdapter_OpensOnReachabilityFailures(t *testing.T) {
	inner := &scriptedAdapter{
		name: "Datafast Processor",
		err:  &domain.ReachabilityError{ProcessorName: "Datafast Processor", Err: errors.New("dial tcp: refused")},
	}
	adapter := processor.WithBreaker(inner, breakerConfig(), nil)

	for i := 0; i < 2; i++ {
		_, err := adapter.Charge(context.Background(), &domain.ProcessorRequest{})
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, adapter.State())

	_, err := adapter.Charge(context.Background(), &domain.ProcessorRequest{})
	var reach *domain.ReachabilityError
	require.True(t, errors.As(err, &reach))
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls, "open breaker must not call the processor")
}

func TestBreakerAdapter_DeclinesDoNotCount(t *testing.T) {
	inner := &scriptedAdapter{
		name: "Datafast Processor",
		err:  &domain.ProcessorError{ProcessorName: "Datafast Processor", ProcessorCode: "05"},
	}
	adapter := processor.WithBreaker(inner, breakerConfig(), nil)

	for i := 0; i < 5; i++ {
		_, err := adapter.Void(context.Background(), &domain.ProcessorRequest{})
		var procErr *domain.ProcessorError
		require.True(t, errors.As(err, &procErr))
	}
	assert.Equal(t, resilience.StateClosed, adapter.State())
	assert.Equal(t, 5, inner.calls)
}

func TestBreakerAdapter_PassesApprovals(t *testing.T) {
	inner := &scriptedAdapter{name: "Datafast Processor"}
	adapter := processor.WithBreaker(inner, breakerConfig(), nil)

	resp, err := adapter.Capture(context.Background(), &domain.ProcessorRequest{})
	require.NoError(t, err)
	assert.Equal(t, "t-1", resp.TicketNumber)
	assert.Equal(t, "Datafast Processor", adapter.Name())
}
