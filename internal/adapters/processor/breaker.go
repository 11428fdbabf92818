package processor

import (
	"context"
	"errors"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/kevin07696/transaction-orchestrator/pkg/observability"
	"github.com/kevin07696/transaction-orchestrator/pkg/resilience"
)

// Ensure BreakerAdapter implements the port
var _ ports.ProcessorAdapter = (*BreakerAdapter)(nil)

// BreakerAdapter guards a processor adapter with a circuit breaker. Only
// reachability failures and timeouts count; declines mean the processor is
// healthy. An open breaker is reported as a ReachabilityError because the
// request was never sent, which keeps failover available.
type BreakerAdapter struct {
	next    ports.ProcessorAdapter
	breaker *resilience.CircuitBreaker
}

// WithBreaker wraps next with a breaker built from cfg. cfg.IsFailure and
// cfg.OnStateChange are filled in when empty.
func WithBreaker(next ports.ProcessorAdapter, cfg resilience.CircuitBreakerConfig, logger ports.Logger) *BreakerAdapter {
	if cfg.Name == "" {
		cfg.Name = next.Name()
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = countsAgainstBreaker
	}
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = func(name string, from, to resilience.CircuitState) {
			observability.RecordCircuitState(name, stateGauge(to))
			if logger != nil {
				logger.Warn("processor circuit breaker changed state",
					ports.String("processor", name),
					ports.String("from", from.String()),
					ports.String("to", to.String()),
				)
			}
		}
	}
	observability.RecordCircuitState(cfg.Name, observability.CircuitClosed)
	return &BreakerAdapter{next: next, breaker: resilience.NewCircuitBreaker(cfg)}
}

// Name returns the wrapped processor name
func (b *BreakerAdapter) Name() string {
	return b.next.Name()
}

// State exposes the breaker state
func (b *BreakerAdapter) State() resilience.CircuitState {
	return b.breaker.State()
}

func (b *BreakerAdapter) Charge(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	return b.call(ctx, req, b.next.Charge)
}

func (b *BreakerAdapter) PreAuthorize(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	return b.call(ctx, req, b.next.PreAuthorize)
}

func (b *BreakerAdapter) ReAuthorize(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	return b.call(ctx, req, b.next.ReAuthorize)
}

func (b *BreakerAdapter) Capture(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	return b.call(ctx, req, b.next.Capture)
}

func (b *BreakerAdapter) Void(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	return b.call(ctx, req, b.next.Void)
}

type operation func(context.Context, *domain.ProcessorRequest) (*domain.ProviderResponse, error)

func (b *BreakerAdapter) call(ctx context.Context, req *domain.ProcessorRequest, op operation) (*domain.ProviderResponse, error) {
	var resp *domain.ProviderResponse
	err := b.breaker.Call(func() error {
		var err error
		resp, err = op(ctx, req)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return nil, &domain.ReachabilityError{ProcessorName: b.next.Name(), Err: err}
	}
	return resp, err
}

func countsAgainstBreaker(err error) bool {
	var reach *domain.ReachabilityError
	return errors.As(err, &reach) || resilience.IsTimeout(err)
}

func stateGauge(s resilience.CircuitState) int {
	switch s {
	case resilience.StateOpen:
		return observability.CircuitOpen
	case resilience.StateHalfOpen:
		return observability.CircuitHalfOpen
	default:
		return observability.CircuitClosed
	}
}
