package resilience

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the current state of a circuit breaker
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned when the breaker rejects a call without attempting it
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when the half-open trial slots are taken
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// CircuitBreakerConfig configures circuit breaker behavior
type CircuitBreakerConfig struct {
	// Name labels the breaker in state change callbacks
	Name string
	// MaxFailures is the number of consecutive counted failures before opening
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing
	OpenTimeout time.Duration
	// MaxRequestsHalfOpen is how many trial requests may run while half-open
	MaxRequestsHalfOpen uint32
	// IsFailure decides which errors count against the breaker; nil counts every error
	IsFailure func(err error) bool
	// OnStateChange is called with the lock released after every transition
	OnStateChange func(name string, from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns sensible defaults
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:                name,
		MaxFailures:         5,
		OpenTimeout:         30 * time.Second,
		MaxRequestsHalfOpen: 1,
	}
}

// CircuitBreaker stops calling a collaborator that keeps failing
type CircuitBreaker struct {
	mu               sync.Mutex
	config           CircuitBreakerConfig
	now              func() time.Time
	state            CircuitState
	failures         uint32
	requestsHalfOpen uint32
	changedAt        time.Time
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return newCircuitBreakerWithClock(config, time.Now)
}

func newCircuitBreakerWithClock(config CircuitBreakerConfig, now func() time.Time) *CircuitBreaker {
	return &CircuitBreaker{
		config:    config,
		now:       now,
		state:     StateClosed,
		changedAt: now(),
	}
}

// Call executes fn if the breaker allows it and records the outcome
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := fn()
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	var transition func()
	defer func() {
		cb.mu.Unlock()
		if transition != nil {
			transition()
		}
	}()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.now().Sub(cb.changedAt) < cb.config.OpenTimeout {
			return ErrCircuitOpen
		}
		transition = cb.setState(StateHalfOpen)
		cb.requestsHalfOpen++
		return nil
	case StateHalfOpen:
		if cb.requestsHalfOpen >= cb.config.MaxRequestsHalfOpen {
			return ErrTooManyRequests
		}
		cb.requestsHalfOpen++
		return nil
	default:
		return ErrCircuitOpen
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	var transition func()
	defer func() {
		cb.mu.Unlock()
		if transition != nil {
			transition()
		}
	}()

	failed := err != nil && (cb.config.IsFailure == nil || cb.config.IsFailure(err))
	if failed {
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.config.MaxFailures {
			transition = cb.setState(StateOpen)
		}
		return
	}

	if cb.state == StateHalfOpen {
		transition = cb.setState(StateClosed)
		return
	}
	cb.failures = 0
}

// setState must be called with the lock held; it returns the callback to run once released
func (cb *CircuitBreaker) setState(newState CircuitState) func() {
	if cb.state == newState {
		return nil
	}
	from := cb.state
	cb.state = newState
	cb.changedAt = cb.now()
	cb.failures = 0
	cb.requestsHalfOpen = 0

	if cb.config.OnStateChange == nil {
		return nil
	}
	name, hook := cb.config.Name, cb.config.OnStateChange
	return func() { hook(name, from, newState) }
}

// State returns the current circuit state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive failure count
func (cb *CircuitBreaker) Failures() uint32 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}
