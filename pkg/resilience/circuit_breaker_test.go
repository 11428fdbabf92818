package resilience

import (
	"errors"
	"testing"
	"time"
)

var errUnreachable = errors.New("unreachable")

func TestCircuitBreaker_DefaultConfig(t *testing.T) {
	config := DefaultCircuitBreakerConfig("aggregator")

	if config.MaxFailures != 5 {
		t.Errorf("Expected MaxFailures = 5, got %d", config.MaxFailures)
	}
	if config.OpenTimeout != 30*time.Second {
		t.Errorf("Expected OpenTimeout = 30s, got %v", config.OpenTimeout)
	}
	if config.Name != "aggregator" {
		t.Errorf("Expected Name = aggregator, got %s", config.Name)
	}
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3, OpenTimeout: time.Minute, MaxRequestsHalfOpen: 1})

	for i := 0; i < 3; i++ {
		_ = cb.Call(func() error { return errUnreachable })
	}

	if cb.State() != StateOpen {
		t.Fatalf("Expected state = open, got %v", cb.State())
	}

	called := false
	err := cb.Call(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("function must not run while open")
	}
}

func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	declined := errors.New("declined")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:         1,
		OpenTimeout:         time.Minute,
		MaxRequestsHalfOpen: 1,
		IsFailure:           func(err error) bool { return errors.Is(err, errUnreachable) },
	})

	for i := 0; i < 5; i++ {
		_ = cb.Call(func() error { return declined })
	}

	if cb.State() != StateClosed {
		t.Errorf("declines must not open the breaker, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var transitions []string
	cb := newCircuitBreakerWithClock(CircuitBreakerConfig{
		Name:                "iso",
		MaxFailures:         1,
		OpenTimeout:         10 * time.Second,
		MaxRequestsHalfOpen: 1,
		OnStateChange: func(name string, from, to CircuitState) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	}, func() time.Time { return now })

	_ = cb.Call(func() error { return errUnreachable })
	if cb.State() != StateOpen {
		t.Fatalf("Expected open, got %v", cb.State())
	}

	now = now.Add(11 * time.Second)
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("trial request should run, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected closed after successful trial request, got %v", cb.State())
	}

	want := []string{"iso:closed->open", "iso:open->half-open", "iso:half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := newCircuitBreakerWithClock(CircuitBreakerConfig{MaxFailures: 1, OpenTimeout: time.Second, MaxRequestsHalfOpen: 1},
		func() time.Time { return now })

	_ = cb.Call(func() error { return errUnreachable })
	now = now.Add(2 * time.Second)
	_ = cb.Call(func() error { return errUnreachable })

	if cb.State() != StateOpen {
		t.Errorf("Expected open after failed trial request, got %v", cb.State())
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3, OpenTimeout: time.Minute, MaxRequestsHalfOpen: 1})

	_ = cb.Call(func() error { return errUnreachable })
	_ = cb.Call(func() error { return errUnreachable })
	_ = cb.Call(func() error { return nil })

	if cb.Failures() != 0 {
		t.Errorf("Expected failures reset, got %d", cb.Failures())
	}
}
