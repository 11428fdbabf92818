package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrTimeout marks an external call cut short by its timeout
var ErrTimeout = errors.New("external call timed out")

// Budget tracks the wall-clock deadline of one request.
// It is captured once at orchestration start and consulted before failover decisions.
type Budget struct {
	deadline time.Time
	now      func() time.Time
}

// NewBudget uses the context deadline when present, otherwise now + fallback
func NewBudget(ctx context.Context, fallback time.Duration) *Budget {
	return NewBudgetWithClock(ctx, fallback, time.Now)
}

// NewBudgetWithClock is NewBudget with an injectable clock
func NewBudgetWithClock(ctx context.Context, fallback time.Duration, now func() time.Time) *Budget {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = now().Add(fallback)
	}
	return &Budget{deadline: deadline, now: now}
}

// Deadline returns the absolute request deadline
func (b *Budget) Deadline() time.Time {
	return b.deadline
}

// Remaining returns the time left before the deadline, never negative
func (b *Budget) Remaining() time.Duration {
	left := b.deadline.Sub(b.now())
	if left < 0 {
		return 0
	}
	return left
}

// Allows reports whether strictly more than threshold remains
func (b *Budget) Allows(threshold time.Duration) bool {
	return b.Remaining() > threshold
}

// Exhausted reports whether the deadline has passed
func (b *Budget) Exhausted() bool {
	return b.Remaining() == 0
}

// TimeoutConfig holds the per-call timeouts used against collaborators
type TimeoutConfig struct {
	// External bounds every collaborator call
	External time.Duration
	// FailoverSafetyThreshold is the minimum budget left to try a fail-over processor
	FailoverSafetyThreshold time.Duration
	// DefaultRequestBudget applies when the caller gives no deadline
	DefaultRequestBudget time.Duration
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		External:                8 * time.Second,
		FailoverSafetyThreshold: 12 * time.Second,
		DefaultRequestBudget:    29 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		External:                500 * time.Millisecond,
		FailoverSafetyThreshold: 1 * time.Second,
		DefaultRequestBudget:    5 * time.Second,
	}
}

// ExternalContext creates a context for one collaborator call
func (tc *TimeoutConfig) ExternalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.External)
}

// CallWithTimeout runs fn under the given timeout and tags deadline failures with ErrTimeout
func CallWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := fn(callCtx)
	if err != nil && IsTimeout(err) {
		return v, fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return v, err
}

// IsTimeout reports whether err is a deadline or network timeout
func IsTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
