// Package external wraps collaborator calls with the external timeout budget.
package external

import (
	"context"
	"time"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/pkg/resilience"
)

// Call runs fn under timeout and reports a timeout as ExternalTimeout (K027)
func Call[T any](ctx context.Context, timeout time.Duration, collaborator string, fn func(context.Context) (T, error)) (T, error) {
	v, err := resilience.CallWithTimeout(ctx, timeout, fn)
	if err != nil && resilience.IsTimeout(err) {
		return v, domain.ErrExternalTimeout(collaborator, err)
	}
	return v, err
}

// Do is Call for collaborators that return only an error
func Do(ctx context.Context, timeout time.Duration, collaborator string, fn func(context.Context) error) error {
	_, err := Call(ctx, timeout, collaborator, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Detached returns a context that survives the caller's cancellation, bounded by timeout.
// Used for writes that must happen even after the request deadline fired.
func Detached(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
