package shutdown_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kevin07696/transaction-orchestrator/pkg/shutdown"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManager_ShutdownRunsInReverseOrder(t *testing.T) {
	mgr := shutdown.NewManager(zap.NewNop(), time.Second)

	var mu sync.Mutex
	var order []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
		}
	}
	mgr.RegisterNoErr("store", record("store"))
	mgr.RegisterNoErr("relay", record("relay"))
	mgr.Register("grpc", func(context.Context) error {
		record("grpc")()
		return errors.New("listener already closed")
	})

	errs := mgr.Shutdown()
	assert.Equal(t, []string{"grpc", "relay", "store"}, order)
	require.Len(t, errs, 1)
	assert.EqualError(t, errs["grpc"], "listener already closed")

	again := mgr.Shutdown()
	assert.Len(t, order, 3)
	assert.Equal(t, errs, again)
}

func TestManager_TimeoutSkipsRemaining(t *testing.T) {
	mgr := shutdown.NewManager(zap.NewNop(), 20*time.Millisecond)

	called := false
	mgr.RegisterNoErr("store", func() { called = true })
	mgr.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	errs := mgr.Shutdown()
	assert.False(t, called)
	assert.ErrorIs(t, errs["slow"], context.DeadlineExceeded)
	assert.ErrorIs(t, errs["store"], context.DeadlineExceeded)
}

func TestManager_WaitForShutdownOnContextCancel(t *testing.T) {
	mgr := shutdown.NewManager(zap.NewNop(), time.Second)
	closed := make(chan struct{})
	mgr.RegisterNoErr("ops", func() { close(closed) })

	ctx, cancel := context.WithCancel(context.Background())
	go cancel()
	errs := mgr.WaitForShutdown(ctx)

	assert.Empty(t, errs)
	select {
	case <-closed:
	default:
		t.Fatal("component was not shut down")
	}
}

func TestInFlightTracker_WaitsThenRejects(t *testing.T) {
	tracker := shutdown.NewInFlightTracker("orchestrations", zap.NewNop())
	require.True(t, tracker.Add())

	release := make(chan struct{})
	go func() {
		<-release
		tracker.Done()
	}()

	done := make(chan error, 1)
	go func() { done <- tracker.Shutdown(context.Background()) }()

	require.Eventually(t, tracker.IsShuttingDown, time.Second, time.Millisecond)
	assert.False(t, tracker.Add())
	close(release)
	assert.NoError(t, <-done)
}

func TestInFlightTracker_ShutdownTimeout(t *testing.T) {
	tracker := shutdown.NewInFlightTracker("orchestrations", zap.NewNop())
	require.True(t, tracker.Add())
	defer tracker.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tracker.Shutdown(ctx), context.DeadlineExceeded)
}

func TestPeriodicWorker_RunsUntilShutdown(t *testing.T) {
	worker := shutdown.NewPeriodicWorker("outbox-relay", 5*time.Millisecond, zap.NewNop())

	var mu sync.Mutex
	runs := 0
	worker.Start(func(context.Context) {
		mu.Lock()
		runs++
		mu.Unlock()
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs >= 3
	}, time.Second, time.Millisecond)

	require.NoError(t, worker.Shutdown(context.Background()))
	assert.Error(t, worker.Context().Err())
}
