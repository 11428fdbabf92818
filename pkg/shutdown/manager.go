// Package shutdown stops the orchestrator's servers, workers and stores in
// reverse start order once a termination signal arrives.
package shutdown

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	shutdownDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orchestrator_shutdown_duration_seconds",
		Help:    "Total time taken to shut down gracefully",
		Buckets: []float64{1, 5, 10, 15, 20, 25, 30},
	})

	shutdownErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_shutdown_errors_total",
		Help: "Shutdown errors by component",
	}, []string{"component"})
)

// ShutdownFunc stops one component
type ShutdownFunc func(context.Context) error

// Component is a registered shutdown step
type Component struct {
	Name         string
	ShutdownFunc ShutdownFunc
}

// Manager runs registered components' shutdown one at a time, last registered first.
// Register stores before the workers and servers that use them.
type Manager struct {
	logger     *zap.Logger
	components []Component
	mu         sync.Mutex
	timeout    time.Duration
	once       sync.Once
	errs       map[string]error
}

// NewManager creates a manager bounding the whole shutdown by timeout
func NewManager(logger *zap.Logger, timeout time.Duration) *Manager {
	return &Manager{logger: logger, timeout: timeout}
}

// Register adds a shutdown step
func (sm *Manager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.components = append(sm.components, Component{Name: name, ShutdownFunc: fn})
}

// RegisterCloser registers a component with a Close method
func (sm *Manager) RegisterCloser(name string, closer interface{ Close() error }) {
	sm.Register(name, func(context.Context) error { return closer.Close() })
}

// RegisterNoErr registers a shutdown function that cannot fail
func (sm *Manager) RegisterNoErr(name string, fn func()) {
	sm.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// WaitForShutdown blocks until SIGINT, SIGTERM or ctx cancellation, then shuts down
func (sm *Manager) WaitForShutdown(ctx context.Context) map[string]error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	sm.logger.Info("Shutdown signal received", zap.Duration("timeout", sm.timeout))
	return sm.Shutdown()
}

// Shutdown stops every component once; later calls return the first result
func (sm *Manager) Shutdown() map[string]error {
	sm.once.Do(func() {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
		defer cancel()

		sm.mu.Lock()
		components := append([]Component(nil), sm.components...)
		sm.mu.Unlock()

		sm.errs = make(map[string]error)
		for i := len(components) - 1; i >= 0; i-- {
			comp := components[i]
			if ctx.Err() != nil {
				sm.logger.Warn("Shutdown timeout exceeded, skipping component", zap.String("component", comp.Name))
				sm.errs[comp.Name] = ctx.Err()
				continue
			}

			stepStart := time.Now()
			if err := comp.ShutdownFunc(ctx); err != nil {
				sm.errs[comp.Name] = err
				shutdownErrors.WithLabelValues(comp.Name).Inc()
				sm.logger.Error("Component shutdown failed",
					zap.String("component", comp.Name),
					zap.Error(err),
				)
				continue
			}
			sm.logger.Info("Component shut down",
				zap.String("component", comp.Name),
				zap.Duration("elapsed", time.Since(stepStart)),
			)
		}

		shutdownDuration.Observe(time.Since(start).Seconds())
		sm.logger.Info("Shutdown complete",
			zap.Int("errors", len(sm.errs)),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
	return sm.errs
}
