package processor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
)

// ErrUnknownProcessor is returned when no adapter is registered for a processor and mode
var ErrUnknownProcessor = errors.New("no adapter registered for processor")

// Ensure Registry implements the port
var _ ports.ProcessorRegistry = (*Registry)(nil)

type key struct {
	name string
	mode domain.IntegrationMode
}

// Registry resolves adapters by processor name and integration mode. A
// processor registered only in aggregator mode is also served for direct
// requests, since the aggregator can always reach it.
type Registry struct {
	mu        sync.RWMutex
	adapters  map[key]ports.ProcessorAdapter
	providers map[key]ports.TokenProvider
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		adapters:  make(map[key]ports.ProcessorAdapter),
		providers: make(map[key]ports.TokenProvider),
	}
}

// Register adds an adapter for its processor name and mode
func (r *Registry) Register(mode domain.IntegrationMode, adapter ports.ProcessorAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[key{name: adapter.Name(), mode: mode}] = adapter
}

// RegisterTokenProvider adds a token provider for name and mode
func (r *Registry) RegisterTokenProvider(name string, mode domain.IntegrationMode, provider ports.TokenProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[key{name: name, mode: mode}] = provider
}

// Adapter returns the adapter for processorName in mode
func (r *Registry) Adapter(processorName string, mode domain.IntegrationMode) (ports.ProcessorAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := lookup(r.adapters, processorName, mode); ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %s (%s)", ErrUnknownProcessor, processorName, mode)
}

// TokenProvider returns the token provider for processorName in mode
func (r *Registry) TokenProvider(processorName string, mode domain.IntegrationMode) (ports.TokenProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := lookup(r.providers, processorName, mode); ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: token provider %s (%s)", ErrUnknownProcessor, processorName, mode)
}

func lookup[T any](m map[key]T, name string, mode domain.IntegrationMode) (T, bool) {
	if mode == "" {
		mode = domain.IntegrationAggregator
	}
	if v, ok := m[key{name: name, mode: mode}]; ok {
		return v, true
	}
	if mode == domain.IntegrationDirect {
		v, ok := m[key{name: name, mode: domain.IntegrationAggregator}]
		return v, ok
	}
	var zero T
	return zero, false
}

// Names lists the registered processor adapters
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		names = append(names, k.name+"/"+string(k.mode))
	}
	return names
}
