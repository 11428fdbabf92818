package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Pinger is anything readiness depends on
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// Ping calls f
func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// HealthChecker runs named readiness checks
type HealthChecker struct {
	timeout time.Duration
	checks  map[string]Pinger
}

// NewHealthChecker creates a checker; each check gets timeout to answer
func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthChecker{timeout: timeout, checks: make(map[string]Pinger)}
}

// Add registers a named check; call before serving
func (h *HealthChecker) Add(name string, p Pinger) *HealthChecker {
	h.checks[name] = p
	return h
}

// Check runs every check concurrently and returns the combined status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]string, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, p Pinger) {
			defer wg.Done()
			if err := p.Ping(ctx); err != nil {
				results[i] = "unhealthy: " + err.Error()
				return
			}
			results[i] = "healthy"
		}(i, h.checks[name])
	}
	wg.Wait()

	status := HealthStatus{Status: "healthy", Timestamp: time.Now().UTC(), Checks: make(map[string]string, len(names))}
	for i, name := range names {
		status.Checks[name] = results[i]
		if results[i] != "healthy" {
			status.Status = "unhealthy"
		}
	}
	return status
}

// HealthHandler answers 200 when every check passes, 503 otherwise
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if status.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	}
}
