package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewOpsRouter serves liveness, readiness and Prometheus metrics
func NewOpsRouter(health *HealthChecker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)

	r.Get("/-/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if health != nil {
		r.Get("/-/ready", health.HealthHandler())
	}
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// NewOpsServer wraps the ops router in an http.Server listening on addr
func NewOpsServer(addr string, health *HealthChecker) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewOpsRouter(health),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       15 * time.Second,
	}
}

// ShutdownServer gracefully shuts down server within five seconds
func ShutdownServer(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
