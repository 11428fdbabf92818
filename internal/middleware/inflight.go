package middleware

import (
	"context"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kevin07696/transaction-orchestrator/pkg/shutdown"
)

// UnaryInFlight registers each RPC with tracker and refuses new ones once shutdown started
func UnaryInFlight(tracker *shutdown.InFlightTracker) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !tracker.Add() {
			return nil, status.Error(codes.Unavailable, "server is shutting down")
		}
		defer tracker.Done()
		return handler(ctx, req)
	}
}

// InFlight is the HTTP counterpart of UnaryInFlight
func InFlight(tracker *shutdown.InFlightTracker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !tracker.Add() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Connection", "close")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"code":"K503","message":"server is shutting down"}`))
				return
			}
			defer tracker.Done()
			next.ServeHTTP(w, r)
		})
	}
}
