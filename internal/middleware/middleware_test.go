package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kevin07696/transaction-orchestrator/internal/middleware"
	"github.com/kevin07696/transaction-orchestrator/pkg/shutdown"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var info = &grpc.UnaryServerInfo{FullMethod: "/orchestrator.v1.TransactionService/Charge"}

func TestUnaryRecovery(t *testing.T) {
	interceptor := middleware.UnaryRecovery(zap.NewNop())

	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestUnaryLoggingPassesThrough(t *testing.T) {
	interceptor := middleware.UnaryLogging(zap.NewNop())
	want := status.Error(codes.FailedPrecondition, "declined")

	resp, err := interceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "resp", want
	})
	assert.Equal(t, "resp", resp)
	assert.Equal(t, want, err)
}

func TestUnaryDeadline(t *testing.T) {
	interceptor := middleware.UnaryDeadline(time.Second)

	tests := []struct {
		name    string
		ctx     func() (context.Context, context.CancelFunc)
		wantMax time.Duration
	}{
		{
			name:    "applies budget without deadline",
			ctx:     func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) },
			wantMax: time.Second,
		},
		{
			name: "keeps a shorter caller deadline",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 100*time.Millisecond)
			},
			wantMax: 100 * time.Millisecond,
		},
		{
			name: "keeps a longer caller deadline",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), time.Minute)
			},
			wantMax: time.Minute,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.ctx()
			defer cancel()

			_, err := interceptor(ctx, nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				deadline, ok := ctx.Deadline()
				require.True(t, ok)
				remaining := time.Until(deadline)
				assert.LessOrEqual(t, remaining, tt.wantMax)
				assert.Greater(t, remaining, tt.wantMax/2)
				return nil, nil
			})
			require.NoError(t, err)
		})
	}
}

func TestRateLimiter_PerMerchant(t *testing.T) {
	rl := middleware.NewRateLimiter(1, 2)
	defer rl.Shutdown()

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(merchant string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/charges", nil)
		req.Header.Set("X-Merchant-Id", merchant)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("m-1"))
	assert.Equal(t, http.StatusOK, call("m-1"))
	assert.Equal(t, http.StatusTooManyRequests, call("m-1"))
	assert.Equal(t, http.StatusOK, call("m-2"))
}

func TestRecoverAndHeaders(t *testing.T) {
	handler := middleware.Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") }),
		middleware.SecurityHeaders,
		middleware.Recover(zap.NewNop()),
		middleware.RequestLogging(zap.NewNop()),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/transactions/1", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestInFlight_RejectsAfterShutdown(t *testing.T) {
	tracker := shutdown.NewInFlightTracker("orchestrations", zap.NewNop())
	interceptor := middleware.UnaryInFlight(tracker)
	handler := middleware.InFlight(tracker)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ok := func(ctx context.Context, req interface{}) (interface{}, error) { return "done", nil }

	resp, err := interceptor(context.Background(), nil, info, ok)
	require.NoError(t, err)
	assert.Equal(t, "done", resp)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/charges", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, tracker.Shutdown(context.Background()))

	_, err = interceptor(context.Background(), nil, info, ok)
	assert.Equal(t, codes.Unavailable, status.Code(err))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/charges", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"code":"K503","message":"server is shutting down"}`, rec.Body.String())
}
