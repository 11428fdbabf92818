package webhook_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/kevin07696/transaction-orchestrator/internal/adapters/webhook"
	"github.com/kevin07696/transaction-orchestrator/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPublisher(url string, client *http.Client) *webhook.Publisher {
	return webhook.NewPublisher(webhook.Config{
		BaseURL:  url,
		Secret:   "s3cret",
		Attempts: 3,
		Backoff:  &resilience.FixedBackoff{},
	}, client, zap.NewNop())
}

func TestPublisher_SignsPayload(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/topics/transactions", r.URL.Path)
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	pub := newPublisher(srv.URL, srv.Client())
	require.NoError(t, pub.Publish(context.Background(), "transactions", map[string]string{"ticketNumber": "t-1"}))

	assert.True(t, webhook.Verify(gotBody, "s3cret", gotHeaders.Get(webhook.HeaderSignature)))
	assert.False(t, webhook.Verify(gotBody, "other", gotHeaders.Get(webhook.HeaderSignature)))
	assert.Equal(t, "transactions", gotHeaders.Get(webhook.HeaderTopic))
	assert.NotEmpty(t, gotHeaders.Get(webhook.HeaderEventID))

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, "t-1", decoded["ticketNumber"])
}

func TestPublisher_RawJSONIsSentUnchanged(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	raw := json.RawMessage(`{"ticket":"1"}`)
	require.NoError(t, newPublisher(srv.URL, srv.Client()).Publish(context.Background(), "alerts", raw))
	assert.JSONEq(t, `{"ticket":"1"}`, string(gotBody))
}

func TestPublisher_Retries(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		wantCalls int32
		wantErr   bool
	}{
		{name: "recovers after server errors", statuses: []int{503, 500, 200}, wantCalls: 3},
		{name: "gives up after attempts", statuses: []int{503, 503, 503, 200}, wantCalls: 3, wantErr: true},
		{name: "client error is final", statuses: []int{400, 200}, wantCalls: 1, wantErr: true},
		{name: "throttling is retried", statuses: []int{429, 204}, wantCalls: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				w.WriteHeader(tt.statuses[n-1])
			}))
			defer srv.Close()

			err := newPublisher(srv.URL, srv.Client()).Publish(context.Background(), "transactions", map[string]int{"n": 1})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}
