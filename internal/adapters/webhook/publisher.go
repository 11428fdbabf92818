// Package webhook delivers published events to the event gateway over signed HTTP posts.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/kevin07696/transaction-orchestrator/pkg/resilience"
	"go.uber.org/zap"
)

// Ensure Publisher implements the port
var _ ports.MessageBus = (*Publisher)(nil)

// Delivery headers
const (
	HeaderSignature = "X-Event-Signature"
	HeaderTopic     = "X-Event-Topic"
	HeaderTimestamp = "X-Event-Timestamp"
	HeaderEventID   = "X-Event-Id"
)

// Config describes the event gateway
type Config struct {
	BaseURL string
	Secret  string
	// Attempts is the number of posts tried per event, including the first
	Attempts int
	Backoff  resilience.BackoffStrategy
}

// Publisher posts each event to {BaseURL}/topics/{topic}
type Publisher struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// deliveryError is a failed post; 5xx and 429 answers may be retried
type deliveryError struct {
	status int
	msg    string
}

func (e *deliveryError) Error() string {
	return e.msg
}

// NewPublisher creates a publisher
func NewPublisher(cfg Config, httpClient *http.Client, logger *zap.Logger) *Publisher {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 10 * time.Second,
		}
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff == nil {
		cfg.Backoff = resilience.DefaultExponentialBackoff()
	}
	return &Publisher{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// Publish delivers payload to topic. Payloads that are already JSON are sent as is.
func (p *Publisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	body, err := encode(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	eventID := uuid.NewString()
	err = resilience.Retry(ctx, p.cfg.Attempts, p.cfg.Backoff, retryable, func(ctx context.Context) error {
		return p.post(ctx, topic, eventID, body)
	})
	if err != nil {
		p.logger.Error("Failed to deliver event",
			zap.Error(err),
			zap.String("topic", topic),
			zap.String("event_id", eventID),
		)
		return err
	}

	p.logger.Debug("Event delivered",
		zap.String("topic", topic),
		zap.String("event_id", eventID),
	)
	return nil
}

func (p *Publisher) post(ctx context.Context, topic, eventID string, body []byte) error {
	target := strings.TrimRight(p.cfg.BaseURL, "/") + "/topics/" + url.PathEscape(topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, Sign(body, p.cfg.Secret))
	req.Header.Set(HeaderTopic, topic)
	req.Header.Set(HeaderTimestamp, p.now().UTC().Format(time.RFC3339))
	req.Header.Set(HeaderEventID, eventID)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &deliveryError{
		status: resp.StatusCode,
		msg:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
	}
}

// Sign creates the hex HMAC-SHA256 signature of payload
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches payload
func Verify(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}

func encode(payload interface{}) ([]byte, error) {
	switch v := payload.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

func retryable(err error) bool {
	var de *deliveryError
	if errors.As(err, &de) {
		return de.status >= 500 || de.status == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}
