package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kevin07696/transaction-orchestrator/pkg/observability"
	"github.com/kevin07696/transaction-orchestrator/pkg/resilience"
)

const maxErrorBody = 64 << 10

// StatusError is a non-2xx answer. Body holds at most 64KiB of the response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, strings.TrimSpace(string(e.Body)))
}

// Decode unmarshals the error body into v
func (e *StatusError) Decode(v interface{}) error {
	return json.Unmarshal(e.Body, v)
}

// ConnectError means the request never left this process: the connection
// could not be established, so the remote side saw nothing.
type ConnectError struct {
	URL string
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// JSONClient posts JSON to one collaborator
type JSONClient struct {
	Name    string
	BaseURL string
	HTTP    *http.Client
	Headers http.Header
}

// NewJSONClient creates a client for the collaborator at baseURL
func NewJSONClient(name, baseURL string, client *http.Client) *JSONClient {
	if client == nil {
		client = New(DefaultClientConfig(), 0)
	}
	return &JSONClient{
		Name:    name,
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    client,
		Headers: http.Header{},
	}
}

// WithHeader returns the client after setting a header sent on every request
func (c *JSONClient) WithHeader(key, value string) *JSONClient {
	c.Headers.Set(key, value)
	return c
}

// Do sends in as the JSON body (nil sends none) and decodes a 2xx body into out (nil discards it)
func (c *JSONClient) Do(ctx context.Context, method, path string, in, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case err == nil:
		case resilience.IsTimeout(err):
			outcome = "timeout"
		default:
			outcome = "error"
		}
		observability.RecordCollaboratorCall(c.Name, outcome, time.Since(start))
	}()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", c.Name, err)
		}
		body = bytes.NewReader(payload)
	}

	url := c.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", c.Name, err)
	}
	for k, v := range c.Headers {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if isConnectFailure(err) {
			return &ConnectError{URL: url, Err: err}
		}
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, URL: url, StatusCode: resp.StatusCode, Body: raw}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.Name, err)
	}
	return nil
}

// isConnectFailure reports dial-stage failures, the only ones where the
// request certainly never reached the server
func isConnectFailure(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// IsStatus reports whether err is a StatusError with the given code
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
