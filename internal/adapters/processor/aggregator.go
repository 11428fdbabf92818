// Package processor holds the processor adapters, their registry and the circuit breaker around them.
package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/kevin07696/transaction-orchestrator/pkg/httpclient"
)

// Aggregator endpoints
const (
	pathCharge      = "/v1/charges"
	pathPreAuth     = "/v1/preauthorizations"
	pathReAuth      = "/v1/reauthorizations"
	pathCapture     = "/v1/captures"
	pathVoid        = "/v1/voids"
	pathTokenize    = "/v1/tokens"
	credentialsHead = "Private-Credential-Id"
	processorHeader = "Processor-Name"
)

// Ensure AggregatorAdapter implements the ports
var (
	_ ports.ProcessorAdapter = (*AggregatorAdapter)(nil)
	_ ports.TokenProvider    = (*AggregatorAdapter)(nil)
)

// declineBody is the aggregator's structured rejection
type declineBody struct {
	Metadata     map[string]string `json:"metadata"`
	Code         string            `json:"code"`
	Message      string            `json:"message"`
	TicketNumber string            `json:"ticketNumber"`
	Reference    string            `json:"transactionReference"`
	ApprovalCode string            `json:"approvalCode"`
	ResponseCode string            `json:"responseCode"`
	ResponseText string            `json:"responseText"`
	AcquirerBank string            `json:"acquirerBank"`
	CardType     string            `json:"cardType"`
	IssuingBank  string            `json:"issuingBank"`
}

// AggregatorAdapter reaches one processor through the aggregator's HTTP API
type AggregatorAdapter struct {
	name   string
	client *httpclient.JSONClient
}

// NewAggregatorAdapter creates an adapter for processorName at baseURL
func NewAggregatorAdapter(processorName, baseURL, credential string, client *http.Client) *AggregatorAdapter {
	jc := httpclient.NewJSONClient("aggregator:"+processorName, baseURL, client).
		WithHeader(processorHeader, processorName)
	if credential != "" {
		jc.WithHeader(credentialsHead, credential)
	}
	return &AggregatorAdapter{name: processorName, client: jc}
}

// Name returns the processor name
func (a *AggregatorAdapter) Name() string {
	return a.name
}

// Charge authorizes and captures in one step
func (a *AggregatorAdapter) Charge(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	return a.authorize(ctx, pathCharge, req)
}

// PreAuthorize reserves funds
func (a *AggregatorAdapter) PreAuthorize(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	return a.authorize(ctx, pathPreAuth, req)
}

// ReAuthorize extends a reservation
func (a *AggregatorAdapter) ReAuthorize(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	return a.authorize(ctx, pathReAuth, req)
}

// Capture settles a reservation
func (a *AggregatorAdapter) Capture(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	return a.authorize(ctx, pathCapture, req)
}

// Void reverses an approved transaction
func (a *AggregatorAdapter) Void(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	return a.authorize(ctx, pathVoid, req)
}

// Tokenize vaults the card with the aggregator
func (a *AggregatorAdapter) Tokenize(ctx context.Context, req *domain.TokenProviderRequest) (*domain.TokenProviderResponse, error) {
	var resp domain.TokenProviderResponse
	if err := a.client.Do(ctx, http.MethodPost, pathTokenize, req, &resp); err != nil {
		return nil, a.mapError(err)
	}
	return &resp, nil
}

func (a *AggregatorAdapter) authorize(ctx context.Context, path string, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	var resp domain.ProviderResponse
	if err := a.client.Do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, a.mapError(err)
	}
	return &resp, nil
}

// mapError turns transport outcomes into the adapter error contract:
// rejections with a body become ProcessorError, failures where nothing reached
// the processor become ReachabilityError, everything else stays ambiguous.
func (a *AggregatorAdapter) mapError(err error) error {
	var connErr *httpclient.ConnectError
	if errors.As(err, &connErr) {
		return &domain.ReachabilityError{ProcessorName: a.name, Err: err}
	}

	var statusErr *httpclient.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}

	switch statusErr.StatusCode {
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		// the aggregator answers these only when the processor link is down
		return &domain.ReachabilityError{ProcessorName: a.name, Err: err}
	case http.StatusBadRequest, http.StatusPaymentRequired, http.StatusUnprocessableEntity:
		var body declineBody
		if decodeErr := statusErr.Decode(&body); decodeErr != nil || body.Code == "" {
			return fmt.Errorf("%s: undecodable rejection: %w", a.name, err)
		}
		return &domain.ProcessorError{
			ProcessorName:     a.name,
			ProcessorCode:     body.Code,
			ProcessorMessage:  body.Message,
			TicketNumber:      body.TicketNumber,
			TransactionRef:    body.Reference,
			ApprovalCode:      body.ApprovalCode,
			ResponseCode:      body.ResponseCode,
			ResponseText:      body.ResponseText,
			AcquirerBank:      body.AcquirerBank,
			CardType:          body.CardType,
			IssuingBank:       body.IssuingBank,
			ProcessorMetadata: body.Metadata,
		}
	}
	return err
}
