package collaborators

import (
	"context"
	"net/http"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/kevin07696/transaction-orchestrator/pkg/httpclient"
)

// Ensure Antifraud implements the port
var _ ports.AntifraudClient = (*Antifraud)(nil)

// Antifraud asks the antifraud workflow for a decision
type Antifraud struct {
	client *httpclient.JSONClient
}

// NewAntifraud creates an antifraud client
func NewAntifraud(baseURL, apiKey string, client *http.Client) *Antifraud {
	return &Antifraud{client: newClient("antifraud", baseURL, apiKey, client)}
}

// GetWorkflowDecision returns the workflow history and score for the request
func (a *Antifraud) GetWorkflowDecision(ctx context.Context, req *domain.AntifraudContext) (*domain.AntifraudDecision, error) {
	var decision domain.AntifraudDecision
	if err := a.client.Do(ctx, http.MethodPost, "/v1/workflows/decision", req, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}
