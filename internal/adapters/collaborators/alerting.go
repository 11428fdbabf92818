package collaborators

import (
	"context"
	"net/http"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/kevin07696/transaction-orchestrator/pkg/httpclient"
)

// Ensure Alerting implements the port
var _ ports.OperationalAlerter = (*Alerting)(nil)

// Alerting posts operational alerts to the on-call channel
type Alerting struct {
	client *httpclient.JSONClient
}

// NewAlerting creates an alerting client
func NewAlerting(baseURL, apiKey string, client *http.Client) *Alerting {
	return &Alerting{client: newClient("alerting", baseURL, apiKey, client)}
}

// Report sends one alert
func (a *Alerting) Report(ctx context.Context, alert *domain.OperationalAlert) error {
	return a.client.Do(ctx, http.MethodPost, "/v1/alerts", alert, nil)
}
