// Package collaborators holds the JSON-over-HTTP clients for the services the
// orchestrators consult: rule engine, antifraud, receivables, currency
// conversion, bin lookup and operational alerting.
package collaborators

import (
	"net/http"

	"github.com/kevin07696/transaction-orchestrator/pkg/httpclient"
)

// apiKeyHeader carries the shared collaborator credential
const apiKeyHeader = "X-Api-Key"

func newClient(name, baseURL, apiKey string, client *http.Client) *httpclient.JSONClient {
	c := httpclient.NewJSONClient(name, baseURL, client)
	if apiKey != "" {
		c.WithHeader(apiKeyHeader, apiKey)
	}
	return c
}

// ruleDecline is the body the rule engine sends with 422
type ruleDecline struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	ApprovalCode string `json:"approvalCode"`
	Processor    string `json:"processor"`
}
