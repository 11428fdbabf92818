package collaborators

import (
	"context"
	"net/http"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/kevin07696/transaction-orchestrator/pkg/httpclient"
)

// Ensure Receivables implements the port
var _ ports.ReceivableChecker = (*Receivables)(nil)

type receivableQuery struct {
	TicketNumber         string `json:"ticketNumber"`
	TransactionReference string `json:"transactionReference"`
	MerchantID           string `json:"merchantId"`
	ProcessorName        string `json:"processorName"`
	Country              string `json:"country"`
}

type receivableAnswer struct {
	Receivable bool `json:"receivable"`
}

// Receivables asks whether a transaction is already part of a receivable
type Receivables struct {
	client *httpclient.JSONClient
}

// NewReceivables creates a receivables client
func NewReceivables(baseURL, apiKey string, client *http.Client) *Receivables {
	return &Receivables{client: newClient("receivable", baseURL, apiKey, client)}
}

// IsReceivable reports whether txn was sold as a receivable and can no longer be voided
func (r *Receivables) IsReceivable(ctx context.Context, txn *domain.Transaction) (bool, error) {
	var answer receivableAnswer
	err := r.client.Do(ctx, http.MethodPost, "/v1/receivables/check", &receivableQuery{
		TicketNumber:         txn.TicketNumber,
		TransactionReference: txn.TransactionReference,
		MerchantID:           txn.MerchantID,
		ProcessorName:        txn.ProcessorName,
		Country:              txn.Country,
	}, &answer)
	if err != nil {
		return false, err
	}
	return answer.Receivable, nil
}
