package collaborators

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/kevin07696/transaction-orchestrator/pkg/httpclient"
	"github.com/shopspring/decimal"
)

// Ensure Conversion implements the port
var _ ports.CurrencyConverter = (*Conversion)(nil)

type conversionRequest struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// Conversion converts amounts through the exchange-rate service
type Conversion struct {
	client *httpclient.JSONClient
}

// NewConversion creates a conversion client
func NewConversion(baseURL, apiKey string, client *http.Client) *Conversion {
	return &Conversion{client: newClient("currency-conversion", baseURL, apiKey, client)}
}

// Convert returns amount expressed in the to currency
func (c *Conversion) Convert(ctx context.Context, from, to string, amount decimal.Decimal) (*domain.ConvertedAmount, error) {
	var converted domain.ConvertedAmount
	err := c.client.Do(ctx, http.MethodPost, "/v1/conversions", &conversionRequest{
		From:   strings.ToUpper(from),
		To:     strings.ToUpper(to),
		Amount: amount,
	}, &converted)
	if err != nil {
		return nil, err
	}
	if converted.Currency == "" {
		converted.Currency = strings.ToUpper(to)
	}
	if !strings.EqualFold(converted.Currency, to) {
		return nil, fmt.Errorf("conversion returned %s, asked for %s", converted.Currency, to)
	}
	return &converted, nil
}
