package collaborators

import (
	"context"
	"net/http"
	"net/url"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/kevin07696/transaction-orchestrator/pkg/httpclient"
)

// Ensure Bins implements the port
var _ ports.BinFetcher = (*Bins)(nil)

// Bins looks up issuer information for a card prefix
type Bins struct {
	client *httpclient.JSONClient
}

// NewBins creates a bin lookup client
func NewBins(baseURL, apiKey string, client *http.Client) *Bins {
	return &Bins{client: newClient("bin-lookup", baseURL, apiKey, client)}
}

// GetBin returns ports.ErrNotFound for unknown bins
func (b *Bins) GetBin(ctx context.Context, bin string) (*domain.BinInfo, error) {
	var info domain.BinInfo
	if err := b.client.Do(ctx, http.MethodGet, "/v1/bins/"+url.PathEscape(bin), nil, &info); err != nil {
		if httpclient.IsStatus(err, http.StatusNotFound) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	if info.Bin == "" {
		info.Bin = bin
	}
	return &info, nil
}
