package orchestration_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/handlers/orchestration"
)

func newREST(t *testing.T, d *deps) http.Handler {
	t.Helper()
	h, err := orchestration.NewRESTHandler(orchestration.NewServer(d.charges, d.voids, d.captures, d.tokens, d.reader, zap.NewNop()))
	require.NoError(t, err)
	return h
}

func TestREST_Routes(t *testing.T) {
	d := newDeps()
	h := newREST(t, d)

	d.charges.On("Charge", mock.Anything, mock.Anything).Return(&domain.ChargeResult{
		ApprovedAmount: decimal.RequireFromString("12.5"),
		TicketNumber:   "84383487",
		Status:         domain.TransactionStatusApproval,
	}, nil)
	d.charges.On("PreAuthorize", mock.Anything, mock.Anything).Return(
		&domain.ChargeResult{TicketNumber: "555000111", Status: domain.TransactionStatusDeclined},
		domain.ErrProcessorDeclined(&domain.ProcessorError{ProcessorCode: "51", ProcessorMessage: "Insufficient funds"}),
	)
	d.voids.On("Void", mock.Anything, mock.Anything).Return(nil, domain.ErrTransactionNotFound("999"))
	d.tokens.On("Tokenize", mock.Anything, mock.Anything).Return(&domain.TokenizeResult{Token: "tok-9"}, nil)
	d.reader.On("GetByTicket", mock.Anything, "84383487").Return(&domain.Transaction{TicketNumber: "84383487", MerchantID: "m-1"}, nil)

	charge := `{"authorizer":{"merchantId":"m-1"},"token":"tok-1","amount":{"currency":"USD","subtotalIva0":12.5}}`

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		merchant string
		status   int
		contains []string
	}{
		{name: "charge", method: http.MethodPost, path: "/v1/charges", body: charge, status: http.StatusCreated, contains: []string{`"ticketNumber":"84383487"`, `"transactionStatus":"APPROVAL"`}},
		{name: "declined preauth", method: http.MethodPost, path: "/v1/preauthorizations", body: charge, status: http.StatusBadRequest, contains: []string{`"code":"K006"`, `"ticketNumber":"555000111"`}},
		{name: "void unknown ticket", method: http.MethodPost, path: "/v1/voids", body: `{"authorizer":{"merchantId":"m-1"},"ticketNumber":"999"}`, status: http.StatusNotFound, contains: []string{`"code":"K041"`}},
		{name: "tokenize", method: http.MethodPost, path: "/v1/tokens", body: `{"authorizer":{"merchantId":"m-1"},"card":{"number":"4111111111111111"}}`, status: http.StatusCreated, contains: []string{`"token":"tok-9"`}},
		{name: "malformed body", method: http.MethodPost, path: "/v1/charges", body: `{"token":`, status: http.StatusBadRequest, contains: []string{`"code":"K001"`}},
		{name: "empty body", method: http.MethodPost, path: "/v1/captures", body: ``, status: http.StatusBadRequest, contains: []string{"request body is empty"}},
		{name: "get own transaction", method: http.MethodGet, path: "/v1/transactions/84383487", merchant: "m-1", status: http.StatusOK, contains: []string{`"ticketNumber":"84383487"`}},
		{name: "get other merchant", method: http.MethodGet, path: "/v1/transactions/84383487", merchant: "m-2", status: http.StatusForbidden, contains: []string{`"code":"K004"`}},
		{name: "unknown route", method: http.MethodGet, path: "/v1/refunds", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.merchant != "" {
				req.Header.Set(orchestration.MerchantHeader, tt.merchant)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			for _, want := range tt.contains {
				assert.Contains(t, rec.Body.String(), want)
			}
		})
	}
}
