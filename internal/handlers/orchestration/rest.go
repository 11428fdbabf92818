package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/pkg/encoding"
)

const (
	maxBodyBytes = 1 << 20

	// MerchantHeader identifies the caller on read routes that carry no body
	MerchantHeader = "X-Merchant-Id"
)

// NewRESTHandler serves the same operations as the gRPC service as JSON over HTTP
func NewRESTHandler(srv TransactionServiceServer) (http.Handler, error) {
	mux := runtime.NewServeMux()

	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{http.MethodPost, "/v1/charges", post(srv.Charge, http.StatusCreated)},
		{http.MethodPost, "/v1/preauthorizations", post(srv.PreAuthorize, http.StatusCreated)},
		{http.MethodPost, "/v1/reauthorizations", post(srv.ReAuthorize, http.StatusCreated)},
		{http.MethodPost, "/v1/captures", post(srv.Capture, http.StatusCreated)},
		{http.MethodPost, "/v1/voids", post(srv.Void, http.StatusCreated)},
		{http.MethodPost, "/v1/tokens", post(srv.Tokenize, http.StatusCreated)},
		{http.MethodGet, "/v1/transactions/{ticketNumber}", getTransaction(srv)},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", r.method, r.pattern, err)
		}
	}
	return mux, nil
}

func post[Req any, Resp any](call func(context.Context, *Req) (Resp, error), success int) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		in := new(Req)
		if err := decodeBody(w, r, in); err != nil {
			writeFailure(w, Failure{
				Code:     string(domain.ErrorCodeInvalidRequestBody),
				Message:  err.Error(),
				grpcCode: codes.InvalidArgument,
			})
			return
		}

		out, err := call(r.Context(), in)
		if err != nil {
			writeStatusError(w, err)
			return
		}
		_ = encoding.WriteJSON(w, success, out)
	}
}

func getTransaction(srv TransactionServiceServer) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		txn, err := srv.GetTransaction(r.Context(), &GetTransactionRequest{
			TicketNumber: params["ticketNumber"],
			MerchantID:   r.Header.Get(MerchantHeader),
		})
		if err != nil {
			writeStatusError(w, err)
			return
		}
		_ = encoding.WriteJSON(w, http.StatusOK, txn)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeStatusError renders a status produced by toStatus
func writeStatusError(w http.ResponseWriter, err error) {
	st := status.Convert(err)
	f := Failure{
		Code:     string(domain.ErrorCodeInternal),
		Message:  st.Message(),
		grpcCode: st.Code(),
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == ErrorDomain {
			f.Code = info.GetReason()
			f.TicketNumber = info.GetMetadata()["ticketNumber"]
		}
	}
	writeFailure(w, f)
}

func writeFailure(w http.ResponseWriter, f Failure) {
	_ = encoding.WriteJSON(w, runtime.HTTPStatusFromCode(f.grpcCode), f)
}
