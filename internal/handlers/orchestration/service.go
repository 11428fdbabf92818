// Package orchestration exposes the transaction orchestrators over gRPC and REST.
// Both transports carry the domain request and result types as JSON.
package orchestration

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "orchestrator.v1.TransactionService"

// Charger runs charge, pre-authorization and re-authorization
type Charger interface {
	Charge(ctx context.Context, req *domain.ChargeRequest) (*domain.ChargeResult, error)
	PreAuthorize(ctx context.Context, req *domain.ChargeRequest) (*domain.ChargeResult, error)
	ReAuthorize(ctx context.Context, req *domain.ChargeRequest) (*domain.ChargeResult, error)
}

// Voider voids approved transactions
type Voider interface {
	Void(ctx context.Context, req *domain.VoidRequest) (*domain.VoidResult, error)
}

// Capturer captures pre-authorizations
type Capturer interface {
	Capture(ctx context.Context, req *domain.CaptureRequest) (*domain.CaptureResult, error)
}

// Tokenizer issues single-use tokens
type Tokenizer interface {
	Tokenize(ctx context.Context, req *domain.TokenizeRequest) (*domain.TokenizeResult, error)
}

// TransactionReader looks up stored transactions
type TransactionReader interface {
	GetByTicket(ctx context.Context, ticketNumber string) (*domain.Transaction, error)
}

// GetTransactionRequest fetches one transaction owned by MerchantID
type GetTransactionRequest struct {
	TicketNumber string `json:"ticketNumber"`
	MerchantID   string `json:"merchantId"`
}

// TransactionServiceServer is the handler type registered with gRPC
type TransactionServiceServer interface {
	Charge(ctx context.Context, req *domain.ChargeRequest) (*domain.ChargeResult, error)
	PreAuthorize(ctx context.Context, req *domain.ChargeRequest) (*domain.ChargeResult, error)
	ReAuthorize(ctx context.Context, req *domain.ChargeRequest) (*domain.ChargeResult, error)
	Capture(ctx context.Context, req *domain.CaptureRequest) (*domain.CaptureResult, error)
	Void(ctx context.Context, req *domain.VoidRequest) (*domain.VoidResult, error)
	Tokenize(ctx context.Context, req *domain.TokenizeRequest) (*domain.TokenizeResult, error)
	GetTransaction(ctx context.Context, req *GetTransactionRequest) (*domain.Transaction, error)
}

// Server adapts the orchestrators to the transport. Every error it returns is a gRPC status.
type Server struct {
	charges      Charger
	voids        Voider
	captures     Capturer
	tokens       Tokenizer
	transactions TransactionReader
	logger       *zap.Logger
}

// NewServer creates the transport server
func NewServer(
	charges Charger,
	voids Voider,
	captures Capturer,
	tokens Tokenizer,
	transactions TransactionReader,
	logger *zap.Logger,
) *Server {
	return &Server{
		charges:      charges,
		voids:        voids,
		captures:     captures,
		tokens:       tokens,
		transactions: transactions,
		logger:       logger,
	}
}

var _ TransactionServiceServer = (*Server)(nil)

// Charge authorizes and captures in one step
func (s *Server) Charge(ctx context.Context, req *domain.ChargeRequest) (*domain.ChargeResult, error) {
	return s.charge(ctx, "Charge", req, s.charges.Charge)
}

// PreAuthorize holds funds for a later capture
func (s *Server) PreAuthorize(ctx context.Context, req *domain.ChargeRequest) (*domain.ChargeResult, error) {
	return s.charge(ctx, "PreAuthorize", req, s.charges.PreAuthorize)
}

// ReAuthorize extends an existing pre-authorization
func (s *Server) ReAuthorize(ctx context.Context, req *domain.ChargeRequest) (*domain.ChargeResult, error) {
	if err := requireField("ticketNumber", req.ReferenceTicket); err != nil {
		return nil, toStatus(err, "")
	}
	return s.charge(ctx, "ReAuthorize", req, s.charges.ReAuthorize)
}

func (s *Server) charge(
	ctx context.Context,
	op string,
	req *domain.ChargeRequest,
	run func(context.Context, *domain.ChargeRequest) (*domain.ChargeResult, error),
) (*domain.ChargeResult, error) {
	if err := validateAuthorizer(req.Authorizer); err != nil {
		return nil, toStatus(err, "")
	}
	if err := requireField("token", req.TokenID); err != nil {
		return nil, toStatus(err, "")
	}

	result, err := run(ctx, req)
	if err != nil {
		ticket := ""
		if result != nil {
			ticket = result.TicketNumber
		}
		s.logFailure(op, req.Authorizer.MerchantID, ticket, err)
		return nil, toStatus(err, ticket)
	}
	return result, nil
}

// Capture captures all or part of a pre-authorization
func (s *Server) Capture(ctx context.Context, req *domain.CaptureRequest) (*domain.CaptureResult, error) {
	if err := validateAuthorizer(req.Authorizer); err != nil {
		return nil, toStatus(err, "")
	}
	if err := requireField("ticketNumber", req.TicketNumber); err != nil {
		return nil, toStatus(err, "")
	}

	result, err := s.captures.Capture(ctx, req)
	if err != nil {
		s.logFailure("Capture", req.Authorizer.MerchantID, req.TicketNumber, err)
		return nil, toStatus(err, "")
	}
	return result, nil
}

// Void voids all or part of an approved transaction
func (s *Server) Void(ctx context.Context, req *domain.VoidRequest) (*domain.VoidResult, error) {
	if err := validateAuthorizer(req.Authorizer); err != nil {
		return nil, toStatus(err, "")
	}
	if err := requireField("ticketNumber", req.TicketNumber); err != nil {
		return nil, toStatus(err, "")
	}

	result, err := s.voids.Void(ctx, req)
	if err != nil {
		s.logFailure("Void", req.Authorizer.MerchantID, req.TicketNumber, err)
		return nil, toStatus(err, "")
	}
	return result, nil
}

// Tokenize issues a single-use token for the card
func (s *Server) Tokenize(ctx context.Context, req *domain.TokenizeRequest) (*domain.TokenizeResult, error) {
	if err := validateAuthorizer(req.Authorizer); err != nil {
		return nil, toStatus(err, "")
	}

	result, err := s.tokens.Tokenize(ctx, req)
	if err != nil {
		s.logFailure("Tokenize", req.Authorizer.MerchantID, "", err)
		return nil, toStatus(err, "")
	}
	return result, nil
}

// GetTransaction returns a transaction when it belongs to the requesting merchant
func (s *Server) GetTransaction(ctx context.Context, req *GetTransactionRequest) (*domain.Transaction, error) {
	if err := requireField("merchantId", req.MerchantID); err != nil {
		return nil, toStatus(err, "")
	}
	if err := requireField("ticketNumber", req.TicketNumber); err != nil {
		return nil, toStatus(err, "")
	}

	txn, err := s.transactions.GetByTicket(ctx, req.TicketNumber)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, toStatus(domain.ErrTransactionNotFound(req.TicketNumber), "")
	}
	if err != nil {
		s.logFailure("GetTransaction", req.MerchantID, req.TicketNumber, err)
		return nil, toStatus(domain.ErrInternal(err), "")
	}
	if txn.MerchantID != req.MerchantID {
		return nil, toStatus(domain.ErrMerchantMismatch(), "")
	}
	return txn, nil
}

func (s *Server) logFailure(op, merchantID, ticket string, err error) {
	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("merchant_id", merchantID),
		zap.String("kind", string(domain.GetErrorKind(err))),
		zap.Error(err),
	}
	if ticket != "" {
		fields = append(fields, zap.String("ticket_number", ticket))
	}
	switch domain.GetErrorKind(err) {
	case domain.KindInfrastructure, domain.KindIntegrityViolation:
		s.logger.Error("Operation failed", fields...)
	default:
		s.logger.Info("Operation rejected", fields...)
	}
}

func validateAuthorizer(auth domain.AuthorizerContext) error {
	return requireField("authorizer.merchantId", auth.MerchantID)
}

func requireField(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return domain.ErrInvalidRequest(field, "is required")
	}
	return nil
}

// Register adds the service to a gRPC server
func Register(registrar grpc.ServiceRegistrar, srv TransactionServiceServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the transaction service for grpc.ServiceRegistrar
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TransactionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Charge", TransactionServiceServer.Charge),
		unary("PreAuthorize", TransactionServiceServer.PreAuthorize),
		unary("ReAuthorize", TransactionServiceServer.ReAuthorize),
		unary("Capture", TransactionServiceServer.Capture),
		unary("Void", TransactionServiceServer.Void),
		unary("Tokenize", TransactionServiceServer.Tokenize),
		unary("GetTransaction", TransactionServiceServer.GetTransaction),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "orchestrator/v1/transaction.proto",
}

// FullMethod returns the gRPC method path for name
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req any, Resp any](name string, call func(TransactionServiceServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "decode %s request: %v", name, err)
			}
			server := srv.(TransactionServiceServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(server, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
