package orchestration

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
)

// ErrorDomain is the ErrorInfo domain attached to every failed RPC
const ErrorDomain = "transaction-orchestrator"

// Failure is the caller-facing description of an error
type Failure struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	TicketNumber string `json:"ticketNumber,omitempty"`
	grpcCode     codes.Code
}

// describe classifies err. ticket is the record persisted for a declined
// attempt, empty when none was written.
func describe(err error, ticket string) Failure {
	f := Failure{TicketNumber: ticket}

	var domainErr *domain.DomainError
	var procErr *domain.ProcessorError
	var ruleErr *domain.DeclinedByRuleError
	var reachErr *domain.ReachabilityError
	switch {
	case errors.As(err, &domainErr):
		f.Code = string(domainErr.Code)
		f.Message = domainErr.Message
	case errors.As(err, &ruleErr):
		f.Code = string(domain.ErrorCodeDeclinedByRule)
		f.Message = ruleErr.Context.Message
	case errors.As(err, &procErr):
		f.Code = string(domain.ErrorCodeProcessorDeclined)
		f.Message = procErr.ProcessorMessage
	case errors.As(err, &reachErr):
		f.Code = string(domain.ErrorCodeProcessorUnreachable)
		f.Message = "processor unreachable"
	case errors.Is(err, context.DeadlineExceeded):
		f.Code = string(domain.ErrorCodeExternalTimeout)
		f.Message = "request deadline exceeded"
		f.grpcCode = codes.DeadlineExceeded
		return f
	case errors.Is(err, context.Canceled):
		f.Code = string(domain.ErrorCodeInternal)
		f.Message = "request canceled"
		f.grpcCode = codes.Canceled
		return f
	default:
		f.Code = string(domain.ErrorCodeInternal)
		f.Message = "internal server error"
	}

	kind := domain.GetErrorKind(err)
	if ruleErr != nil && domainErr == nil {
		kind = domain.KindBusinessRuleDecline
	}
	f.grpcCode = grpcCodeFor(kind, domain.ErrorCode(f.Code))
	if f.grpcCode == codes.Internal {
		f.Message = "internal server error"
	}
	return f
}

func grpcCodeFor(kind domain.ErrorKind, code domain.ErrorCode) codes.Code {
	switch kind {
	case domain.KindValidation:
		if code == domain.ErrorCodeMerchantMismatch {
			return codes.PermissionDenied
		}
		return codes.InvalidArgument
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindBusinessRuleDecline, domain.KindProcessorDeclined:
		return codes.FailedPrecondition
	case domain.KindIdempotencyConflict:
		return codes.AlreadyExists
	case domain.KindReachability:
		return codes.Unavailable
	case domain.KindExternalTimeout:
		return codes.DeadlineExceeded
	case domain.KindIntegrityViolation:
		return codes.Aborted
	default:
		return codes.Internal
	}
}

// toStatus converts err into a gRPC status carrying an ErrorInfo detail
func toStatus(err error, ticket string) error {
	f := describe(err, ticket)
	st := status.New(f.grpcCode, f.Message)

	info := &errdetails.ErrorInfo{
		Reason:   f.Code,
		Domain:   ErrorDomain,
		Metadata: map[string]string{},
	}
	if f.TicketNumber != "" {
		info.Metadata["ticketNumber"] = f.TicketNumber
	}
	if detailed, detailErr := st.WithDetails(info); detailErr == nil {
		st = detailed
	}
	return st.Err()
}
