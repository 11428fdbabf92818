package charge

import (
	"context"
	"errors"
	"fmt"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/kevin07696/transaction-orchestrator/internal/services/external"
	"github.com/kevin07696/transaction-orchestrator/pkg/observability"
	"github.com/shopspring/decimal"
)

// authorize runs AUTHORIZING and, for reachability failures, at most one FAILOVER_AUTHORIZING
func (o *Orchestrator) authorize(ctx context.Context, a *attempt, adapter ports.ProcessorAdapter) (*domain.ChargeResult, error) {
	procReq := o.processorRequest(a, a.route.ProcessorName, a.route.PrivateID, a.route.PublicID)

	resp, err := o.invoke(ctx, adapter, a.req.TransactionType, procReq)
	if err == nil {
		return o.approve(ctx, a, adapter.Name(), resp, false)
	}

	var reach *domain.ReachabilityError
	if !errors.As(err, &reach) {
		return o.authorizeFailed(ctx, a, adapter.Name(), err)
	}

	failover := a.route.FailOver
	if failover == nil || failover.ProcessorName == "" {
		return o.authorizeFailed(ctx, a, adapter.Name(), err)
	}
	if !a.budget.Allows(o.Timeouts.FailoverSafetyThreshold) {
		o.Logger.Warn("fail-over skipped, budget below safety threshold",
			ports.String("processor", adapter.Name()),
			ports.String("failover", failover.ProcessorName),
			ports.Duration("remaining", a.budget.Remaining()),
		)
		observability.RecordFailover(adapter.Name(), failover.ProcessorName, "skipped")
		return o.authorizeFailed(ctx, a, adapter.Name(), err)
	}

	alternate, regErr := o.Registry.Adapter(failover.ProcessorName, failover.IntegrationMode)
	if regErr != nil {
		o.Logger.Error("fail-over adapter unavailable",
			ports.String("failover", failover.ProcessorName),
			ports.Err(regErr),
		)
		return o.authorizeFailed(ctx, a, adapter.Name(), err)
	}

	o.Logger.Warn("primary processor unreachable, failing over",
		ports.String("processor", adapter.Name()),
		ports.String("failover", failover.ProcessorName),
		ports.Err(err),
	)
	a.route.ProcessorName = failover.ProcessorName
	a.route.PrivateID = failover.PrivateID
	a.route.PublicID = failover.PublicID
	a.route.IntegrationMode = failover.IntegrationMode

	failReq := o.processorRequest(a, failover.ProcessorName, failover.PrivateID, failover.PublicID)
	resp, err = o.invoke(ctx, alternate, a.req.TransactionType, failReq)
	if err == nil {
		observability.RecordFailover(adapter.Name(), failover.ProcessorName, "approved")
		return o.approve(ctx, a, alternate.Name(), resp, true)
	}

	observability.RecordFailover(adapter.Name(), failover.ProcessorName, "failed")
	result, failErr := o.authorizeFailed(ctx, a, alternate.Name(), err)
	var declined *domain.ProcessorError
	if errors.As(err, &declined) {
		// a failed fail-over always emits a compensating void, declines included
		o.emitCompensatingVoid(ctx, a, alternate.Name(), "fail-over declined", domain.ErrorCodeProcessorDeclined)
	}
	return result, failErr
}

// invoke calls the operation matching the transaction type under the external timeout
func (o *Orchestrator) invoke(ctx context.Context, adapter ports.ProcessorAdapter, txnType domain.TransactionType, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	return external.Call(ctx, o.Timeouts.External, "processor:"+adapter.Name(), func(ctx context.Context) (*domain.ProviderResponse, error) {
		switch txnType {
		case domain.TransactionTypePreAuth:
			return adapter.PreAuthorize(ctx, req)
		case domain.TransactionTypeReAuth:
			return adapter.ReAuthorize(ctx, req)
		default:
			return adapter.Charge(ctx, req)
		}
	})
}

// authorizeFailed persists the failed attempt once and maps the failure to its error code.
// Every outcome except a structured decline also emits a compensating void.
func (o *Orchestrator) authorizeFailed(ctx context.Context, a *attempt, processorName string, err error) (*domain.ChargeResult, error) {
	var procErr *domain.ProcessorError
	if errors.As(err, &procErr) {
		if procErr.ProcessorName == "" {
			procErr.ProcessorName = processorName
		}
		txn := o.persistDeclined(ctx, a, declineInfo{
			code:      string(domain.ErrorCodeProcessorDeclined),
			message:   procErr.ProcessorMessage,
			processor: processorName,
			procErr:   procErr,
		})
		o.Logger.Warn("processor declined",
			ports.String("processor", processorName),
			ports.String("processor_code", procErr.ProcessorCode),
			ports.String("ticket_number", txn.TicketNumber),
		)
		return resultFor(txn, false), domain.ErrProcessorDeclined(procErr)
	}

	var (
		code    domain.ErrorCode
		outErr  error
		message string
	)
	var reach *domain.ReachabilityError
	switch {
	case errors.As(err, &reach):
		code = domain.ErrorCodeProcessorUnreachable
		outErr = domain.ErrProcessorUnreachable(processorName, err)
		message = "processor unreachable"
	case domain.GetErrorCode(err) == domain.ErrorCodeExternalTimeout:
		code = domain.ErrorCodeExternalTimeout
		outErr = err
		message = "processor did not answer in time"
	default:
		code = domain.ErrorCodeInternal
		outErr = fmt.Errorf("authorize with %s: %w", processorName, err)
		message = "processor call failed"
	}

	txn := o.persistDeclined(ctx, a, declineInfo{code: string(code), message: message, processor: processorName})
	o.Logger.Error("authorization failed",
		ports.String("processor", processorName),
		ports.String("code", string(code)),
		ports.String("ticket_number", txn.TicketNumber),
		ports.Err(err),
	)
	o.emitCompensatingVoid(ctx, a, processorName, message, code)
	if code == domain.ErrorCodeExternalTimeout {
		o.Publisher.Alert(ctx, &domain.OperationalAlert{
			Code:         string(code),
			MerchantID:   a.token.MerchantID,
			TicketNumber: txn.TicketNumber,
			Message:      "authorization outcome unknown after timeout",
			Details:      map[string]string{"processor": processorName, "token": a.token.ID},
		})
	}
	return resultFor(txn, false), outErr
}

// approve runs PERSISTING and NOTIFIED for an approved authorization
func (o *Orchestrator) approve(ctx context.Context, a *attempt, processorName string, resp *domain.ProviderResponse, failedOver bool) (*domain.ChargeResult, error) {
	if ctx.Err() != nil || a.budget.Exhausted() {
		deadlineErr := domain.ErrExternalTimeout("request-deadline", domain.ErrBudgetExhausted)
		txn := o.persistDeclined(ctx, a, declineInfo{
			code:      string(domain.ErrorCodeExternalTimeout),
			message:   "request deadline passed after authorization",
			processor: processorName,
			resp:      resp,
		})
		o.emitCompensatingVoid(ctx, a, processorName, "deadline passed after authorization", domain.ErrorCodeExternalTimeout)
		o.Publisher.Alert(ctx, &domain.OperationalAlert{
			Code:         string(domain.ErrorCodeExternalTimeout),
			MerchantID:   a.token.MerchantID,
			TicketNumber: txn.TicketNumber,
			Message:      "authorization approved after the request deadline",
			Details:      map[string]string{"processor": processorName, "token": a.token.ID},
		})
		return resultFor(txn, false), deadlineErr
	}

	txn := o.buildTransaction(a, domain.TransactionStatusApproval, processorName, resp, declineInfo{})
	writeCtx, cancel := external.Detached(ctx, o.Timeouts.External)
	defer cancel()
	if err := o.Transactions.ConditionalPut(writeCtx, txn); err != nil {
		o.Logger.Error("approved transaction not persisted",
			ports.String("ticket_number", txn.TicketNumber),
			ports.String("processor", processorName),
			ports.Err(err),
		)
		o.emitCompensatingVoid(ctx, a, processorName, "approved transaction not persisted", domain.ErrorCodeInternal)
		o.Publisher.Alert(ctx, &domain.OperationalAlert{
			Code:         string(domain.ErrorCodeInternal),
			MerchantID:   txn.MerchantID,
			TicketNumber: txn.TicketNumber,
			Message:      "approved transaction could not be persisted",
			Details:      map[string]string{"processor": processorName, "error": err.Error()},
		})
		return nil, fmt.Errorf("persist transaction %s: %w", txn.TicketNumber, err)
	}

	if a.reference != nil {
		o.supersedeReference(writeCtx, a, txn)
	}

	o.Publisher.PublishTransaction(ctx, txn)
	o.Logger.Info("transaction approved",
		ports.String("ticket_number", txn.TicketNumber),
		ports.String("processor", processorName),
		ports.String("transaction_type", string(txn.TransactionType)),
		ports.Bool("failed_over", failedOver),
	)
	return resultFor(txn, failedOver), nil
}

// supersedeReference zeroes the pending amount of the pre-authorization a re-authorization replaced
func (o *Orchestrator) supersedeReference(ctx context.Context, a *attempt, txn *domain.Transaction) {
	zero := decimal.Zero
	err := o.Transactions.UpdateValues(ctx, a.reference.TicketNumber, ports.TransactionUpdate{
		PendingAmount: &zero,
		Metadata:      map[string]string{"supersededBy": txn.TicketNumber},
	})
	if err != nil {
		o.Logger.Error("pre-authorization not marked superseded",
			ports.String("ticket_number", a.reference.TicketNumber),
			ports.String("reauthorization", txn.TicketNumber),
			ports.Err(err),
		)
	}
}

// emitCompensatingVoid signals downstream that an authorization may exist without a record.
// Nothing is emitted when the token was never consumed, since no processor was called.
func (o *Orchestrator) emitCompensatingVoid(ctx context.Context, a *attempt, processorName, reason string, code domain.ErrorCode) {
	if !a.consumed {
		return
	}
	o.Publisher.CompensatingVoid(ctx, &domain.CompensatingVoid{
		Amount:        a.req.Amount.Total(),
		MerchantID:    a.token.MerchantID,
		TokenID:       a.token.ID,
		ProcessorName: processorName,
		Currency:      a.currency(),
		Reason:        reason,
		ErrorCode:     string(code),
	})
}
