// Package void reverses approved transactions, fully or partially, within their pending amount.
package void

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/transaction-orchestrator/internal/config"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/kevin07696/transaction-orchestrator/internal/services/amount"
	"github.com/kevin07696/transaction-orchestrator/internal/services/events"
	"github.com/kevin07696/transaction-orchestrator/internal/services/external"
	"github.com/kevin07696/transaction-orchestrator/pkg/observability"
	"github.com/kevin07696/transaction-orchestrator/pkg/resilience"
	"github.com/kevin07696/transaction-orchestrator/pkg/timeutil"
)

// Dependencies are the collaborators of the void orchestrator
type Dependencies struct {
	Amounts      *amount.Policy
	Publisher    *events.Publisher
	Registry     ports.ProcessorRegistry
	Transactions ports.TransactionStore
	Receivables  ports.ReceivableChecker
	Policy       *config.Policy
	Timeouts     *resilience.TimeoutConfig
	Logger       ports.Logger
}

// Orchestrator runs LOADING_ORIGINAL, ELIGIBILITY_CHECK, AMOUNT_RESOLUTION, AUTHORIZING_VOID and PERSISTING
type Orchestrator struct {
	Dependencies
	now   func() time.Time
	newID func() string
}

// NewOrchestrator creates a new void orchestrator
func NewOrchestrator(deps Dependencies) *Orchestrator {
	return &Orchestrator{
		Dependencies: deps,
		now:          timeutil.Now,
		newID:        func() string { return uuid.New().String() },
	}
}

// WithClock replaces the clock, for tests
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Void reverses req.Amount, or the whole pending amount when no amount is given.
// Integrity violations are reported to the alerting channel before being returned.
func (o *Orchestrator) Void(ctx context.Context, req *domain.VoidRequest) (result *domain.VoidResult, err error) {
	start := o.now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(domain.GetErrorKind(err))
		}
		observability.RecordOperation(string(domain.TransactionTypeVoid), outcome, o.now().Sub(start))
	}()

	budget := resilience.NewBudgetWithClock(ctx, o.Timeouts.DefaultRequestBudget, o.now)
	ctx, cancel := context.WithDeadline(ctx, budget.Deadline())
	defer cancel()

	original, err := o.loadOriginal(ctx, req)
	if err != nil {
		return nil, err
	}

	resolution, err := o.checkEligibility(ctx, original, req)
	if err != nil {
		o.Publisher.AlertOnIntegrityViolation(ctx, err, original.MerchantID, original.TicketNumber)
		o.Logger.Warn("void rejected",
			ports.String("ticket_number", original.TicketNumber),
			ports.String("code", string(domain.GetErrorCode(err))),
			ports.Err(err),
		)
		return nil, err
	}

	adapter, err := o.Registry.Adapter(original.ProcessorName, integrationMode(original))
	if err != nil {
		return nil, fmt.Errorf("resolve adapter %s: %w", original.ProcessorName, err)
	}

	remaining, err := o.reserve(ctx, original, resolution)
	if err != nil {
		return nil, err
	}

	resp, err := o.authorizeVoid(ctx, adapter, original, resolution)
	if err != nil {
		o.release(ctx, original, resolution, err)
		return nil, err
	}

	return o.persist(ctx, original, req, resolution, resp, remaining)
}

// loadOriginal fetches the transaction and checks it can be voided at all
func (o *Orchestrator) loadOriginal(ctx context.Context, req *domain.VoidRequest) (*domain.Transaction, error) {
	if req.TicketNumber == "" {
		return nil, domain.ErrInvalidRequest("ticketNumber", "ticket number is required")
	}

	original, err := external.Call(ctx, o.Timeouts.External, "transaction-store", func(ctx context.Context) (*domain.Transaction, error) {
		return o.Transactions.GetByTicket(ctx, req.TicketNumber)
	})
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, domain.ErrTransactionNotFound(req.TicketNumber)
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if original.MerchantID != req.Authorizer.MerchantID {
		return nil, domain.ErrMerchantMismatch()
	}
	if reason := original.VoidBlocker(); reason != "" {
		return nil, domain.ErrNotVoidable(reason)
	}
	return original, nil
}

// checkEligibility enforces the time limit, resolves the amount and runs the receivable check
func (o *Orchestrator) checkEligibility(ctx context.Context, original *domain.Transaction, req *domain.VoidRequest) (*amount.VoidResolution, error) {
	if limit, ok := o.Policy.VoidLimitFor(original.Country, original.ProcessorName); ok {
		if age := timeutil.Since(original.CreatedAt, o.now()); age > limit {
			return nil, domain.ErrVoidTimeLimit(age, limit)
		}
	}

	resolution, err := o.Amounts.ResolveVoid(original, req.Amount)
	if err != nil {
		return nil, err
	}

	if o.Policy.RequiresReceivableCheck(original.Country, original.ProcessorName) {
		receivable, err := external.Call(ctx, o.Timeouts.External, "receivable", func(ctx context.Context) (bool, error) {
			return o.Receivables.IsReceivable(ctx, original)
		})
		if err != nil {
			return nil, fmt.Errorf("receivable check: %w", err)
		}
		if receivable {
			return nil, domain.ErrReceivableRejected(original.TicketNumber)
		}
	}
	return resolution, nil
}

// reserve takes the void amount off pending_amount before the processor is called.
// Of several concurrent voids only those that still fit the pending amount get through.
func (o *Orchestrator) reserve(ctx context.Context, original *domain.Transaction, resolution *amount.VoidResolution) (decimal.Decimal, error) {
	remaining, err := external.Call(ctx, o.Timeouts.External, "transaction-store", func(ctx context.Context) (decimal.Decimal, error) {
		return o.Transactions.DecrementPending(ctx, original.TicketNumber, resolution.Amount)
	})
	if err == nil {
		return remaining, nil
	}
	if errors.Is(err, ports.ErrConditionFailed) {
		overVoid := domain.ErrVoidOverPending(resolution.Amount, original.PendingAmount).
			WithDetail("reason", "pending amount changed concurrently")
		o.Publisher.AlertOnIntegrityViolation(ctx, overVoid, original.MerchantID, original.TicketNumber)
		return decimal.Zero, overVoid
	}
	return decimal.Zero, fmt.Errorf("reserve void amount: %w", err)
}

// release gives a reserved amount back after the processor refused the void.
// When the outcome is unknown the amount stays reserved.
func (o *Orchestrator) release(ctx context.Context, original *domain.Transaction, resolution *amount.VoidResolution, failure error) {
	if !external.Refused(failure) {
		return
	}
	writeCtx, cancel := external.Detached(ctx, o.Timeouts.External)
	defer cancel()

	if _, err := o.Transactions.RestorePending(writeCtx, original.TicketNumber, resolution.Amount); err != nil {
		o.Logger.Error("reserved void amount not restored",
			ports.String("ticket_number", original.TicketNumber),
			ports.String("amount", resolution.Amount.String()),
			ports.Err(err),
		)
		o.Publisher.Alert(ctx, &domain.OperationalAlert{
			Code:         string(domain.ErrorCodeInternal),
			MerchantID:   original.MerchantID,
			TicketNumber: original.TicketNumber,
			Message:      "void refused by processor but pending amount not restored",
			Details:      map[string]string{"amount": resolution.Amount.String(), "error": err.Error()},
		})
	}
}

// authorizeVoid asks the original processor to reverse the amount. Voids never fail over.
func (o *Orchestrator) authorizeVoid(
	ctx context.Context,
	adapter ports.ProcessorAdapter,
	original *domain.Transaction,
	resolution *amount.VoidResolution,
) (*domain.ProviderResponse, error) {
	procReq := &domain.ProcessorRequest{
		Amount:               domain.FullAmount(original.SettlementCurrency(), resolution.Amount),
		TotalAmount:          resolution.Amount,
		Security:             original.Security,
		SubMerchant:          original.SubMerchant,
		Card:                 original.Card,
		TransactionType:      domain.TransactionTypeVoid,
		MerchantID:           original.MerchantID,
		ProcessorName:        original.ProcessorName,
		PrivateID:            original.ProcessorID,
		TokenID:              original.TokenID,
		Currency:             original.SettlementCurrency(),
		MCC:                  original.MCC,
		TicketNumber:         original.TicketNumber,
		TransactionReference: original.TransactionReference,
		ForceRefund:          resolution.ForceRefund,
		PartialVoid:          resolution.PartialVoid,
	}

	o.Logger.Info("voiding",
		ports.String("ticket_number", original.TicketNumber),
		ports.String("processor", original.ProcessorName),
		ports.String("amount", resolution.Amount.String()),
		ports.Bool("partial_void", resolution.PartialVoid),
	)

	resp, err := external.Call(ctx, o.Timeouts.External, "processor:"+adapter.Name(), func(ctx context.Context) (*domain.ProviderResponse, error) {
		return adapter.Void(ctx, procReq)
	})
	if err == nil {
		return resp, nil
	}

	failure := external.ProcessorFailure(original.ProcessorName, "void", err)
	o.Logger.Error("void not authorized",
		ports.String("ticket_number", original.TicketNumber),
		ports.String("processor", original.ProcessorName),
		ports.Err(err),
	)
	if !external.Refused(failure) {
		code := domain.GetErrorCode(failure)
		if code == "" {
			code = domain.ErrorCodeInternal
		}
		o.Publisher.Alert(ctx, &domain.OperationalAlert{
			Code:         string(code),
			MerchantID:   original.MerchantID,
			TicketNumber: original.TicketNumber,
			Message:      "void outcome unknown, amount kept reserved",
			Details:      map[string]string{"processor": original.ProcessorName, "amount": resolution.Amount.String()},
		})
	}
	return nil, failure
}

// persist writes the VOID record for an amount already taken off the original
func (o *Orchestrator) persist(
	ctx context.Context,
	original *domain.Transaction,
	req *domain.VoidRequest,
	resolution *amount.VoidResolution,
	resp *domain.ProviderResponse,
	remaining decimal.Decimal,
) (*domain.VoidResult, error) {
	writeCtx, cancel := external.Detached(ctx, o.Timeouts.External)
	defer cancel()

	record := o.voidRecord(original, req, resolution, resp)
	if err := o.Transactions.ConditionalPut(writeCtx, record); err != nil {
		o.Logger.Error("void record not persisted",
			ports.String("ticket_number", record.TicketNumber),
			ports.String("original_ticket", original.TicketNumber),
			ports.Err(err),
		)
		o.Publisher.Alert(ctx, &domain.OperationalAlert{
			Code:         string(domain.ErrorCodeInternal),
			MerchantID:   original.MerchantID,
			TicketNumber: original.TicketNumber,
			Message:      "void record could not be persisted",
			Details:      map[string]string{"voidTicket": record.TicketNumber, "error": err.Error()},
		})
	} else {
		o.Publisher.PublishTransaction(ctx, record)
	}

	o.Logger.Info("transaction voided",
		ports.String("ticket_number", original.TicketNumber),
		ports.String("void_ticket", record.TicketNumber),
		ports.String("pending_amount", remaining.String()),
	)

	return &domain.VoidResult{
		Transaction:          record,
		VoidedAmount:         resolution.Amount,
		PendingAmount:        remaining,
		TicketNumber:         record.TicketNumber,
		OriginalTicketNumber: original.TicketNumber,
		Currency:             original.SettlementCurrency(),
		PartialVoid:          resolution.PartialVoid,
		ForceRefund:          resolution.ForceRefund,
	}, nil
}

func (o *Orchestrator) voidRecord(
	original *domain.Transaction,
	req *domain.VoidRequest,
	resolution *amount.VoidResolution,
	resp *domain.ProviderResponse,
) *domain.Transaction {
	requested := domain.FullAmount(original.SettlementCurrency(), resolution.Amount)
	if req.Amount != nil {
		requested = *req.Amount
	}

	record := &domain.Transaction{
		CreatedAt:                 o.now(),
		Amount:                    requested,
		RequestAmount:             requested.Total(),
		ApprovedTransactionAmount: resolution.Amount,
		PendingAmount:             decimal.Zero,
		ConvertedAmount:           original.ConvertedAmount,
		Security:                  original.Security,
		SubMerchant:               original.SubMerchant,
		Traceability:              original.Traceability,
		Card:                      original.Card,
		TransactionReference:      original.TransactionReference,
		TransactionID:             o.newID(),
		MerchantID:                original.MerchantID,
		MerchantName:              original.MerchantName,
		ProcessorID:               original.ProcessorID,
		ProcessorName:             original.ProcessorName,
		IntegrationMode:           original.IntegrationMode,
		TransactionType:           domain.TransactionTypeVoid,
		Status:                    domain.TransactionStatusApproval,
		CurrencyCode:              original.CurrencyCode,
		Country:                   original.Country,
		TokenID:                   original.TokenID,
		AcquirerBank:              original.AcquirerBank,
		IssuingBank:               original.IssuingBank,
		MCC:                       original.MCC,
		OriginalTicketNumber:      original.TicketNumber,
		PartialVoid:               resolution.PartialVoid,
		ForceRefund:               resolution.ForceRefund,
	}
	if resp != nil {
		record.TicketNumber = resp.TicketNumber
		record.ApprovalCode = resp.ApprovalCode
		record.ResponseCode = resp.ResponseCode
		record.ResponseText = resp.ResponseText
		record.Metadata = resp.Metadata
	}
	if record.TicketNumber == "" || record.TicketNumber == original.TicketNumber {
		record.TicketNumber = o.newID()
	}
	return record
}

func integrationMode(txn *domain.Transaction) domain.IntegrationMode {
	if txn.IntegrationMode == "" {
		return domain.IntegrationAggregator
	}
	return txn.IntegrationMode
}
