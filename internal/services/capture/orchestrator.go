// Package capture settles approved pre-authorizations and re-authorizations.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/kevin07696/transaction-orchestrator/internal/services/amount"
	"github.com/kevin07696/transaction-orchestrator/internal/services/events"
	"github.com/kevin07696/transaction-orchestrator/internal/services/external"
	"github.com/kevin07696/transaction-orchestrator/pkg/observability"
	"github.com/kevin07696/transaction-orchestrator/pkg/resilience"
	"github.com/kevin07696/transaction-orchestrator/pkg/timeutil"
)

// Dependencies are the collaborators of the capture orchestrator
type Dependencies struct {
	Amounts      *amount.Policy
	Publisher    *events.Publisher
	Registry     ports.ProcessorRegistry
	Transactions ports.TransactionStore
	Timeouts     *resilience.TimeoutConfig
	Logger       ports.Logger
}

// Orchestrator runs LOADING_PREAUTH, DUPLICATE_CHECK, AMOUNT_RESOLUTION, AUTHORIZING_CAPTURE and PERSISTING
type Orchestrator struct {
	Dependencies
	now   func() time.Time
	newID func() string
}

// NewOrchestrator creates a new capture orchestrator
func NewOrchestrator(deps Dependencies) *Orchestrator {
	return &Orchestrator{
		Dependencies: deps,
		now:          timeutil.Now,
		newID:        func() string { return uuid.New().String() },
	}
}

// Capture settles req.Amount, or the approved amount when no amount is given
func (o *Orchestrator) Capture(ctx context.Context, req *domain.CaptureRequest) (result *domain.CaptureResult, err error) {
	start := o.now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(domain.GetErrorKind(err))
		}
		observability.RecordOperation(string(domain.TransactionTypeCapture), outcome, o.now().Sub(start))
	}()

	budget := resilience.NewBudgetWithClock(ctx, o.Timeouts.DefaultRequestBudget, o.now)
	ctx, cancel := context.WithDeadline(ctx, budget.Deadline())
	defer cancel()

	preauth, err := o.loadPreAuth(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := o.checkDuplicate(ctx, preauth); err != nil {
		o.Publisher.AlertOnIntegrityViolation(ctx, err, preauth.MerchantID, preauth.TicketNumber)
		o.Logger.Warn("duplicate capture rejected",
			ports.String("ticket_number", preauth.TicketNumber),
			ports.String("merchant_id", preauth.MerchantID),
		)
		return nil, err
	}

	captured, err := o.Amounts.ResolveCapture(preauth, req.Amount)
	if err != nil {
		return nil, err
	}

	mode := preauth.IntegrationMode
	if mode == "" {
		mode = domain.IntegrationAggregator
	}
	adapter, err := o.Registry.Adapter(preauth.ProcessorName, mode)
	if err != nil {
		return nil, fmt.Errorf("resolve adapter %s: %w", preauth.ProcessorName, err)
	}

	if err := o.claim(ctx, preauth); err != nil {
		return nil, err
	}

	resp, err := o.authorizeCapture(ctx, adapter, preauth, captured)
	if err != nil {
		o.unclaim(ctx, preauth, err)
		return nil, err
	}

	return o.persist(ctx, preauth, req, captured, resp)
}

func (o *Orchestrator) loadPreAuth(ctx context.Context, req *domain.CaptureRequest) (*domain.Transaction, error) {
	if req.TicketNumber == "" {
		return nil, domain.ErrInvalidRequest("ticketNumber", "ticket number is required")
	}

	preauth, err := external.Call(ctx, o.Timeouts.External, "transaction-store", func(ctx context.Context) (*domain.Transaction, error) {
		return o.Transactions.GetByTicket(ctx, req.TicketNumber)
	})
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, domain.ErrTransactionNotFound(req.TicketNumber)
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if preauth.MerchantID != req.Authorizer.MerchantID {
		return nil, domain.ErrMerchantMismatch()
	}
	return preauth, nil
}

// checkDuplicate rejects captures of captured authorizations with K051 and non-capturable ones with K020
func (o *Orchestrator) checkDuplicate(ctx context.Context, preauth *domain.Transaction) error {
	if preauth.Captured {
		return domain.ErrDuplicateCapture(preauth.TicketNumber)
	}
	if !preauth.CanBeCaptured() {
		return domain.ErrNotCapturable("only approved pre-authorizations and re-authorizations can be captured")
	}
	if !preauth.PendingAmount.IsPositive() {
		return domain.ErrNotCapturable("authorization was voided or superseded")
	}

	if preauth.TransactionReference == "" {
		return nil
	}
	linked, err := external.Call(ctx, o.Timeouts.External, "transaction-store", func(ctx context.Context) ([]*domain.Transaction, error) {
		return o.Transactions.QueryByReference(ctx, preauth.TransactionReference)
	})
	if err != nil {
		return fmt.Errorf("query captures: %w", err)
	}
	for _, txn := range linked {
		if txn.TransactionType == domain.TransactionTypeCapture && txn.IsApproved() &&
			txn.OriginalTicketNumber == preauth.TicketNumber {
			return domain.ErrDuplicateCapture(preauth.TicketNumber).WithDetail("captureTicket", txn.TicketNumber)
		}
	}
	return nil
}

// claim flags the authorization as captured before the processor is called.
// It only applies while the authorization is uncaptured with the pending amount that was resolved against.
func (o *Orchestrator) claim(ctx context.Context, preauth *domain.Transaction) error {
	yes, no, zero := true, false, decimal.Zero
	pending := preauth.PendingAmount
	err := external.Do(ctx, o.Timeouts.External, "transaction-store", func(ctx context.Context) error {
		return o.Transactions.UpdateValues(ctx, preauth.TicketNumber, ports.TransactionUpdate{
			PendingAmount:  &zero,
			Captured:       &yes,
			ExpectCaptured: &no,
			ExpectPending:  &pending,
		})
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, ports.ErrConditionFailed) {
		return fmt.Errorf("flag authorization captured: %w", err)
	}

	current, getErr := external.Call(ctx, o.Timeouts.External, "transaction-store", func(ctx context.Context) (*domain.Transaction, error) {
		return o.Transactions.GetByTicket(ctx, preauth.TicketNumber)
	})
	if getErr != nil {
		return fmt.Errorf("reload authorization: %w", getErr)
	}
	if current.Captured {
		dup := domain.ErrDuplicateCapture(preauth.TicketNumber).WithDetail("reason", "captured concurrently")
		o.Publisher.AlertOnIntegrityViolation(ctx, dup, preauth.MerchantID, preauth.TicketNumber)
		return dup
	}
	return domain.ErrNotCapturable("pending amount changed concurrently").
		WithDetail("pendingAmount", current.PendingAmount.String())
}

// unclaim reverts claim after the processor refused the capture.
// When the outcome is unknown the authorization stays flagged.
func (o *Orchestrator) unclaim(ctx context.Context, preauth *domain.Transaction, failure error) {
	if !external.Refused(failure) {
		return
	}
	writeCtx, cancel := external.Detached(ctx, o.Timeouts.External)
	defer cancel()

	yes, no, zero := true, false, decimal.Zero
	pending := preauth.PendingAmount
	err := o.Transactions.UpdateValues(writeCtx, preauth.TicketNumber, ports.TransactionUpdate{
		PendingAmount:  &pending,
		Captured:       &no,
		ExpectCaptured: &yes,
		ExpectPending:  &zero,
	})
	if err != nil {
		o.Logger.Error("capture claim not reverted",
			ports.String("ticket_number", preauth.TicketNumber),
			ports.Err(err),
		)
		o.Publisher.Alert(ctx, &domain.OperationalAlert{
			Code:         string(domain.ErrorCodeInternal),
			MerchantID:   preauth.MerchantID,
			TicketNumber: preauth.TicketNumber,
			Message:      "capture refused by processor but authorization still flagged captured",
			Details:      map[string]string{"pendingAmount": pending.String(), "error": err.Error()},
		})
	}
}

// authorizeCapture asks the authorizing processor to settle. Captures never fail over.
func (o *Orchestrator) authorizeCapture(
	ctx context.Context,
	adapter ports.ProcessorAdapter,
	preauth *domain.Transaction,
	captured decimal.Decimal,
) (*domain.ProviderResponse, error) {
	procReq := &domain.ProcessorRequest{
		Amount:               domain.FullAmount(preauth.SettlementCurrency(), captured),
		TotalAmount:          captured,
		Deferred:             preauth.Deferred,
		Security:             preauth.Security,
		SubMerchant:          preauth.SubMerchant,
		Metadata:             preauth.Metadata,
		Card:                 preauth.Card,
		TransactionType:      domain.TransactionTypeCapture,
		MerchantID:           preauth.MerchantID,
		ProcessorName:        preauth.ProcessorName,
		PrivateID:            preauth.ProcessorID,
		TokenID:              preauth.TokenID,
		Currency:             preauth.SettlementCurrency(),
		MCC:                  preauth.MCC,
		TicketNumber:         preauth.TicketNumber,
		TransactionReference: preauth.TransactionReference,
	}

	o.Logger.Info("capturing",
		ports.String("ticket_number", preauth.TicketNumber),
		ports.String("processor", preauth.ProcessorName),
		ports.String("amount", captured.String()),
	)

	resp, err := external.Call(ctx, o.Timeouts.External, "processor:"+adapter.Name(), func(ctx context.Context) (*domain.ProviderResponse, error) {
		return adapter.Capture(ctx, procReq)
	})
	if err == nil {
		return resp, nil
	}

	failure := external.ProcessorFailure(preauth.ProcessorName, "capture", err)
	o.Logger.Error("capture not authorized",
		ports.String("ticket_number", preauth.TicketNumber),
		ports.String("processor", preauth.ProcessorName),
		ports.Err(err),
	)
	if !external.Refused(failure) {
		code := domain.GetErrorCode(failure)
		if code == "" {
			code = domain.ErrorCodeInternal
		}
		o.Publisher.Alert(ctx, &domain.OperationalAlert{
			Code:         string(code),
			MerchantID:   preauth.MerchantID,
			TicketNumber: preauth.TicketNumber,
			Message:      "capture outcome unknown, authorization kept flagged captured",
			Details:      map[string]string{"processor": preauth.ProcessorName, "amount": captured.String()},
		})
	}
	return nil, failure
}

// persist writes the CAPTURE record for an authorization already flagged captured
func (o *Orchestrator) persist(
	ctx context.Context,
	preauth *domain.Transaction,
	req *domain.CaptureRequest,
	captured decimal.Decimal,
	resp *domain.ProviderResponse,
) (*domain.CaptureResult, error) {
	writeCtx, cancel := external.Detached(ctx, o.Timeouts.External)
	defer cancel()

	record := o.captureRecord(preauth, req, captured, resp)
	if err := o.Transactions.ConditionalPut(writeCtx, record); err != nil {
		o.Logger.Error("capture record not persisted",
			ports.String("ticket_number", record.TicketNumber),
			ports.String("original_ticket", preauth.TicketNumber),
			ports.Err(err),
		)
		o.Publisher.Alert(ctx, &domain.OperationalAlert{
			Code:         string(domain.ErrorCodeInternal),
			MerchantID:   preauth.MerchantID,
			TicketNumber: preauth.TicketNumber,
			Message:      "capture record could not be persisted",
			Details:      map[string]string{"captureTicket": record.TicketNumber, "error": err.Error()},
		})
	} else {
		o.Publisher.PublishTransaction(ctx, record)
	}

	o.Logger.Info("authorization captured",
		ports.String("ticket_number", preauth.TicketNumber),
		ports.String("capture_ticket", record.TicketNumber),
		ports.String("amount", captured.String()),
	)

	return &domain.CaptureResult{
		Transaction:          record,
		Security:             record.Security,
		CapturedAmount:       captured,
		TicketNumber:         record.TicketNumber,
		OriginalTicketNumber: preauth.TicketNumber,
		TransactionReference: record.TransactionReference,
		ApprovalCode:         record.ApprovalCode,
		AcquirerBank:         record.AcquirerBank,
		ProcessorName:        record.ProcessorName,
		Currency:             preauth.SettlementCurrency(),
	}, nil
}

func (o *Orchestrator) captureRecord(
	preauth *domain.Transaction,
	req *domain.CaptureRequest,
	captured decimal.Decimal,
	resp *domain.ProviderResponse,
) *domain.Transaction {
	requested := preauth.Amount
	if req.Amount != nil {
		requested = *req.Amount
	}

	record := &domain.Transaction{
		CreatedAt:                 o.now(),
		Amount:                    requested,
		RequestAmount:             requested.Total(),
		ApprovedTransactionAmount: captured,
		PendingAmount:             captured,
		ConvertedAmount:           preauth.ConvertedAmount,
		Deferred:                  preauth.Deferred,
		Security:                  preauth.Security,
		SubMerchant:               preauth.SubMerchant,
		Traceability:              preauth.Traceability,
		Metadata:                  preauth.Metadata,
		Card:                      preauth.Card,
		TransactionReference:      preauth.TransactionReference,
		TransactionID:             o.newID(),
		MerchantID:                preauth.MerchantID,
		MerchantName:              preauth.MerchantName,
		ProcessorID:               preauth.ProcessorID,
		ProcessorName:             preauth.ProcessorName,
		IntegrationMode:           preauth.IntegrationMode,
		TransactionType:           domain.TransactionTypeCapture,
		Status:                    domain.TransactionStatusApproval,
		CurrencyCode:              preauth.CurrencyCode,
		Country:                   preauth.Country,
		TokenID:                   preauth.TokenID,
		ApprovalCode:              preauth.ApprovalCode,
		AcquirerBank:              preauth.AcquirerBank,
		IssuingBank:               preauth.IssuingBank,
		MCC:                       preauth.MCC,
		OriginalTicketNumber:      preauth.TicketNumber,
	}
	if resp != nil {
		record.TicketNumber = resp.TicketNumber
		record.ResponseCode = resp.ResponseCode
		record.ResponseText = resp.ResponseText
		if resp.ApprovalCode != "" {
			record.ApprovalCode = resp.ApprovalCode
		}
		if resp.AcquirerBank != "" {
			record.AcquirerBank = resp.AcquirerBank
		}
	}
	if record.TicketNumber == "" || record.TicketNumber == preauth.TicketNumber {
		record.TicketNumber = o.newID()
	}
	return record
}
