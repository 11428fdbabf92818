package charge

import (
	"context"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/kevin07696/transaction-orchestrator/internal/services/external"
	"github.com/shopspring/decimal"
)

// declineInfo is what a declined record carries besides the request data
type declineInfo struct {
	procErr      *domain.ProcessorError
	resp         *domain.ProviderResponse
	code         string
	message      string
	approvalCode string
	processor    string
}

// persistDeclined writes the declined record on a context detached from the request deadline.
// A write failure is logged; the caller still returns the original decline.
func (o *Orchestrator) persistDeclined(ctx context.Context, a *attempt, info declineInfo) *domain.Transaction {
	txn := o.buildTransaction(a, domain.TransactionStatusDeclined, info.processor, info.resp, info)

	writeCtx, cancel := external.Detached(ctx, o.Timeouts.External)
	defer cancel()
	if err := o.Transactions.ConditionalPut(writeCtx, txn); err != nil {
		o.Logger.Error("declined transaction not persisted",
			ports.String("ticket_number", txn.TicketNumber),
			ports.String("code", info.code),
			ports.Err(err),
		)
		return txn
	}
	o.Publisher.PublishTransaction(ctx, txn)
	return txn
}

// buildTransaction assembles the record for one terminal outcome
func (o *Orchestrator) buildTransaction(
	a *attempt,
	status domain.TransactionStatus,
	processorName string,
	resp *domain.ProviderResponse,
	info declineInfo,
) *domain.Transaction {
	req := a.req
	txn := &domain.Transaction{
		CreatedAt:       o.now(),
		Amount:          req.Amount,
		RequestAmount:   req.Amount.Total(),
		Deferred:        req.Deferred,
		SubMerchant:     req.SubMerchant,
		Metadata:        req.Metadata,
		TransactionID:   a.transactionID,
		MerchantID:      req.Authorizer.MerchantID,
		ProcessorName:   processorName,
		TransactionType: req.TransactionType,
		Status:          status,
		ErrorCode:       info.code,
		ErrorMessage:    info.message,
		ApprovalCode:    info.approvalCode,
	}
	if txn.TransactionID == "" {
		txn.TransactionID = o.newID()
	}
	if a.reference != nil {
		txn.OriginalTicketNumber = a.reference.TicketNumber
	}

	if token := a.token; token != nil {
		txn.TokenID = token.ID
		txn.Card = token.Card
		txn.Security = token.Security
		txn.Traceability = token.Traceability
		txn.CurrencyCode = a.currency()
		txn.ConvertedAmount = token.ConvertedAmount
	}
	if a.merchant != nil {
		txn.MerchantName = a.merchant.Name
		txn.Country = a.merchant.Country
		txn.MCC = a.merchant.MCC
	}
	if a.bin != nil {
		txn.IssuingBank = a.bin.Bank
		if txn.Card.Brand == "" {
			txn.Card.Brand = a.bin.Brand
		}
		if txn.Card.Type == "" {
			txn.Card.Type = a.bin.CardType
		}
	}
	if route := a.route; route != nil {
		txn.ProcessorID = route.PrivateID
		txn.IntegrationMode = route.IntegrationMode
		txn.AcquirerBank = route.AcquirerBank
		if route.MCC != "" {
			txn.MCC = route.MCC
		}
		if route.ConvertedAmount != nil {
			txn.ConvertedAmount = route.ConvertedAmount
		}
		if txn.ProcessorName == "" {
			txn.ProcessorName = route.ProcessorName
		}
	}

	if resp != nil {
		applyProviderResponse(txn, resp)
	}
	if info.procErr != nil {
		applyProcessorError(txn, info.procErr)
	}

	if txn.TicketNumber == "" {
		txn.TicketNumber = o.newID()
	}
	if txn.TransactionReference == "" {
		txn.TransactionReference = o.newID()
	}

	if status == domain.TransactionStatusApproval {
		approved := settlementTotal(txn)
		if resp != nil && resp.ApprovedAmount.IsPositive() {
			approved = resp.ApprovedAmount
		}
		txn.ApprovedTransactionAmount = approved
		txn.PendingAmount = approved
	} else {
		txn.ApprovedTransactionAmount = decimal.Zero
		txn.PendingAmount = decimal.Zero
	}
	return txn
}

func applyProviderResponse(txn *domain.Transaction, resp *domain.ProviderResponse) {
	txn.TicketNumber = resp.TicketNumber
	txn.TransactionReference = resp.TransactionReference
	txn.ApprovalCode = resp.ApprovalCode
	txn.ResponseCode = resp.ResponseCode
	txn.ResponseText = resp.ResponseText
	if resp.ProcessorID != "" {
		txn.ProcessorID = resp.ProcessorID
	}
	if resp.AcquirerBank != "" {
		txn.AcquirerBank = resp.AcquirerBank
	}
	if resp.IssuingBank != "" {
		txn.IssuingBank = resp.IssuingBank
	}
	if resp.CardType != "" {
		txn.Card.Type = resp.CardType
	}
	if len(resp.Metadata) > 0 {
		merged := make(map[string]string, len(txn.Metadata)+len(resp.Metadata))
		for k, v := range txn.Metadata {
			merged[k] = v
		}
		for k, v := range resp.Metadata {
			if _, taken := merged[k]; !taken {
				merged[k] = v
			}
		}
		txn.Metadata = merged
	}
}

func applyProcessorError(txn *domain.Transaction, procErr *domain.ProcessorError) {
	txn.TicketNumber = procErr.TicketNumber
	txn.TransactionReference = procErr.TransactionRef
	txn.ApprovalCode = procErr.ApprovalCode
	txn.ResponseCode = procErr.ResponseCode
	txn.ResponseText = procErr.ResponseText
	if procErr.AcquirerBank != "" {
		txn.AcquirerBank = procErr.AcquirerBank
	}
	if procErr.IssuingBank != "" {
		txn.IssuingBank = procErr.IssuingBank
	}
	if procErr.CardType != "" {
		txn.Card.Type = procErr.CardType
	}
	if txn.ErrorMessage == "" {
		txn.ErrorMessage = procErr.ProcessorMessage
	}
}

// settlementTotal is the request total in the currency the processor settles in
func settlementTotal(txn *domain.Transaction) decimal.Decimal {
	if txn.ConvertedAmount != nil && txn.ConvertedAmount.Total.IsPositive() {
		return txn.ConvertedAmount.Total
	}
	return txn.RequestAmount
}

// processorRequest builds the adapter request for one processor
func (o *Orchestrator) processorRequest(a *attempt, processorName, privateID, publicID string) *domain.ProcessorRequest {
	req := a.req
	pr := &domain.ProcessorRequest{
		Amount:            req.Amount,
		TotalAmount:       req.Amount.Total(),
		Deferred:          req.Deferred,
		Security:          a.token.Security,
		SubMerchant:       req.SubMerchant,
		Metadata:          req.Metadata,
		Card:              a.token.Card,
		TransactionType:   req.TransactionType,
		MerchantID:        a.token.MerchantID,
		ProcessorName:     processorName,
		PrivateID:         privateID,
		PublicID:          publicID,
		TokenID:           a.token.ID,
		TransactionCardID: a.token.TransactionCardID,
		Currency:          a.currency(),
		MCC:               a.route.MCC,
	}
	if pr.MCC == "" && a.merchant != nil {
		pr.MCC = a.merchant.MCC
	}

	converted := a.route.ConvertedAmount
	if converted == nil {
		converted = a.token.ConvertedAmount
	}
	if converted != nil {
		pr.TotalAmount = converted.Total
		pr.Currency = converted.Currency
	}

	if a.reference != nil {
		pr.TicketNumber = a.reference.TicketNumber
		pr.TransactionReference = a.reference.TransactionReference
	}
	return pr
}

func resultFor(txn *domain.Transaction, failedOver bool) *domain.ChargeResult {
	return &domain.ChargeResult{
		Transaction:          txn,
		ApprovedAmount:       txn.ApprovedTransactionAmount,
		TicketNumber:         txn.TicketNumber,
		TransactionReference: txn.TransactionReference,
		ApprovalCode:         txn.ApprovalCode,
		ProcessorName:        txn.ProcessorName,
		Status:               txn.Status,
		FailedOver:           failedOver,
	}
}
