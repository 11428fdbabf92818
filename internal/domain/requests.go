package domain

import "github.com/shopspring/decimal"

// ChargeRequest covers charge, pre-authorization and re-authorization
type ChargeRequest struct {
	Amount          Amount               `json:"amount"`
	Deferred        *DeferredInfo        `json:"deferred,omitempty"`
	PriorRuleResult *ProcessorRuleResult `json:"processorRuleResult,omitempty"`
	SubMerchant     *SubMerchant         `json:"subMerchant,omitempty"`
	Metadata        map[string]string    `json:"metadata,omitempty"`
	Authorizer      AuthorizerContext    `json:"authorizer"`
	TokenID         string               `json:"token"`
	TransactionType TransactionType      `json:"transactionType"`
	// ReferenceTicket is the preauth ticket a re-authorization extends
	ReferenceTicket string `json:"ticketNumber,omitempty"`
	IsDeferred      bool   `json:"isDeferred"`
}

// ChargeResult is returned for every persisted charge outcome
type ChargeResult struct {
	Transaction          *Transaction      `json:"-"`
	ApprovedAmount       decimal.Decimal   `json:"approvedTransactionAmount"`
	TicketNumber         string            `json:"ticketNumber"`
	TransactionReference string            `json:"transactionReference"`
	ApprovalCode         string            `json:"approvalCode,omitempty"`
	ProcessorName        string            `json:"processorName"`
	Status               TransactionStatus `json:"transactionStatus"`
	FailedOver           bool              `json:"failedOver,omitempty"`
}

// VoidRequest voids all or part of a transaction; a nil Amount means the full pending amount
type VoidRequest struct {
	Amount       *Amount           `json:"amount,omitempty"`
	Authorizer   AuthorizerContext `json:"authorizer"`
	TicketNumber string            `json:"ticketNumber"`
}

// VoidResult describes an applied void
type VoidResult struct {
	Transaction          *Transaction    `json:"-"`
	VoidedAmount         decimal.Decimal `json:"voidedAmount"`
	PendingAmount        decimal.Decimal `json:"pendingAmount"`
	TicketNumber         string          `json:"ticketNumber"`
	OriginalTicketNumber string          `json:"originalTicketNumber"`
	Currency             string          `json:"currency"`
	PartialVoid          bool            `json:"partialVoid"`
	ForceRefund          bool            `json:"forceRefund"`
}

// CaptureRequest captures a preauth; a nil Amount means the approved amount
type CaptureRequest struct {
	Amount       *Amount           `json:"amount,omitempty"`
	Authorizer   AuthorizerContext `json:"authorizer"`
	TicketNumber string            `json:"ticketNumber"`
}

// CaptureResult describes an applied capture
type CaptureResult struct {
	Transaction          *Transaction    `json:"-"`
	Security             *SecurityBlock  `json:"security,omitempty"`
	CapturedAmount       decimal.Decimal `json:"capturedAmount"`
	TicketNumber         string          `json:"ticketNumber"`
	OriginalTicketNumber string          `json:"originalTicketNumber"`
	TransactionReference string          `json:"transactionReference"`
	ApprovalCode         string          `json:"approvalCode,omitempty"`
	AcquirerBank         string          `json:"acquirerBank,omitempty"`
	ProcessorName        string          `json:"processorName"`
	Currency             string          `json:"currency"`
}

// CardData is raw card input; it only lives for the duration of a tokenize call
type CardData struct {
	Number      string `json:"number"`
	Name        string `json:"name"`
	ExpiryMonth string `json:"expiryMonth"`
	ExpiryYear  string `json:"expiryYear"`
	CVV         string `json:"cvv,omitempty"`
}

// TokenizeRequest asks for a single-use token
type TokenizeRequest struct {
	Security        *SecurityBlock    `json:"security,omitempty"`
	Traceability    *Traceability     `json:"traceability,omitempty"`
	Authorizer      AuthorizerContext `json:"authorizer"`
	Card            CardData          `json:"card"`
	Amount          decimal.Decimal   `json:"totalAmount"`
	Currency        string            `json:"currency"`
	TransactionMode TransactionMode   `json:"transactionMode,omitempty"`
	IsDeferred      bool              `json:"isDeferred"`
	CardPresent     bool              `json:"cardPresent,omitempty"`
}

// TokenizeResult is the public tokenization outcome
type TokenizeResult struct {
	Security *SecurityBlock `json:"security,omitempty"`
	Token    string         `json:"token"`
	URL      string         `json:"url,omitempty"`
}
