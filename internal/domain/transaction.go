package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus represents the outcome recorded for a transaction
type TransactionStatus string

const (
	TransactionStatusApproval    TransactionStatus = "APPROVAL"
	TransactionStatusDeclined    TransactionStatus = "DECLINED"
	TransactionStatusInitialized TransactionStatus = "INITIALIZED"
)

// TransactionType represents the operation a transaction record was created by
type TransactionType string

const (
	TransactionTypeCharge  TransactionType = "CHARGE"
	TransactionTypePreAuth TransactionType = "PREAUTH"
	TransactionTypeReAuth  TransactionType = "REAUTH"
	TransactionTypeCapture TransactionType = "CAPTURE"
	TransactionTypeVoid    TransactionType = "VOID"
)

// IntegrationMode tells whether a processor is reached through the aggregator or directly
type IntegrationMode string

const (
	IntegrationAggregator IntegrationMode = "aggregator"
	IntegrationDirect     IntegrationMode = "direct"
)

// CardInfo is the non-sensitive card metadata kept on records
type CardInfo struct {
	Bin        string `json:"bin"`
	LastFour   string `json:"lastFourDigits"`
	Brand      string `json:"brand"`
	Type       string `json:"cardType"`
	HolderName string `json:"holderName,omitempty"`
	Country    string `json:"country,omitempty"`
}

// MaskedNumber renders the card as bin + asterisks + last four
func (c CardInfo) MaskedNumber() string {
	if c.Bin == "" && c.LastFour == "" {
		return ""
	}
	return c.Bin + "XXXXXX" + c.LastFour
}

// SecurityBlock is the 3-D Secure (or equivalent) result attached to a token or transaction
type SecurityBlock struct {
	ID            string `json:"id,omitempty"`
	Service       string `json:"service,omitempty"`
	Status        string `json:"status,omitempty"`
	Version       string `json:"version,omitempty"`
	ECI           string `json:"eci,omitempty"`
	CAVV          string `json:"cavv,omitempty"`
	XID           string `json:"xid,omitempty"`
	DirectoryID   string `json:"directoryServerTransactionId,omitempty"`
	AcceptRisk    bool   `json:"acceptRisk,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
}

// SubMerchant describes a payment facilitator's sub-merchant
type SubMerchant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MCC       string `json:"mcc,omitempty"`
	Country   string `json:"country,omitempty"`
	TaxID     string `json:"taxId,omitempty"`
	SoftDescr string `json:"softDescriptor,omitempty"`
}

// Transaction is the immutable record of a completed attempt.
// PendingAmount stays within [0, ApprovedTransactionAmount].
type Transaction struct {
	CreatedAt                 time.Time         `json:"created"`
	Amount                    Amount            `json:"amount"`
	RequestAmount             decimal.Decimal   `json:"requestAmount"`
	ApprovedTransactionAmount decimal.Decimal   `json:"approvedTransactionAmount"`
	PendingAmount             decimal.Decimal   `json:"pendingAmount"`
	ConvertedAmount           *ConvertedAmount  `json:"convertedAmount,omitempty"`
	Deferred                  *DeferredInfo     `json:"deferred,omitempty"`
	Security                  *SecurityBlock    `json:"security,omitempty"`
	SubMerchant               *SubMerchant      `json:"subMerchant,omitempty"`
	Traceability              *Traceability     `json:"traceability,omitempty"`
	Metadata                  map[string]string `json:"metadata,omitempty"`
	Card                      CardInfo          `json:"card"`
	TicketNumber              string            `json:"ticketNumber"`
	TransactionReference      string            `json:"transactionReference"`
	TransactionID             string            `json:"transactionId"`
	MerchantID                string            `json:"merchantId"`
	MerchantName              string            `json:"merchantName,omitempty"`
	ProcessorID               string            `json:"processorId"`
	ProcessorName             string            `json:"processorName"`
	IntegrationMode           IntegrationMode   `json:"integration"`
	TransactionType           TransactionType   `json:"transactionType"`
	Status                    TransactionStatus `json:"transactionStatus"`
	CurrencyCode              string            `json:"currencyCode"`
	Country                   string            `json:"country"`
	TokenID                   string            `json:"tokenId,omitempty"`
	ApprovalCode              string            `json:"approvalCode,omitempty"`
	ResponseCode              string            `json:"responseCode,omitempty"`
	ResponseText              string            `json:"responseText,omitempty"`
	AcquirerBank              string            `json:"acquirerBank,omitempty"`
	IssuingBank               string            `json:"issuingBank,omitempty"`
	MCC                       string            `json:"mcc,omitempty"`
	ErrorCode                 string            `json:"errorCode,omitempty"`
	ErrorMessage              string            `json:"errorMessage,omitempty"`
	OriginalTicketNumber      string            `json:"originalTicketNumber,omitempty"`
	Captured                  bool              `json:"captured"`
	PartialVoid               bool              `json:"partialVoid,omitempty"`
	ForceRefund               bool              `json:"forceRefund,omitempty"`
}

// IsApproved returns true if the processor approved the transaction
func (t *Transaction) IsApproved() bool {
	return t.Status == TransactionStatusApproval
}

// IsTerminal returns true for records that can never be voided or re-authorized
func (t *Transaction) IsTerminal() bool {
	return t.TransactionType == TransactionTypeVoid
}

// VoidBlocker returns a reason the transaction cannot be voided directly, or "" when it can
func (t *Transaction) VoidBlocker() string {
	switch {
	case t.IsTerminal():
		return "transaction is already a void"
	case t.TransactionType == TransactionTypeReAuth:
		return "re-authorizations are voided through their capture"
	case !t.IsApproved():
		return "transaction was not approved"
	}
	return ""
}

// CanBeCaptured returns true if the transaction is an approved, uncaptured preauth
func (t *Transaction) CanBeCaptured() bool {
	return t.IsApproved() && !t.Captured &&
		(t.TransactionType == TransactionTypePreAuth || t.TransactionType == TransactionTypeReAuth)
}

// FullyVoided reports whether nothing is left to void or capture
func (t *Transaction) FullyVoided() bool {
	return t.PendingAmount.Sign() <= 0
}

// SettlementCurrency is the currency amounts are actually stored in.
// UF originals are settled in their converted currency.
func (t *Transaction) SettlementCurrency() string {
	if t.ConvertedAmount != nil && t.ConvertedAmount.Currency != "" {
		return t.ConvertedAmount.Currency
	}
	return t.CurrencyCode
}
