package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProcessorRequest is the uniform request handed to every processor adapter
type ProcessorRequest struct {
	Amount               Amount            `json:"amount"`
	TotalAmount          decimal.Decimal   `json:"totalAmount"`
	Deferred             *DeferredInfo     `json:"deferred,omitempty"`
	Security             *SecurityBlock    `json:"security,omitempty"`
	SubMerchant          *SubMerchant      `json:"subMerchant,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	Card                 CardInfo          `json:"card"`
	TransactionType      TransactionType   `json:"transactionType"`
	MerchantID           string            `json:"merchantId"`
	ProcessorName        string            `json:"processorName"`
	PrivateID            string            `json:"privateId"`
	PublicID             string            `json:"publicId"`
	TokenID              string            `json:"token,omitempty"`
	TransactionCardID    string            `json:"transactionCardId,omitempty"`
	Currency             string            `json:"currency"`
	MCC                  string            `json:"mcc,omitempty"`
	TicketNumber         string            `json:"ticketNumber,omitempty"`
	TransactionReference string            `json:"transactionReference,omitempty"`
	ForceRefund          bool              `json:"forceRefund,omitempty"`
	PartialVoid          bool              `json:"partialVoid,omitempty"`
}

// ProviderResponse is the uniform approval returned by a processor adapter
type ProviderResponse struct {
	ApprovedAmount       decimal.Decimal   `json:"approvedTransactionAmount"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	TicketNumber         string            `json:"ticketNumber"`
	TransactionReference string            `json:"transactionReference"`
	ProcessorID          string            `json:"processorId"`
	ApprovalCode         string            `json:"approvalCode"`
	ResponseCode         string            `json:"responseCode"`
	ResponseText         string            `json:"responseText"`
	AcquirerBank         string            `json:"acquirerBank,omitempty"`
	IssuingBank          string            `json:"issuingBank,omitempty"`
	CardType             string            `json:"cardType,omitempty"`
}

// TokenProviderRequest asks a provider to vault a card
type TokenProviderRequest struct {
	Security        *SecurityBlock  `json:"security,omitempty"`
	Card            CardData        `json:"card"`
	Amount          decimal.Decimal `json:"totalAmount"`
	MerchantID      string          `json:"merchantId"`
	ProcessorName   string          `json:"processorName"`
	PrivateID       string          `json:"privateId"`
	Currency        string          `json:"currency"`
	TransactionMode TransactionMode `json:"transactionMode,omitempty"`
}

// TokenProviderResponse is a provider's vaulting result
type TokenProviderResponse struct {
	Security          *SecurityBlock `json:"security,omitempty"`
	Token             string         `json:"token"`
	URL               string         `json:"url,omitempty"`
	TransactionCardID string         `json:"transactionCardId,omitempty"`
}

// AntifraudContext is sent to the antifraud engine
type AntifraudContext struct {
	Amount     decimal.Decimal `json:"amount"`
	Card       CardInfo        `json:"card"`
	MerchantID string          `json:"merchantId"`
	TokenID    string          `json:"token"`
	Currency   string          `json:"currency"`
}

// WorkflowNode is one step of an antifraud decision history
type WorkflowNode struct {
	Name     string `json:"name"`
	Decision string `json:"decision"`
	Terminal bool   `json:"terminal"`
}

// Antifraud workflow decisions
const (
	WorkflowApproved = "approved"
	WorkflowDeclined = "declined"
)

// AntifraudDecision is the score and history returned by the antifraud engine
type AntifraudDecision struct {
	History []WorkflowNode  `json:"history"`
	Score   decimal.Decimal `json:"score"`
}

// TransactionEvent is what gets published to the bus after persisting
type TransactionEvent struct {
	Transaction *Transaction `json:"transaction"`
	EventType   string       `json:"eventType"`
}

// CompensatingVoid asks downstream systems to void an authorization whose outcome is unknown
type CompensatingVoid struct {
	CreatedAt     time.Time       `json:"created"`
	Amount        decimal.Decimal `json:"amount"`
	MerchantID    string          `json:"merchantId"`
	TokenID       string          `json:"token"`
	TicketNumber  string          `json:"ticketNumber,omitempty"`
	ProcessorName string          `json:"processorName"`
	Currency      string          `json:"currency"`
	Reason        string          `json:"reason"`
	ErrorCode     string          `json:"errorCode"`
}

// OperationalAlert reports an integrity violation to operators
type OperationalAlert struct {
	CreatedAt    time.Time         `json:"created"`
	Details      map[string]string `json:"details,omitempty"`
	Code         string            `json:"code"`
	MerchantID   string            `json:"merchantId"`
	TicketNumber string            `json:"ticketNumber,omitempty"`
	Message      string            `json:"message"`
}
