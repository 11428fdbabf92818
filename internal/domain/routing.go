package domain

import "github.com/shopspring/decimal"

// Risk rule statuses that end a request
const (
	RiskStatusDeclined = 322
	RiskStatusFailed   = 500
)

// ProcessorRuleResult is the routing decision for one request
type ProcessorRuleResult struct {
	FailOver        *FailOverProcessor `json:"failOverProcessor,omitempty"`
	Plcc            *PlccInfo          `json:"plcc,omitempty"`
	RiskDecision    *RiskDecision      `json:"riskDecision,omitempty"`
	ConvertedAmount *ConvertedAmount   `json:"convertedAmount,omitempty"`
	ProcessorName   string             `json:"processor"`
	PrivateID       string             `json:"privateId"`
	PublicID        string             `json:"publicId"`
	IntegrationMode IntegrationMode    `json:"integration"`
	CurrencyCode    string             `json:"currencyCode"`
	MCC             string             `json:"mcc,omitempty"`
	AcquirerBank    string             `json:"acquirerBank,omitempty"`
}

// FailOverProcessor is the alternate processor used on reachability failures
type FailOverProcessor struct {
	ProcessorName   string          `json:"processor"`
	PrivateID       string          `json:"privateId"`
	PublicID        string          `json:"publicId"`
	IntegrationMode IntegrationMode `json:"integration"`
}

// PlccInfo carries private-label card detection data
type PlccInfo struct {
	Required         bool   `json:"required"`
	IsPlcc           bool   `json:"isPlcc"`
	PartnerValidator string `json:"partnerValidator,omitempty"`
}

// RiskDecision is a risk rule outcome returned together with the routing decision
type RiskDecision struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Declines reports whether the decision ends the request
func (r *RiskDecision) Declines() bool {
	return r != nil && (r.Status == RiskStatusDeclined || r.Status == RiskStatusFailed)
}

// RoutingInput is what the rule engine needs to pick a processor
type RoutingInput struct {
	BinInfo         *BinInfo        `json:"binInfo,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	MerchantID      string          `json:"merchantId"`
	Bin             string          `json:"bin"`
	Currency        string          `json:"currency"`
	Country         string          `json:"country"`
	TransactionType TransactionType `json:"transactionType"`
	IsDeferred      bool            `json:"isDeferred"`
	Sandbox         bool            `json:"sandbox"`
}

// DeferredLimitInput asks the rule engine to validate deferred limits
type DeferredLimitInput struct {
	Deferred   DeferredInfo    `json:"deferred"`
	Amount     decimal.Decimal `json:"amount"`
	MerchantID string          `json:"merchantId"`
	Bin        string          `json:"bin"`
	Country    string          `json:"country"`
}
