package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionMode qualifies what a token will be used for
type TransactionMode string

const (
	TransactionModeNone                 TransactionMode = ""
	TransactionModeInitialRecurrence    TransactionMode = "initialRecurrence"
	TransactionModeSubsequentRecurrence TransactionMode = "subsequentRecurrence"
	TransactionModeValidateCard         TransactionMode = "validateCard"
	TransactionModeAccountValidation    TransactionMode = "accountValidation"
)

// Token is the ephemeral artifact created before a charge and consumed exactly once
type Token struct {
	CreatedAt         time.Time        `json:"created"`
	ConsumedAt        *time.Time       `json:"consumedAt,omitempty"`
	Amount            decimal.Decimal  `json:"amount"`
	ConvertedAmount   *ConvertedAmount `json:"convertedAmount,omitempty"`
	Security          *SecurityBlock   `json:"security,omitempty"`
	Traceability      *Traceability    `json:"traceability,omitempty"`
	Card              CardInfo         `json:"binInfo"`
	ID                string           `json:"id"`
	MerchantID        string           `json:"merchantId"`
	Currency          string           `json:"currency"`
	TransactionCardID string           `json:"transactionCardId,omitempty"`
	TransactionMode   TransactionMode  `json:"transactionMode,omitempty"`
	ProcessorName     string           `json:"processorName,omitempty"`
	IntegrationMode   IntegrationMode  `json:"integration,omitempty"`
	ConsumedBy        string           `json:"consumedBy,omitempty"`
	CVVOmitted        bool             `json:"cvvOmitted,omitempty"`
	Consumed          bool             `json:"consumed"`
}

// Age returns how long ago the token was created
func (t *Token) Age(now time.Time) time.Duration {
	return now.Sub(t.CreatedAt)
}

// IsExpired reports whether the token is older than maxAge
func (t *Token) IsExpired(now time.Time, maxAge time.Duration) bool {
	return maxAge > 0 && t.Age(now) > maxAge
}

// IsCardValidation reports whether the token only validates the card and moves no funds
func (t *Token) IsCardValidation() bool {
	return t.TransactionMode == TransactionModeValidateCard || t.TransactionMode == TransactionModeAccountValidation
}

// Traceability is the audit block composed at tokenization and carried onto every record
type Traceability struct {
	KushkiInfo       map[string]string  `json:"kushkiInfo,omitempty"`
	SecurityIdentity []SecurityIdentity `json:"securityIdentity,omitempty"`
}

// SecurityIdentity is one validation step performed on the card holder
type SecurityIdentity struct {
	Info             map[string]string `json:"info,omitempty"`
	IdentityCategory string            `json:"identityCategory"`
	IdentityCode     string            `json:"identityCode"`
	PartnerName      string            `json:"partnerName"`
}

// Merge returns a new block where caller-supplied values are kept and ours are added.
// Keys already present in the existing kushkiInfo win; identities are appended.
func (t *Traceability) Merge(other *Traceability) *Traceability {
	merged := &Traceability{KushkiInfo: map[string]string{}}
	if t != nil {
		for k, v := range t.KushkiInfo {
			merged.KushkiInfo[k] = v
		}
		merged.SecurityIdentity = append(merged.SecurityIdentity, t.SecurityIdentity...)
	}
	if other != nil {
		for k, v := range other.KushkiInfo {
			if _, ok := merged.KushkiInfo[k]; !ok {
				merged.KushkiInfo[k] = v
			}
		}
		merged.SecurityIdentity = append(merged.SecurityIdentity, other.SecurityIdentity...)
	}
	return merged
}
