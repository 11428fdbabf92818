package domain

import "github.com/shopspring/decimal"

// Merchant is the merchant configuration the orchestrators need for one request
type Merchant struct {
	DeferredOptions []DeferredOption  `json:"deferredOptions"`
	Antifraud       AntifraudSettings `json:"antifraud"`
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Country         string            `json:"country"`
	MCC             string            `json:"mcc,omitempty"`
	DeferredEnabled bool              `json:"deferredEnabled"`
	OmitCVV         bool              `json:"omitCVV"`
	AcceptRisk3DS   bool              `json:"acceptRisk3ds"`
	IsActive        bool              `json:"isActive"`
}

// AntifraudSettings holds the merchant's risk configuration
type AntifraudSettings struct {
	ScoreCeiling decimal.Decimal `json:"scoreCeiling"`
	Enabled      bool            `json:"enabled"`
}

// BinInfo is what the bin lookup knows about a card range
type BinInfo struct {
	Bin       string `json:"bin"`
	Brand     string `json:"brand"`
	Bank      string `json:"bank"`
	Country   string `json:"country"`
	CardType  string `json:"cardType"`
	Prepaid   bool   `json:"prepaid"`
	IsPrivate bool   `json:"isPrivateLabel"`
}

// HierarchyRole is a configuration area a hierarchy can delegate to another merchant
type HierarchyRole string

const (
	HierarchyRoleProcessors HierarchyRole = "processors"
	HierarchyRoleDeferred   HierarchyRole = "deferred"
)

// HierarchyConfig maps configuration areas to the merchant that owns them
type HierarchyConfig struct {
	Owners map[HierarchyRole]string `json:"owners"`
}

// AuthorizerContext is the authenticated caller identity handed in by the entry point
type AuthorizerContext struct {
	Hierarchy        *HierarchyConfig `json:"hierarchyConfig,omitempty"`
	MerchantID       string           `json:"merchantId"`
	PublicMerchantID string           `json:"publicMerchantId,omitempty"`
	CredentialID     string           `json:"credentialId,omitempty"`
	Sandbox          bool             `json:"sandboxEnable,omitempty"`
}

// ResolveEffectiveMerchant returns the merchant id whose configuration governs the given role
func ResolveEffectiveMerchant(role HierarchyRole, auth AuthorizerContext) string {
	if auth.Hierarchy != nil {
		if owner, ok := auth.Hierarchy.Owners[role]; ok && owner != "" {
			return owner
		}
	}
	return auth.MerchantID
}
