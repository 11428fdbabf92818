package domain

import "slices"

// DeferredOption is one merchant-configured combination of allowed deferred parameters.
// Empty GraceMonths means no grace period is allowed; empty Banks means any issuer.
type DeferredOption struct {
	Types       []string `json:"type" yaml:"types"`
	Months      []int    `json:"months" yaml:"months"`
	GraceMonths []int    `json:"monthsOfGrace,omitempty" yaml:"graceMonths"`
	Banks       []string `json:"bank,omitempty" yaml:"banks"`
}

// DeferredInfo is the deferred part of a charge request, persisted on the transaction
type DeferredInfo struct {
	CreditType  string `json:"creditType"`
	Months      int    `json:"months"`
	GraceMonths int    `json:"graceMonths"`
}

// Valid reports whether the parameters are usable at all
func (d *DeferredInfo) Valid() bool {
	return d != nil && d.CreditType != "" && d.Months > 0 && d.GraceMonths >= 0
}

// Matches reports whether the deferred parameters are allowed by this option
func (o DeferredOption) Matches(d DeferredInfo, issuingBank string) bool {
	if !slices.Contains(o.Types, d.CreditType) || !slices.Contains(o.Months, d.Months) {
		return false
	}
	if d.GraceMonths > 0 && !slices.Contains(o.GraceMonths, d.GraceMonths) {
		return false
	}
	if len(o.Banks) > 0 && !slices.Contains(o.Banks, issuingBank) {
		return false
	}
	return true
}
