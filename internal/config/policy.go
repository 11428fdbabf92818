package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// AllMembers is the allow-list wildcard
const AllMembers = "all"

// Known processor and country names used by the default policy
const (
	ProcessorKushkiAcquirer = "Kushki Acquirer Processor"
	CountryColombia         = "Colombia"
	CountryMexico           = "Mexico"
	CountryChile            = "Chile"
	CountryEcuador          = "Ecuador"
	CountryPeru             = "Peru"
)

// Policy is the read-only business policy of the orchestrators
type Policy struct {
	DirectIntegration    map[string]AllowList `yaml:"directIntegration"`
	TokenProviders       map[string]AllowList `yaml:"tokenProviders"`
	VoidTimeLimit        VoidTimeLimitPolicy  `yaml:"voidTimeLimit"`
	Capture              CapturePolicy        `yaml:"capture"`
	Antifraud            AntifraudPolicy      `yaml:"antifraud"`
	FraudThreshold       FraudThresholdPolicy `yaml:"fraudThreshold"`
	Deferred             DeferredPolicy       `yaml:"deferred"`
	ThreeDS              ThreeDSPolicy        `yaml:"threeDS"`
	ForceRefund          []CountryProcessor   `yaml:"forceRefund"`
	ReceivableCheck      []CountryProcessor   `yaml:"receivableCheck"`
	BinDenylist          []string             `yaml:"binDenylist"`
	Topics               TopicPolicy          `yaml:"topics"`
	Timeouts             TimeoutPolicy        `yaml:"timeouts"`
	TokenMaxAge          time.Duration        `yaml:"tokenMaxAge"`
	ConversionCurrencies map[string]string    `yaml:"conversionCurrencies"`
	DefaultTokenProvider string               `yaml:"defaultTokenProvider"`
}

// AllowList names the bins and merchant ids routed straight to a processor
type AllowList struct {
	Bins      []string `yaml:"bins"`
	Merchants []string `yaml:"merchants"`
}

// Allows reports whether both the merchant and the bin are on the list
func (a AllowList) Allows(merchantID, bin string) bool {
	return contains(a.Merchants, merchantID) && contains(a.Bins, bin)
}

func contains(list []string, value string) bool {
	return slices.Contains(list, AllMembers) || slices.Contains(list, value)
}

// CountryProcessor pairs a country with a processor name
type CountryProcessor struct {
	Country   string `yaml:"country"`
	Processor string `yaml:"processor"`
}

// VoidTimeLimitPolicy bounds how long after creation a transaction may be voided
type VoidTimeLimitPolicy struct {
	Countries   map[string]int          `yaml:"countries"`
	Overrides   []CountryProcessorLimit `yaml:"overrides"`
	DefaultDays int                     `yaml:"defaultDays"`
	Disabled    bool                    `yaml:"disabled"`
}

// CountryProcessorLimit is a shorter limit for one country and processor
type CountryProcessorLimit struct {
	Country   string `yaml:"country"`
	Processor string `yaml:"processor"`
	Days      int    `yaml:"days"`
}

// CapturePolicy holds capture tolerances in percent
type CapturePolicy struct {
	TolerancePercent        map[string]float64 `yaml:"tolerancePercent"`
	DefaultTolerancePercent float64            `yaml:"defaultTolerancePercent"`
}

// AntifraudPolicy holds the default score ceiling
type AntifraudPolicy struct {
	DefaultScoreCeiling float64 `yaml:"defaultScoreCeiling"`
}

// FraudThresholdPolicy caps request amounts per merchant
type FraudThresholdPolicy struct {
	Merchants map[string]float64 `yaml:"merchants"`
	// ExtraTaxExceptions lists extra taxes that exempt a request from the threshold
	ExtraTaxExceptions []string `yaml:"extraTaxExceptions"`
}

// DeferredPolicy holds the always-deferred countries and their default options
type DeferredPolicy struct {
	AlwaysDeferredCountries []string                `yaml:"alwaysDeferredCountries"`
	DefaultOptions          []domain.DeferredOption `yaml:"defaultOptions"`
}

// ThreeDSPolicy holds brand-specific ECI values that shift liability
type ThreeDSPolicy struct {
	LiabilityShiftECI map[string][]string `yaml:"liabilityShiftECI"`
}

// TopicPolicy names the bus destinations
type TopicPolicy struct {
	Transactions     string `yaml:"transactions"`
	CompensatingVoid string `yaml:"compensatingVoid"`
	Alerts           string `yaml:"alerts"`
}

// TimeoutPolicy holds the deadline budget settings
type TimeoutPolicy struct {
	External                time.Duration `yaml:"external"`
	FailoverSafetyThreshold time.Duration `yaml:"failoverSafetyThreshold"`
	DefaultRequestBudget    time.Duration `yaml:"defaultRequestBudget"`
}

// DefaultPolicy returns the policy used when no file is given
func DefaultPolicy() *Policy {
	return &Policy{
		DirectIntegration: map[string]AllowList{},
		TokenProviders:    map[string]AllowList{},
		VoidTimeLimit: VoidTimeLimitPolicy{
			DefaultDays: 365,
			Countries:   map[string]int{},
			Overrides: []CountryProcessorLimit{
				{Country: CountryColombia, Processor: ProcessorKushkiAcquirer, Days: 30},
			},
		},
		Capture: CapturePolicy{
			TolerancePercent:        map[string]float64{},
			DefaultTolerancePercent: 0,
		},
		Antifraud: AntifraudPolicy{DefaultScoreCeiling: 800},
		FraudThreshold: FraudThresholdPolicy{
			Merchants: map[string]float64{},
		},
		Deferred: DeferredPolicy{
			AlwaysDeferredCountries: []string{CountryMexico},
			DefaultOptions: []domain.DeferredOption{
				{Types: []string{"01", "02", "03"}, Months: []int{3, 6, 9, 12, 18}},
			},
		},
		ThreeDS: ThreeDSPolicy{
			LiabilityShiftECI: map[string][]string{
				"visa":       {"05", "06"},
				"mastercard": {"01", "02"},
				"amex":       {"05", "06"},
			},
		},
		ForceRefund: []CountryProcessor{},
		ReceivableCheck: []CountryProcessor{
			{Country: CountryMexico, Processor: ProcessorKushkiAcquirer},
		},
		BinDenylist: []string{},
		Topics: TopicPolicy{
			Transactions:     "transactions",
			CompensatingVoid: "compensating-void",
			Alerts:           "operational-alerts",
		},
		Timeouts: TimeoutPolicy{
			External:                8 * time.Second,
			FailoverSafetyThreshold: 12 * time.Second,
			DefaultRequestBudget:    29 * time.Second,
		},
		TokenMaxAge:          30 * time.Minute,
		ConversionCurrencies: map[string]string{domain.CurrencyUF: domain.CurrencyCLP},
		DefaultTokenProvider: "Kushki",
	}
}

// LoadPolicy reads the YAML policy file on top of the defaults. An empty path returns the defaults.
func LoadPolicy(path string) (*Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(raw, policy); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	return policy, nil
}

// Validate checks that the policy is usable
func (p *Policy) Validate() error {
	var problems []string
	if p.TokenMaxAge <= 0 {
		problems = append(problems, "tokenMaxAge must be positive")
	}
	if p.Timeouts.External <= 0 {
		problems = append(problems, "timeouts.external must be positive")
	}
	if p.Timeouts.DefaultRequestBudget <= p.Timeouts.External {
		problems = append(problems, "timeouts.defaultRequestBudget must exceed timeouts.external")
	}
	if p.Timeouts.FailoverSafetyThreshold < 0 {
		problems = append(problems, "timeouts.failoverSafetyThreshold must not be negative")
	}
	if !p.VoidTimeLimit.Disabled && p.VoidTimeLimit.DefaultDays <= 0 {
		problems = append(problems, "voidTimeLimit.defaultDays must be positive")
	}
	for name, pct := range p.Capture.TolerancePercent {
		if pct < 0 {
			problems = append(problems, fmt.Sprintf("capture.tolerancePercent[%s] must not be negative", name))
		}
	}
	if p.Topics.Transactions == "" || p.Topics.CompensatingVoid == "" || p.Topics.Alerts == "" {
		problems = append(problems, "topics must all be named")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid policy: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DirectIntegrationFor reports whether a processor is reached directly for this merchant and bin
func (p *Policy) DirectIntegrationFor(processorName, merchantID, bin string) bool {
	list, ok := p.DirectIntegration[processorName]
	return ok && list.Allows(merchantID, bin)
}

// TokenProviderFor returns the first provider whose allow-list covers the merchant and bin
func (p *Policy) TokenProviderFor(merchantID, bin string) (string, domain.IntegrationMode) {
	names := make([]string, 0, len(p.TokenProviders))
	for name := range p.TokenProviders {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if p.TokenProviders[name].Allows(merchantID, bin) {
			return name, domain.IntegrationDirect
		}
	}
	return p.DefaultTokenProvider, domain.IntegrationAggregator
}

// VoidLimitFor returns the void time limit for a transaction; ok is false when the check is off
func (p *Policy) VoidLimitFor(country, processorName string) (time.Duration, bool) {
	if p.VoidTimeLimit.Disabled {
		return 0, false
	}
	days := p.VoidTimeLimit.DefaultDays
	if d, ok := p.VoidTimeLimit.Countries[country]; ok {
		days = d
	}
	for _, o := range p.VoidTimeLimit.Overrides {
		if o.Country == country && o.Processor == processorName {
			days = o.Days
		}
	}
	return time.Duration(days) * 24 * time.Hour, true
}

// CaptureTolerance returns the capture tolerance of a processor as a fraction
func (p *Policy) CaptureTolerance(processorName string) decimal.Decimal {
	pct := p.Capture.DefaultTolerancePercent
	if v, ok := p.Capture.TolerancePercent[processorName]; ok {
		pct = v
	}
	return decimal.NewFromFloat(pct).Div(decimal.NewFromInt(100))
}

// FraudThresholdFor returns the merchant's amount cap, if any
func (p *Policy) FraudThresholdFor(merchantID string) (decimal.Decimal, bool) {
	v, ok := p.FraudThreshold.Merchants[merchantID]
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(v), true
}

// ForceRefundFor reports whether voids must settle as forced refunds
func (p *Policy) ForceRefundFor(country, processorName string) bool {
	return matchPair(p.ForceRefund, country, processorName)
}

// RequiresReceivableCheck reports whether a void needs the receivable check first
func (p *Policy) RequiresReceivableCheck(country, processorName string) bool {
	return matchPair(p.ReceivableCheck, country, processorName)
}

// IsAlwaysDeferred reports whether the country uses the built-in default deferred options
func (p *Policy) IsAlwaysDeferred(country string) bool {
	return slices.Contains(p.Deferred.AlwaysDeferredCountries, country)
}

// IsBinDenied reports whether the bin is on the denylist
func (p *Policy) IsBinDenied(bin string) bool {
	return slices.Contains(p.BinDenylist, bin)
}

// ConversionTarget returns the settlement currency for a unit of account
func (p *Policy) ConversionTarget(currency string) (string, bool) {
	target, ok := p.ConversionCurrencies[currency]
	return target, ok
}

func matchPair(pairs []CountryProcessor, country, processorName string) bool {
	for _, pair := range pairs {
		if pair.Country == country && pair.Processor == processorName {
			return true
		}
	}
	return false
}
