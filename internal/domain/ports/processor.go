package ports

import (
	"context"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
)

// ProcessorAdapter is implemented once per processor and integration mode.
// Failures are returned as *domain.ProcessorError (structured decline) or
// *domain.ReachabilityError (nothing reached the processor); anything else is
// treated as an ambiguous outcome.
type ProcessorAdapter interface {
	Name() string
	Charge(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error)
	PreAuthorize(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error)
	ReAuthorize(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error)
	Capture(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error)
	Void(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error)
}

// TokenProvider vaults card data with a processor
type TokenProvider interface {
	Tokenize(ctx context.Context, req *domain.TokenProviderRequest) (*domain.TokenProviderResponse, error)
}

// ProcessorRegistry resolves adapters by processor name and integration mode
type ProcessorRegistry interface {
	Adapter(processorName string, mode domain.IntegrationMode) (ProcessorAdapter, error)
	TokenProvider(processorName string, mode domain.IntegrationMode) (TokenProvider, error)
}

// RuleEngineClient is the external processor-rule engine
type RuleEngineClient interface {
	// Resolve returns the routing decision. A risk rule rejection comes back as
	// *domain.DeclinedByRuleError or as a result carrying a declining RiskDecision.
	Resolve(ctx context.Context, input *domain.RoutingInput) (*domain.ProcessorRuleResult, error)

	// ValidateDeferred checks deferred limits; a rejection is *domain.DeclinedByRuleError
	ValidateDeferred(ctx context.Context, input *domain.DeferredLimitInput) error
}
