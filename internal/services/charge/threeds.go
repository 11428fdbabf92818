package charge

import (
	"slices"
	"strings"

	"github.com/kevin07696/transaction-orchestrator/internal/config"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
)

// 3-D Secure authentication statuses that never shift liability
var failedThreeDSStatuses = []string{"failed", "rejected", "declined", "error"}

// checkThreeDS returns why a 3-D Secure block fails the brand's liability-shift rules, or "".
// Requests without a block pass. Bad data passes when the token or the merchant accepts the risk.
func checkThreeDS(security *domain.SecurityBlock, brand string, merchant *domain.Merchant, policy config.ThreeDSPolicy) string {
	if security == nil || (security.ECI == "" && security.Status == "" && security.CAVV == "") {
		return ""
	}

	reason := threeDSFailure(security, strings.ToLower(brand), policy)
	if reason == "" {
		return ""
	}
	if security.AcceptRisk || (merchant != nil && merchant.AcceptRisk3DS) {
		return ""
	}
	return reason
}

func threeDSFailure(security *domain.SecurityBlock, brand string, policy config.ThreeDSPolicy) string {
	if security.FailureReason != "" {
		return security.FailureReason
	}
	if slices.Contains(failedThreeDSStatuses, strings.ToLower(security.Status)) {
		return "3ds authentication " + strings.ToLower(security.Status)
	}

	allowed, known := policy.LiabilityShiftECI[brand]
	if !known {
		return ""
	}
	if !slices.Contains(allowed, security.ECI) {
		return "eci " + security.ECI + " does not shift liability for " + brand
	}
	if security.CAVV == "" {
		return "missing cavv"
	}
	return ""
}
