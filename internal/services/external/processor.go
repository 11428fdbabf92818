package external

import (
	"errors"
	"fmt"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
)

// ProcessorFailure maps an adapter failure to the domain error returned to the caller.
// Timeouts keep their K027 code; unknown failures are wrapped with the processor name.
func ProcessorFailure(processorName, operation string, err error) error {
	var procErr *domain.ProcessorError
	if errors.As(err, &procErr) {
		if procErr.ProcessorName == "" {
			procErr.ProcessorName = processorName
		}
		return domain.ErrProcessorDeclined(procErr)
	}
	var reach *domain.ReachabilityError
	if errors.As(err, &reach) {
		return domain.ErrProcessorUnreachable(processorName, err)
	}
	if domain.GetErrorCode(err) == domain.ErrorCodeExternalTimeout {
		return err
	}
	return fmt.Errorf("%s with %s: %w", operation, processorName, err)
}

// Refused reports whether a mapped processor failure means the operation definitely did not happen.
// Timeouts and unknown failures leave the outcome open.
func Refused(err error) bool {
	switch domain.GetErrorCode(err) {
	case domain.ErrorCodeProcessorDeclined, domain.ErrorCodeProcessorUnreachable:
		return true
	}
	return false
}
