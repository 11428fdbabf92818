package external_test

import (
	"errors"
	"testing"

	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/services/external"
	"github.com/stretchr/testify/assert"
)

func TestProcessorFailure_Refused(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    domain.ErrorCode
		wantRefused bool
	}{
		{
			name:        "declined",
			err:         &domain.ProcessorError{ProcessorCode: "05", ProcessorMessage: "do not honor"},
			wantCode:    domain.ErrorCodeProcessorDeclined,
			wantRefused: true,
		},
		{
			name:        "unreachable",
			err:         &domain.ReachabilityError{ProcessorName: "Datafast Processor", Err: errors.New("connection refused")},
			wantCode:    domain.ErrorCodeProcessorUnreachable,
			wantRefused: true,
		},
		{
			name:        "timeout",
			err:         domain.ErrExternalTimeout("processor:datafast", errors.New("deadline exceeded")),
			wantCode:    domain.ErrorCodeExternalTimeout,
			wantRefused: false,
		},
		{
			name:        "unknown failure",
			err:         errors.New("connection reset mid-response"),
			wantCode:    "",
			wantRefused: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failure := external.ProcessorFailure("Datafast Processor", "void", tt.err)

			assert.Equal(t, tt.wantCode, domain.GetErrorCode(failure))
			assert.Equal(t, tt.wantRefused, external.Refused(failure))
		})
	}
}
