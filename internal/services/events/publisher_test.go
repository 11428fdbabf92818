package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kevin07696/transaction-orchestrator/internal/config"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/services/events"
	"github.com/kevin07696/transaction-orchestrator/internal/testutil/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newPublisher() (*events.Publisher, *mocks.MockMessageBus, *mocks.MockAlerter, *mocks.RecordingLogger) {
	bus := new(mocks.MockMessageBus)
	alerter := new(mocks.MockAlerter)
	logger := mocks.NewRecordingLogger()
	return events.NewPublisher(bus, alerter, config.DefaultPolicy(), logger), bus, alerter, logger
}

func TestPublisher_PublishTransaction(t *testing.T) {
	publisher, bus, _, _ := newPublisher()
	txn := &domain.Transaction{TicketNumber: "07874520255", Status: domain.TransactionStatusApproval}
	bus.On("Publish", mock.Anything, "transactions", mock.MatchedBy(func(e *domain.TransactionEvent) bool {
		return e.Transaction == txn && e.EventType == events.EventTransactionCreated
	})).Return(nil).Once()

	publisher.PublishTransaction(context.Background(), txn)

	bus.AssertExpectations(t)
}

func TestPublisher_BusFailureIsSwallowed(t *testing.T) {
	publisher, bus, _, logger := newPublisher()
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bus down"))

	publisher.PublishTransaction(context.Background(), &domain.Transaction{})

	assert.Contains(t, logger.Messages("error"), "publish failed")
}

func TestPublisher_PublishSurvivesExpiredRequestContext(t *testing.T) {
	publisher, bus, _, _ := newPublisher()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.On("Publish", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), "compensating-void", mock.Anything).Return(nil).Once()

	publisher.CompensatingVoid(ctx, &domain.CompensatingVoid{TokenID: "tok-1", Amount: decimal.NewFromInt(10)})

	bus.AssertExpectations(t)
}

func TestPublisher_AlertFallsBackToBus(t *testing.T) {
	publisher, bus, alerter, _ := newPublisher()
	alerter.On("Report", mock.Anything, mock.Anything).Return(errors.New("pager unavailable")).Once()
	bus.On("Publish", mock.Anything, "operational-alerts", mock.AnythingOfType("*domain.OperationalAlert")).Return(nil).Once()

	publisher.Alert(context.Background(), &domain.OperationalAlert{Code: "K052"})

	alerter.AssertExpectations(t)
	bus.AssertExpectations(t)
}

func TestPublisher_AlertOnIntegrityViolation(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantAlert bool
	}{
		{name: "void_time_limit", err: domain.ErrVoidTimeLimit(731*24*time.Hour, 365*24*time.Hour), wantAlert: true},
		{name: "duplicate_capture", err: domain.ErrDuplicateCapture("t-1"), wantAlert: true},
		{name: "validation_error", err: domain.ErrVoidAmountNotPositive()},
		{name: "foreign_error", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher, _, alerter, _ := newPublisher()
			alerter.On("Report", mock.Anything, mock.MatchedBy(func(a *domain.OperationalAlert) bool {
				return a.Code == string(domain.GetErrorCode(tt.err)) && a.TicketNumber == "t-1"
			})).Return(nil)

			sent := publisher.AlertOnIntegrityViolation(context.Background(), tt.err, "m-1", "t-1")

			assert.Equal(t, tt.wantAlert, sent)
			if tt.wantAlert {
				alerter.AssertNumberOfCalls(t, "Report", 1)
			} else {
				alerter.AssertNotCalled(t, "Report", mock.Anything, mock.Anything)
			}
		})
	}
}
