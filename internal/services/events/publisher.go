// Package events emits transaction events, compensating voids and operational alerts.
// Emission never fails the calling flow; failures are logged and counted.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kevin07696/transaction-orchestrator/internal/config"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/kevin07696/transaction-orchestrator/internal/services/external"
	"github.com/kevin07696/transaction-orchestrator/pkg/observability"
	"github.com/kevin07696/transaction-orchestrator/pkg/timeutil"
)

// Event types published on the transactions topic
const (
	EventTransactionCreated = "transaction.created"
)

// Publisher sends everything the orchestrators emit after the fact
type Publisher struct {
	bus     ports.MessageBus
	alerter ports.OperationalAlerter
	topics  config.TopicPolicy
	timeout time.Duration
	logger  ports.Logger
	now     func() time.Time
}

// NewPublisher creates a new publisher
func NewPublisher(bus ports.MessageBus, alerter ports.OperationalAlerter, policy *config.Policy, logger ports.Logger) *Publisher {
	return &Publisher{
		bus:     bus,
		alerter: alerter,
		topics:  policy.Topics,
		timeout: policy.Timeouts.External,
		logger:  logger,
		now:     timeutil.Now,
	}
}

// PublishTransaction publishes a persisted transaction record
func (p *Publisher) PublishTransaction(ctx context.Context, txn *domain.Transaction) {
	observability.RecordTransaction(
		txn.MerchantID,
		string(txn.TransactionType),
		string(txn.Status),
		txn.ProcessorName,
		txn.ErrorCode,
		txn.SettlementCurrency(),
		txn.ApprovedTransactionAmount.InexactFloat64(),
	)
	p.publish(ctx, p.topics.Transactions, &domain.TransactionEvent{
		Transaction: txn,
		EventType:   EventTransactionCreated,
	})
}

// CompensatingVoid asks downstream systems to reverse an authorization whose outcome is unknown
func (p *Publisher) CompensatingVoid(ctx context.Context, void *domain.CompensatingVoid) {
	if void.CreatedAt.IsZero() {
		void.CreatedAt = p.now()
	}
	observability.RecordCompensatingVoid(void.ProcessorName, void.ErrorCode)
	p.logger.Warn("emitting compensating void",
		ports.String("merchant_id", void.MerchantID),
		ports.String("token", void.TokenID),
		ports.String("processor", void.ProcessorName),
		ports.String("reason", void.Reason),
	)
	p.publish(ctx, p.topics.CompensatingVoid, void)
}

// Alert reports an operational alert. When the alerting channel rejects it
// the alert is put on the alerts topic instead.
func (p *Publisher) Alert(ctx context.Context, alert *domain.OperationalAlert) {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = p.now()
	}
	observability.RecordOperationalAlert(alert.Code)
	p.logger.Error("operational alert",
		ports.String("code", alert.Code),
		ports.String("merchant_id", alert.MerchantID),
		ports.String("ticket_number", alert.TicketNumber),
		ports.String("message", alert.Message),
	)

	sendCtx, cancel := external.Detached(ctx, p.timeout)
	defer cancel()
	if err := p.alerter.Report(sendCtx, alert); err != nil {
		p.logger.Error("alerting channel failed, falling back to bus", ports.Err(err))
		p.publish(ctx, p.topics.Alerts, alert)
	}
}

// AlertOnIntegrityViolation sends an alert when err is an integrity violation.
// It reports whether an alert was sent.
func (p *Publisher) AlertOnIntegrityViolation(ctx context.Context, err error, merchantID, ticketNumber string) bool {
	if !domain.IsAlertable(err) {
		return false
	}

	alert := &domain.OperationalAlert{
		Code:         string(domain.GetErrorCode(err)),
		MerchantID:   merchantID,
		TicketNumber: ticketNumber,
		Message:      err.Error(),
	}
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) && len(domainErr.Details) > 0 {
		alert.Details = make(map[string]string, len(domainErr.Details))
		for k, v := range domainErr.Details {
			alert.Details[k] = fmt.Sprint(v)
		}
	}
	p.Alert(ctx, alert)
	return true
}

// publish hands payload to the bus on a context detached from the request deadline
func (p *Publisher) publish(ctx context.Context, topic string, payload interface{}) {
	pubCtx, cancel := external.Detached(ctx, p.timeout)
	defer cancel()

	if err := p.bus.Publish(pubCtx, topic, payload); err != nil {
		observability.RecordPublishFailure(topic)
		p.logger.Error("publish failed",
			ports.String("topic", topic),
			ports.Err(err),
		)
	}
}
