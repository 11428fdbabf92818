package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Orchestrated transaction outcomes
	transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_transactions_total",
		Help: "Total number of persisted transaction records",
	}, []string{
		"merchant_id",
		"transaction_type", // CHARGE, PREAUTH, REAUTH, CAPTURE, VOID
		"status",           // APPROVAL, DECLINED
		"processor",
		"error_code", // empty when approved
	})

	transactionAmount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_transaction_amount_total",
		Help: "Sum of approved amounts in settlement currency units",
	}, []string{
		"merchant_id",
		"transaction_type",
		"currency",
	})

	orchestrationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "orchestrator_operation_duration_seconds",
		Help: "End-to-end duration of an orchestrated operation",
		// Buckets: 50ms up to the 29s request budget
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 29},
	}, []string{
		"operation", // charge, void, capture, tokenize
		"outcome",   // ok or the error kind
	})

	failoversTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_failovers_total",
		Help: "Fail-over attempts after a primary processor was unreachable",
	}, []string{
		"primary",
		"failover",
		"outcome", // approved, declined, failed
	})

	compensatingVoidsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_compensating_voids_total",
		Help: "Compensating voids emitted for authorizations with unknown outcome",
	}, []string{
		"processor",
		"reason",
	})

	operationalAlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_operational_alerts_total",
		Help: "Integrity violations reported to operators",
	}, []string{
		"code",
	})

	publishFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_publish_failures_total",
		Help: "Events that could not be handed to the message bus",
	}, []string{
		"topic",
	})

	tokensIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_tokens_issued_total",
		Help: "Tokens issued, by provider and integration",
	}, []string{
		"merchant_id",
		"provider",
		"integration",
	})

	idempotencyConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_idempotency_conflicts_total",
		Help: "Requests rejected because their token was already used",
	}, []string{
		"operation",
	})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orchestrator_circuit_breaker_state",
		Help: "Circuit breaker state per processor: 0 closed, 1 half-open, 2 open",
	}, []string{
		"breaker",
	})

	collaboratorCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orchestrator_collaborator_call_duration_seconds",
		Help:    "Duration of calls to external collaborators",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{
		"collaborator",
		"outcome", // ok, error, timeout
	})

	dbPoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orchestrator_db_pool_connections",
		Help: "Database pool connections by state",
	}, []string{
		"state", // total, idle, acquired
	})
)

// RecordTransaction records one persisted transaction record.
// Only approved records count toward the amount total.
func RecordTransaction(merchantID, transactionType, status, processor, errorCode, currency string, amount float64) {
	transactionsTotal.WithLabelValues(merchantID, transactionType, status, processor, errorCode).Inc()
	if errorCode == "" && amount > 0 {
		transactionAmount.WithLabelValues(merchantID, transactionType, currency).Add(amount)
	}
}

// RecordOperation records the duration and outcome of an orchestrated operation
func RecordOperation(operation, outcome string, d time.Duration) {
	orchestrationDuration.WithLabelValues(operation, outcome).Observe(d.Seconds())
}

// RecordFailover records one fail-over attempt
func RecordFailover(primary, failover, outcome string) {
	failoversTotal.WithLabelValues(primary, failover, outcome).Inc()
}

// RecordCompensatingVoid records an emitted compensating void
func RecordCompensatingVoid(processor, reason string) {
	compensatingVoidsTotal.WithLabelValues(processor, reason).Inc()
}

// RecordOperationalAlert records an alert sent to operators
func RecordOperationalAlert(code string) {
	operationalAlertsTotal.WithLabelValues(code).Inc()
}

// RecordPublishFailure records an event the bus did not accept
func RecordPublishFailure(topic string) {
	publishFailuresTotal.WithLabelValues(topic).Inc()
}

// RecordTokenIssued records an issued token
func RecordTokenIssued(merchantID, provider, integration string) {
	tokensIssuedTotal.WithLabelValues(merchantID, provider, integration).Inc()
}

// RecordIdempotencyConflict records a rejected token reuse
func RecordIdempotencyConflict(operation string) {
	idempotencyConflictsTotal.WithLabelValues(operation).Inc()
}

// Circuit breaker states as exported by RecordCircuitState
const (
	CircuitClosed   = 0
	CircuitHalfOpen = 1
	CircuitOpen     = 2
)

// RecordCircuitState records the current state of a named breaker
func RecordCircuitState(breaker string, state int) {
	circuitBreakerState.WithLabelValues(breaker).Set(float64(state))
}

// RecordCollaboratorCall records the duration of one external call
func RecordCollaboratorCall(collaborator, outcome string, d time.Duration) {
	collaboratorCallDuration.WithLabelValues(collaborator, outcome).Observe(d.Seconds())
}

// RecordDBPool records a snapshot of the database pool
func RecordDBPool(total, idle, acquired int32) {
	dbPoolConnections.WithLabelValues("total").Set(float64(total))
	dbPoolConnections.WithLabelValues("idle").Set(float64(idle))
	dbPoolConnections.WithLabelValues("acquired").Set(float64(acquired))
}
