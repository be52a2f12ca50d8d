package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Transaction metrics
	TransactionsTotal   *prometheus.CounterVec
	TransactionDuration *prometheus.HistogramVec
	TransitionsTotal    *prometheus.CounterVec
	StepConflicts       prometheus.Counter

	// Acquirer metrics
	AcquirerCalls    *prometheus.CounterVec
	AcquirerDuration *prometheus.HistogramVec

	// Webhook metrics
	WebhookDeliveries *prometheus.CounterVec
	WebhookAbandoned  *prometheus.CounterVec
	WebhookBacklog    prometheus.Gauge

	// Sweeper metrics
	SweeperRuns    prometheus.Counter
	SweeperRescued *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec

	// Worker metrics
	WorkerMessagesProcessed  *prometheus.CounterVec
	WorkerProcessingDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		TransactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Total number of transactions by terminal status",
			},
			[]string{"status", "currency"},
		),
		TransactionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transaction_duration_seconds",
				Help:      "Time from creation to terminal state in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 300, 900},
			},
			[]string{"status"},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_transitions_total",
				Help:      "Total number of state transitions applied",
			},
			[]string{"from", "to", "actor"},
		),
		StepConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_conflicts_total",
				Help:      "Total number of optimistic-concurrency conflicts during advance steps",
			},
		),
		AcquirerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "acquirer_calls_total",
				Help:      "Total number of acquirer calls by operation and outcome",
			},
			[]string{"acquirer", "operation", "outcome"},
		),
		AcquirerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "acquirer_call_duration_seconds",
				Help:      "Acquirer call duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"acquirer", "operation"},
		),
		WebhookDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_deliveries_total",
				Help:      "Total number of webhook delivery attempts by result",
			},
			[]string{"result"},
		),
		WebhookAbandoned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_abandoned_total",
				Help:      "Total number of webhook deliveries abandoned, by reason",
			},
			[]string{"reason"},
		),
		WebhookBacklog: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "webhook_backlog",
				Help:      "Number of deliveries currently awaiting an attempt",
			},
		),
		SweeperRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweeper_runs_total",
				Help:      "Total number of reconciliation sweeps",
			},
		),
		SweeperRescued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweeper_rescued_total",
				Help:      "Total number of stale transactions re-advanced by the sweeper",
			},
			[]string{"result"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		WorkerMessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_messages_processed_total",
				Help:      "Total number of worker messages processed",
			},
			[]string{"stream", "status"},
		),
		WorkerProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "worker_processing_duration_seconds",
				Help:      "Worker message processing duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stream"},
		),
	}

	factory.MustRegister(
		m.TransactionsTotal,
		m.TransactionDuration,
		m.TransitionsTotal,
		m.StepConflicts,
		m.AcquirerCalls,
		m.AcquirerDuration,
		m.WebhookDeliveries,
		m.WebhookAbandoned,
		m.WebhookBacklog,
		m.SweeperRuns,
		m.SweeperRescued,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
		m.WorkerMessagesProcessed,
		m.WorkerProcessingDuration,
	)

	return m
}
