package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "ixora_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	selectionMutations *prometheus.CounterVec
	selectionSize      prometheus.Gauge
	selectionTotal     prometheus.Gauge

	pollAttempts    *prometheus.CounterVec
	paymentOutcomes *prometheus.CounterVec
	receiptFetches  *prometheus.CounterVec

	backendRequests *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec

	persistErrors *prometheus.CounterVec
)

// Init registers metrics. When db is non-nil a gauge for persisted
// selection snapshots is registered as well.
func Init(db *sql.DB, table string, logger *zap.Logger) {
	registerOnce.Do(func() {
		selectionMutations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "selection_mutations_total",
				Help: "Bill selection transitions by action and result",
			},
			[]string{"action", "result"},
		)
		selectionSize = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "selection_bills",
			Help: "Bills currently selected",
		})
		selectionTotal = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "selection_amount_total",
			Help: "Sum of selected bill amounts (RM)",
		})

		pollAttempts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payment_poll_attempts_total",
				Help: "Payment status polls by result",
			},
			[]string{"result"},
		)
		paymentOutcomes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payment_outcomes_total",
				Help: "Reconciler loop outcomes by phase and status",
			},
			[]string{"phase", "status"},
		)
		receiptFetches = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payment_receipt_fetches_total",
				Help: "Receipt fetches by result",
			},
			[]string{"result"},
		)

		backendRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "backend_requests_total",
				Help: "Portal backend requests by endpoint and result",
			},
			[]string{"endpoint", "result"},
		)
		backendLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "backend_latency_seconds",
				Help:    "Portal backend latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "result"},
		)

		persistErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "selection_persist_errors_total",
				Help: "Swallowed selection persistence failures by operation",
			},
			[]string{"op"},
		)

		prometheus.MustRegister(
			selectionMutations,
			selectionSize,
			selectionTotal,
			pollAttempts,
			paymentOutcomes,
			receiptFetches,
			backendRequests,
			backendLatency,
			persistErrors,
		)

		if db != nil && table != "" {
			registerDBMetrics(db, table, logger)
		}
	})
}

// IncSelectionMutation counts a selection transition by action and result.
func IncSelectionMutation(action string, changed bool) {
	result := "applied"
	if !changed {
		result = "rejected"
	}
	if selectionMutations != nil {
		selectionMutations.WithLabelValues(action, result).Inc()
	}
}

// SetSelection records the selection size after a change.
func SetSelection(count int, total float64) {
	if selectionSize != nil {
		selectionSize.Set(float64(count))
	}
	if selectionTotal != nil {
		selectionTotal.Set(total)
	}
}

// IncPersistError counts a swallowed persistence failure.
func IncPersistError(op string) {
	if op == "" {
		op = "unknown"
	}
	if persistErrors != nil {
		persistErrors.WithLabelValues(op).Inc()
	}
}

// IncPollAttempt counts a status poll.
func IncPollAttempt(result string) {
	if result == "" {
		result = resultSuccess
	}
	if pollAttempts != nil {
		pollAttempts.WithLabelValues(result).Inc()
	}
}

// IncPaymentOutcome counts a finished reconciler loop.
func IncPaymentOutcome(phase, status string) {
	if phase == "" {
		phase = "unknown"
	}
	if paymentOutcomes != nil {
		paymentOutcomes.WithLabelValues(phase, status).Inc()
	}
}

// IncReceiptFetch counts a receipt fetch.
func IncReceiptFetch(result string) {
	if result == "" {
		result = resultSuccess
	}
	if receiptFetches != nil {
		receiptFetches.WithLabelValues(result).Inc()
	}
}

// ObserveBackend records a backend request.
func ObserveBackend(endpoint, result string, duration time.Duration) {
	if endpoint == "" {
		endpoint = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if backendRequests != nil {
		backendRequests.WithLabelValues(endpoint, result).Inc()
	}
	if backendLatency != nil {
		backendLatency.WithLabelValues(endpoint, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
