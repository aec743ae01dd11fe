// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Execution metrics
	ExecutionsTotal     *prometheus.CounterVec
	ExecutionDuration   prometheus.Histogram
	PreconditionRejects *prometheus.CounterVec
	IntegrityViolations *prometheus.CounterVec
	RealizedProfitUSD   prometheus.Histogram
	GasUsed             prometheus.Histogram

	// Action metrics
	ActionsTotal *prometheus.CounterVec
	OpaqueCalls  *prometheus.CounterVec

	// Venue metrics
	VenueSwaps       *prometheus.CounterVec
	FeeTiersSelected *prometheus.CounterVec

	// Loan metrics
	FlashLoansTotal *prometheus.CounterVec

	// Safety metrics
	EmergencyStop   prometheus.Gauge
	CurrentGasPrice prometheus.Gauge
	ChainHead       prometheus.Gauge

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Event metrics
	EventsPublished *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Scheduler metrics
	JobRuns *prometheus.CounterVec

	// Health metrics
	LastSuccessfulExecution prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "flashloan_executor"
	}

	return &Metrics{
		// Execution metrics
		ExecutionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "executions_total",
			Help:      "Total number of recorded execution attempts by status and failure kind",
		}, []string{"status", "kind"}),
		ExecutionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "execution_duration_seconds",
			Help:      "Wall time of execution attempts in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),
		PreconditionRejects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "precondition_rejects_total",
			Help:      "Total number of requests rejected at the precondition gate",
		}, []string{"reason"}),
		IntegrityViolations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "integrity_violations_total",
			Help:      "Total number of integrity violations (reentrancy, untrusted callback, initiator mismatch)",
		}, []string{"reason"}),
		RealizedProfitUSD: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "realized_profit_usd",
			Help:      "Realized profit of successful executions in USD",
			Buckets:   []float64{0, 1, 10, 100, 1000, 10000, 100000},
		}),
		GasUsed: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "gas_used",
			Help:      "Estimated gas consumed per execution attempt",
			Buckets:   prometheus.ExponentialBuckets(50_000, 2, 8),
		}),

		// Action metrics
		ActionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "action",
			Name:      "executed_total",
			Help:      "Total number of executed actions by kind and outcome",
		}, []string{"kind", "outcome"}),
		OpaqueCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "action",
			Name:      "opaque_calls_total",
			Help:      "Total number of opaque (custom) calls against arbitrary targets",
		}, []string{"target"}),

		// Venue metrics
		VenueSwaps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "venue",
			Name:      "swaps_total",
			Help:      "Total number of venue swaps by venue kind and outcome",
		}, []string{"venue_kind", "outcome"}),
		FeeTiersSelected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "venue",
			Name:      "fee_tier_selected_total",
			Help:      "Total number of optimal fee tier selections by tier",
		}, []string{"fee"}),

		// Loan metrics
		FlashLoansTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loan",
			Name:      "flash_loans_total",
			Help:      "Total number of flash loans by outcome",
		}, []string{"outcome"}),

		// Safety metrics
		EmergencyStop: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "emergency_stop",
			Help:      "1 while the emergency stop is engaged",
		}),
		CurrentGasPrice: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "gas_price_wei",
			Help:      "Latest observed gas price in wei",
		}),
		ChainHead: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "head_block_number",
			Help:      "Highest block number seen",
		}),

		// Latency metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_latency_seconds",
			Help:      "JSON-RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Event metrics
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of outcome events published by result",
		}, []string{"result"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Scheduler metrics
		JobRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Total number of scheduled job runs",
		}, []string{"job", "status"}),

		// Health metrics
		LastSuccessfulExecution: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_execution_timestamp",
			Help:      "Unix timestamp of last successful execution",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordExecution records a completed execution attempt.
func RecordExecution(status, kind string, seconds float64, gasUsed uint64) {
	DefaultMetrics.ExecutionsTotal.WithLabelValues(status, kind).Inc()
	DefaultMetrics.ExecutionDuration.Observe(seconds)
	DefaultMetrics.GasUsed.Observe(float64(gasUsed))
}

// RecordProfit records realized profit of a successful execution.
func RecordProfit(usd float64, unixSeconds int64) {
	DefaultMetrics.RealizedProfitUSD.Observe(usd)
	DefaultMetrics.LastSuccessfulExecution.Set(float64(unixSeconds))
}

// RecordPreconditionReject records a request rejected before the loan.
func RecordPreconditionReject(reason string) {
	DefaultMetrics.PreconditionRejects.WithLabelValues(reason).Inc()
}

// RecordIntegrityViolation records a reentrancy or callback integrity failure.
func RecordIntegrityViolation(reason string) {
	DefaultMetrics.IntegrityViolations.WithLabelValues(reason).Inc()
}

// RecordAction records the outcome of one action.
func RecordAction(kind string, ok bool) {
	DefaultMetrics.ActionsTotal.WithLabelValues(kind, outcome(ok)).Inc()
}

// RecordOpaqueCall records a custom call against an arbitrary target.
func RecordOpaqueCall(target string) {
	DefaultMetrics.OpaqueCalls.WithLabelValues(target).Inc()
}

// RecordVenueSwap records a swap against a venue.
func RecordVenueSwap(venueKind string, ok bool) {
	DefaultMetrics.VenueSwaps.WithLabelValues(venueKind, outcome(ok)).Inc()
}

// RecordFeeTier records the tier chosen by optimal fee tier selection.
func RecordFeeTier(fee string) {
	DefaultMetrics.FeeTiersSelected.WithLabelValues(fee).Inc()
}

// RecordFlashLoan records a flash loan outcome.
func RecordFlashLoan(ok bool) {
	DefaultMetrics.FlashLoansTotal.WithLabelValues(outcome(ok)).Inc()
}

// SetEmergencyStop mirrors the emergency stop flag.
func SetEmergencyStop(stopped bool) {
	if stopped {
		DefaultMetrics.EmergencyStop.Set(1)
		return
	}
	DefaultMetrics.EmergencyStop.Set(0)
}

// UpdateGasPrice updates the gas price gauge.
func UpdateGasPrice(wei float64) {
	DefaultMetrics.CurrentGasPrice.Set(wei)
}

// UpdateChainHead updates the head block gauge.
func UpdateChainHead(block uint64) {
	DefaultMetrics.ChainHead.Set(float64(block))
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordEventPublished records an outcome event publication.
func RecordEventPublished(err error) {
	DefaultMetrics.EventsPublished.WithLabelValues(outcome(err == nil)).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordJobRun records one run of a scheduled job.
func RecordJobRun(job string, err error) {
	DefaultMetrics.JobRuns.WithLabelValues(job, outcome(err == nil)).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
