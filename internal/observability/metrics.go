// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Slot metrics
	SlotsProcessed *prometheus.CounterVec // by outcome: done, skipped_empty, deferred, unresolved
	FetchAttempts  *prometheus.CounterVec // by outcome: ok, not_found, rate_limited, transient, permanent
	Watermark      prometheus.Gauge
	HighestSlot    prometheus.Gauge

	// Record metrics
	SwapsDecoded       prometheus.Counter
	RecordsWritten     prometheus.Counter
	DuplicatesDropped  prometheus.Counter
	ReconcileWarnings  *prometheus.CounterVec // by reason
	FailedTransactions prometheus.Counter

	// Sink metrics
	BatchFlushDuration *prometheus.HistogramVec // by sink
	BatchSize          prometheus.Histogram
	SinkErrors         *prometheus.CounterVec // by sink

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulFlush prometheus.Gauge
}

// DefaultNamespace prefixes every metric unless configured otherwise.
const DefaultNamespace = "raydium_swap_ingest"

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg selects prometheus.DefaultRegisterer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		SlotsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "slots_total",
			Help:      "Slots processed by outcome",
		}, []string{"outcome"}),
		FetchAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "fetch_attempts_total",
			Help:      "RPC fetch attempts by outcome",
		}, []string{"outcome"}),
		Watermark: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "watermark_slot",
			Help:      "Highest contiguous slot fully written",
		}),
		HighestSlot: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "highest_slot_dispatched",
			Help:      "Highest slot handed to fetch workers",
		}),

		SwapsDecoded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decode",
			Name:      "swaps_decoded_total",
			Help:      "Swap instructions decoded",
		}),
		RecordsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "records_written_total",
			Help:      "Swap records submitted to the sink",
		}),
		DuplicatesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "duplicates_dropped_total",
			Help:      "Records dropped because their key was already written in this run",
		}),
		ReconcileWarnings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decode",
			Name:      "warnings_total",
			Help:      "Swap instructions skipped by reason",
		}, []string{"reason"}),
		FailedTransactions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decode",
			Name:      "failed_transactions_total",
			Help:      "Target-program transactions that executed with an error",
		}),

		BatchFlushDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "flush_duration_seconds",
			Help:      "Batch flush duration in seconds, including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sink"}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "batch_records",
			Help:      "Records per flushed batch",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "errors_total",
			Help:      "Failed batch write attempts",
		}, []string{"sink"}),

		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		LastSuccessfulFlush: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_flush_timestamp",
			Help:      "Unix timestamp of last successful batch flush",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// ForNamespace returns DefaultMetrics for the default namespace and a new
// instance on the default registerer otherwise.
func ForNamespace(namespace string) *Metrics {
	if namespace == "" || namespace == DefaultNamespace {
		return DefaultMetrics
	}
	return NewMetrics(namespace, nil)
}

// ObserveRPC records the latency of one RPC call.
func (m *Metrics) ObserveRPC(method string, d time.Duration) {
	m.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
}
