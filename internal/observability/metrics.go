package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for CoverLedger.
type Metrics struct {
	// --- Core processing ---
	CommandsApplied   *prometheus.CounterVec
	CommandsRejected  *prometheus.CounterVec
	CommandsDuplicate *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec
	CoreSequence      prometheus.Gauge

	// --- Automation ---
	AutomationRuns        prometheus.Counter
	AutomationTriggered   prometheus.Counter
	AutomationGasUsed     prometheus.Counter
	AutomationRateLimited prometheus.Counter

	// --- Ingestion ---
	PriceQuotesReceived *prometheus.CounterVec
	PriceQuotesRejected *prometheus.CounterVec
	PublishDrops        prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten   prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchSize       prometheus.Histogram
	PersistBatchDur        prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistRetry           prometheus.Counter
	PersistLastSequence    prometheus.Gauge

	// --- Snapshot & replay ---
	SnapshotTaken     prometheus.Counter
	SnapshotLastSeq   prometheus.Gauge
	ReplayEventsTotal prometheus.Counter

	// --- Projections ---
	ProjectionDrops     *prometheus.CounterVec
	ProjectionUpdateDur *prometheus.HistogramVec

	// --- HTTP API ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		CommandsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_core_commands_applied_total",
			Help: "Commands successfully applied by the core",
		}, []string{"event_type"}),

		CommandsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_core_commands_rejected_total",
			Help: "Commands rejected (validation, authorization, conflict, funds)",
		}, []string{"event_type", "kind"}),

		CommandsDuplicate: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_core_commands_duplicate_total",
			Help: "Duplicate commands dropped by idempotency check",
		}, []string{"event_type"}),

		CommandDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cover_core_command_duration_seconds",
			Help:    "Time to apply a single command in the core",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cover_core_sequence",
			Help: "Current global sequence number",
		}),

		AutomationRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_automation_runs_total",
			Help: "Automation passes that reached the scan",
		}),

		AutomationTriggered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_automation_triggered_total",
			Help: "Payouts triggered by automation",
		}),

		AutomationGasUsed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_automation_gas_used_total",
			Help: "Modeled gas spent by automation scans",
		}),

		AutomationRateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_automation_rate_limited_total",
			Help: "Automation ticks skipped by the cool-down",
		}),

		PriceQuotesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_price_quotes_received_total",
			Help: "Feed quotes received from NATS",
		}, []string{"symbol"}),

		PriceQuotesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_price_quotes_rejected_total",
			Help: "Feed quotes rejected (parse, stale, non-positive)",
		}, []string{"symbol", "reason"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistJournalsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_persist_journals_written_total",
			Help: "Journal entries written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cover_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cover_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cover_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cover_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		ReplayEventsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_replay_events_total",
			Help: "Events replayed on startup",
		}),

		ProjectionDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_projection_drops_total",
			Help: "Events dropped due to full projection channel",
		}, []string{"projection"}),

		ProjectionUpdateDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cover_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"projection"}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_http_requests_total",
			Help: "HTTP API requests",
		}, []string{"route", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cover_http_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"route"}),
	}
}
