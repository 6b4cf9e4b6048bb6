package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for PoolLedger.
// Every holder of a *Metrics treats nil as "metrics disabled".
type Metrics struct {
	// --- Engine ---
	EventsApplied   *prometheus.CounterVec
	EventsSkipped   *prometheus.CounterVec
	EventsFailed    *prometheus.CounterVec
	EventDuration   *prometheus.HistogramVec
	EntitiesWritten *prometheus.CounterVec
	DerivedEvents   prometheus.Counter
	Sequence        prometheus.Gauge

	// --- Idempotency & ordering ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	OrderingRejected      prometheus.Counter

	// --- Channels ---
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Metadata provider ---
	MetadataCalls    *prometheus.CounterVec
	MetadataFailures *prometheus.CounterVec
	MetadataCacheHit prometheus.Counter

	// --- Pricing ---
	OraclePricesUpdated prometheus.Counter
	OracleTokensSkipped prometheus.Counter

	// --- Persistence ---
	PersistBatchDur     prometheus.Histogram
	PersistEvents       prometheus.Counter
	PersistEntities     prometheus.Counter
	PersistErrors       *prometheus.CounterVec
	PersistRetry        prometheus.Counter
	PersistLastSequence prometheus.Gauge

	// --- Checkpoints & replay ---
	CheckpointTaken    prometheus.Counter
	CheckpointDuration prometheus.Histogram
	CheckpointSize     prometheus.Gauge
	CheckpointLastSeq  prometheus.Gauge
	ReplayEventsTotal  prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}
	ioBuckets := []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

	return &Metrics{
		EventsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_engine_events_applied_total",
			Help: "Events applied and committed",
		}, []string{"event_type"}),

		EventsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_engine_events_skipped_total",
			Help: "Events skipped without mutation (unknown reference, duplicate, ignored signal)",
		}, []string{"event_type", "reason"}),

		EventsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_engine_events_failed_total",
			Help: "Events rejected as structurally inconsistent",
		}, []string{"event_type"}),

		EventDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pool_engine_event_apply_duration_seconds",
			Help:    "Time to apply and commit a single event",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		EntitiesWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_engine_entities_written_total",
			Help: "Entity writes committed, by kind",
		}, []string{"kind"}),

		DerivedEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "pool_engine_derived_events_total",
			Help: "Compensating share transfers injected by the reducer",
		}),

		Sequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "pool_engine_sequence",
			Help: "Current global sequence number",
		}),

		IdempotencyDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_idempotency_duplicates_total",
			Help: "Redelivered events filtered, by tier",
		}, []string{"event_type", "tier"}),

		DedupLRUSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "pool_dedup_lru_size",
			Help: "Entries in the idempotency LRU",
		}),

		OrderingRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "pool_ordering_rejected_total",
			Help: "Events rejected for regressing chain position",
		}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "pool_publish_drops_total",
			Help: "Change sets dropped because the publish channel was full",
		}),

		PersistBackpressure: f.NewCounter(prometheus.CounterOpts{
			Name: "pool_persist_backpressure_total",
			Help: "Times the engine blocked on a full persist channel",
		}),

		MetadataCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_metadata_calls_total",
			Help: "Contract metadata reads issued",
		}, []string{"method"}),

		MetadataFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_metadata_failures_total",
			Help: "Contract metadata reads that failed and were defaulted",
		}, []string{"method"}),

		MetadataCacheHit: f.NewCounter(prometheus.CounterOpts{
			Name: "pool_metadata_cache_hits_total",
			Help: "Metadata reads served from cache",
		}),

		OraclePricesUpdated: f.NewCounter(prometheus.CounterOpts{
			Name: "pool_oracle_prices_updated_total",
			Help: "Token FX prices written from oracle answers",
		}),

		OracleTokensSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "pool_oracle_tokens_skipped_total",
			Help: "Oracle consumers skipped because the token is unknown",
		}),

		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pool_persist_batch_duration_seconds",
			Help:    "Time to write one persistence batch",
			Buckets: ioBuckets,
		}),

		PersistEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "pool_persist_events_written_total",
			Help: "Events written to the event log",
		}),

		PersistEntities: f.NewCounter(prometheus.CounterOpts{
			Name: "pool_persist_entities_written_total",
			Help: "Entity rows upserted",
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"stage"}),

		PersistRetry: f.NewCounter(prometheus.CounterOpts{
			Name: "pool_persist_retry_total",
			Help: "Persistence batch retries",
		}),

		PersistLastSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "pool_persist_last_sequence",
			Help: "Last sequence durably written",
		}),

		CheckpointTaken: f.NewCounter(prometheus.CounterOpts{
			Name: "pool_checkpoint_taken_total",
			Help: "Checkpoints written",
		}),

		CheckpointDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pool_checkpoint_duration_seconds",
			Help:    "Time to dump and write a checkpoint",
			Buckets: ioBuckets,
		}),

		CheckpointSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "pool_checkpoint_size_bytes",
			Help: "Size of the last checkpoint",
		}),

		CheckpointLastSeq: f.NewGauge(prometheus.GaugeOpts{
			Name: "pool_checkpoint_last_sequence",
			Help: "Sequence of the last checkpoint",
		}),

		ReplayEventsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "pool_replay_events_total",
			Help: "Events replayed during recovery",
		}),

		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_query_requests_total",
			Help: "Query API requests",
		}, []string{"endpoint"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pool_query_duration_seconds",
			Help:    "Query API latency",
			Buckets: ioBuckets,
		}, []string{"endpoint"}),

		QueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_query_errors_total",
			Help: "Query API errors",
		}, []string{"endpoint", "code"}),
	}
}
