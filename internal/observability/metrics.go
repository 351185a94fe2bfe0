package observability

import (
	fpmath "PerpAMM/internal/math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// Metrics holds all Prometheus metrics for PerpAMM.
type Metrics struct {
	// --- Engine ---
	CoreTxApplied     *prometheus.CounterVec
	CoreTxRejected    *prometheus.CounterVec
	CoreTxDuration    *prometheus.HistogramVec
	CoreEventsEmitted *prometheus.CounterVec
	CoreStateHashDur  prometheus.Histogram
	CoreSequence      prometheus.Gauge
	InvariantBreaches *prometheus.CounterVec

	// --- Channel & Backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     *prometheus.CounterVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter
	DedupTier2Duration    prometheus.Histogram
	DedupTier2Errors      prometheus.Counter

	// --- Market ---
	MarkPrice            prometheus.Gauge
	IndexPrice           prometheus.Gauge
	FundingAccumulated   prometheus.Gauge
	FundingUpdates       prometheus.Counter
	PoolCash             prometheus.Gauge
	PoolPosition         prometheus.Gauge
	ShareSupply          prometheus.Gauge
	OpenInterest         *prometheus.GaugeVec
	SocialLossPerUnit    *prometheus.GaugeVec
	IndexUpdatesReceived *prometheus.CounterVec

	// --- Liquidation ---
	Liquidations         prometheus.Counter
	LiquidatedAmount     prometheus.Counter
	InsuranceFundBalance prometheus.Gauge
	Shortfall            *prometheus.GaugeVec

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchDur      prometheus.Histogram
	PersistBatchSize     prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistRetry         prometheus.Counter
	PersistLastSequence  prometheus.Gauge
	ProjectionUpdateDur  *prometheus.HistogramVec
	EventsPublished      *prometheus.CounterVec

	// --- Snapshot ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	latencyBuckets := []float64{
		0.000005, 0.00001, 0.000025, 0.00005, 0.0001,
		0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.05,
	}

	return &Metrics{
		// Engine
		CoreTxApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_core_tx_applied_total",
			Help: "Transactions committed by the engine",
		}, []string{"op"}),

		CoreTxRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_core_tx_rejected_total",
			Help: "Transactions rolled back (by error kind) or deduplicated",
		}, []string{"op", "reason"}),

		CoreTxDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perp_core_tx_duration_seconds",
			Help:    "Time to run one transaction in the engine",
			Buckets: latencyBuckets,
		}, []string{"op"}),

		CoreEventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_core_events_emitted_total",
			Help: "Domain events sequenced by the engine",
		}, []string{"event_type"}),

		CoreStateHashDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "perp_core_state_hash_duration_seconds",
			Help:    "Time to encode and chain the events of one transaction",
			Buckets: latencyBuckets,
		}),

		CoreSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "perp_core_sequence",
			Help: "Current global event sequence number",
		}),

		InvariantBreaches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_core_invariant_breaches_total",
			Help: "Post-commit invariant checks that failed",
		}, []string{"invariant"}),

		// Channel & Backpressure
		ChannelSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_projection_drops_total",
			Help: "Events dropped due to full projection channel",
		}, []string{"projection"}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "perp_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PersistBackpressure: f.NewCounter(prometheus.CounterOpts{
			Name: "perp_persist_backpressure_total",
			Help: "Times the engine blocked on the persist channel",
		}),

		// Idempotency
		IdempotencyDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_idempotency_duplicates_total",
			Help: "Duplicate requests caught (lru/postgres)",
		}, []string{"op", "tier"}),

		DedupLRUSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "perp_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupLRUEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "perp_dedup_lru_evictions_total",
			Help: "LRU evictions",
		}),

		DedupTier2Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "perp_dedup_tier2_duration_seconds",
			Help:    "Postgres dedup lookup latency",
			Buckets: latencyBuckets,
		}),

		DedupTier2Errors: f.NewCounter(prometheus.CounterOpts{
			Name: "perp_dedup_tier2_errors_total",
			Help: "Postgres dedup lookups that failed",
		}),

		// Market
		MarkPrice: f.NewGauge(prometheus.GaugeOpts{
			Name: "perp_mark_price",
			Help: "Mark price after the last committed transaction",
		}),

		IndexPrice: f.NewGauge(prometheus.GaugeOpts{
			Name: "perp_index_price",
			Help: "Last index price seen by the funding state",
		}),

		FundingAccumulated: f.NewGauge(prometheus.GaugeOpts{
			Name: "perp_funding_accumulated_per_contract",
			Help: "Accumulated funding per contract",
		}),

		FundingUpdates: f.NewCounter(prometheus.CounterOpts{
			Name: "perp_funding_updates_total",
			Help: "Funding state advances",
		}),

		PoolCash: f.NewGauge(prometheus.GaugeOpts{
			Name: "perp_pool_cash",
			Help: "Cash balance of the AMM pool account",
		}),

		PoolPosition: f.NewGauge(prometheus.GaugeOpts{
			Name: "perp_pool_position",
			Help: "Long position held by the AMM pool account",
		}),

		ShareSupply: f.NewGauge(prometheus.GaugeOpts{
			Name: "perp_pool_share_supply",
			Help: "Outstanding pool shares",
		}),

		OpenInterest: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_open_interest",
			Help: "Total position size per side",
		}, []string{"side"}),

		SocialLossPerUnit: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_social_loss_per_contract",
			Help: "Social loss accumulator per side",
		}, []string{"side"}),

		IndexUpdatesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_index_updates_received_total",
			Help: "Index price messages received from NATS",
		}, []string{"status"}),

		// Liquidation
		Liquidations: f.NewCounter(prometheus.CounterOpts{
			Name: "perp_liquidations_total",
			Help: "Liquidations executed",
		}),

		LiquidatedAmount: f.NewCounter(prometheus.CounterOpts{
			Name: "perp_liquidated_contracts_total",
			Help: "Contracts taken over by liquidators",
		}),

		InsuranceFundBalance: f.NewGauge(prometheus.GaugeOpts{
			Name: "perp_insurance_fund_balance",
			Help: "Current insurance fund balance",
		}),

		Shortfall: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_unsocialized_shortfall",
			Help: "Bankruptcy losses the insurance fund could not cover",
		}, []string{"side"}),

		// Persistence
		PersistEventsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "perp_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "perp_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "perp_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: f.NewCounter(prometheus.CounterOpts{
			Name: "perp_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "perp_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		ProjectionUpdateDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perp_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"projection"}),

		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_events_published_total",
			Help: "Events published to JetStream",
		}, []string{"event_type", "status"}),

		// Snapshot
		SnapshotTaken: f.NewCounter(prometheus.CounterOpts{
			Name: "perp_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "perp_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}),

		SnapshotSizeBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "perp_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		SnapshotLastSeq: f.NewGauge(prometheus.GaugeOpts{
			Name: "perp_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		// Query API
		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perp_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		QueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}

// Float converts a fixed-point amount for a gauge. Precision beyond
// float64 is lost.
func Float(v fpmath.Int) float64 {
	return decimal.NewFromBigInt(v.BigInt(), -fpmath.Decimals).InexactFloat64()
}
