package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the raid service.
type Metrics struct {
	// --- Engine ---
	TradesApplied      *prometheus.CounterVec
	TradesRejected     *prometheus.CounterVec
	TradeApplyDuration *prometheus.HistogramVec
	BossHealth         prometheus.Gauge
	BossesDefeated     prometheus.Counter
	DedupSize          prometheus.Gauge

	// --- Ingestion ---
	FeedFrames     prometheus.Counter
	FeedReconnects prometheus.Counter
	IngestRejected *prometheus.CounterVec

	// --- Channels & fan-out ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	BroadcastDrops      prometheus.Counter
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Persistence ---
	PersistOps     *prometheus.CounterVec
	PersistErrors  *prometheus.CounterVec
	PersistRetry   prometheus.Counter
	PersistOpDur   prometheus.Histogram

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec

	// --- Websocket fan-out ---
	WSClients prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	applyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		TradesApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bossraid_trades_applied_total",
			Help: "Trades applied by the engine",
		}, []string{"tx_type"}),

		TradesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bossraid_trades_rejected_total",
			Help: "Trades rejected by the engine (dedup, defeated boss)",
		}, []string{"tx_type", "reason"}),

		TradeApplyDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bossraid_trade_apply_duration_seconds",
			Help:    "Time to apply a single trade in the engine",
			Buckets: applyBuckets,
		}, []string{"tx_type"}),

		BossHealth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bossraid_current_boss_health",
			Help: "Current boss health",
		}),

		BossesDefeated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bossraid_bosses_defeated_total",
			Help: "Bosses defeated since start",
		}),

		DedupSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bossraid_dedup_cache_size",
			Help: "Current dedup cache occupancy",
		}),

		FeedFrames: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bossraid_feed_frames_total",
			Help: "Websocket frames received from the trade feed",
		}),

		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bossraid_feed_reconnects_total",
			Help: "Trade feed reconnect attempts",
		}),

		IngestRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bossraid_ingest_rejected_total",
			Help: "Trades rejected before the engine (validation, rate limit)",
		}, []string{"reason"}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bossraid_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bossraid_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bossraid_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		BroadcastDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bossraid_broadcast_drops_total",
			Help: "Broadcast events dropped due to full channel",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bossraid_publish_drops_total",
			Help: "Outbound events dropped due to full publish channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bossraid_persist_backpressure_total",
			Help: "Times the engine blocked on the persist channel",
		}),

		PersistOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bossraid_persist_ops_total",
			Help: "Persistence operations executed",
		}, []string{"op"}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bossraid_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"op"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bossraid_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistOpDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bossraid_persist_op_duration_seconds",
			Help:    "Single persistence operation duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bossraid_query_requests_total",
			Help: "API requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bossraid_query_duration_seconds",
			Help:    "API request latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		WSClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bossraid_ws_clients",
			Help: "Connected websocket spectators",
		}),
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
