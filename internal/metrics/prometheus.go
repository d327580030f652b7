package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	RequestsTotal   *prometheus.CounterVec
	PeerMismatches  prometheus.Counter

	// Write concern metrics
	ConfirmationsTotal   *prometheus.CounterVec
	ConfirmationDuration *prometheus.HistogramVec
	ShardConfirmFailures *prometheus.CounterVec

	// Transport metrics
	ShardLeasesInUse prometheus.Gauge
	ShardsReachable  prometheus.Gauge

	// Runtime metrics
	GoroutinesActive prometheus.Gauge
	HeapAllocBytes   prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics against reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "router_sessions_active",
				Help: "Current number of live client sessions",
			},
		),

		SessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "router_sessions_created_total",
				Help: "Total number of client sessions created",
			},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_requests_total",
				Help: "Total number of request boundaries processed",
			},
			[]string{"operation"},
		),

		PeerMismatches: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "router_peer_mismatches_total",
				Help: "Total number of requests rejected for a mismatched peer identity",
			},
		),

		ConfirmationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_write_concern_confirmations_total",
				Help: "Total number of write concern confirmation rounds",
			},
			[]string{"status"},
		),

		ConfirmationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "router_write_concern_confirmation_duration_seconds",
				Help:    "Duration of write concern confirmation rounds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),

		ShardConfirmFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_shard_confirmation_failures_total",
				Help: "Total number of per-shard confirmation failures",
			},
			[]string{"shard"},
		),

		ShardLeasesInUse: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "router_shard_leases_in_use",
				Help: "Shard connection leases currently outstanding",
			},
		),

		ShardsReachable: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "router_shards_reachable",
				Help: "Number of configured shards currently reachable",
			},
		),

		GoroutinesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "router_goroutines_active",
				Help: "Current number of goroutines",
			},
		),

		HeapAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "router_heap_alloc_bytes",
				Help: "Current heap allocation in bytes",
			},
		),
	}
}

// UpdateSystemStats updates runtime-level metrics
func (m *Metrics) UpdateSystemStats(heapAlloc int64, goroutines int) {
	m.HeapAllocBytes.Set(float64(heapAlloc))
	m.GoroutinesActive.Set(float64(goroutines))
}
