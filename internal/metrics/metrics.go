// Package metrics holds Prometheus instruments. Labels carry sources, symbols
// and outcomes only; no balance or valuation ever reaches a metric.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics all instruments of the aggregation subsystem. A nil *Metrics is a no-op.
type Metrics struct {
	AdapterFetchDur  *prometheus.HistogramVec // labels: source
	AdapterOutcomes  *prometheus.CounterVec   // labels: source, outcome
	SnapshotFetches  prometheus.Counter
	SnapshotCacheHit prometheus.Counter
	SnapshotClears   prometheus.Counter

	FeedReconnects  *prometheus.CounterVec // labels: symbol
	FeedMalformed   *prometheus.CounterVec // labels: symbol
	FeedSubscribers *prometheus.GaugeVec   // labels: symbol

	PriceIndexFetches *prometheus.CounterVec // labels: asset, outcome
	StartupStreams    *prometheus.CounterVec // labels: stream, outcome
}

// NewMetrics creates instruments and registers them on reg when reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AdapterFetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "walletsync_adapter_fetch_duration_seconds",
			Help:    "Duration of a provider adapter fetch",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		AdapterOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walletsync_adapter_outcomes_total",
			Help: "Provider adapter fetch outcomes by failure kind",
		}, []string{"source", "outcome"}),
		SnapshotFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "walletsync_snapshot_fetches_total",
			Help: "Full aggregated snapshot fetches",
		}),
		SnapshotCacheHit: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "walletsync_snapshot_cache_hits_total",
			Help: "Snapshot reads served from the in-memory cache",
		}),
		SnapshotClears: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "walletsync_snapshot_clears_total",
			Help: "Explicit snapshot cache clears",
		}),
		FeedReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walletsync_feed_reconnects_total",
			Help: "Live market feed reconnect attempts",
		}, []string{"symbol"}),
		FeedMalformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walletsync_feed_malformed_messages_total",
			Help: "Live market feed messages that failed to parse",
		}, []string{"symbol"}),
		FeedSubscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "walletsync_feed_subscribers",
			Help: "Active observers per live feed symbol",
		}, []string{"symbol"}),
		PriceIndexFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walletsync_price_index_fetches_total",
			Help: "Price index fetches by asset and outcome",
		}, []string{"asset", "outcome"}),
		StartupStreams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walletsync_startup_streams_total",
			Help: "Startup stream completions by outcome",
		}, []string{"stream", "outcome"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.AdapterFetchDur,
			m.AdapterOutcomes,
			m.SnapshotFetches,
			m.SnapshotCacheHit,
			m.SnapshotClears,
			m.FeedReconnects,
			m.FeedMalformed,
			m.FeedSubscribers,
			m.PriceIndexFetches,
			m.StartupStreams,
		)
	}

	return m
}

func (m *Metrics) ObserveAdapterFetch(source, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AdapterFetchDur.WithLabelValues(source).Observe(elapsed.Seconds())
	m.AdapterOutcomes.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) IncSnapshotFetch() {
	if m == nil {
		return
	}
	m.SnapshotFetches.Inc()
}

func (m *Metrics) IncSnapshotCacheHit() {
	if m == nil {
		return
	}
	m.SnapshotCacheHit.Inc()
}

func (m *Metrics) IncSnapshotClear() {
	if m == nil {
		return
	}
	m.SnapshotClears.Inc()
}

func (m *Metrics) IncFeedReconnect(symbol string) {
	if m == nil {
		return
	}
	m.FeedReconnects.WithLabelValues(symbol).Inc()
}

func (m *Metrics) IncFeedMalformed(symbol string) {
	if m == nil {
		return
	}
	m.FeedMalformed.WithLabelValues(symbol).Inc()
}

func (m *Metrics) SetFeedSubscribers(symbol string, n int) {
	if m == nil {
		return
	}
	m.FeedSubscribers.WithLabelValues(symbol).Set(float64(n))
}

func (m *Metrics) IncPriceIndexFetch(asset, outcome string) {
	if m == nil {
		return
	}
	m.PriceIndexFetches.WithLabelValues(asset, outcome).Inc()
}

func (m *Metrics) IncStartupStream(stream string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.StartupStreams.WithLabelValues(stream, outcome).Inc()
}
