package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveAdapterFetch("LEDGER_OAUTH", "none", 10*time.Millisecond)
	m.ObserveAdapterFetch("LEDGER_OAUTH", "transport_failure", 20*time.Millisecond)
	m.IncSnapshotFetch()
	m.IncSnapshotCacheHit()
	m.IncSnapshotCacheHit()
	m.IncFeedReconnect("BTCUSD")
	m.SetFeedSubscribers("BTCUSD", 3)
	m.IncStartupStream("wallets", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdapterOutcomes.WithLabelValues("LEDGER_OAUTH", "transport_failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotFetches))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SnapshotCacheHit))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedReconnects.WithLabelValues("BTCUSD")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.FeedSubscribers.WithLabelValues("BTCUSD")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StartupStreams.WithLabelValues("wallets", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.AdapterFetchDur))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveAdapterFetch("HMAC_SIGNED", "none", time.Second)
		m.IncSnapshotFetch()
		m.IncSnapshotCacheHit()
		m.IncSnapshotClear()
		m.IncFeedReconnect("ETHUSD")
		m.IncFeedMalformed("ETHUSD")
		m.SetFeedSubscribers("ETHUSD", 1)
		m.IncPriceIndexFetch("BTC", "ok")
		m.IncStartupStream("pois", true)
	})
}
