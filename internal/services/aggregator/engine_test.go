package aggregator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/metrics"
)

type fakeFetcher struct {
	source  domain.Source
	delay   time.Duration
	records func() []domain.BalanceRecord
	calls   atomic.Int32
	release chan struct{}
}

func (f *fakeFetcher) Source() domain.Source { return f.source }

func (f *fakeFetcher) Fetch(ctx context.Context) []domain.BalanceRecord {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
		}
	}
	return f.records()
}

func synced(source domain.Source, code string, usd int64) func() []domain.BalanceRecord {
	return func() []domain.BalanceRecord {
		return []domain.BalanceRecord{domain.NewBalanceRecord(
			source, code, code, decimal.NewFromInt(1), decimal.NewFromInt(usd), domain.PriceSourceLive, time.Now(),
		)}
	}
}

func offline(source domain.Source) func() []domain.BalanceRecord {
	return func() []domain.BalanceRecord {
		return []domain.BalanceRecord{domain.NewOfflineRecord(source, "USD", "US Dollar", time.Now())}
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func threeFetchers() (*fakeFetcher, *fakeFetcher, *fakeFetcher) {
	return &fakeFetcher{source: domain.SourceLedgerOAuth, records: synced(domain.SourceLedgerOAuth, "BTC", 100)},
		&fakeFetcher{source: domain.SourceHMACSigned, records: synced(domain.SourceHMACSigned, "ETH", 50)},
		&fakeFetcher{source: domain.SourceSplitOnchain, records: synced(domain.SourceSplitOnchain, "BTC", 25)}
}

func TestEngine_SnapshotMergesAllProviders(t *testing.T) {
	a, b, c := threeFetchers()
	b.records = offline(domain.SourceHMACSigned)
	e := New([]Fetcher{a, b, c}, zap.NewNop())

	snap, err := e.Snapshot(context.Background(), true)
	require.NoError(t, err)

	records := snap.Records()
	require.Len(t, records, 3)

	sum := decimal.Zero
	for _, r := range records {
		sum = sum.Add(r.USDEquivalent())
	}
	assert.True(t, sum.Equal(snap.TotalUSD()))
	assert.True(t, decimal.NewFromInt(125).Equal(snap.TotalUSD()))
	assert.Equal(t, []domain.Source{domain.SourceHMACSigned}, snap.OfflineSources())
}

func TestEngine_WaitsForSlowestProvider(t *testing.T) {
	a, b, c := threeFetchers()
	b.delay = 150 * time.Millisecond
	c.records = offline(domain.SourceSplitOnchain)
	e := New([]Fetcher{a, b, c}, zap.NewNop())

	start := time.Now()
	snap, err := e.Snapshot(context.Background(), false)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	sources := map[domain.Source]bool{}
	for _, r := range snap.Records() {
		sources[r.Source()] = true
	}
	assert.Len(t, sources, 3)
}

func TestEngine_CacheTTL(t *testing.T) {
	clock := newFakeClock()
	a, b, c := threeFetchers()
	e := New([]Fetcher{a, b, c}, zap.NewNop(), WithClock(clock.Now))

	first, err := e.Snapshot(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), a.calls.Load())

	clock.Advance(59 * time.Second)
	cached, err := e.Snapshot(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, first.SyncedAt(), cached.SyncedAt())

	clock.Advance(2 * time.Second)
	fresh, err := e.Snapshot(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), a.calls.Load())
	assert.True(t, fresh.SyncedAt().After(first.SyncedAt()))
}

func TestEngine_ForceBypassesCache(t *testing.T) {
	a, b, c := threeFetchers()
	e := New([]Fetcher{a, b, c}, zap.NewNop())

	_, err := e.Snapshot(context.Background(), false)
	require.NoError(t, err)
	_, err = e.Snapshot(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, int32(2), a.calls.Load())
	assert.Equal(t, int32(2), c.calls.Load())
}

func TestEngine_DoubleClearFetchesOnce(t *testing.T) {
	clock := newFakeClock()
	a, b, c := threeFetchers()
	e := New([]Fetcher{a, b, c}, zap.NewNop(), WithClock(clock.Now))

	_, err := e.Snapshot(context.Background(), false)
	require.NoError(t, err)

	clock.Advance(time.Second)
	e.ClearCache()
	e.ClearCache()
	callAt := clock.Now()

	snap, err := e.Snapshot(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), a.calls.Load())
	assert.False(t, snap.SyncedAt().Before(callAt))

	_, err = e.Snapshot(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), a.calls.Load())
}

func TestEngine_ClearDuringFetchIsNotStored(t *testing.T) {
	a, b, c := threeFetchers()
	a.release = make(chan struct{})
	e := New([]Fetcher{a, b, c}, zap.NewNop())

	done := make(chan domain.AggregatedSnapshot)
	go func() {
		snap, _ := e.Snapshot(context.Background(), true)
		done <- snap
	}()

	require.Eventually(t, func() bool { return a.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	e.ClearCache()
	close(a.release)

	snap := <-done
	assert.Len(t, snap.Records(), 3)

	_, _, ok := e.cached()
	assert.False(t, ok)
}

func TestEngine_CoalescesConcurrentForcedRefreshes(t *testing.T) {
	a, b, c := threeFetchers()
	a.release = make(chan struct{})
	e := New([]Fetcher{a, b, c}, zap.NewNop())

	const callers = 5
	results := make(chan domain.AggregatedSnapshot, callers)
	for i := 0; i < callers; i++ {
		go func() {
			snap, err := e.Snapshot(context.Background(), true)
			assert.NoError(t, err)
			results <- snap
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(a.release)

	var syncedAt time.Time
	for i := 0; i < callers; i++ {
		snap := <-results
		if i == 0 {
			syncedAt = snap.SyncedAt()
		}
		assert.Equal(t, syncedAt, snap.SyncedAt())
	}
	assert.Equal(t, int32(1), a.calls.Load())
}

func TestEngine_CancelledCallerDoesNotCancelFetch(t *testing.T) {
	a, b, c := threeFetchers()
	a.release = make(chan struct{})
	e := New([]Fetcher{a, b, c}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := e.Snapshot(ctx, true)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return a.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(a.release)
	require.Eventually(t, func() bool {
		_, _, ok := e.cached()
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_SyncedAtMonotonic(t *testing.T) {
	clock := newFakeClock()
	a, b, c := threeFetchers()
	e := New([]Fetcher{a, b, c}, zap.NewNop(), WithClock(clock.Now))

	first, err := e.Snapshot(context.Background(), true)
	require.NoError(t, err)

	clock.Advance(-time.Minute)
	second, err := e.Snapshot(context.Background(), true)
	require.NoError(t, err)

	assert.False(t, second.SyncedAt().Before(first.SyncedAt()))
}

func TestEngine_Metrics(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	a, b, c := threeFetchers()
	e := New([]Fetcher{a, b, c}, zap.NewNop(), WithMetrics(m))

	_, _ = e.Snapshot(context.Background(), false)
	_, _ = e.Snapshot(context.Background(), false)
	e.ClearCache()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotFetches))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotCacheHit))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotClears))
}
