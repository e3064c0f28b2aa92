// Package aggregator assembles provider balances into one cached AggregatedSnapshot.
// The snapshot lives only in process memory and is dropped by ClearCache.
package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/metrics"
)

// DefaultMaxAge validity window of the cached snapshot.
const DefaultMaxAge = 60 * time.Second

const refreshKey = "snapshot"

// Fetcher balance backend as seen by the engine; provider.Adapter satisfies it.
type Fetcher interface {
	Source() domain.Source
	Fetch(ctx context.Context) []domain.BalanceRecord
}

// Option configures the Engine.
type Option func(*Engine)

// WithMaxAge overrides DefaultMaxAge.
func WithMaxAge(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.maxAge = d
		}
	}
}

// WithClock overrides the time source used for syncedAt and freshness.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine owns the single snapshot cache slot.
type Engine struct {
	fetchers []Fetcher
	maxAge   time.Duration
	now      func() time.Time
	l        *zap.Logger
	metrics  *metrics.Metrics

	group singleflight.Group

	mu           sync.Mutex
	entry        *domain.CacheEntry[domain.AggregatedSnapshot]
	generation   uint64
	lastSyncedAt time.Time
}

// New creates an engine over fetchers.
func New(fetchers []Fetcher, l *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		fetchers: append([]Fetcher(nil), fetchers...),
		maxAge:   DefaultMaxAge,
		now:      time.Now,
		l:        l,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Snapshot returns the cached snapshot while it is fresh and force is false.
// Otherwise it fetches every provider concurrently and waits for all of them.
// Concurrent refreshes share one fetch; cancelling ctx abandons the wait, not the fetch.
func (e *Engine) Snapshot(ctx context.Context, force bool) (domain.AggregatedSnapshot, error) {
	if !force {
		if snap, age, ok := e.cached(); ok {
			e.metrics.IncSnapshotCacheHit()
			e.l.Debug("serving cached snapshot", zap.Duration("age", age))
			return snap, nil
		}
	}

	ch := e.group.DoChan(refreshKey, func() (any, error) {
		return e.refresh(context.WithoutCancel(ctx)), nil
	})

	select {
	case res := <-ch:
		return res.Val.(domain.AggregatedSnapshot), nil
	case <-ctx.Done():
		return domain.AggregatedSnapshot{}, ctx.Err()
	}
}

// ClearCache discards the cached snapshot. A fetch already in flight still answers
// its callers but is not stored.
func (e *Engine) ClearCache() {
	e.mu.Lock()
	e.entry = nil
	e.generation++
	e.mu.Unlock()

	e.group.Forget(refreshKey)
	e.metrics.IncSnapshotClear()
	e.l.Debug("snapshot cache cleared")
}

func (e *Engine) cached() (domain.AggregatedSnapshot, time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if e.entry == nil || !e.entry.Fresh(now) {
		return domain.AggregatedSnapshot{}, 0, false
	}

	return e.entry.Value, e.entry.Age(now), true
}

func (e *Engine) refresh(ctx context.Context) domain.AggregatedSnapshot {
	e.mu.Lock()
	generation := e.generation
	e.mu.Unlock()

	fetchID := uuid.NewString()
	start := time.Now()
	e.metrics.IncSnapshotFetch()

	var (
		g       errgroup.Group
		mu      sync.Mutex
		records []domain.BalanceRecord
	)
	for _, f := range e.fetchers {
		g.Go(func() error {
			got := f.Fetch(ctx)

			mu.Lock()
			records = append(records, got...)
			mu.Unlock()

			return nil
		})
	}
	_ = g.Wait()

	e.mu.Lock()
	syncedAt := e.now()
	if syncedAt.Before(e.lastSyncedAt) {
		syncedAt = e.lastSyncedAt
	}
	snap := domain.NewAggregatedSnapshot(records, syncedAt)

	stored := generation == e.generation
	if stored {
		entry := domain.NewCacheEntry(snap, syncedAt, e.maxAge)
		e.entry = &entry
		e.lastSyncedAt = syncedAt
	}
	e.mu.Unlock()

	e.l.Info("snapshot assembled",
		zap.String("fetch_id", fetchID),
		zap.Object("snapshot", snap),
		zap.Bool("cached", stored),
		zap.Duration("elapsed", time.Since(start)),
	)

	return snap
}
