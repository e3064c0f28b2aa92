package pricer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/metrics"
	"github.com/vadiminshakov/walletsync/pkg/retrier"
)

// DefaultMaxAge validity window of one indexed price.
const DefaultMaxAge = 30 * time.Second

// IndexOption configures an Index.
type IndexOption func(*Index)

func WithMaxAge(d time.Duration) IndexOption {
	return func(i *Index) {
		if d > 0 {
			i.maxAge = d
		}
	}
}

func WithClock(now func() time.Time) IndexOption {
	return func(i *Index) {
		i.now = now
	}
}

func WithRetrier(r *retrier.Retrier) IndexOption {
	return func(i *Index) {
		i.retrier = r
	}
}

func WithMetrics(m *metrics.Metrics) IndexOption {
	return func(i *Index) {
		i.metrics = m
	}
}

// Index per-asset price cache over a Pricer.
type Index struct {
	pricer  Pricer
	assets  []string
	quote   string
	maxAge  time.Duration
	now     func() time.Time
	retrier *retrier.Retrier
	l       *zap.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	entries map[string]domain.CacheEntry[decimal.Decimal]
}

// NewIndex creates an index of assets quoted in quote.
func NewIndex(p Pricer, assets []string, quote string, l *zap.Logger, opts ...IndexOption) *Index {
	normalized := make([]string, 0, len(assets))
	for _, a := range assets {
		if a = strings.ToUpper(strings.TrimSpace(a)); a != "" {
			normalized = append(normalized, a)
		}
	}

	i := &Index{
		pricer:  p,
		assets:  normalized,
		quote:   strings.ToUpper(quote),
		maxAge:  DefaultMaxAge,
		now:     time.Now,
		retrier: retrier.New(retrier.WithMaxRetries(2), retrier.WithInitialInterval(200*time.Millisecond)),
		l:       l,
		entries: make(map[string]domain.CacheEntry[decimal.Decimal]),
	}
	for _, opt := range opts {
		opt(i)
	}

	return i
}

// Refresh fetches every stale asset concurrently and returns all fresh prices.
// Failed assets are combined into the returned error; the others are still stored.
func (i *Index) Refresh(ctx context.Context) (map[string]decimal.Decimal, error) {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)
	for _, asset := range i.assets {
		if _, ok := i.Cached(asset); ok {
			continue
		}

		g.Go(func() error {
			if _, err := i.fetch(ctx, asset); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	prices := make(map[string]decimal.Decimal, len(i.assets))
	for _, asset := range i.assets {
		if price, ok := i.Cached(asset); ok {
			prices[asset] = price
		}
	}

	return prices, errs
}

// Cached returns a fresh indexed price without network activity.
func (i *Index) Cached(asset string) (decimal.Decimal, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	entry, ok := i.entries[strings.ToUpper(asset)]
	if !ok || !entry.Fresh(i.now()) {
		return decimal.Zero, false
	}

	return entry.Value, true
}

// LastPrice looks up a symbol such as BTCUSD among fresh entries without network activity.
func (i *Index) LastPrice(symbol string) (decimal.Decimal, bool) {
	symbol = strings.ToUpper(symbol)
	base, ok := strings.CutSuffix(symbol, i.quote)
	if !ok {
		base, ok = strings.CutSuffix(symbol, "USD")
	}
	if !ok || base == "" {
		return decimal.Zero, false
	}

	return i.Cached(base)
}

func (i *Index) fetch(ctx context.Context, asset string) (decimal.Decimal, error) {
	pair := domain.Pair{From: asset, To: i.quote}

	price, err := retrier.DoWithData(i.retrier, ctx, func(ctx context.Context) (decimal.Decimal, error) {
		return i.pricer.GetPrice(ctx, pair)
	})
	if err == nil && !price.IsPositive() {
		err = errors.Wrapf(domain.ErrMalformedResponse, "non-positive price for %s", pair.String())
	}
	i.metrics.IncPriceIndexFetch(asset, domain.FailureKind(err))
	if err != nil {
		i.l.Warn("price index fetch failed", zap.String("pair", pair.String()), zap.Error(err))
		return decimal.Zero, errors.Wrapf(err, "price %s", pair.String())
	}

	i.mu.Lock()
	i.entries[asset] = domain.NewCacheEntry(price, i.now(), i.maxAge)
	i.mu.Unlock()

	return price, nil
}
