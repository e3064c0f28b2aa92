// Package startup drives the three independent fetches run at process start
// and reports which of them succeeded.
package startup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/events"
	"github.com/vadiminshakov/walletsync/internal/metrics"
)

// SnapshotSource the aggregation engine.
type SnapshotSource interface {
	Snapshot(ctx context.Context, force bool) (domain.AggregatedSnapshot, error)
}

// PriceIndex refreshes spot prices.
type PriceIndex interface {
	Refresh(ctx context.Context) (map[string]decimal.Decimal, error)
}

// POIFetcher prefetches places for a hint.
type POIFetcher interface {
	Prefetch(ctx context.Context, hint domain.LocationHint) ([]domain.PointOfInterest, error)
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// Orchestrator runs the wallet, price and POI streams concurrently; a failure in
// one never cancels or blocks the others. There is no retry; callers re-trigger.
type Orchestrator struct {
	wallets SnapshotSource
	prices  PriceIndex
	pois    POIFetcher
	l       *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	states  *events.Broadcaster[State]

	mu       sync.Mutex
	state    State
	location *domain.Location
	poiSeq   uint64
}

// New creates an idle orchestrator.
func New(wallets SnapshotSource, prices PriceIndex, pois POIFetcher, l *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		wallets: wallets,
		prices:  prices,
		pois:    pois,
		l:       l,
		now:     time.Now,
		states:  events.NewBroadcaster[State](16),
		state:   State{Phase: PhaseIdle},
	}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Subscribe returns a channel of state transitions and a func that ends the subscription.
func (o *Orchestrator) Subscribe() (<-chan State, func()) {
	return o.states.Subscribe()
}

type outcome struct {
	err    error
	prices map[string]decimal.Decimal
	pois   []domain.PointOfInterest
}

// LaunchFetch runs all three streams and blocks until each has finished.
// While a fetch is already Loading the call is a no-op and returns started=false.
func (o *Orchestrator) LaunchFetch(ctx context.Context, hint domain.LocationHint) (State, bool) {
	o.mu.Lock()
	if o.state.Phase == PhaseLoading {
		current := o.state.clone()
		o.mu.Unlock()
		o.l.Debug("startup fetch already in flight")
		return current, false
	}
	if hint.Location == nil && o.location != nil {
		loc := *o.location
		hint.Location = &loc
	}
	o.state = State{Phase: PhaseLoading, Hint: hint, StartedAt: o.now()}
	o.publishLocked()
	o.mu.Unlock()

	var g errgroup.Group
	var wallets, prices, pois outcome
	g.Go(func() error {
		wallets = o.runStream(StreamWallets, func() (outcome, error) {
			_, err := o.wallets.Snapshot(ctx, false)
			return outcome{}, err
		})
		return nil
	})
	g.Go(func() error {
		prices = o.runStream(StreamPrices, func() (outcome, error) {
			p, err := o.prices.Refresh(ctx)
			return outcome{prices: p}, err
		})
		return nil
	})
	g.Go(func() error {
		pois = o.runStream(StreamPOIs, func() (outcome, error) {
			p, err := o.pois.Prefetch(ctx, hint)
			return outcome{pois: p}, err
		})
		return nil
	})
	_ = g.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()

	next := State{
		Phase:      PhaseReady,
		WalletOK:   wallets.err == nil,
		PricesOK:   prices.err == nil,
		POIsOK:     pois.err == nil,
		Prices:     prices.prices,
		POIs:       pois.pois,
		Hint:       hint,
		StartedAt:  o.state.StartedAt,
		FinishedAt: o.now(),
	}
	for _, s := range []struct {
		name string
		err  error
	}{{StreamWallets, wallets.err}, {StreamPrices, prices.err}, {StreamPOIs, pois.err}} {
		if s.err != nil {
			next.Errors = append(next.Errors, streamError(s.name, s.err))
		}
	}
	o.state = next
	o.publishLocked()

	o.l.Info("startup fetch finished",
		zap.Bool("wallet_ok", next.WalletOK),
		zap.Bool("prices_ok", next.PricesOK),
		zap.Bool("pois_ok", next.POIsOK),
		zap.Duration("elapsed", next.FinishedAt.Sub(next.StartedAt)),
	)

	return next.clone(), true
}

// OnLocationAcquired re-runs only the POI prefetch for the given coordinates.
// The result is merged into the state when the last fetch is Ready; the location
// is also kept for the next LaunchFetch.
func (o *Orchestrator) OnLocationAcquired(ctx context.Context, lat, lng float64) State {
	loc := domain.Location{Lat: lat, Lng: lng}

	o.mu.Lock()
	o.location = &loc
	o.poiSeq++
	seq := o.poiSeq
	hint := domain.LocationHint{Query: o.state.Hint.Query, Location: &loc}
	o.mu.Unlock()

	res := o.runStream(StreamPOIs, func() (outcome, error) {
		p, err := o.pois.Prefetch(ctx, hint)
		return outcome{pois: p}, err
	})

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Phase != PhaseReady || seq != o.poiSeq {
		return o.state.clone()
	}

	next := o.state.clone()
	next.POIsOK = res.err == nil
	next.Hint = hint
	if res.err == nil {
		next.POIs = res.pois
	}
	errs := next.Errors[:0]
	for _, e := range next.Errors {
		if !strings.HasPrefix(e, StreamPOIs+": ") {
			errs = append(errs, e)
		}
	}
	if res.err != nil {
		errs = append(errs, streamError(StreamPOIs, res.err))
	}
	next.Errors = errs
	next.FinishedAt = o.now()

	o.state = next
	o.publishLocked()

	return next.clone()
}

// runStream converts both errors and panics of fn into the outcome.
func (o *Orchestrator) runStream(name string, fn func() (outcome, error)) (res outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = outcome{err: errors.Errorf("panic: %v", r)}
		}
		o.metrics.IncStartupStream(name, res.err == nil)
		if res.err != nil {
			o.l.Warn("startup stream failed", zap.String("stream", name), zap.Error(res.err),
				zap.Duration("elapsed", time.Since(start)))
		}
	}()

	res, err := fn()
	res.err = err
	return res
}

func (o *Orchestrator) publishLocked() {
	o.states.Publish(o.state.clone())
}

func streamError(name string, err error) string {
	return fmt.Sprintf("%s: %v", name, err)
}
