// Package feed keeps live trade and top-of-book prices per symbol over
// resumable streaming subscriptions.
package feed

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/metrics"
	"github.com/vadiminshakov/walletsync/pkg/retrier"
)

const (
	defaultURLTemplate    = "wss://api.gemini.com/v1/marketdata/{symbol}?top_of_book=true&trades=true"
	defaultConnectTimeout = 10 * time.Second
	defaultEventBuffer    = 64
	symbolPlaceholder     = "{symbol}"
)

// Config feed settings.
type Config struct {
	// URLTemplate stream URL with a {symbol} placeholder.
	URLTemplate    string
	ConnectTimeout time.Duration
	// ReadTimeout drops a silent connection; zero disables it.
	ReadTimeout time.Duration
	EventBuffer int
}

// Option configures optional Feed collaborators.
type Option func(*Feed)

// WithRetrier overrides the reconnect backoff.
func WithRetrier(r *retrier.Retrier) Option {
	return func(f *Feed) {
		f.backoff = r
	}
}

// WithClock overrides the time source for tick timestamps.
func WithClock(now func() time.Time) Option {
	return func(f *Feed) {
		f.now = now
	}
}

// Feed owns the ticker table. Exactly one subscription exists per observed symbol.
type Feed struct {
	cfg     Config
	dialer  Dialer
	l       *zap.Logger
	metrics *metrics.Metrics
	backoff *retrier.Retrier
	now     func() time.Time

	mu   sync.Mutex
	subs map[string]*subscription

	pricesMu sync.RWMutex
	prices   map[string]domain.TickerPrice
}

// New creates a feed. Nothing is dialed until the first Observe.
func New(cfg Config, dialer Dialer, l *zap.Logger, m *metrics.Metrics, opts ...Option) *Feed {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = defaultURLTemplate
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.EventBuffer < 1 {
		cfg.EventBuffer = defaultEventBuffer
	}

	f := &Feed{
		cfg:     cfg,
		dialer:  dialer,
		l:       l,
		metrics: m,
		backoff: retrier.New(
			retrier.WithMaxRetries(retrier.Unlimited),
			retrier.WithInitialInterval(500*time.Millisecond),
			retrier.WithMaxInterval(30*time.Second),
		),
		now:    time.Now,
		subs:   make(map[string]*subscription),
		prices: make(map[string]domain.TickerPrice),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

type observer struct {
	ch chan domain.FeedEvent
}

type subscription struct {
	symbol    string
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	connected atomic.Bool

	mu        sync.Mutex
	observers map[*observer]struct{}
}

// publish delivers ev to every observer, dropping it for observers whose buffer is full.
func (s *subscription) publish(ev domain.FeedEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for o := range s.observers {
		select {
		case o.ch <- ev:
		default:
		}
	}
}

func (s *subscription) closeObservers() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for o := range s.observers {
		close(o.ch)
		delete(s.observers, o)
	}
}

// Observe returns the event stream for symbol. The channel closes when ctx is
// done or the symbol is disconnected. The last observer leaving closes the
// underlying connection.
func (f *Feed) Observe(ctx context.Context, symbol string) <-chan domain.FeedEvent {
	symbol = normalize(symbol)
	o := &observer{ch: make(chan domain.FeedEvent, f.cfg.EventBuffer)}

	f.mu.Lock()
	sub, ok := f.subs[symbol]
	if !ok {
		sub = f.newSubscriptionLocked(symbol)
	}
	sub.mu.Lock()
	sub.observers[o] = struct{}{}
	n := len(sub.observers)
	sub.mu.Unlock()
	if !ok {
		f.l.Info("opening market feed subscription", zap.String("symbol", symbol))
		go f.run(sub)
	}
	f.mu.Unlock()

	f.metrics.SetFeedSubscribers(symbol, n)

	go func() {
		select {
		case <-ctx.Done():
			f.removeObserver(sub, o)
		case <-sub.ctx.Done():
		}
	}()

	return o.ch
}

func (f *Feed) newSubscriptionLocked(symbol string) *subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		symbol:    symbol,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		observers: make(map[*observer]struct{}),
	}
	f.subs[symbol] = sub

	return sub
}

func (f *Feed) removeObserver(sub *subscription, o *observer) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub.mu.Lock()
	if _, ok := sub.observers[o]; ok {
		delete(sub.observers, o)
		close(o.ch)
	}
	n := len(sub.observers)
	sub.mu.Unlock()

	f.metrics.SetFeedSubscribers(sub.symbol, n)

	if n == 0 && f.subs[sub.symbol] == sub {
		delete(f.subs, sub.symbol)
		sub.cancel()
		f.l.Info("last observer left, closing market feed subscription", zap.String("symbol", sub.symbol))
	}
}

// Disconnect tears down the subscription for symbol and waits for its
// connection to close. Calling it for an unobserved symbol is a no-op.
func (f *Feed) Disconnect(symbol string) {
	symbol = normalize(symbol)

	f.mu.Lock()
	sub, ok := f.subs[symbol]
	if ok {
		delete(f.subs, symbol)
	}
	f.mu.Unlock()

	if !ok {
		return
	}

	sub.cancel()
	<-sub.done
	f.metrics.SetFeedSubscribers(symbol, 0)
}

// DisconnectAll tears down every subscription.
func (f *Feed) DisconnectAll() {
	f.mu.Lock()
	symbols := make([]string, 0, len(f.subs))
	for symbol := range f.subs {
		symbols = append(symbols, symbol)
	}
	f.mu.Unlock()

	for _, symbol := range symbols {
		f.Disconnect(symbol)
	}
}

// LastPrice returns the most recent trade price without blocking.
func (f *Feed) LastPrice(symbol string) (decimal.Decimal, bool) {
	f.pricesMu.RLock()
	defer f.pricesMu.RUnlock()

	t, ok := f.prices[normalize(symbol)]
	if !ok || !t.LastTradePrice.Valid {
		return decimal.Zero, false
	}
	return t.LastTradePrice.Decimal, true
}

// Ticker returns the full last-known ticker for symbol.
func (f *Feed) Ticker(symbol string) (domain.TickerPrice, bool) {
	f.pricesMu.RLock()
	defer f.pricesMu.RUnlock()

	t, ok := f.prices[normalize(symbol)]
	return t, ok
}

// Connected reports whether symbol currently has a live connection.
func (f *Feed) Connected(symbol string) bool {
	f.mu.Lock()
	sub, ok := f.subs[normalize(symbol)]
	f.mu.Unlock()

	return ok && sub.connected.Load()
}

func (f *Feed) run(sub *subscription) {
	defer close(sub.done)
	defer sub.closeObservers()

	attempt := 0
	for {
		if attempt > 0 {
			f.metrics.IncFeedReconnect(sub.symbol)
			if err := f.backoff.Wait(sub.ctx, attempt); err != nil {
				return
			}
		}

		connected, err := f.session(sub)
		if sub.ctx.Err() != nil {
			return
		}

		if connected {
			attempt = 1
			f.l.Warn("market feed disconnected", zap.String("symbol", sub.symbol), zap.Error(err))
			sub.publish(domain.FeedEvent{Kind: domain.FeedDisconnected, Symbol: sub.symbol, Reason: errReason(err)})
			continue
		}

		attempt++
		f.l.Warn("market feed connect failed", zap.String("symbol", sub.symbol), zap.Int("attempt", attempt), zap.Error(err))
		sub.publish(domain.FeedEvent{Kind: domain.FeedError, Symbol: sub.symbol, Reason: "connect: " + errReason(err)})
	}
}

// session dials and reads until the connection fails. It reports whether the dial succeeded.
func (f *Feed) session(sub *subscription) (bool, error) {
	dialCtx, cancel := context.WithTimeout(sub.ctx, f.cfg.ConnectTimeout)
	conn, err := f.dialer.Dial(dialCtx, f.url(sub.symbol))
	cancel()
	if err != nil {
		return false, err
	}
	defer conn.Close()

	// unblocks ReadMessage when the subscription is torn down
	stop := context.AfterFunc(sub.ctx, func() { _ = conn.Close() })
	defer stop()

	sub.connected.Store(true)
	defer sub.connected.Store(false)

	f.l.Info("market feed connected", zap.String("symbol", sub.symbol))
	sub.publish(domain.FeedEvent{Kind: domain.FeedConnected, Symbol: sub.symbol})

	deadliner, canDeadline := conn.(readDeadliner)
	for {
		if canDeadline && f.cfg.ReadTimeout > 0 {
			_ = deadliner.SetReadDeadline(f.now().Add(f.cfg.ReadTimeout))
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}

		f.handleMessage(sub, payload)
	}
}

// handleMessage applies one frame. A malformed frame becomes an Error event
// and leaves the ticker table unchanged.
func (f *Feed) handleMessage(sub *subscription, payload []byte) {
	u, err := parseMessage(payload)
	if err != nil {
		f.metrics.IncFeedMalformed(sub.symbol)
		f.l.Debug("malformed market feed message", zap.String("symbol", sub.symbol), zap.Error(err))
		sub.publish(domain.FeedEvent{Kind: domain.FeedError, Symbol: sub.symbol, Reason: err.Error()})
		return
	}
	if u.empty() {
		return
	}

	ticker := f.apply(sub.symbol, u)
	sub.publish(domain.FeedEvent{Kind: domain.FeedTick, Symbol: sub.symbol, Ticker: ticker})
}

func (f *Feed) apply(symbol string, u priceUpdate) domain.TickerPrice {
	f.pricesMu.Lock()
	defer f.pricesMu.Unlock()

	t := f.prices[symbol]
	t.Symbol = symbol
	if u.trade.Valid {
		t.LastTradePrice = u.trade
	}
	if u.bid.Valid {
		t.BestBid = u.bid
	}
	if u.ask.Valid {
		t.BestAsk = u.ask
	}
	t.ObservedAt = f.now()
	f.prices[symbol] = t

	return t
}

func (f *Feed) url(symbol string) string {
	return strings.ReplaceAll(f.cfg.URLTemplate, symbolPlaceholder, symbol)
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func errReason(err error) string {
	if err == nil {
		return "closed"
	}
	return err.Error()
}
