package pricer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/metrics"
	"github.com/vadiminshakov/walletsync/pkg/retrier"
)

type mockPricer struct {
	mock.Mock
}

func (m *mockPricer) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	args := m.Called(ctx, pair)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func noRetry() IndexOption {
	return WithRetrier(retrier.New(retrier.WithMaxRetries(0)))
}

func TestIndex_RefreshCachesPerAsset(t *testing.T) {
	p := &mockPricer{}
	p.On("GetPrice", mock.Anything, domain.Pair{From: "BTC", To: "USDT"}).Return(decimal.NewFromInt(97000), nil).Once()
	p.On("GetPrice", mock.Anything, domain.Pair{From: "ETH", To: "USDT"}).Return(decimal.NewFromInt(3500), nil).Once()

	c := &clock{now: time.Unix(1_700_000_000, 0)}
	idx := NewIndex(p, []string{"btc", "ETH"}, "usdt", zap.NewNop(), WithClock(c.Now), noRetry())

	prices, err := idx.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(97000).Equal(prices["BTC"]))
	assert.True(t, decimal.NewFromInt(3500).Equal(prices["ETH"]))

	c.Advance(29 * time.Second)
	prices, err = idx.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, prices, 2)
	p.AssertExpectations(t)

	c.Advance(2 * time.Second)
	_, ok := idx.Cached("BTC")
	assert.False(t, ok)
}

func TestIndex_RefreshKeepsSuccessfulAssets(t *testing.T) {
	p := &mockPricer{}
	p.On("GetPrice", mock.Anything, domain.Pair{From: "BTC", To: "USD"}).Return(decimal.NewFromInt(97000), nil)
	p.On("GetPrice", mock.Anything, domain.Pair{From: "DOGE", To: "USD"}).
		Return(decimal.Zero, errors.Wrap(domain.ErrTransport, "unreachable"))
	p.On("GetPrice", mock.Anything, domain.Pair{From: "XYZ", To: "USD"}).Return(decimal.Zero, nil)

	m := metrics.NewMetrics(prometheus.NewRegistry())
	idx := NewIndex(p, []string{"BTC", "DOGE", "XYZ"}, "USD", zap.NewNop(), noRetry(), WithMetrics(m))

	prices, err := idx.Refresh(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.ErrorIs(t, err, domain.ErrTransport)
	require.Len(t, prices, 1)
	assert.True(t, decimal.NewFromInt(97000).Equal(prices["BTC"]))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PriceIndexFetches.WithLabelValues("BTC", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PriceIndexFetches.WithLabelValues("DOGE", "transport_failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PriceIndexFetches.WithLabelValues("XYZ", "malformed_response")))
}

func TestIndex_PriceRetries(t *testing.T) {
	p := &mockPricer{}
	pair := domain.Pair{From: "BTC", To: "USD"}
	p.On("GetPrice", mock.Anything, pair).Return(decimal.Zero, errors.New("temporary")).Once()
	p.On("GetPrice", mock.Anything, pair).Return(decimal.NewFromInt(100), nil).Once()

	r := retrier.New(retrier.WithMaxRetries(1), retrier.WithInitialInterval(time.Millisecond), retrier.WithJitter(0))
	idx := NewIndex(p, []string{"btc"}, "USD", zap.NewNop(), WithRetrier(r))

	prices, err := idx.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(prices["BTC"]))

	prices, err = idx.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(prices["BTC"]))
	p.AssertNumberOfCalls(t, "GetPrice", 2)
}

func TestIndex_LastPrice(t *testing.T) {
	p := &mockPricer{}
	p.On("GetPrice", mock.Anything, domain.Pair{From: "BTC", To: "USDT"}).Return(decimal.NewFromInt(97000), nil)

	idx := NewIndex(p, []string{"BTC"}, "USDT", zap.NewNop(), noRetry())
	_, err := idx.Refresh(context.Background())
	require.NoError(t, err)

	for _, symbol := range []string{"BTCUSDT", "btcusd"} {
		price, ok := idx.LastPrice(symbol)
		assert.True(t, ok, symbol)
		assert.True(t, decimal.NewFromInt(97000).Equal(price), symbol)
	}

	_, ok := idx.LastPrice("ETHUSD")
	assert.False(t, ok)
}
