//go:build integration

package pricer

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/walletsync/internal/clients"
	"github.com/vadiminshakov/walletsync/internal/domain"
)

// Calls real public market data endpoints. Run with: go test -tags=integration ./...
func TestPricers_GetPrice_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hl, err := clients.NewHyperliquidPublicClient(ctx, "")
	require.NoError(t, err)

	pricers := map[string]Pricer{
		PlatformBinance:     NewBinancePricer(clients.NewBinancePublicClient("")),
		PlatformBybit:       NewBybitPricer(clients.NewBybitPublicClient("")),
		PlatformHyperliquid: NewHyperliquidPricer(hl.Info()),
	}

	for name, p := range pricers {
		t.Run(name, func(t *testing.T) {
			for _, pair := range []domain.Pair{{From: "BTC", To: "USDT"}, {From: "ETH", To: "USDT"}} {
				price, err := p.GetPrice(ctx, pair)
				require.NoError(t, err)
				assert.True(t, price.GreaterThan(decimal.Zero), "expected price > 0 for %s, got %s", pair, price)
			}
		})
	}
}
