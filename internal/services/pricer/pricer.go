// Package pricer reads spot prices from public exchange APIs and keeps a short-lived per-asset index.
package pricer

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

// Platform names accepted by New.
const (
	PlatformBinance     = "binance"
	PlatformBybit       = "bybit"
	PlatformHyperliquid = "hyperliquid"
)

// Pricer fetches the current price of pair.From in pair.To.
type Pricer interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}
