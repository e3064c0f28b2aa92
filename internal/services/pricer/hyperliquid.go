package pricer

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

// HyperliquidPricer reads mid prices from the Hyperliquid public Info API.
// Mids are quoted in USDC, so pair.To is not consulted.
type HyperliquidPricer struct {
	info *hyperliquid.Info
}

func NewHyperliquidPricer(info *hyperliquid.Info) *HyperliquidPricer {
	return &HyperliquidPricer{info: info}
}

func (p *HyperliquidPricer) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	if p.info == nil {
		return decimal.Zero, errors.New("hyperliquid info client is nil")
	}

	mids, err := p.info.AllMids(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrapf(domain.ErrTransport, "hyperliquid mids: %v", err)
	}

	// keyed by base coin, e.g. "BTC"
	mid, ok := mids[pair.From]
	if !ok || mid == "" {
		return decimal.Zero, errors.Wrapf(domain.ErrMalformedResponse, "hyperliquid returned no mid for %s", pair.From)
	}

	price, err := decimal.NewFromString(mid)
	if err != nil {
		return decimal.Zero, errors.Wrapf(domain.ErrMalformedResponse, "hyperliquid mid for %s", pair.From)
	}

	return price, nil
}
