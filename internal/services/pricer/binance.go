package pricer

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

// BinancePricer reads last prices from the Binance public ticker endpoint.
type BinancePricer struct {
	client *binance.Client
}

func NewBinancePricer(client *binance.Client) *BinancePricer {
	return &BinancePricer{client: client}
}

func (p *BinancePricer) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	prices, err := p.client.NewListPricesService().Symbol(pair.Symbol()).Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrapf(domain.ErrTransport, "binance ticker %s: %v", pair.Symbol(), err)
	}
	if len(prices) == 0 {
		return decimal.Zero, errors.Wrapf(domain.ErrMalformedResponse, "binance returned no price for %s", pair.String())
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, errors.Wrapf(domain.ErrMalformedResponse, "binance price for %s", pair.String())
	}

	return price, nil
}
