package provider

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

// usdPegged assets converted to USD at 1:1.
var usdPegged = map[string]struct{}{
	"USD":   {},
	"USDC":  {},
	"USDT":  {},
	"GUSD":  {},
	"DAI":   {},
	"PYUSD": {},
	"USDP":  {},
}

// PriceSource synchronous last-trade lookup by feed symbol.
type PriceSource interface {
	LastPrice(symbol string) (decimal.Decimal, bool)
}

// PriceSources consults each source in order and returns the first positive price.
type PriceSources []PriceSource

func (ps PriceSources) LastPrice(symbol string) (decimal.Decimal, bool) {
	for _, p := range ps {
		if p == nil {
			continue
		}
		if price, ok := p.LastPrice(symbol); ok && price.IsPositive() {
			return price, true
		}
	}
	return decimal.Zero, false
}

// Valuer converts native amounts to USD: peg, then live prices, then static fallback.
type Valuer struct {
	prices   PriceSource
	fallback map[string]decimal.Decimal
}

// NewValuer creates a valuer. prices may be nil; fallback maps asset code to a static USD estimate.
func NewValuer(prices PriceSource, fallback map[string]decimal.Decimal) *Valuer {
	fb := make(map[string]decimal.Decimal, len(fallback))
	for asset, price := range fallback {
		fb[strings.ToUpper(asset)] = price
	}
	return &Valuer{prices: prices, fallback: fb}
}

// USD returns amount valued in USD and where the rate came from.
// With no rate at all the value is zero and the source is PriceSourceNone.
func (v *Valuer) USD(asset string, amount decimal.Decimal) (decimal.Decimal, domain.PriceSource) {
	asset = strings.ToUpper(asset)

	if _, ok := usdPegged[asset]; ok {
		return amount, domain.PriceSourcePeg
	}

	if v.prices != nil {
		if price, ok := v.prices.LastPrice(domain.USDSymbol(asset)); ok && price.IsPositive() {
			return amount.Mul(price), domain.PriceSourceLive
		}
	}

	if price, ok := v.fallback[asset]; ok && price.IsPositive() {
		return amount.Mul(price), domain.PriceSourceFallback
	}

	return decimal.Zero, domain.PriceSourceNone
}
