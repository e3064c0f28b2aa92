package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TickerPrice latest known top of book and trade for a symbol.
type TickerPrice struct {
	Symbol         string
	LastTradePrice decimal.NullDecimal
	BestBid        decimal.NullDecimal
	BestAsk        decimal.NullDecimal
	ObservedAt     time.Time
}

// FeedEventKind kind of a live market feed event.
type FeedEventKind int

const (
	FeedConnected FeedEventKind = iota
	FeedTick
	FeedDisconnected
	FeedError
)

// String returns the string representation.
func (k FeedEventKind) String() string {
	switch k {
	case FeedConnected:
		return "connected"
	case FeedTick:
		return "tick"
	case FeedDisconnected:
		return "disconnected"
	case FeedError:
		return "error"
	default:
		return "unknown"
	}
}

// FeedEvent single event of a symbol stream.
// Ticker is set for FeedTick; Reason for FeedDisconnected and FeedError.
type FeedEvent struct {
	Kind   FeedEventKind
	Symbol string
	Ticker TickerPrice
	Reason string
}
