package startup

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

// Phase of the startup fetch.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Stream names, also used as error prefixes.
const (
	StreamWallets = "Wallets"
	StreamPrices  = "Prices"
	StreamPOIs    = "POIs"
)

// State what was available when the last fetch finished.
// The OK flags and Errors are meaningful only in PhaseReady.
type State struct {
	Phase      Phase
	WalletOK   bool
	PricesOK   bool
	POIsOK     bool
	Errors     []string
	Prices     map[string]decimal.Decimal
	POIs       []domain.PointOfInterest
	Hint       domain.LocationHint
	StartedAt  time.Time
	FinishedAt time.Time
}

// clone returns a State that shares no mutable memory with s.
func (s State) clone() State {
	out := s
	out.Errors = append([]string(nil), s.Errors...)
	out.POIs = append([]domain.PointOfInterest(nil), s.POIs...)
	if s.Prices != nil {
		out.Prices = make(map[string]decimal.Decimal, len(s.Prices))
		for k, v := range s.Prices {
			out.Prices[k] = v
		}
	}
	if s.Hint.Location != nil {
		loc := *s.Hint.Location
		out.Hint.Location = &loc
	}
	return out
}
