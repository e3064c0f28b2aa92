package domain

import (
	"fmt"
	"strings"
)

// Pair base asset quoted in another asset.
type Pair struct {
	// From base currency symbol.
	From string
	// To quote currency symbol.
	To string
}

// String returns the string representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s_%s", p.From, p.To)
}

// Symbol returns the concatenated symbol representation used by exchanges and the live feed.
func (p Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}

// USDSymbol returns the live feed symbol that quotes asset in USD.
func USDSymbol(asset string) string {
	return Pair{From: strings.ToUpper(asset), To: "USD"}.Symbol()
}
