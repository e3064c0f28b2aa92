// Package domain defines core data structures shared by the balance aggregation components.
package domain

// Source symbolic identity of a balance backend.
type Source string

const (
	// SourceLedgerOAuth exchange account API authenticated with an OAuth bearer token.
	SourceLedgerOAuth Source = "LEDGER_OAUTH"
	// SourceHMACSigned balance API authenticated with HMAC-signed payloads.
	SourceHMACSigned Source = "HMAC_SIGNED"
	// SourceSplitOnchain combined on-chain/off-chain ledger API.
	SourceSplitOnchain Source = "SPLIT_ONCHAIN"
)

// String returns the string representation.
func (s Source) String() string {
	return string(s)
}

// Status synchronization state of a balance record.
type Status string

const (
	// StatusSynced the provider answered and the record reflects its report.
	StatusSynced Status = "SYNCED"
	// StatusOffline the provider was uncredentialed or unreachable.
	StatusOffline Status = "OFFLINE"
)

// String returns the string representation.
func (s Status) String() string {
	return string(s)
}

// PriceSource tells where the USD conversion rate of a record came from.
type PriceSource string

const (
	// PriceSourceProvider the backend reported its own USD valuation.
	PriceSourceProvider PriceSource = "PROVIDER"
	// PriceSourcePeg USD or a USD stablecoin, converted 1:1.
	PriceSourcePeg PriceSource = "PEG"
	// PriceSourceLive last trade price from the live market feed.
	PriceSourceLive PriceSource = "LIVE"
	// PriceSourceFallback configured static estimate.
	PriceSourceFallback PriceSource = "FALLBACK"
	// PriceSourceNone no rate was available; the USD equivalent is zero.
	PriceSourceNone PriceSource = "NONE"
)
