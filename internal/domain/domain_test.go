package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAggregatedSnapshot_TotalMatchesRecords(t *testing.T) {
	now := time.Now()
	records := []BalanceRecord{
		NewBalanceRecord(SourceLedgerOAuth, "ETH", "Ethereum", decimal.NewFromInt(2), decimal.NewFromInt(6000), PriceSourceProvider, now),
		NewBalanceRecord(SourceHMACSigned, "USD", "US Dollar", decimal.RequireFromString("12.34"), decimal.RequireFromString("12.34"), PriceSourcePeg, now),
		NewOfflineRecord(SourceSplitOnchain, "BTC", "Bitcoin", now),
	}

	snapshot := NewAggregatedSnapshot(records, now)

	sum := decimal.Zero
	for _, r := range snapshot.Records() {
		sum = sum.Add(r.USDEquivalent())
	}
	assert.True(t, snapshot.TotalUSD().Equal(sum))
	assert.True(t, snapshot.TotalUSD().Equal(decimal.RequireFromString("6012.34")))
	assert.Equal(t, []Source{SourceSplitOnchain}, snapshot.OfflineSources())
}

func TestAggregatedSnapshot_OwnsRecords(t *testing.T) {
	now := time.Now()
	records := []BalanceRecord{
		NewBalanceRecord(SourceLedgerOAuth, "ETH", "Ethereum", decimal.NewFromInt(1), decimal.NewFromInt(10), PriceSourceProvider, now),
	}
	snapshot := NewAggregatedSnapshot(records, now)

	records[0] = NewOfflineRecord(SourceLedgerOAuth, "ETH", "Ethereum", now)
	got := snapshot.Records()
	got[0] = NewOfflineRecord(SourceLedgerOAuth, "ETH", "Ethereum", now)

	assert.False(t, snapshot.Records()[0].IsOffline())
	assert.True(t, snapshot.TotalUSD().Equal(decimal.NewFromInt(10)))
}

func TestOfflineRecord_IsZeroValued(t *testing.T) {
	r := NewOfflineRecord(SourceHMACSigned, "USD", "US Dollar", time.Now())

	assert.True(t, r.IsOffline())
	assert.True(t, r.NativeAmount().IsZero())
	assert.True(t, r.USDEquivalent().IsZero())
	assert.Equal(t, PriceSourceNone, r.PriceSource())
}

func TestNewBalanceRecord_ClampsNegative(t *testing.T) {
	r := NewBalanceRecord(SourceLedgerOAuth, "BTC", "Bitcoin", decimal.NewFromInt(-1), decimal.NewFromInt(-5), PriceSourceLive, time.Now())

	assert.True(t, r.NativeAmount().IsZero())
	assert.True(t, r.USDEquivalent().IsZero())
	assert.Equal(t, StatusSynced, r.Status())
}

func TestRecordString_HidesAmounts(t *testing.T) {
	r := NewBalanceRecord(SourceLedgerOAuth, "BTC", "Bitcoin", decimal.RequireFromString("1.2345"), decimal.RequireFromString("98765.43"), PriceSourceLive, time.Now())
	s := NewAggregatedSnapshot([]BalanceRecord{r}, time.Now())

	for _, out := range []string{r.String(), fmt.Sprint(r), s.String()} {
		assert.NotContains(t, out, "1.2345")
		assert.NotContains(t, out, "98765")
	}
}

func TestCacheEntry_Fresh(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	entry := NewCacheEntry("v", start, 60*time.Second)

	assert.True(t, entry.Fresh(start))
	assert.True(t, entry.Fresh(start.Add(59*time.Second)))
	assert.False(t, entry.Fresh(start.Add(60*time.Second)))
	assert.False(t, entry.Fresh(start.Add(61*time.Second)))
	assert.Equal(t, 30*time.Second, entry.Age(start.Add(30*time.Second)))
}

func TestUSDSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSD", USDSymbol("btc"))
}

func TestFailureKind(t *testing.T) {
	assert.Equal(t, "none", FailureKind(nil))
	assert.Equal(t, "credential_missing", FailureKind(ErrCredentialMissing))
	assert.Equal(t, "malformed_response", FailureKind(fmt.Errorf("decode: %w", ErrMalformedResponse)))
	assert.Equal(t, "transport_failure", FailureKind(ErrTransport))
}
