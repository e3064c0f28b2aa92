package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zapcore"
)

// AggregatedSnapshot unified USD-denominated view over all providers.
// The total is derived from the records on every call.
type AggregatedSnapshot struct {
	records  []BalanceRecord
	syncedAt time.Time
}

// NewAggregatedSnapshot creates a snapshot that owns a copy of records.
func NewAggregatedSnapshot(records []BalanceRecord, syncedAt time.Time) AggregatedSnapshot {
	owned := make([]BalanceRecord, len(records))
	copy(owned, records)

	return AggregatedSnapshot{records: owned, syncedAt: syncedAt}
}

// Records returns a copy of the snapshot records.
func (s AggregatedSnapshot) Records() []BalanceRecord {
	out := make([]BalanceRecord, len(s.records))
	copy(out, s.records)
	return out
}

// TotalUSD sum of usd equivalents across all records.
func (s AggregatedSnapshot) TotalUSD() decimal.Decimal {
	total := decimal.Zero
	for _, r := range s.records {
		total = total.Add(r.usdEquivalent)
	}
	return total
}

func (s AggregatedSnapshot) SyncedAt() time.Time {
	return s.syncedAt
}

// IsZero reports whether the snapshot was never assembled.
func (s AggregatedSnapshot) IsZero() bool {
	return s.syncedAt.IsZero() && len(s.records) == 0
}

// OfflineSources lists sources that contributed an OFFLINE marker.
func (s AggregatedSnapshot) OfflineSources() []Source {
	var out []Source
	for _, r := range s.records {
		if r.IsOffline() {
			out = append(out, r.source)
		}
	}
	return out
}

// String never includes amounts.
func (s AggregatedSnapshot) String() string {
	return fmt.Sprintf("snapshot(records=%d, offline=%d, synced_at=%s)",
		len(s.records), len(s.OfflineSources()), s.syncedAt.Format(time.RFC3339))
}

// MarshalLogObject keeps amounts out of structured logs.
func (s AggregatedSnapshot) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("records", len(s.records))
	enc.AddInt("offline", len(s.OfflineSources()))
	enc.AddTime("synced_at", s.syncedAt)
	return nil
}
