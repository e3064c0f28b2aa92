package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zapcore"
)

// BalanceRecord one provider's holding of one asset.
// Fields are unexported so a record cannot change after construction.
type BalanceRecord struct {
	source        Source
	assetCode     string
	assetName     string
	nativeAmount  decimal.Decimal
	usdEquivalent decimal.Decimal
	status        Status
	priceSource   PriceSource
	observedAt    time.Time
}

// NewBalanceRecord creates a synced record. Negative amounts are clamped to zero.
func NewBalanceRecord(
	source Source,
	assetCode string,
	assetName string,
	nativeAmount decimal.Decimal,
	usdEquivalent decimal.Decimal,
	priceSource PriceSource,
	observedAt time.Time,
) BalanceRecord {
	if nativeAmount.IsNegative() {
		nativeAmount = decimal.Zero
	}
	if usdEquivalent.IsNegative() {
		usdEquivalent = decimal.Zero
	}

	return BalanceRecord{
		source:        source,
		assetCode:     assetCode,
		assetName:     assetName,
		nativeAmount:  nativeAmount,
		usdEquivalent: usdEquivalent,
		status:        StatusSynced,
		priceSource:   priceSource,
		observedAt:    observedAt,
	}
}

// NewOfflineRecord creates the OFFLINE marker for a provider's primary asset.
func NewOfflineRecord(source Source, assetCode, assetName string, observedAt time.Time) BalanceRecord {
	return BalanceRecord{
		source:        source,
		assetCode:     assetCode,
		assetName:     assetName,
		nativeAmount:  decimal.Zero,
		usdEquivalent: decimal.Zero,
		status:        StatusOffline,
		priceSource:   PriceSourceNone,
		observedAt:    observedAt,
	}
}

func (r BalanceRecord) Source() Source                 { return r.source }
func (r BalanceRecord) AssetCode() string              { return r.assetCode }
func (r BalanceRecord) AssetName() string              { return r.assetName }
func (r BalanceRecord) NativeAmount() decimal.Decimal  { return r.nativeAmount }
func (r BalanceRecord) USDEquivalent() decimal.Decimal { return r.usdEquivalent }
func (r BalanceRecord) Status() Status                 { return r.status }
func (r BalanceRecord) PriceSource() PriceSource       { return r.priceSource }
func (r BalanceRecord) ObservedAt() time.Time          { return r.observedAt }

// IsOffline reports whether the record is a failure marker rather than a reported balance.
func (r BalanceRecord) IsOffline() bool {
	return r.status == StatusOffline
}

// String never includes amounts.
func (r BalanceRecord) String() string {
	return fmt.Sprintf("%s/%s(%s)", r.source, r.assetCode, r.status)
}

// MarshalLogObject keeps amounts out of structured logs.
func (r BalanceRecord) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("source", r.source.String())
	enc.AddString("asset", r.assetCode)
	enc.AddString("status", r.status.String())
	enc.AddString("price_source", string(r.priceSource))
	return nil
}
