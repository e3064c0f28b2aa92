// Package provider normalizes heterogeneous balance backends into domain.BalanceRecord.
// Every adapter absorbs its own failures and reports them as one OFFLINE record.
package provider

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/clients"
	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/metrics"
	"github.com/vadiminshakov/walletsync/internal/vault"
)

const defaultFetchTimeout = 10 * time.Second

// Adapter one balance backend. The set of implementations is closed to this package.
type Adapter interface {
	Source() domain.Source
	// Fetch never fails; an unusable backend yields a single OFFLINE record.
	Fetch(ctx context.Context) []domain.BalanceRecord
	sealed()
}

type transport interface {
	DoJSON(ctx context.Context, req clients.Request, out any) error
}

// Option configures settings shared by all adapters.
type Option func(*base)

// WithClock overrides the time source used for observedAt.
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		b.now = now
	}
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *base) {
		b.metrics = m
	}
}

// base shared plumbing: credential lookup, timeout, panic guard, OFFLINE fallback.
type base struct {
	source      domain.Source
	primaryCode string
	primaryName string
	timeout     time.Duration
	vault       vault.Vault
	transport   transport
	valuer      *Valuer
	l           *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func newBase(source domain.Source, primaryCode, primaryName string, timeout time.Duration,
	v vault.Vault, t transport, valuer *Valuer, l *zap.Logger, opts []Option) base {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	b := base{
		source:      source,
		primaryCode: primaryCode,
		primaryName: primaryName,
		timeout:     timeout,
		vault:       v,
		transport:   t,
		valuer:      valuer,
		l:           l.With(zap.String("source", source.String())),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&b)
	}

	return b
}

func (b *base) Source() domain.Source { return b.source }

func (b *base) sealed() {}

func (b *base) offline() []domain.BalanceRecord {
	return []domain.BalanceRecord{domain.NewOfflineRecord(b.source, b.primaryCode, b.primaryName, b.now())}
}

// credentials resolves every alias or reports ErrCredentialMissing naming the first absent one.
func (b *base) credentials(aliases ...string) ([]string, error) {
	out := make([]string, 0, len(aliases))
	for _, alias := range aliases {
		secret, ok := b.vault.Get(alias)
		if !ok {
			return nil, errors.Wrapf(domain.ErrCredentialMissing, "alias %s", alias)
		}
		out = append(out, secret)
	}
	return out, nil
}

// guard runs fetch under the provider timeout and converts any failure into OFFLINE.
func (b *base) guard(ctx context.Context, fetch func(ctx context.Context) ([]domain.BalanceRecord, error)) []domain.BalanceRecord {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	records, err := safeCall(ctx, fetch)
	b.metrics.ObserveAdapterFetch(b.source.String(), domain.FailureKind(err), time.Since(start))

	if err != nil {
		b.l.Warn("provider offline",
			zap.String("kind", domain.FailureKind(err)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return b.offline()
	}

	b.l.Debug("provider synced", zap.Int("records", len(records)), zap.Duration("elapsed", time.Since(start)))
	return records
}

func safeCall(ctx context.Context, fetch func(ctx context.Context) ([]domain.BalanceRecord, error)) (records []domain.BalanceRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = errors.Wrapf(domain.ErrTransport, "adapter panic: %v", r)
		}
	}()

	return fetch(ctx)
}

// syncedZero reports a live provider that holds nothing worth listing.
func (b *base) syncedZero() domain.BalanceRecord {
	return domain.NewBalanceRecord(b.source, b.primaryCode, b.primaryName, decimal.Zero, decimal.Zero, domain.PriceSourcePeg, b.now())
}
