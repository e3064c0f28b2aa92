package provider

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/clients"
	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/vault"
)

const (
	splitAccountPath = "/v1/account"

	// DefaultSubunitDivisor satoshis per bitcoin.
	DefaultSubunitDivisor int64 = 100_000_000

	AssetBTC          = "BTC"
	AssetBTCLightning = "BTC_LIGHTNING"
)

// SplitConfig settings of the split on-chain/lightning backend.
type SplitConfig struct {
	TokenAlias     string
	Timeout        time.Duration
	SubunitDivisor int64
}

// SplitAdapter bitcoin wallet reporting confirmed on-chain and lightning balances in subunits.
type SplitAdapter struct {
	base
	tokenAlias string
	divisor    decimal.Decimal
}

// NewSplitAdapter creates the SPLIT_ONCHAIN adapter.
func NewSplitAdapter(cfg SplitConfig, t *clients.HTTPTransport, v vault.Vault, valuer *Valuer, l *zap.Logger, opts ...Option) *SplitAdapter {
	return newSplitAdapter(cfg, t, v, valuer, l, opts...)
}

func newSplitAdapter(cfg SplitConfig, t transport, v vault.Vault, valuer *Valuer, l *zap.Logger, opts ...Option) *SplitAdapter {
	if cfg.TokenAlias == "" {
		cfg.TokenAlias = vault.AliasSplitToken
	}
	if cfg.SubunitDivisor <= 0 {
		cfg.SubunitDivisor = DefaultSubunitDivisor
	}

	return &SplitAdapter{
		base:       newBase(domain.SourceSplitOnchain, AssetBTC, "Bitcoin", cfg.Timeout, v, t, valuer, l, opts),
		tokenAlias: cfg.TokenAlias,
		divisor:    decimal.NewFromInt(cfg.SubunitDivisor),
	}
}

type splitAccountResponse struct {
	Account *struct {
		OnchainBalance   *int64 `json:"onchain_balance"`
		LightningBalance *int64 `json:"lightning_balance"`
	} `json:"account"`
}

func (a *SplitAdapter) Fetch(ctx context.Context) []domain.BalanceRecord {
	return a.guard(ctx, a.fetch)
}

func (a *SplitAdapter) fetch(ctx context.Context) ([]domain.BalanceRecord, error) {
	creds, err := a.credentials(a.tokenAlias)
	if err != nil {
		return nil, err
	}

	var resp splitAccountResponse
	if err := a.transport.DoJSON(ctx, clients.Request{
		Path:   splitAccountPath,
		Header: clients.BearerHeader(creds[0]),
	}, &resp); err != nil {
		return nil, errors.Wrap(err, "get split account")
	}

	if resp.Account == nil {
		return nil, errors.Wrap(domain.ErrMalformedResponse, "no account in response")
	}
	onchain, lightning := resp.Account.OnchainBalance, resp.Account.LightningBalance
	if onchain == nil && lightning == nil {
		return nil, errors.Wrap(domain.ErrMalformedResponse, "account has no balances")
	}
	if (onchain != nil && *onchain < 0) || (lightning != nil && *lightning < 0) {
		return nil, errors.Wrap(domain.ErrMalformedResponse, "negative subunit balance")
	}

	observedAt := a.now()
	records := make([]domain.BalanceRecord, 0, 2)
	if onchain != nil && *onchain > 0 {
		records = append(records, a.record(AssetBTC, "Bitcoin", *onchain, observedAt))
	}
	if lightning != nil && *lightning > 0 {
		records = append(records, a.record(AssetBTCLightning, "Bitcoin (Lightning)", *lightning, observedAt))
	}

	if len(records) == 0 {
		return a.offline(), nil
	}

	return records, nil
}

// record converts subunits to BTC; both sub-balances are priced as BTC.
func (a *SplitAdapter) record(code, name string, subunits int64, observedAt time.Time) domain.BalanceRecord {
	amount := decimal.NewFromInt(subunits).Div(a.divisor)
	usd, source := a.valuer.USD(AssetBTC, amount)

	return domain.NewBalanceRecord(a.source, code, name, amount, usd, source, observedAt)
}
