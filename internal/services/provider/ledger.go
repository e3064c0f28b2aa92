package provider

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/clients"
	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/vault"
)

const (
	ledgerAccountsPath = "/v2/accounts"
	ledgerPageLimit    = "100"
	ledgerMaxPages     = 20
)

// DefaultDustThreshold holdings at or below this absolute amount are omitted.
var DefaultDustThreshold = decimal.New(1, -8)

// LedgerConfig settings of the OAuth ledger backend.
type LedgerConfig struct {
	TokenAlias    string
	Timeout       time.Duration
	DustThreshold decimal.Decimal
}

// LedgerAdapter exchange account API that values each account in the user's native currency.
type LedgerAdapter struct {
	base
	tokenAlias string
	dust       decimal.Decimal
}

// NewLedgerAdapter creates the LEDGER_OAUTH adapter.
func NewLedgerAdapter(cfg LedgerConfig, t *clients.HTTPTransport, v vault.Vault, valuer *Valuer, l *zap.Logger, opts ...Option) *LedgerAdapter {
	return newLedgerAdapter(cfg, t, v, valuer, l, opts...)
}

func newLedgerAdapter(cfg LedgerConfig, t transport, v vault.Vault, valuer *Valuer, l *zap.Logger, opts ...Option) *LedgerAdapter {
	if cfg.TokenAlias == "" {
		cfg.TokenAlias = vault.AliasLedgerToken
	}
	if !cfg.DustThreshold.IsPositive() {
		cfg.DustThreshold = DefaultDustThreshold
	}

	return &LedgerAdapter{
		base:       newBase(domain.SourceLedgerOAuth, "USD", "US Dollar", cfg.Timeout, v, t, valuer, l, opts),
		tokenAlias: cfg.TokenAlias,
		dust:       cfg.DustThreshold,
	}
}

type ledgerMoney struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type ledgerAccount struct {
	ID       string `json:"id"`
	Currency struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"currency"`
	Balance       ledgerMoney `json:"balance"`
	NativeBalance ledgerMoney `json:"native_balance"`
}

type ledgerAccountsResponse struct {
	Pagination struct {
		NextURI string `json:"next_uri"`
	} `json:"pagination"`
	Data []ledgerAccount `json:"data"`
}

func (a *LedgerAdapter) Fetch(ctx context.Context) []domain.BalanceRecord {
	return a.guard(ctx, a.fetch)
}

func (a *LedgerAdapter) fetch(ctx context.Context) ([]domain.BalanceRecord, error) {
	creds, err := a.credentials(a.tokenAlias)
	if err != nil {
		return nil, err
	}
	header := clients.BearerHeader(creds[0])

	var accounts []ledgerAccount
	req := clients.Request{
		Path:   ledgerAccountsPath,
		Query:  url.Values{"limit": []string{ledgerPageLimit}},
		Header: header,
	}
	for page := 0; ; page++ {
		if page == ledgerMaxPages {
			return nil, errors.Wrapf(domain.ErrMalformedResponse, "ledger pagination incomplete after %d pages", ledgerMaxPages)
		}

		var resp ledgerAccountsResponse
		if err := a.transport.DoJSON(ctx, req, &resp); err != nil {
			return nil, errors.Wrap(err, "list ledger accounts")
		}
		accounts = append(accounts, resp.Data...)

		next := resp.Pagination.NextURI
		if next == "" {
			break
		}
		path, err := a.nextPath(next)
		if err != nil {
			return nil, errors.Wrap(err, "ledger pagination incomplete")
		}
		req = clients.Request{Path: path, Header: header}
	}

	observedAt := a.now()
	records := make([]domain.BalanceRecord, 0, len(accounts))
	for i, acc := range accounts {
		amount, err := decimal.NewFromString(acc.Balance.Amount)
		if err != nil {
			return nil, errors.Wrapf(domain.ErrMalformedResponse, "account %d balance", i)
		}
		if amount.Abs().LessThanOrEqual(a.dust) || amount.IsNegative() {
			continue
		}

		code := strings.ToUpper(acc.Currency.Code)
		if code == "" {
			code = strings.ToUpper(acc.Balance.Currency)
		}
		if code == "" {
			return nil, errors.Wrapf(domain.ErrMalformedResponse, "account %d has no currency", i)
		}
		name := acc.Currency.Name
		if name == "" {
			name = code
		}

		usd, source, err := a.usdValue(code, amount, acc.NativeBalance)
		if err != nil {
			return nil, errors.Wrapf(err, "account %d", i)
		}

		records = append(records, domain.NewBalanceRecord(a.source, code, name, amount, usd, source, observedAt))
	}

	if len(records) == 0 {
		return []domain.BalanceRecord{a.syncedZero()}, nil
	}

	return records, nil
}

// usdValue prefers the backend's own USD valuation.
func (a *LedgerAdapter) usdValue(code string, amount decimal.Decimal, native ledgerMoney) (decimal.Decimal, domain.PriceSource, error) {
	if strings.EqualFold(native.Currency, "USD") && native.Amount != "" {
		usd, err := decimal.NewFromString(native.Amount)
		if err != nil {
			return decimal.Zero, domain.PriceSourceNone, errors.Wrap(domain.ErrMalformedResponse, "native balance")
		}
		return usd, domain.PriceSourceProvider, nil
	}

	usd, source := a.valuer.USD(code, amount)
	return usd, source, nil
}

type linkResolver interface {
	RelativePath(link string) (string, error)
}

// nextPath turns a next_uri into a request path on the same backend.
func (a *LedgerAdapter) nextPath(next string) (string, error) {
	if r, ok := a.transport.(linkResolver); ok {
		return r.RelativePath(next)
	}
	if strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") {
		return next, nil
	}
	return "", errors.Wrap(domain.ErrMalformedResponse, "next_uri is not a rooted path")
}
