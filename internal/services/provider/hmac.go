package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
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
	hmacBalancesPath = "/v1/balances"

	headerAPIKey    = "X-GEMINI-APIKEY"
	headerPayload   = "X-GEMINI-PAYLOAD"
	headerSignature = "X-GEMINI-SIGNATURE"
)

// HMACConfig settings of the HMAC-signed backend.
type HMACConfig struct {
	KeyAlias    string
	SecretAlias string
	Timeout     time.Duration
}

// HMACAdapter balance API whose requests carry a base64 payload signed with HMAC-SHA384.
type HMACAdapter struct {
	base
	keyAlias    string
	secretAlias string
	nonces      *NonceSource
}

// NewHMACAdapter creates the HMAC_SIGNED adapter.
func NewHMACAdapter(cfg HMACConfig, t *clients.HTTPTransport, v vault.Vault, valuer *Valuer, nonces *NonceSource, l *zap.Logger, opts ...Option) *HMACAdapter {
	return newHMACAdapter(cfg, t, v, valuer, nonces, l, opts...)
}

func newHMACAdapter(cfg HMACConfig, t transport, v vault.Vault, valuer *Valuer, nonces *NonceSource, l *zap.Logger, opts ...Option) *HMACAdapter {
	if cfg.KeyAlias == "" {
		cfg.KeyAlias = vault.AliasHMACKey
	}
	if cfg.SecretAlias == "" {
		cfg.SecretAlias = vault.AliasHMACSecret
	}
	if nonces == nil {
		nonces = &NonceSource{now: time.Now, l: l}
	}

	return &HMACAdapter{
		base:        newBase(domain.SourceHMACSigned, "USD", "US Dollar", cfg.Timeout, v, t, valuer, l, opts),
		keyAlias:    cfg.KeyAlias,
		secretAlias: cfg.SecretAlias,
		nonces:      nonces,
	}
}

type signedPayload struct {
	Request string `json:"request"`
	Nonce   string `json:"nonce"`
}

type hmacBalance struct {
	Type           string `json:"type"`
	Currency       string `json:"currency"`
	Amount         string `json:"amount"`
	Available      string `json:"available"`
	AmountNotional string `json:"amountNotional,omitempty"`
}

// Sign base64-encodes payload and returns it with its hex HMAC-SHA384 under secret.
func Sign(secret string, payload []byte) (encoded, signature string) {
	encoded = base64.StdEncoding.EncodeToString(payload)

	mac := hmac.New(sha512.New384, []byte(secret))
	mac.Write([]byte(encoded))

	return encoded, hex.EncodeToString(mac.Sum(nil))
}

func (a *HMACAdapter) Fetch(ctx context.Context) []domain.BalanceRecord {
	return a.guard(ctx, a.fetch)
}

func (a *HMACAdapter) fetch(ctx context.Context) ([]domain.BalanceRecord, error) {
	creds, err := a.credentials(a.keyAlias, a.secretAlias)
	if err != nil {
		return nil, err
	}
	apiKey, secret := creds[0], creds[1]

	payload, err := json.Marshal(signedPayload{
		Request: hmacBalancesPath,
		Nonce:   strconv.FormatInt(a.nonces.Next(), 10),
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal signed payload")
	}
	encoded, signature := Sign(secret, payload)

	header := http.Header{}
	header.Set("Content-Type", "text/plain")
	header.Set("Cache-Control", "no-cache")
	header.Set(headerAPIKey, apiKey)
	header.Set(headerPayload, encoded)
	header.Set(headerSignature, signature)

	var balances []hmacBalance
	if err := a.transport.DoJSON(ctx, clients.Request{
		Method: http.MethodPost,
		Path:   hmacBalancesPath,
		Header: header,
	}, &balances); err != nil {
		return nil, errors.Wrap(err, "get signed balances")
	}

	observedAt := a.now()
	records := make([]domain.BalanceRecord, 0, len(balances))
	for i, b := range balances {
		code := strings.ToUpper(b.Currency)
		if code == "" {
			return nil, errors.Wrapf(domain.ErrMalformedResponse, "balance %d has no currency", i)
		}
		amount, err := decimal.NewFromString(b.Amount)
		if err != nil {
			return nil, errors.Wrapf(domain.ErrMalformedResponse, "balance %d amount", i)
		}
		if !amount.IsPositive() {
			continue
		}

		usd, source := a.valuer.USD(code, amount)
		if b.AmountNotional != "" {
			notional, err := decimal.NewFromString(b.AmountNotional)
			if err != nil {
				return nil, errors.Wrapf(domain.ErrMalformedResponse, "balance %d notional", i)
			}
			usd, source = notional, domain.PriceSourceProvider
		}

		records = append(records, domain.NewBalanceRecord(a.source, code, code, amount, usd, source, observedAt))
	}

	if len(records) == 0 {
		return []domain.BalanceRecord{a.syncedZero()}, nil
	}

	return records, nil
}
