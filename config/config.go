// Package config loads walletsync settings from a YAML file and command-line flags.
// Secrets are never part of the configuration; they come from the credential vault.
package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSnapshotMaxAge   = 60 * time.Second
	DefaultPriceIndexMaxAge = 30 * time.Second
	DefaultProviderTimeout  = 10 * time.Second
	DefaultFeedURLTemplate  = "wss://api.gemini.com/v1/marketdata/{symbol}?top_of_book=true&trades=true"
	DefaultReconnectInitial = 500 * time.Millisecond
	DefaultReconnectMax     = 30 * time.Second
	DefaultWebAddr          = "127.0.0.1:8089"
	DefaultNonceWALDir      = "./wal/nonce"
)

var supportedPlatforms = map[string]struct{}{
	"binance":     {},
	"bybit":       {},
	"hyperliquid": {},
}

// Provider one balance backend.
type Provider struct {
	BaseURL string
	Timeout time.Duration
	// Aliases vault aliases of the credentials; empty selects the built-in ones.
	Aliases []string
}

// Feed live market feed settings.
type Feed struct {
	URLTemplate      string
	Symbols          []string
	ConnectTimeout   time.Duration
	ReadTimeout      time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
}

// PriceIndex secondary price path.
type PriceIndex struct {
	Platform string
	BaseURL  string
	Assets   []string
	Quote    string
	MaxAge   time.Duration
}

// POI points-of-interest prefetch.
type POI struct {
	BaseURL string
	Timeout time.Duration
	Limit   int
	Query   string
}

type Config struct {
	Ledger         Provider
	HMAC           Provider
	Split          Provider
	DustThreshold  decimal.Decimal
	SubunitDivisor int64
	Feed           Feed
	FallbackPrices map[string]decimal.Decimal
	SnapshotMaxAge time.Duration
	PriceIndex     PriceIndex
	POI            POI
	WebAddr        string
	NonceWALDir    string
}

type ProviderTmp struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	Aliases []string      `yaml:"aliases,omitempty,flow"`
}

type FeedTmp struct {
	URLTemplate      string        `yaml:"url_template,omitempty"`
	Symbols          []string      `yaml:"symbols,flow"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout,omitempty"`
	ReadTimeout      time.Duration `yaml:"read_timeout,omitempty"`
	ReconnectInitial time.Duration `yaml:"reconnect_initial,omitempty"`
	ReconnectMax     time.Duration `yaml:"reconnect_max,omitempty"`
}

type PriceIndexTmp struct {
	Platform string        `yaml:"platform"`
	BaseURL  string        `yaml:"base_url,omitempty"`
	Assets   []string      `yaml:"assets,flow"`
	Quote    string        `yaml:"quote,omitempty"`
	MaxAge   time.Duration `yaml:"max_age,omitempty"`
}

type POITmp struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	Limit   int           `yaml:"limit,omitempty"`
	Query   string        `yaml:"query,omitempty"`
}

// ConfigTmp raw YAML shape; decimals are strings.
type ConfigTmp struct {
	Ledger         ProviderTmp       `yaml:"ledger"`
	HMAC           ProviderTmp       `yaml:"hmac"`
	Split          ProviderTmp       `yaml:"split"`
	DustThreshold  string            `yaml:"dust_threshold,omitempty"`
	SubunitDivisor int64             `yaml:"subunit_divisor,omitempty"`
	Feed           FeedTmp           `yaml:"feed"`
	FallbackPrices map[string]string `yaml:"fallback_prices,omitempty"`
	SnapshotMaxAge time.Duration     `yaml:"snapshot_max_age,omitempty"`
	PriceIndex     PriceIndexTmp     `yaml:"price_index"`
	POI            POITmp            `yaml:"poi"`
	WebAddr        string            `yaml:"web_addr,omitempty"`
	NonceWALDir    string            `yaml:"nonce_wal_dir,omitempty"`
}

// Flags parsed command line.
type Flags struct {
	ConfigPath string
	Setup      bool
}

// ParseFlags reads -config and -setup from args.
func ParseFlags(args []string) (Flags, error) {
	fs := flag.NewFlagSet("walletsync", flag.ContinueOnError)
	path := fs.String("config", "config.yaml", "path to yaml config")
	setup := fs.Bool("setup", false, "run the configuration wizard and exit")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	return Flags{ConfigPath: *path, Setup: *setup}, nil
}

// Load reads and validates the YAML file at path.
func Load(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}

	var raw ConfigTmp
	if err := yaml.Unmarshal(f, &raw); err != nil {
		return Config{}, errors.Wrap(err, "parse yaml config")
	}

	return raw.Config()
}

// Config converts the raw settings, applying defaults and validating every field.
func (c ConfigTmp) Config() (Config, error) {
	cfg := Config{
		Ledger:         provider(c.Ledger),
		HMAC:           provider(c.HMAC),
		Split:          provider(c.Split),
		SubunitDivisor: c.SubunitDivisor,
		SnapshotMaxAge: c.SnapshotMaxAge,
		WebAddr:        c.WebAddr,
		NonceWALDir:    c.NonceWALDir,
		FallbackPrices: make(map[string]decimal.Decimal, len(c.FallbackPrices)),
		Feed: Feed{
			URLTemplate:      c.Feed.URLTemplate,
			ConnectTimeout:   c.Feed.ConnectTimeout,
			ReadTimeout:      c.Feed.ReadTimeout,
			ReconnectInitial: c.Feed.ReconnectInitial,
			ReconnectMax:     c.Feed.ReconnectMax,
		},
		PriceIndex: PriceIndex{
			Platform: strings.ToLower(c.PriceIndex.Platform),
			BaseURL:  c.PriceIndex.BaseURL,
			Quote:    strings.ToUpper(c.PriceIndex.Quote),
			MaxAge:   c.PriceIndex.MaxAge,
		},
		POI: POI(c.POI),
	}

	for name, p := range map[string]Provider{"ledger": cfg.Ledger, "hmac": cfg.HMAC, "split": cfg.Split} {
		if p.BaseURL == "" {
			return Config{}, errors.Errorf("'%s.base_url' is required", name)
		}
	}

	if c.DustThreshold != "" {
		dust, err := decimal.NewFromString(c.DustThreshold)
		if err != nil || dust.IsNegative() {
			return Config{}, errors.Errorf("incorrect 'dust_threshold' param in yaml config: %q", c.DustThreshold)
		}
		cfg.DustThreshold = dust
	}
	if cfg.SubunitDivisor < 0 {
		return Config{}, errors.New("'subunit_divisor' must be positive")
	}

	for asset, raw := range c.FallbackPrices {
		price, err := decimal.NewFromString(raw)
		if err != nil || !price.IsPositive() {
			return Config{}, errors.Errorf("incorrect fallback price for %s: %q", asset, raw)
		}
		cfg.FallbackPrices[strings.ToUpper(asset)] = price
	}

	for _, s := range c.Feed.Symbols {
		s = strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(s, "_", "")))
		if s == "" {
			continue
		}
		cfg.Feed.Symbols = append(cfg.Feed.Symbols, s)
	}
	if cfg.Feed.URLTemplate == "" {
		cfg.Feed.URLTemplate = DefaultFeedURLTemplate
	}
	if !strings.Contains(cfg.Feed.URLTemplate, "{symbol}") {
		return Config{}, errors.New("'feed.url_template' must contain {symbol}")
	}
	if cfg.Feed.ConnectTimeout <= 0 {
		cfg.Feed.ConnectTimeout = DefaultProviderTimeout
	}
	if cfg.Feed.ReconnectInitial <= 0 {
		cfg.Feed.ReconnectInitial = DefaultReconnectInitial
	}
	if cfg.Feed.ReconnectMax < cfg.Feed.ReconnectInitial {
		cfg.Feed.ReconnectMax = max(DefaultReconnectMax, cfg.Feed.ReconnectInitial)
	}

	if cfg.PriceIndex.Platform == "" {
		cfg.PriceIndex.Platform = "binance"
	}
	if _, ok := supportedPlatforms[cfg.PriceIndex.Platform]; !ok {
		return Config{}, errors.Errorf("unsupported price index platform %q", c.PriceIndex.Platform)
	}
	if cfg.PriceIndex.Quote == "" {
		cfg.PriceIndex.Quote = "USDT"
	}
	for _, a := range c.PriceIndex.Assets {
		if a = strings.ToUpper(strings.TrimSpace(a)); a != "" {
			cfg.PriceIndex.Assets = append(cfg.PriceIndex.Assets, a)
		}
	}
	if len(cfg.PriceIndex.Assets) == 0 {
		cfg.PriceIndex.Assets = []string{"BTC"}
	}
	if cfg.PriceIndex.MaxAge <= 0 {
		cfg.PriceIndex.MaxAge = DefaultPriceIndexMaxAge
	}

	if cfg.POI.BaseURL == "" {
		return Config{}, errors.New("'poi.base_url' is required")
	}
	if cfg.POI.Timeout <= 0 {
		cfg.POI.Timeout = DefaultProviderTimeout
	}

	if cfg.SnapshotMaxAge <= 0 {
		cfg.SnapshotMaxAge = DefaultSnapshotMaxAge
	}
	if cfg.WebAddr == "" {
		cfg.WebAddr = DefaultWebAddr
	}
	if cfg.NonceWALDir == "" {
		cfg.NonceWALDir = DefaultNonceWALDir
	}

	return cfg, nil
}

func provider(p ProviderTmp) Provider {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return Provider{
		BaseURL: strings.TrimRight(p.BaseURL, "/"),
		Timeout: timeout,
		Aliases: append([]string(nil), p.Aliases...),
	}
}
