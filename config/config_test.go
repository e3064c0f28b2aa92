package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimal() ConfigTmp {
	return ConfigTmp{
		Ledger: ProviderTmp{BaseURL: "https://ledger.example/"},
		HMAC:   ProviderTmp{BaseURL: "https://hmac.example"},
		Split:  ProviderTmp{BaseURL: "https://split.example"},
		POI:    POITmp{BaseURL: "https://poi.example"},
	}
}

func TestConfigTmp_Defaults(t *testing.T) {
	cfg, err := minimal().Config()
	require.NoError(t, err)

	assert.Equal(t, "https://ledger.example", cfg.Ledger.BaseURL)
	assert.Equal(t, DefaultProviderTimeout, cfg.HMAC.Timeout)
	assert.Equal(t, DefaultSnapshotMaxAge, cfg.SnapshotMaxAge)
	assert.Equal(t, DefaultFeedURLTemplate, cfg.Feed.URLTemplate)
	assert.Equal(t, DefaultReconnectInitial, cfg.Feed.ReconnectInitial)
	assert.Equal(t, DefaultReconnectMax, cfg.Feed.ReconnectMax)
	assert.Equal(t, "binance", cfg.PriceIndex.Platform)
	assert.Equal(t, "USDT", cfg.PriceIndex.Quote)
	assert.Equal(t, []string{"BTC"}, cfg.PriceIndex.Assets)
	assert.Equal(t, DefaultPriceIndexMaxAge, cfg.PriceIndex.MaxAge)
	assert.Equal(t, DefaultWebAddr, cfg.WebAddr)
	assert.Equal(t, DefaultNonceWALDir, cfg.NonceWALDir)
	assert.True(t, cfg.DustThreshold.IsZero())
}

func TestConfigTmp_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *ConfigTmp)
	}{
		{"missing ledger url", func(c *ConfigTmp) { c.Ledger.BaseURL = "" }},
		{"missing poi url", func(c *ConfigTmp) { c.POI.BaseURL = "" }},
		{"bad dust", func(c *ConfigTmp) { c.DustThreshold = "abc" }},
		{"negative dust", func(c *ConfigTmp) { c.DustThreshold = "-1" }},
		{"negative divisor", func(c *ConfigTmp) { c.SubunitDivisor = -5 }},
		{"bad fallback", func(c *ConfigTmp) { c.FallbackPrices = map[string]string{"BTC": "0"} }},
		{"template without symbol", func(c *ConfigTmp) { c.Feed.URLTemplate = "wss://feed.example/ws" }},
		{"unknown platform", func(c *ConfigTmp) { c.PriceIndex.Platform = "kraken" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := minimal()
			tt.mutate(&raw)
			_, err := raw.Config()
			assert.Error(t, err)
		})
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "config.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSD", "ETHUSD", "SOLUSD"}, cfg.Feed.Symbols)
	assert.Equal(t, 30*time.Second, cfg.Feed.ReconnectMax)
	assert.True(t, decimal.NewFromInt(95000).Equal(cfg.FallbackPrices["BTC"]))
	assert.True(t, decimal.New(1, -8).Equal(cfg.DustThreshold))
	assert.Equal(t, int64(100_000_000), cfg.SubunitDivisor)
	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, cfg.PriceIndex.Assets)
	assert.Equal(t, 20, cfg.POI.Limit)
	assert.Equal(t, "bitcoin atm", cfg.POI.Query)
}

func TestLoad_NormalizesSymbolsAndAssets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ledger: {base_url: "https://l"}
hmac: {base_url: "https://h"}
split: {base_url: "https://s"}
poi: {base_url: "https://p"}
feed:
  symbols: [btc_usd, " ethusd ", ""]
fallback_prices:
  sol: "150.5"
price_index:
  platform: Bybit
  assets: [eth]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSD", "ETHUSD"}, cfg.Feed.Symbols)
	assert.True(t, decimal.RequireFromString("150.5").Equal(cfg.FallbackPrices["SOL"]))
	assert.Equal(t, "bybit", cfg.PriceIndex.Platform)
	assert.Equal(t, []string{"ETH"}, cfg.PriceIndex.Assets)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestParseFlags(t *testing.T) {
	f, err := ParseFlags([]string{"-config", "custom.yaml", "-setup"})
	require.NoError(t, err)
	assert.Equal(t, "custom.yaml", f.ConfigPath)
	assert.True(t, f.Setup)

	f, err = ParseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "config.yaml", f.ConfigPath)
	assert.False(t, f.Setup)
}
