// Package setup is the interactive configuration wizard.
package setup

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/walletsync/config"
	"github.com/vadiminshakov/walletsync/internal/vault"
)

// DefaultOutput file the wizard writes.
const DefaultOutput = "config.gen.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers collected by the wizard.
type Answers struct {
	LedgerURL   string
	HMACURL     string
	SplitURL    string
	FeedSymbols string
	FallbackBTC string
	Platform    string
	IndexAssets string
	POIURL      string
	POIQuery    string
	WebAddr     string
	SnapshotTTL string
}

func defaultAnswers() Answers {
	return Answers{
		LedgerURL:   "https://api.coinbase.com",
		HMACURL:     "https://api.gemini.com",
		SplitURL:    "https://api.strike.me",
		FeedSymbols: "BTCUSD, ETHUSD",
		FallbackBTC: "",
		Platform:    "binance",
		IndexAssets: "BTC, ETH",
		POIURL:      "https://places.example.com",
		POIQuery:    "bitcoin atm",
		WebAddr:     config.DefaultWebAddr,
		SnapshotTTL: "60s",
	}
}

func step(title string) {
	fmt.Print("\033[H\033[2J") // clear screen
	fmt.Println(headerStyle.Render("WALLETSYNC CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(title))
}

// RunTUI launches the terminal configuration wizard and writes output.
func RunTUI(output string) error {
	if output == "" {
		output = DefaultOutput
	}
	a := defaultAnswers()

	step("STEP 1: PROVIDERS")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render(
		"Credentials are read from the environment, e.g. " + vault.EnvName(vault.AliasLedgerToken) + ".\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Ledger (OAuth) API base URL").Value(&a.LedgerURL).Validate(validateURL),
			huh.NewInput().Title("HMAC-signed API base URL").Value(&a.HMACURL).Validate(validateURL),
			huh.NewInput().Title("Split on-chain/lightning API base URL").Value(&a.SplitURL).Validate(validateURL),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 2: MARKET FEED")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Feed symbols").
				Description("Comma separated, quoted in USD (e.g. BTCUSD, ETHUSD)").
				Value(&a.FeedSymbols).
				Validate(validateSymbols),
			huh.NewInput().
				Title("Static BTC fallback price").
				Description("Used when the feed has no price yet; empty to disable").
				Value(&a.FallbackBTC).
				Validate(validateOptionalPrice),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 3: PRICE INDEX")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select price index platform").
				Options(
					huh.NewOption("Binance", "binance"),
					huh.NewOption("Bybit", "bybit"),
					huh.NewOption("Hyperliquid", "hyperliquid"),
				).
				Value(&a.Platform),
			huh.NewInput().Title("Indexed assets").Description("Comma separated (e.g. BTC, ETH)").Value(&a.IndexAssets),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 4: PLACES & SERVER")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Places API base URL").Value(&a.POIURL).Validate(validateURL),
			huh.NewInput().Title("Places query").Value(&a.POIQuery),
			huh.NewInput().Title("Status server address").Value(&a.WebAddr),
			huh.NewInput().
				Title("Snapshot cache max age").
				Description("Duration string (e.g. 30s, 1m)").
				Value(&a.SnapshotTTL).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	step("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Ledger: %s\nHMAC: %s\nSplit: %s\nFeed: %s\nPrice index: %s (%s)\nPlaces: %s\n",
		a.LedgerURL, a.HMACURL, a.SplitURL, a.FeedSymbols, a.Platform, a.IndexAssets, a.POIURL,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	var confirm bool
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return errors.New("setup cancelled by user")
	}

	if err := Write(output, a); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(
		fmt.Sprintf("\n✓ Configuration saved to %s\nRun: walletsync -config %s", output, output)))
	return nil
}

// Write renders a as YAML into path after checking it converts to a valid config.
func Write(path string, a Answers) error {
	raw, err := Build(a)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return errors.Wrap(err, "generate yaml")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "save config file")
	}
	return nil
}

// Build converts wizard answers to the raw config shape.
func Build(a Answers) (config.ConfigTmp, error) {
	ttl, err := time.ParseDuration(a.SnapshotTTL)
	if err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "snapshot max age")
	}

	raw := config.ConfigTmp{
		Ledger:         config.ProviderTmp{BaseURL: a.LedgerURL},
		HMAC:           config.ProviderTmp{BaseURL: a.HMACURL},
		Split:          config.ProviderTmp{BaseURL: a.SplitURL},
		Feed:           config.FeedTmp{Symbols: splitList(a.FeedSymbols)},
		SnapshotMaxAge: ttl,
		PriceIndex: config.PriceIndexTmp{
			Platform: a.Platform,
			Assets:   splitList(a.IndexAssets),
		},
		POI:     config.POITmp{BaseURL: a.POIURL, Query: a.POIQuery},
		WebAddr: a.WebAddr,
	}
	if strings.TrimSpace(a.FallbackBTC) != "" {
		raw.FallbackPrices = map[string]string{"BTC": strings.TrimSpace(a.FallbackBTC)}
	}

	if _, err := raw.Config(); err != nil {
		return config.ConfigTmp{}, err
	}
	return raw, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.ToUpper(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func validateURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("must be an absolute URL")
	}
	return nil
}

func validateSymbols(s string) error {
	symbols := splitList(s)
	if len(symbols) == 0 {
		return errors.New("at least one symbol is required")
	}
	for _, symbol := range symbols {
		if !strings.HasSuffix(symbol, "USD") || symbol == "USD" {
			return errors.Errorf("%s: must be quoted in USD, e.g. BTCUSD", symbol)
		}
	}
	return nil
}

func validateOptionalPrice(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !d.IsPositive() {
		return errors.New("must be a positive number")
	}
	return nil
}
