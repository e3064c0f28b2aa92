// Command walletsync aggregates balances from the configured providers into one
// in-memory USD snapshot and reports startup readiness on a local status server.
//
// Usage:
//
//	walletsync -config config.yaml
//	walletsync -setup (runs the configuration wizard)
//
// Credentials are read from the environment:
//
//	WALLETSYNC_LEDGER_OAUTH_TOKEN
//	WALLETSYNC_HMAC_API_KEY, WALLETSYNC_HMAC_API_SECRET
//	WALLETSYNC_SPLIT_ONCHAIN_TOKEN
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/walletsync/config"
	"github.com/vadiminshakov/walletsync/internal/clients"
	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/metrics"
	"github.com/vadiminshakov/walletsync/internal/services/aggregator"
	"github.com/vadiminshakov/walletsync/internal/services/feed"
	"github.com/vadiminshakov/walletsync/internal/services/poi"
	"github.com/vadiminshakov/walletsync/internal/services/pricer"
	"github.com/vadiminshakov/walletsync/internal/services/provider"
	"github.com/vadiminshakov/walletsync/internal/services/startup"
	"github.com/vadiminshakov/walletsync/internal/setup"
	"github.com/vadiminshakov/walletsync/internal/storage/nonces"
	"github.com/vadiminshakov/walletsync/internal/vault"
	"github.com/vadiminshakov/walletsync/internal/web"
	"github.com/vadiminshakov/walletsync/pkg/retrier"
)

func main() {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	if flags.Setup {
		if err := setup.RunTUI(setup.DefaultOutput); err != nil {
			log.Fatal(err)
		}
		return
	}

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("walletsync stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, l *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	reconnect := retrier.New(
		retrier.WithInitialInterval(cfg.Feed.ReconnectInitial),
		retrier.WithMaxInterval(cfg.Feed.ReconnectMax),
		retrier.WithMaxRetries(retrier.Unlimited),
	)
	marketFeed := feed.New(feed.Config{
		URLTemplate:    cfg.Feed.URLTemplate,
		ConnectTimeout: cfg.Feed.ConnectTimeout,
		ReadTimeout:    cfg.Feed.ReadTimeout,
	}, feed.NewWebsocketDialer(cfg.Feed.ConnectTimeout), l.Named("feed"), m, feed.WithRetrier(reconnect))
	defer marketFeed.DisconnectAll()

	for _, symbol := range cfg.Feed.Symbols {
		go watchFeed(ctx, marketFeed, symbol, l.Named("feed"))
	}

	nonceStore, err := nonces.NewWALStore(cfg.NonceWALDir)
	if err != nil {
		return err
	}
	defer nonceStore.Close()

	nonceSource, err := provider.NewNonceSource(nonceStore, nil, l)
	if err != nil {
		return err
	}

	p, err := newPricer(ctx, cfg.PriceIndex)
	if err != nil {
		return err
	}
	index := pricer.NewIndex(p, cfg.PriceIndex.Assets, cfg.PriceIndex.Quote, l.Named("pricer"),
		pricer.WithMaxAge(cfg.PriceIndex.MaxAge),
		pricer.WithMetrics(m),
	)

	// live feed first, indexed exchange prices second
	prices := provider.PriceSources{marketFeed, index}
	engine := aggregator.New(adapters(cfg, prices, nonceSource, m, l), l.Named("aggregator"),
		aggregator.WithMaxAge(cfg.SnapshotMaxAge),
		aggregator.WithMetrics(m),
	)
	// the snapshot must not outlive the process's need for it
	defer engine.ClearCache()

	places := poi.NewClient(clients.NewHTTPTransport(cfg.POI.BaseURL, cfg.POI.Timeout), cfg.POI.Limit, l.Named("poi"))

	orchestrator := startup.New(engine, index, places, l.Named("startup"), startup.WithMetrics(m))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return web.NewServer(cfg.WebAddr, orchestrator, marketFeed, cfg.Feed.Symbols, reg, l.Named("web")).Start(ctx)
	})
	g.Go(func() error {
		orchestrator.LaunchFetch(ctx, domain.LocationHint{Query: cfg.POI.Query})
		return nil
	})
	g.Go(func() error {
		clearOnSignal(ctx, engine, l)
		return nil
	})

	return g.Wait()
}

func adapters(cfg config.Config, prices provider.PriceSource, ns *provider.NonceSource, m *metrics.Metrics, l *zap.Logger) []aggregator.Fetcher {
	v := vault.NewEnvVault()
	valuer := provider.NewValuer(prices, cfg.FallbackPrices)
	opts := []provider.Option{provider.WithMetrics(m)}

	ledger := provider.NewLedgerAdapter(provider.LedgerConfig{
		TokenAlias:    alias(cfg.Ledger.Aliases, 0),
		Timeout:       cfg.Ledger.Timeout,
		DustThreshold: cfg.DustThreshold,
	}, clients.NewHTTPTransport(cfg.Ledger.BaseURL, cfg.Ledger.Timeout), v, valuer, l, opts...)

	hmac := provider.NewHMACAdapter(provider.HMACConfig{
		KeyAlias:    alias(cfg.HMAC.Aliases, 0),
		SecretAlias: alias(cfg.HMAC.Aliases, 1),
		Timeout:     cfg.HMAC.Timeout,
	}, clients.NewHTTPTransport(cfg.HMAC.BaseURL, cfg.HMAC.Timeout), v, valuer, ns, l, opts...)

	split := provider.NewSplitAdapter(provider.SplitConfig{
		TokenAlias:     alias(cfg.Split.Aliases, 0),
		Timeout:        cfg.Split.Timeout,
		SubunitDivisor: cfg.SubunitDivisor,
	}, clients.NewHTTPTransport(cfg.Split.BaseURL, cfg.Split.Timeout), v, valuer, l, opts...)

	return []aggregator.Fetcher{ledger, hmac, split}
}

func alias(aliases []string, i int) string {
	if i < len(aliases) {
		return aliases[i]
	}
	return ""
}

func newPricer(ctx context.Context, cfg config.PriceIndex) (pricer.Pricer, error) {
	switch cfg.Platform {
	case pricer.PlatformBinance:
		return pricer.NewBinancePricer(clients.NewBinancePublicClient(cfg.BaseURL)), nil
	case pricer.PlatformBybit:
		return pricer.NewBybitPricer(clients.NewBybitPublicClient(cfg.BaseURL)), nil
	case pricer.PlatformHyperliquid:
		c, err := clients.NewHyperliquidPublicClient(ctx, cfg.BaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "hyperliquid client")
		}
		return pricer.NewHyperliquidPricer(c.Info()), nil
	default:
		return nil, errors.Errorf("unsupported price index platform %q", cfg.Platform)
	}
}

// watchFeed keeps one observer per configured symbol so the price table stays warm.
func watchFeed(ctx context.Context, f *feed.Feed, symbol string, l *zap.Logger) {
	for ev := range f.Observe(ctx, symbol) {
		switch ev.Kind {
		case domain.FeedConnected, domain.FeedDisconnected:
			l.Info("feed state changed", zap.String("symbol", ev.Symbol), zap.Stringer("kind", ev.Kind))
		case domain.FeedError:
			l.Warn("feed error", zap.String("symbol", ev.Symbol), zap.String("reason", ev.Reason))
		}
	}
}

// clearOnSignal drops the cached snapshot on SIGUSR1, used as the sign-out hook.
func clearOnSignal(ctx context.Context, engine *aggregator.Engine, l *zap.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1)
	defer signal.Stop(sig)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			engine.ClearCache()
			l.Info("snapshot cache cleared on signal")
		}
	}
}
