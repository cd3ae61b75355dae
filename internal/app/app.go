// Package app wires configuration into a running scanner: exchange clients,
// the price collector, the arbitrage engine and the optional storage, cache,
// metrics and alert collaborators.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"arbscout/internal/arbitrage"
	"arbscout/internal/cache"
	"arbscout/internal/config"
	"arbscout/internal/database"
	"arbscout/internal/exchange"
	"arbscout/internal/feed"
	"arbscout/internal/fees"
	"arbscout/internal/metrics"
	"arbscout/internal/notify"
)

const (
	streamWarmup    = 3 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Options selects optional behaviour of the wired application.
type Options struct {
	// Notify enables the alert channels configured under notify.
	Notify bool
}

// App is the root application object. It owns the wired components and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg       config.Config
	logger    *slog.Logger
	collector *feed.Collector
	engine    *arbitrage.ArbitrageEngine
	metrics   *metrics.Registry
	closers   []func()
}

// New builds every component from cfg. A fee model gap is reported as
// fees.ErrConfig.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
	if err := a.wire(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, opts Options) error {
	feeModel, err := a.cfg.FeeModel()
	if err != nil {
		return err
	}
	if missing := a.cfg.MissingWithdrawalFees(feeModel); len(missing) > 0 {
		if a.cfg.Scanner.StrictWithdrawalFees {
			return fmt.Errorf("%w: missing withdrawal fees for %s", fees.ErrConfig, formatMissing(missing))
		}
		a.logger.Warn("Withdrawal fees missing, assuming zero", "pairs", formatMissing(missing))
	}

	exchanges := a.cfg.EnabledExchanges()
	if disabled := a.cfg.DisabledExchanges(); len(disabled) > 0 {
		a.logger.Info("Exchanges disabled in config, not scanned", "exchanges", disabled)
	}
	symbols := a.cfg.Symbols()
	scanner, err := arbitrage.NewScanner(feeModel, arbitrage.ScannerConfig{
		Symbols:         symbols,
		Exchanges:       exchanges,
		TradeAmount:     a.cfg.Scanner.TradeAmount,
		ProfitThreshold: a.cfg.Scanner.ProfitThreshold,
	})
	if err != nil {
		return err
	}

	if a.cfg.Metrics.Enabled {
		a.metrics = metrics.NewRegistry()
	}

	clients := make([]exchange.ExchangeClient, 0, len(exchanges))
	for _, name := range exchanges {
		exCfg, _ := a.cfg.Exchange(name)
		client, err := exchange.NewClient(name, a.logger, exCfg)
		if err != nil {
			return fmt.Errorf("%w: exchange %s: %v", config.ErrInvalid, name, err)
		}
		clients = append(clients, client)
	}
	a.collector = feed.NewCollector(a.logger, clients, symbols, a.cfg.Scanner.FetchTimeout, feed.WithMetrics(a.metrics))

	var engineOpts []arbitrage.Option
	engineOpts = append(engineOpts, arbitrage.WithMetrics(a.metrics))

	if a.cfg.Database.Enabled {
		repo, err := database.NewPostgresRepository(ctx, a.cfg.Database.ConnString(), a.cfg.Database.MaxConns)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, repo.Close)
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		engineOpts = append(engineOpts, arbitrage.WithRepository(repo))
		a.logger.Info("Database logging enabled", "host", a.cfg.Database.Host, "dbname", a.cfg.Database.DBName)
	}

	if a.cfg.Redis.Enabled {
		pc, err := cache.NewPriceCache(ctx, cacheConfig(a.cfg.Redis))
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = pc.Close() })
		engineOpts = append(engineOpts, arbitrage.WithPricePublisher(pc))
		a.logger.Info("Price cache enabled", "addr", a.cfg.Redis.Addr)
	}

	var reporter arbitrage.Reporter
	if opts.Notify {
		notifier := notify.NewNotifier(a.senders(), a.logger)
		if notifier.Enabled() {
			reporter = notify.NewReporter(notifier)
		} else {
			a.logger.Warn("No notification channel configured, opportunities are only logged")
		}
	}

	a.engine = arbitrage.NewArbitrageEngine(a.logger, scanner, a.collector, reporter, engineOpts...)
	return nil
}

func (a *App) senders() []notify.Sender {
	var senders []notify.Sender
	if a.cfg.Notify.TelegramToken != "" {
		senders = append(senders, notify.NewTelegramSender(a.cfg.Notify.TelegramToken, a.cfg.Notify.TelegramChatID))
	}
	if a.cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(a.cfg.Notify.DiscordWebhookURL))
	}
	return senders
}

// Run streams prices, serves metrics and scans every interval until ctx is
// cancelled or the engine hits a configuration error.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting arbitrage scanner",
		"exchanges", a.cfg.EnabledExchanges(),
		"symbols", a.cfg.Scanner.Symbols,
		"interval", a.cfg.Scanner.Interval,
		"tradeAmount", a.cfg.Scanner.TradeAmount,
		"profitThreshold", a.cfg.Scanner.ProfitThreshold,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.collector.Stream(ctx)
	})
	if a.metrics != nil {
		g.Go(func() error {
			return a.serveMetrics(ctx)
		})
	}
	g.Go(func() error {
		return a.engine.Run(ctx, a.cfg.Scanner.Interval)
	})
	return g.Wait()
}

// RunOnce performs a single scan cycle. Streaming exchanges get a short
// warm-up so their first prices can arrive.
func (a *App) RunOnce(ctx context.Context) (*arbitrage.CycleResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		if err := a.collector.Stream(ctx); err != nil {
			a.logger.Error("Price stream failed", "error", err)
		}
	}()
	defer func() {
		cancel()
		<-streamDone
	}()

	if a.collector.HasStreamers() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(streamWarmup):
		}
	}
	return a.engine.RunCycle(ctx)
}

func (a *App) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Metrics server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func cacheConfig(r config.RedisConfig) cache.ClientConfig {
	return cache.ClientConfig{
		Addr:       r.Addr,
		Password:   r.Password,
		DB:         r.DB,
		TLSEnabled: r.TLS,
		TTL:        r.TTL,
	}
}

func formatMissing(missing []fees.AssetExchange) []string {
	out := make([]string, 0, len(missing))
	for _, m := range missing {
		out = append(out, m.Asset+"@"+m.Exchange)
	}
	return out
}
