package arbitrage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"arbscout/internal/database"
	"arbscout/internal/metrics"
	"arbscout/internal/model"
)

// PriceSource supplies the prices of one cycle. Individual fetch failures are
// the source's concern and only shrink the returned slice.
type PriceSource interface {
	Collect(ctx context.Context) []model.PriceTick
}

// Reporter delivers the opportunities of one cycle to an operator.
type Reporter interface {
	Report(ctx context.Context, opps []model.Opportunity) error
}

// PricePublisher mirrors fetched prices to an external cache.
type PricePublisher interface {
	PublishPrices(ctx context.Context, ticks []model.PriceTick) error
}

// CycleResult is what one RunCycle call produced.
type CycleResult struct {
	CycleID  string
	Snapshot *Snapshot
	Scan     ScanResult
	Summary  model.ScanSummary
}

// Option configures optional collaborators of the engine.
type Option func(*ArbitrageEngine)

// WithRepository records price ticks and cycle summaries.
func WithRepository(repo database.Repository) Option {
	return func(e *ArbitrageEngine) { e.repo = repo }
}

// WithPricePublisher mirrors each cycle's prices.
func WithPricePublisher(p PricePublisher) Option {
	return func(e *ArbitrageEngine) { e.publisher = p }
}

// WithMetrics records cycle metrics.
func WithMetrics(m *metrics.Registry) Option {
	return func(e *ArbitrageEngine) { e.metrics = m }
}

// ArbitrageEngine drives scan cycles: it fetches prices, scans them and hands
// the result to the reporter. It keeps nothing from one cycle to the next.
type ArbitrageEngine struct {
	logger    *slog.Logger
	scanner   *Scanner
	source    PriceSource
	reporter  Reporter
	repo      database.Repository
	publisher PricePublisher
	metrics   *metrics.Registry

	running atomic.Bool
}

// NewArbitrageEngine creates a new instance of the ArbitrageEngine. reporter
// may be nil, in which case opportunities are only logged.
func NewArbitrageEngine(logger *slog.Logger, scanner *Scanner, source PriceSource, reporter Reporter, opts ...Option) *ArbitrageEngine {
	e := &ArbitrageEngine{
		logger:   logger,
		scanner:  scanner,
		source:   source,
		reporter: reporter,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunCycle performs a single fetch, scan and report pass. The only error it
// returns is a fee configuration defect from the scanner; collaborator
// failures are logged and the cycle continues with what it has.
func (e *ArbitrageEngine) RunCycle(ctx context.Context) (*CycleResult, error) {
	start := time.Now()
	cycleID := uuid.NewString()
	logger := e.logger.With("cycle", cycleID)

	snap := NewSnapshot(e.source.Collect(ctx))
	ticks := snap.Ticks()
	logger.Info("Fetched prices", "prices", snap.Len(), "dropped", snap.Dropped(), "ticks", formatTicks(ticks))
	e.metrics.SetPricesFetched(snap.Len())

	if e.publisher != nil {
		if err := e.publisher.PublishPrices(ctx, ticks); err != nil {
			logger.Warn("Failed to publish prices", "error", err)
		}
	}
	if e.repo != nil {
		if err := e.repo.LogPriceTicks(ctx, ticks); err != nil {
			logger.Error("Failed to log price ticks", "error", err)
		}
	}

	scan, err := e.scanner.Scan(snap)
	if err != nil {
		e.metrics.ObserveCycle(time.Since(start), "config_error")
		return nil, err
	}

	for _, s := range scan.Skipped {
		reason := skipReason(s.Reason)
		e.metrics.PairSkipped(reason)
		logger.Debug("Skipped pair",
			"symbol", s.Symbol.String(),
			"buyExchange", s.BuyExchange,
			"sellExchange", s.SellExchange,
			"reason", reason,
			"error", s.Reason,
		)
	}

	for _, opp := range scan.Opportunities {
		e.metrics.OpportunityFound(opp.Symbol.String())
		logger.Info("Profitable arbitrage opportunity found",
			"symbol", opp.Symbol.String(),
			"buyExchange", opp.BuyExchange,
			"sellExchange", opp.SellExchange,
			"buyPrice", opp.BuyPrice,
			"sellPrice", opp.SellPrice,
			"netProfit", opp.NetProfit,
			"netProfitPct", opp.NetProfitPct,
		)
	}

	summary := model.ScanSummary{
		CycleID:        cycleID,
		StartedAt:      start,
		PricesFetched:  snap.Len(),
		PairsEvaluated: scan.Evaluated,
		PairsSkipped:   len(scan.Skipped),
		Opportunities:  len(scan.Opportunities),
	}
	if len(scan.Opportunities) > 0 {
		best := scan.Opportunities[0]
		summary.BestSymbol = best.Symbol.String()
		summary.BestNetProfit = best.NetProfit
		e.metrics.SetBestNetProfit(best.NetProfit)
	} else {
		e.metrics.SetBestNetProfit(0)
	}

	if len(scan.Opportunities) > 0 && e.reporter != nil {
		if err := e.reporter.Report(ctx, scan.Opportunities); err != nil {
			summary.NotificationError = err.Error()
			e.metrics.NotifyFailed()
			logger.Error("Failed to report opportunities", "error", err)
		}
	}

	summary.Duration = time.Since(start)
	if e.repo != nil {
		if err := e.repo.LogScanSummary(ctx, summary); err != nil {
			logger.Error("Failed to log scan summary", "error", err)
		}
	}

	e.metrics.ObserveCycle(summary.Duration, "ok")
	logger.Info("Scan cycle complete",
		"evaluated", summary.PairsEvaluated,
		"skipped", summary.PairsSkipped,
		"opportunities", summary.Opportunities,
		"duration", summary.Duration,
	)

	return &CycleResult{CycleID: cycleID, Snapshot: snap, Scan: scan, Summary: summary}, nil
}

// Run starts a cycle immediately and then once per interval until ctx is done.
// A tick that fires while the previous cycle is still running is skipped. Run
// returns nil on cancellation and the scanner's error on a configuration
// defect.
func (e *ArbitrageEngine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("arbitrage: interval must be positive")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	errCh := make(chan error, 1)
	launch := func() {
		if ctx.Err() != nil {
			return
		}
		if !e.running.CompareAndSwap(false, true) {
			e.metrics.CycleSkipped()
			e.logger.Warn("Previous scan cycle still running, skipping tick")
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer e.running.Store(false)
			if _, err := e.RunCycle(ctx); err != nil {
				select {
				case errCh <- err:
				default:
				}
			}
		}()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	launch()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("ArbitrageEngine: context cancelled, shutting down")
			return nil
		case err := <-errCh:
			e.logger.Error("ArbitrageEngine: fatal configuration error", "error", err)
			return err
		case <-ticker.C:
			launch()
		}
	}
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingPrice):
		return "missing_price"
	case errors.Is(err, ErrInsufficientTradeSize):
		return "insufficient_trade_size"
	default:
		return "other"
	}
}

func formatTicks(ticks []model.PriceTick) map[string]float64 {
	out := make(map[string]float64, len(ticks))
	for _, t := range ticks {
		out[t.Exchange+" - "+t.Symbol.String()] = t.Price
	}
	return out
}
