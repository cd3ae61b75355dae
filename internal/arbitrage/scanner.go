package arbitrage

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"arbscout/internal/fees"
	"arbscout/internal/model"
)

// ScannerConfig is the fixed scan universe and the qualifying threshold.
type ScannerConfig struct {
	Symbols   []model.Symbol
	Exchanges []string
	// TradeAmount is the simulated notional, in quote units.
	TradeAmount float64
	// ProfitThreshold is the minimum absolute net profit, in quote units.
	ProfitThreshold float64
}

// Skip records a combination that produced no result and why.
type Skip struct {
	Symbol       model.Symbol
	BuyExchange  string
	SellExchange string
	Reason       error
}

// ScanResult is everything one scan derived from one snapshot.
type ScanResult struct {
	// Opportunities is sorted by net profit, highest first.
	Opportunities []model.Opportunity
	// Skipped lists combinations with a missing price or a trade too small to
	// cover the withdrawal fee.
	Skipped []Skip
	// Evaluated counts combinations whose profit was computed, whether or not
	// they met the threshold.
	Evaluated int
}

// Scanner compares every symbol across every ordered pair of exchanges. It
// holds no state between scans and does no I/O, so one Scanner may be shared
// by concurrent callers.
type Scanner struct {
	calc      *ProfitCalculator
	symbols   []model.Symbol
	exchanges []string
	threshold float64
}

// NewScanner validates the universe against the fee schedule. Every exchange
// must have a trading fee; a gap is reported as fees.ErrConfig.
func NewScanner(schedule FeeSchedule, cfg ScannerConfig) (*Scanner, error) {
	calc, err := NewProfitCalculator(schedule, cfg.TradeAmount)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(cfg.ProfitThreshold) || math.IsInf(cfg.ProfitThreshold, 0) {
		return nil, fmt.Errorf("%w: invalid profit threshold %v", fees.ErrConfig, cfg.ProfitThreshold)
	}

	s := &Scanner{calc: calc, threshold: cfg.ProfitThreshold}

	seenExchange := make(map[string]bool)
	for _, name := range cfg.Exchanges {
		name = model.NormalizeExchange(name)
		if seenExchange[name] {
			continue
		}
		seenExchange[name] = true
		if _, err := schedule.TradingFee(name); err != nil {
			return nil, err
		}
		s.exchanges = append(s.exchanges, name)
	}
	sort.Strings(s.exchanges)

	seenSymbol := make(map[model.Symbol]bool)
	for _, sym := range cfg.Symbols {
		sym = model.Symbol{Base: model.NormalizeAsset(sym.Base), Quote: model.NormalizeAsset(sym.Quote)}
		if seenSymbol[sym] {
			continue
		}
		seenSymbol[sym] = true
		s.symbols = append(s.symbols, sym)
	}
	return s, nil
}

// Symbols returns the scanned symbols.
func (s *Scanner) Symbols() []model.Symbol {
	return append([]model.Symbol(nil), s.symbols...)
}

// Exchanges returns the scanned exchanges in lexical order.
func (s *Scanner) Exchanges() []string {
	return append([]string(nil), s.exchanges...)
}

// Scan evaluates every (symbol, sell, buy) combination against snap. Missing
// prices and undersized trades only exclude the affected combination; the
// returned error is non-nil only for a fee configuration defect.
func (s *Scanner) Scan(snap *Snapshot) (ScanResult, error) {
	var res ScanResult
	for _, symbol := range s.symbols {
		for _, sell := range s.exchanges {
			for _, buy := range s.exchanges {
				if buy == sell {
					continue
				}
				r, err := s.calc.Calculate(snap, symbol, buy, sell)
				if err != nil {
					if errors.Is(err, ErrMissingPrice) || errors.Is(err, ErrInsufficientTradeSize) {
						res.Skipped = append(res.Skipped, Skip{Symbol: symbol, BuyExchange: buy, SellExchange: sell, Reason: err})
						continue
					}
					return ScanResult{}, err
				}
				res.Evaluated++
				if r.NetProfit < s.threshold {
					continue
				}
				res.Opportunities = append(res.Opportunities, model.Opportunity{
					Symbol:       symbol,
					BuyExchange:  buy,
					SellExchange: sell,
					BuyPrice:     r.BuyPrice,
					SellPrice:    r.SellPrice,
					NetProfit:    r.NetProfit,
					NetProfitPct: r.NetProfitPct,
				})
			}
		}
	}
	SortOpportunities(res.Opportunities)
	return res, nil
}

// SortOpportunities orders by net profit descending, breaking ties by symbol,
// buy exchange and sell exchange.
func SortOpportunities(opps []model.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		a, b := opps[i], opps[j]
		if a.NetProfit != b.NetProfit {
			return a.NetProfit > b.NetProfit
		}
		if as, bs := a.Symbol.String(), b.Symbol.String(); as != bs {
			return as < bs
		}
		if a.BuyExchange != b.BuyExchange {
			return a.BuyExchange < b.BuyExchange
		}
		return a.SellExchange < b.SellExchange
	})
}
