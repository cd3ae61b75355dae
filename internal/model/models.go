package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidSymbol is returned when a trading pair cannot be parsed.
var ErrInvalidSymbol = errors.New("invalid symbol")

// Symbol is a trading pair such as XRP/USDT. Base is the asset that moves
// between exchanges, Quote is the asset prices and profits are expressed in.
type Symbol struct {
	Base  string
	Quote string
}

// ParseSymbol parses "BASE/QUOTE". Dash and underscore separators are
// accepted as well. Both assets are upper-cased.
func ParseSymbol(s string) (Symbol, error) {
	s = strings.TrimSpace(s)
	sep := strings.IndexAny(s, "/-_")
	if sep <= 0 || sep == len(s)-1 {
		return Symbol{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, s)
	}
	base, quote := NormalizeAsset(s[:sep]), NormalizeAsset(s[sep+1:])
	if base == "" || quote == "" || strings.ContainsAny(quote, "/-_") {
		return Symbol{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, s)
	}
	return Symbol{Base: base, Quote: quote}, nil
}

// MustParseSymbol is ParseSymbol for literals known to be valid.
func MustParseSymbol(s string) Symbol {
	sym, err := ParseSymbol(s)
	if err != nil {
		panic(err)
	}
	return sym
}

func (s Symbol) String() string {
	return s.Base + "/" + s.Quote
}

// NormalizeAsset upper-cases an asset code.
func NormalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// NormalizeExchange lower-cases an exchange identifier.
func NormalizeExchange(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// PriceTick is a single last-traded price reading from an exchange.
type PriceTick struct {
	Exchange string
	Symbol   Symbol
	Price    float64
	Time     time.Time
}

// Opportunity is a (symbol, buy, sell) combination whose simulated net profit
// met the configured threshold during one scan.
type Opportunity struct {
	Symbol       Symbol
	BuyExchange  string
	SellExchange string
	BuyPrice     float64
	SellPrice    float64
	NetProfit    float64
	NetProfitPct float64
}

// ScanSummary is the per-cycle record written to the database. It carries
// counts and the best result of the cycle, never the opportunities themselves.
type ScanSummary struct {
	ID                int64         `db:"id"`
	CycleID           string        `db:"cycle_id"`
	StartedAt         time.Time     `db:"started_at"`
	Duration          time.Duration `db:"-"`
	PricesFetched     int           `db:"prices_fetched"`
	PairsEvaluated    int           `db:"pairs_evaluated"`
	PairsSkipped      int           `db:"pairs_skipped"`
	Opportunities     int           `db:"opportunities"`
	BestSymbol        string        `db:"best_symbol"`
	BestNetProfit     float64       `db:"best_net_profit"`
	NotificationError string        `db:"notification_error"`
}
