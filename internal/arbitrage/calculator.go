package arbitrage

import (
	"errors"
	"fmt"
	"math"

	"arbscout/internal/fees"
	"arbscout/internal/model"
)

var (
	// ErrMissingPrice means the snapshot has no usable quote for one leg.
	ErrMissingPrice = errors.New("missing price")
	// ErrInsufficientTradeSize means the withdrawal fee eats every token
	// bought on the buy leg.
	ErrInsufficientTradeSize = errors.New("trade size does not cover withdrawal fee")
	// ErrSameExchange means both legs name the same exchange.
	ErrSameExchange = errors.New("buy and sell exchange are the same")
)

// FeeSchedule is the fee lookup the calculator depends on. *fees.Model
// implements it.
type FeeSchedule interface {
	TradingFee(exchange string) (float64, error)
	WithdrawalFee(asset, exchange string) float64
}

// ProfitResult is the breakdown of one simulated buy-withdraw-sell round.
type ProfitResult struct {
	BuyPrice              float64
	SellPrice             float64
	TokensBought          float64
	TokensAfterTradingFee float64
	TokensAfterWithdrawal float64
	Proceeds              float64
	NetProfit             float64
	NetProfitPct          float64
}

// ProfitCalculator simulates spending a fixed quote amount on one exchange and
// selling the withdrawn base asset on another.
type ProfitCalculator struct {
	fees        FeeSchedule
	tradeAmount float64
}

// NewProfitCalculator creates a calculator for trades of tradeAmount quote
// units.
func NewProfitCalculator(schedule FeeSchedule, tradeAmount float64) (*ProfitCalculator, error) {
	if schedule == nil {
		return nil, fmt.Errorf("%w: nil fee schedule", fees.ErrConfig)
	}
	if !validPrice(tradeAmount) {
		return nil, fmt.Errorf("%w: trade amount must be positive, got %v", fees.ErrConfig, tradeAmount)
	}
	return &ProfitCalculator{fees: schedule, tradeAmount: tradeAmount}, nil
}

// TradeAmount returns the simulated trade size in quote units.
func (c *ProfitCalculator) TradeAmount() float64 {
	return c.tradeAmount
}

// Calculate returns the net profit of buying symbol on buyExchange and selling
// it on sellExchange at the snapshot's prices.
//
// Fees are applied in the order they are incurred: the buy-side trading fee
// reduces the tokens received, the withdrawal fee is a flat token deduction on
// the buy exchange, and the sell-side trading fee reduces the quote proceeds.
func (c *ProfitCalculator) Calculate(snap *Snapshot, symbol model.Symbol, buyExchange, sellExchange string) (ProfitResult, error) {
	var r ProfitResult

	if model.NormalizeExchange(buyExchange) == model.NormalizeExchange(sellExchange) {
		return r, ErrSameExchange
	}

	// Fee lookups come first so a configuration gap fails every cycle, not
	// only those where both prices happen to be present.
	buyFee, err := c.fees.TradingFee(buyExchange)
	if err != nil {
		return r, err
	}
	sellFee, err := c.fees.TradingFee(sellExchange)
	if err != nil {
		return r, err
	}

	buyPrice, ok := snap.Price(buyExchange, symbol)
	if !ok || !validPrice(buyPrice) {
		return r, fmt.Errorf("%w: %s on %s", ErrMissingPrice, symbol, buyExchange)
	}
	sellPrice, ok := snap.Price(sellExchange, symbol)
	if !ok || !validPrice(sellPrice) {
		return r, fmt.Errorf("%w: %s on %s", ErrMissingPrice, symbol, sellExchange)
	}
	r.BuyPrice, r.SellPrice = buyPrice, sellPrice

	r.TokensBought = c.tradeAmount / buyPrice
	r.TokensAfterTradingFee = r.TokensBought * (1 - buyFee)
	r.TokensAfterWithdrawal = r.TokensAfterTradingFee - c.fees.WithdrawalFee(symbol.Base, buyExchange)
	if r.TokensAfterWithdrawal <= 0 {
		return r, fmt.Errorf("%w: %.8f %s left after withdrawal from %s", ErrInsufficientTradeSize, r.TokensAfterWithdrawal, symbol.Base, buyExchange)
	}

	r.Proceeds = r.TokensAfterWithdrawal * sellPrice * (1 - sellFee)
	r.NetProfit = r.Proceeds - c.tradeAmount
	r.NetProfitPct = r.NetProfit / c.tradeAmount * 100
	if math.IsNaN(r.NetProfit) || math.IsInf(r.NetProfit, 0) {
		return r, fmt.Errorf("%w: non-finite profit for %s", ErrMissingPrice, symbol)
	}
	return r, nil
}
