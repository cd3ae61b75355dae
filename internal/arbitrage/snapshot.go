package arbitrage

import (
	"math"

	"arbscout/internal/model"
)

type priceKey struct {
	exchange string
	symbol   model.Symbol
}

func newPriceKey(exchange string, symbol model.Symbol) priceKey {
	return priceKey{
		exchange: model.NormalizeExchange(exchange),
		symbol:   model.Symbol{Base: model.NormalizeAsset(symbol.Base), Quote: model.NormalizeAsset(symbol.Quote)},
	}
}

// Snapshot is an immutable set of last prices taken during one scan cycle.
type Snapshot struct {
	prices  map[priceKey]float64
	ticks   []model.PriceTick
	dropped int
}

// NewSnapshot builds a Snapshot from raw ticks. Ticks with a zero, negative or
// non-finite price are dropped so that a glitching exchange reads as "no quote"
// instead of feeding a bad number into profit math. A later tick for the same
// exchange and symbol replaces an earlier one.
func NewSnapshot(ticks []model.PriceTick) *Snapshot {
	s := &Snapshot{prices: make(map[priceKey]float64, len(ticks))}
	for _, t := range ticks {
		if !validPrice(t.Price) {
			s.dropped++
			continue
		}
		s.prices[newPriceKey(t.Exchange, t.Symbol)] = t.Price
		s.ticks = append(s.ticks, t)
	}
	return s
}

// Ticks returns the ticks that carried a usable price, in input order.
func (s *Snapshot) Ticks() []model.PriceTick {
	if s == nil {
		return nil
	}
	out := make([]model.PriceTick, len(s.ticks))
	copy(out, s.ticks)
	return out
}

// Price returns the last price of symbol on exchange, if one was quoted.
func (s *Snapshot) Price(exchange string, symbol model.Symbol) (float64, bool) {
	if s == nil {
		return 0, false
	}
	p, ok := s.prices[newPriceKey(exchange, symbol)]
	return p, ok
}

// Len returns the number of usable prices.
func (s *Snapshot) Len() int {
	return len(s.prices)
}

// Dropped returns the number of ticks rejected for carrying an invalid price.
func (s *Snapshot) Dropped() int {
	return s.dropped
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}
