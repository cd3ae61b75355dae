package exchange

import (
	"fmt"
	"sync"
	"time"

	"arbscout/internal/model"
)

// TickerBook keeps the latest streamed price per symbol.
type TickerBook struct {
	mu    sync.RWMutex
	ticks map[model.Symbol]model.PriceTick
	now   func() time.Time
}

func NewTickerBook() *TickerBook {
	return &TickerBook{
		ticks: make(map[model.Symbol]model.PriceTick),
		now:   time.Now,
	}
}

// Update stores tick if it is not older than the one already held.
func (b *TickerBook) Update(tick model.PriceTick) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.ticks[tick.Symbol]; ok && tick.Time.Before(cur.Time) {
		return
	}
	b.ticks[tick.Symbol] = tick
}

// Latest returns the newest tick for symbol. A maxAge of zero disables the
// staleness check.
func (b *TickerBook) Latest(symbol model.Symbol, maxAge time.Duration) (model.PriceTick, error) {
	b.mu.RLock()
	tick, ok := b.ticks[symbol]
	b.mu.RUnlock()
	if !ok {
		return model.PriceTick{}, fmt.Errorf("%w: %s", ErrNoTicker, symbol)
	}
	if age := b.now().Sub(tick.Time); maxAge > 0 && age > maxAge {
		return model.PriceTick{}, fmt.Errorf("%w: %s is %s old", ErrStaleTicker, symbol, age.Round(time.Millisecond))
	}
	return tick, nil
}
