package arbitrage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"arbscout/internal/model"
)

func TestNewSnapshot(t *testing.T) {
	doge := model.MustParseSymbol("DOGE/USDT")
	snap := NewSnapshot([]model.PriceTick{
		{Exchange: "Binance", Symbol: xrpUSDT, Price: 0.5},
		{Exchange: "kucoin", Symbol: xrpUSDT, Price: 0},
		{Exchange: "kraken", Symbol: xrpUSDT, Price: -1},
		{Exchange: "okx", Symbol: xrpUSDT, Price: math.NaN()},
		{Exchange: "bybit", Symbol: xrpUSDT, Price: math.Inf(1)},
		{Exchange: "binance", Symbol: model.Symbol{Base: "doge", Quote: "usdt"}, Price: 0.1},
		{Exchange: "binance", Symbol: doge, Price: 0.12},
	})

	assert.Equal(t, 2, snap.Len())
	assert.Equal(t, 4, snap.Dropped())

	p, ok := snap.Price("BINANCE", xrpUSDT)
	assert.True(t, ok)
	assert.Equal(t, 0.5, p)

	p, ok = snap.Price("binance", doge)
	assert.True(t, ok)
	assert.Equal(t, 0.12, p, "later tick wins")

	for _, ex := range []string{"kucoin", "kraken", "okx", "bybit", "nowhere"} {
		_, ok := snap.Price(ex, xrpUSDT)
		assert.False(t, ok, ex)
	}
}

func TestSnapshot_TicksKeepsOnlyUsablePrices(t *testing.T) {
	good := model.PriceTick{Exchange: "alpha", Symbol: xrpUSDT, Price: 0.5}
	snap := NewSnapshot([]model.PriceTick{
		{Exchange: "beta", Symbol: xrpUSDT, Price: math.NaN()},
		good,
		{Exchange: "gamma", Symbol: xrpUSDT, Price: 0},
	})

	ticks := snap.Ticks()
	assert.Equal(t, []model.PriceTick{good}, ticks)

	ticks[0].Price = 99
	p, _ := snap.Price("alpha", xrpUSDT)
	assert.Equal(t, 0.5, p)
	assert.Equal(t, 0.5, snap.Ticks()[0].Price, "Ticks returns a copy")

	var empty *Snapshot
	assert.Nil(t, empty.Ticks())
}
