package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbscout/internal/config"
	"arbscout/internal/fees"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func binanceServer(t *testing.T, price string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"symbol":%q,"price":%q}`, r.URL.Query().Get("symbol"), price)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func kucoinServer(t *testing.T, price string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"code":"200000","data":{"price":%q}}`, price)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(binanceURL, kucoinURL string) config.Config {
	return config.Config{
		Scanner: config.ScannerConfig{
			Symbols:              []string{"XRP/USDT"},
			TradeAmount:          1000,
			ProfitThreshold:      1,
			Interval:             time.Second,
			FetchTimeout:         2 * time.Second,
			StrictWithdrawalFees: true,
		},
		Exchanges: map[string]config.ExchangeConfig{
			"binance": {
				Enabled:        true,
				TradingFee:     0.001,
				WithdrawalFees: map[string]float64{"XRP": 0.25},
				BaseURL:        binanceURL,
			},
			"kucoin": {
				Enabled:        true,
				TradingFee:     0.001,
				WithdrawalFees: map[string]float64{"XRP": 0.25},
				BaseURL:        kucoinURL,
			},
		},
	}
}

func TestApp_RunOnceFindsOpportunity(t *testing.T) {
	cfg := testConfig(binanceServer(t, "0.5000").URL, kucoinServer(t, "0.5200").URL)

	a, err := New(context.Background(), cfg, testLogger, Options{})
	require.NoError(t, err)
	defer a.Close()

	res, err := a.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Summary.PricesFetched)
	assert.Equal(t, 2, res.Summary.PairsEvaluated)
	require.Len(t, res.Scan.Opportunities, 1)
	opp := res.Scan.Opportunities[0]
	assert.Equal(t, "binance", opp.BuyExchange)
	assert.Equal(t, "kucoin", opp.SellExchange)

	// 1000/0.5 = 2000 XRP, less 0.1% and 0.25 XRP, sold at 0.52 less 0.1%.
	want := 1997.75*0.52*0.999 - 1000
	assert.InDelta(t, want, opp.NetProfit, 1e-6)
}

func TestApp_StrictWithdrawalFees(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1", "http://127.0.0.1:1")
	kucoin := cfg.Exchanges["kucoin"]
	kucoin.WithdrawalFees = nil
	cfg.Exchanges["kucoin"] = kucoin

	_, err := New(context.Background(), cfg, testLogger, Options{})
	require.ErrorIs(t, err, fees.ErrConfig)
	assert.Contains(t, err.Error(), "XRP@kucoin")

	cfg.Scanner.StrictWithdrawalFees = false
	a, err := New(context.Background(), cfg, testLogger, Options{})
	require.NoError(t, err)
	a.Close()
}

func TestApp_UnknownExchangeKind(t *testing.T) {
	cfg := testConfig("", "")
	cfg.Exchanges["mtgox"] = config.ExchangeConfig{
		Enabled:        true,
		TradingFee:     0.002,
		WithdrawalFees: map[string]float64{"XRP": 1},
	}

	_, err := New(context.Background(), cfg, testLogger, Options{})
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	cfg := testConfig(binanceServer(t, "0.5").URL, kucoinServer(t, "0.5").URL)
	cfg.Scanner.Interval = 20 * time.Millisecond

	a, err := New(context.Background(), cfg, testLogger, Options{})
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	assert.NoError(t, a.Run(ctx))
}

func TestCacheConfig(t *testing.T) {
	got := cacheConfig(config.RedisConfig{
		Enabled:  true,
		Addr:     "cache:6380",
		Password: "pw",
		DB:       2,
		TLS:      true,
		TTL:      time.Minute,
	})
	assert.Equal(t, "cache:6380", got.Addr)
	assert.Equal(t, "pw", got.Password)
	assert.Equal(t, 2, got.DB)
	assert.True(t, got.TLSEnabled)
	assert.Equal(t, time.Minute, got.TTL)
}
