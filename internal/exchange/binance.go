package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"arbscout/internal/model"
)

const binanceBaseURL = "https://api.binance.com"

// BinanceClient implements the ExchangeClient interface for Binance spot
// tickers.
type BinanceClient struct {
	name   string
	logger *slog.Logger
	rest   *restClient
}

// NewBinanceClient creates a new BinanceClient. name is the account name the
// client reports; an empty baseURL selects the public API. The ticker
// endpoint only takes the API key, so creds.Secret is not used.
func NewBinanceClient(name string, logger *slog.Logger, baseURL string, creds Credentials, requestsPerSecond float64) *BinanceClient {
	if baseURL == "" {
		baseURL = binanceBaseURL
	}
	rest := newRESTClient(name, baseURL, requestsPerSecond)
	if creds.Key != "" {
		rest.headers["X-MBX-APIKEY"] = creds.Key
	}
	return &BinanceClient{name: name, logger: logger, rest: rest}
}

func (b *BinanceClient) GetName() string {
	return b.name
}

// FetchTicker returns the last traded price of symbol.
func (b *BinanceClient) FetchTicker(ctx context.Context, symbol model.Symbol) (model.PriceTick, error) {
	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	q := url.Values{"symbol": {symbol.Base + symbol.Quote}}
	if err := b.rest.getJSON(ctx, "/api/v3/ticker/price", q, &resp); err != nil {
		return model.PriceTick{}, err
	}
	if resp.Price == "" {
		return model.PriceTick{}, fmt.Errorf("%s: %w: %s", b.name, ErrNoTicker, symbol)
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return model.PriceTick{}, fmt.Errorf("%s: parse price %q: %w", b.name, resp.Price, err)
	}

	b.logger.Debug("BinanceClient: fetched ticker", "exchange", b.name, "symbol", symbol.String(), "price", price)
	return model.PriceTick{Exchange: b.name, Symbol: symbol, Price: price, Time: time.Now()}, nil
}
