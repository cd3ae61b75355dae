package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"arbscout/internal/model"
)

const (
	kucoinBaseURL     = "https://api.kucoin.com"
	kucoinSuccessCode = "200000"
)

// KucoinClient implements the ExchangeClient interface for KuCoin spot
// tickers.
type KucoinClient struct {
	name   string
	logger *slog.Logger
	rest   *restClient
	creds  Credentials
}

// NewKucoinClient creates a new KucoinClient. With a key and secret every
// request is signed, which moves it onto the account's rate limit.
func NewKucoinClient(name string, logger *slog.Logger, baseURL string, creds Credentials, requestsPerSecond float64) *KucoinClient {
	if baseURL == "" {
		baseURL = kucoinBaseURL
	}
	k := &KucoinClient{name: name, logger: logger, rest: newRESTClient(name, baseURL, requestsPerSecond), creds: creds}
	if creds.Key != "" && creds.Secret != "" {
		k.rest.sign = k.sign
	}
	return k
}

// sign adds the version 2 API key headers. The signature covers
// timestamp + method + path with query; the passphrase is itself signed.
func (k *KucoinClient) sign(req *http.Request, pathAndQuery string) {
	ts := strconv.FormatInt(k.rest.now().UnixMilli(), 10)
	req.Header.Set("KC-API-KEY", k.creds.Key)
	req.Header.Set("KC-API-SIGN", hmacSHA256Base64(k.creds.Secret, ts+req.Method+pathAndQuery))
	req.Header.Set("KC-API-TIMESTAMP", ts)
	req.Header.Set("KC-API-PASSPHRASE", hmacSHA256Base64(k.creds.Secret, k.creds.Passphrase))
	req.Header.Set("KC-API-KEY-VERSION", "2")
}

func (k *KucoinClient) GetName() string {
	return k.name
}

// FetchTicker returns the last traded price of symbol from the level 1
// order book endpoint.
func (k *KucoinClient) FetchTicker(ctx context.Context, symbol model.Symbol) (model.PriceTick, error) {
	var resp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data *struct {
			Time  int64  `json:"time"`
			Price string `json:"price"`
		} `json:"data"`
	}
	q := url.Values{"symbol": {symbol.Base + "-" + symbol.Quote}}
	if err := k.rest.getJSON(ctx, "/api/v1/market/orderbook/level1", q, &resp); err != nil {
		return model.PriceTick{}, err
	}
	if resp.Code != kucoinSuccessCode {
		return model.PriceTick{}, fmt.Errorf("%s: api error %s: %s", k.name, resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.Price == "" {
		return model.PriceTick{}, fmt.Errorf("%s: %w: %s", k.name, ErrNoTicker, symbol)
	}
	price, err := strconv.ParseFloat(resp.Data.Price, 64)
	if err != nil {
		return model.PriceTick{}, fmt.Errorf("%s: parse price %q: %w", k.name, resp.Data.Price, err)
	}

	at := time.Now()
	if resp.Data.Time > 0 {
		at = time.UnixMilli(resp.Data.Time)
	}
	k.logger.Debug("KucoinClient: fetched ticker", "exchange", k.name, "symbol", symbol.String(), "price", price)
	return model.PriceTick{Exchange: k.name, Symbol: symbol, Price: price, Time: at}, nil
}
