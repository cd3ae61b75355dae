package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"arbscout/internal/model"
)

const (
	krakenWSURL      = "wss://ws.kraken.com"
	krakenMaxBackoff = 16 * time.Second
)

// Kraken uses legacy codes for a few assets on its websocket API.
var krakenAssetAliases = map[string]string{
	"BTC":  "XBT",
	"DOGE": "XDG",
}

// KrakenClient implements the ExchangeClient interface for Kraken. Prices
// arrive over the public ticker websocket and FetchTicker serves the latest
// one from memory.
type KrakenClient struct {
	name   string
	logger *slog.Logger
	wsURL  string
	maxAge time.Duration
	book   *TickerBook
}

// NewKrakenClient creates a new KrakenClient. Streamed prices older than
// maxAge are reported as stale.
func NewKrakenClient(name string, logger *slog.Logger, wsURL string, maxAge time.Duration) *KrakenClient {
	if wsURL == "" {
		wsURL = krakenWSURL
	}
	return &KrakenClient{
		name:   name,
		logger: logger,
		wsURL:  wsURL,
		maxAge: maxAge,
		book:   NewTickerBook(),
	}
}

func (k *KrakenClient) GetName() string {
	return k.name
}

// FetchTicker returns the most recent streamed price of symbol.
func (k *KrakenClient) FetchTicker(_ context.Context, symbol model.Symbol) (model.PriceTick, error) {
	tick, err := k.book.Latest(symbol, k.maxAge)
	if err != nil {
		return model.PriceTick{}, fmt.Errorf("%s: %w", k.name, err)
	}
	return tick, nil
}

// StartStream connects to the Kraken WebSocket API and keeps the ticker book
// updated for symbols, reconnecting with exponential backoff.
func (k *KrakenClient) StartStream(ctx context.Context, symbols []model.Symbol) error {
	pairs := make(map[string]model.Symbol, len(symbols))
	names := make([]string, 0, len(symbols))
	for _, s := range symbols {
		pair := krakenPair(s)
		pairs[pair] = s
		names = append(names, pair)
	}

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			k.logger.Info("KrakenClient: context cancelled, shutting down")
			return nil
		}

		k.logger.Info("KrakenClient: connecting to WebSocket", "url", k.wsURL, "backoff", backoff)
		connected, err := k.stream(ctx, names, pairs)
		if ctx.Err() != nil {
			k.logger.Info("KrakenClient: context cancelled, shutting down")
			return nil
		}
		k.logger.Error("KrakenClient: stream ended", "error", err)

		// Reset backoff on a connection that got as far as subscribing
		if connected {
			backoff = time.Second
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
			backoff *= 2
			if backoff > krakenMaxBackoff {
				backoff = krakenMaxBackoff
			}
		}
	}
}

// stream runs one connection until it fails. connected reports whether the
// subscription was sent.
func (k *KrakenClient) stream(ctx context.Context, names []string, pairs map[string]model.Symbol) (connected bool, err error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, k.wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer c.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()

	subscription := map[string]any{
		"event": "subscribe",
		"pair":  names,
		"subscription": map[string]string{
			"name": "ticker",
		},
	}
	if err := c.WriteJSON(subscription); err != nil {
		return false, fmt.Errorf("send subscription: %w", err)
	}
	k.logger.Info("KrakenClient: subscription sent successfully", "pairs", names)

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read message: %w", err)
		}

		update, err := parseKrakenMessage(message)
		if err != nil {
			if errors.Is(err, errKrakenSubscription) {
				return true, err
			}
			k.logger.Warn("KrakenClient: failed to parse message", "error", err)
			continue
		}
		if update == nil {
			continue
		}
		symbol, ok := pairs[update.pair]
		if !ok {
			continue
		}
		tick := model.PriceTick{Exchange: k.name, Symbol: symbol, Price: update.last, Time: time.Now()}
		k.book.Update(tick)
		k.logger.Debug("KrakenClient: price update", "symbol", symbol.String(), "price", update.last)
	}
}

var errKrakenSubscription = errors.New("kraken subscription rejected")

type krakenTicker struct {
	pair string
	last float64
}

// parseKrakenMessage decodes a websocket frame. Event frames (heartbeats,
// status) yield a nil update. Ticker frames have the array form
// [channelID, {"c": [price, volume], ...}, "ticker", pair].
func parseKrakenMessage(message []byte) (*krakenTicker, error) {
	message = bytes.TrimSpace(message)
	if len(message) == 0 {
		return nil, nil
	}

	if message[0] == '{' {
		var event struct {
			Event        string `json:"event"`
			Status       string `json:"status"`
			Pair         string `json:"pair"`
			ErrorMessage string `json:"errorMessage"`
		}
		if err := json.Unmarshal(message, &event); err != nil {
			return nil, err
		}
		if event.Event == "subscriptionStatus" && event.Status == "error" {
			return nil, fmt.Errorf("%w: %s %s", errKrakenSubscription, event.Pair, event.ErrorMessage)
		}
		return nil, nil
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(message, &frame); err != nil {
		return nil, err
	}
	if len(frame) < 4 {
		return nil, fmt.Errorf("short ticker frame of %d elements", len(frame))
	}
	var channel, pair string
	if err := json.Unmarshal(frame[len(frame)-2], &channel); err != nil {
		return nil, fmt.Errorf("channel name: %w", err)
	}
	if channel != "ticker" {
		return nil, nil
	}
	if err := json.Unmarshal(frame[len(frame)-1], &pair); err != nil {
		return nil, fmt.Errorf("pair: %w", err)
	}

	var data struct {
		Close []string `json:"c"`
	}
	if err := json.Unmarshal(frame[1], &data); err != nil {
		return nil, fmt.Errorf("ticker data: %w", err)
	}
	if len(data.Close) == 0 {
		return nil, fmt.Errorf("ticker for %s has no last trade", pair)
	}
	last, err := strconv.ParseFloat(data.Close[0], 64)
	if err != nil {
		return nil, fmt.Errorf("parse last price: %w", err)
	}
	return &krakenTicker{pair: pair, last: last}, nil
}

func krakenPair(s model.Symbol) string {
	base, quote := s.Base, s.Quote
	if alias, ok := krakenAssetAliases[base]; ok {
		base = alias
	}
	if alias, ok := krakenAssetAliases[quote]; ok {
		quote = alias
	}
	return strings.ToUpper(base + "/" + quote)
}
