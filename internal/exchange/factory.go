package exchange

import (
	"fmt"
	"log/slog"
	"strings"

	"arbscout/internal/config"
)

// NewClient creates a new exchange client based on the given name and configuration.
func NewClient(name string, logger *slog.Logger, cfg config.ExchangeConfig) (ExchangeClient, error) {
	kind := strings.ToLower(cfg.Kind)
	if kind == "" {
		kind = strings.ToLower(name)
	}
	creds := Credentials{Key: cfg.APIKey, Secret: cfg.APISecret, Passphrase: cfg.Passphrase}
	switch kind {
	case "kraken":
		return NewKrakenClient(name, logger, cfg.WSURL, cfg.MaxStaleness), nil
	case "binance":
		return NewBinanceClient(name, logger, cfg.BaseURL, creds, cfg.RequestsPerSecond), nil
	case "kucoin":
		return NewKucoinClient(name, logger, cfg.BaseURL, creds, cfg.RequestsPerSecond), nil
	default:
		return nil, fmt.Errorf("unknown exchange: %s", kind)
	}
}
