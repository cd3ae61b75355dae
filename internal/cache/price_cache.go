// Package cache publishes the latest fetched prices to Redis so that other
// tools can read the current view of every exchange without polling them.
package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"arbscout/internal/model"
)

// ErrNotFound is returned when no price is cached for a key.
var ErrNotFound = errors.New("cache: not found")

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	TLSEnabled bool
	// TTL bounds how long a price stays readable after its last refresh.
	TTL time.Duration
}

// PriceCache stores each price as a hash at "price:{exchange}:{symbol}" with
// fields "price" and "ts" (Unix nanoseconds).
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache connects to Redis and pings it.
func NewPriceCache(ctx context.Context, cfg ClientConfig) (*PriceCache, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	return &PriceCache{rdb: rdb, ttl: cfg.TTL}, nil
}

// Close closes the Redis connection.
func (pc *PriceCache) Close() error {
	return pc.rdb.Close()
}

func priceKey(exchange string, symbol model.Symbol) string {
	return "price:" + model.NormalizeExchange(exchange) + ":" + symbol.String()
}

// PublishPrices writes all ticks in a single pipeline.
func (pc *PriceCache) PublishPrices(ctx context.Context, ticks []model.PriceTick) error {
	if len(ticks) == 0 {
		return nil
	}
	pipe := pc.rdb.Pipeline()
	for _, t := range ticks {
		at := t.Time
		if at.IsZero() {
			at = time.Now()
		}
		key := priceKey(t.Exchange, t.Symbol)
		pipe.HSet(ctx, key, map[string]any{
			"price": strconv.FormatFloat(t.Price, 'f', -1, 64),
			"ts":    strconv.FormatInt(at.UnixNano(), 10),
		})
		if pc.ttl > 0 {
			pipe.Expire(ctx, key, pc.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: publish prices: %w", err)
	}
	return nil
}

// GetPrice returns the cached price of symbol on exchange.
func (pc *PriceCache) GetPrice(ctx context.Context, exchange string, symbol model.Symbol) (model.PriceTick, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(exchange, symbol)).Result()
	if err != nil {
		return model.PriceTick{}, fmt.Errorf("cache: get price %s %s: %w", exchange, symbol, err)
	}
	priceStr, ok := vals["price"]
	if !ok {
		return model.PriceTick{}, ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return model.PriceTick{}, fmt.Errorf("cache: parse price %s %s: %w", exchange, symbol, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return model.PriceTick{}, fmt.Errorf("cache: parse ts %s %s: %w", exchange, symbol, err)
	}
	return model.PriceTick{
		Exchange: model.NormalizeExchange(exchange),
		Symbol:   symbol,
		Price:    price,
		Time:     time.Unix(0, tsNano),
	}, nil
}
