// Package feed gathers one price snapshot per cycle from every configured
// exchange client.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"arbscout/internal/exchange"
	"arbscout/internal/metrics"
	"arbscout/internal/model"
)

const (
	defaultConcurrency  = 8
	breakerTripFailures = 5
	breakerOpenTimeout  = 30 * time.Second
)

// Collector fetches every (exchange, symbol) ticker concurrently. Each
// exchange sits behind its own circuit breaker so a dead venue stops being
// polled for a while instead of burning the cycle's timeout.
type Collector struct {
	logger      *slog.Logger
	clients     []exchange.ExchangeClient
	symbols     []model.Symbol
	timeout     time.Duration
	concurrency int
	metrics     *metrics.Registry
	breakers    map[string]*gobreaker.CircuitBreaker
}

// Option configures a Collector.
type Option func(*Collector)

// WithMetrics counts failed fetches per exchange.
func WithMetrics(m *metrics.Registry) Option {
	return func(c *Collector) { c.metrics = m }
}

// WithConcurrency bounds the number of in-flight fetches.
func WithConcurrency(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// NewCollector creates a Collector. A zero timeout leaves the cycle bounded
// only by the caller's context.
func NewCollector(logger *slog.Logger, clients []exchange.ExchangeClient, symbols []model.Symbol, timeout time.Duration, opts ...Option) *Collector {
	c := &Collector{
		logger:      logger,
		clients:     clients,
		symbols:     symbols,
		timeout:     timeout,
		concurrency: defaultConcurrency,
		breakers:    make(map[string]*gobreaker.CircuitBreaker, len(clients)),
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, client := range clients {
		c.breakers[client.GetName()] = c.newBreaker(client.GetName())
	}
	return c
}

func (c *Collector) newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripFailures
		},
		// A streamer without data yet or a cancelled cycle says nothing
		// about the health of the venue.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, exchange.ErrNoTicker) ||
				errors.Is(err, exchange.ErrStaleTicker) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("Collector: circuit breaker state changed", "exchange", name, "from", from.String(), "to", to.String())
		},
	})
}

// Collect returns every ticker fetched within the timeout, sorted by
// exchange then symbol. Failed fetches are logged and left out.
func (c *Collector) Collect(ctx context.Context) []model.PriceTick {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var (
		mu    sync.Mutex
		ticks = make([]model.PriceTick, 0, len(c.clients)*len(c.symbols))
	)
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, client := range c.clients {
		client := client
		breaker := c.breakers[client.GetName()]
		for _, symbol := range c.symbols {
			symbol := symbol
			g.Go(func() error {
				tick, err := c.fetch(ctx, breaker, client, symbol)
				if err != nil {
					c.logFetchError(client.GetName(), symbol, err)
					return nil
				}
				mu.Lock()
				ticks = append(ticks, tick)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	sort.Slice(ticks, func(i, j int) bool {
		if ticks[i].Exchange != ticks[j].Exchange {
			return ticks[i].Exchange < ticks[j].Exchange
		}
		return ticks[i].Symbol.String() < ticks[j].Symbol.String()
	})
	return ticks
}

func (c *Collector) fetch(ctx context.Context, breaker *gobreaker.CircuitBreaker, client exchange.ExchangeClient, symbol model.Symbol) (model.PriceTick, error) {
	res, err := breaker.Execute(func() (any, error) {
		return client.FetchTicker(ctx, symbol)
	})
	if err != nil {
		return model.PriceTick{}, err
	}
	tick := res.(model.PriceTick)
	tick.Exchange = model.NormalizeExchange(client.GetName())
	return tick, nil
}

func (c *Collector) logFetchError(name string, symbol model.Symbol, err error) {
	c.metrics.FetchFailed(name)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.logger.Debug("Collector: exchange skipped, circuit open", "exchange", name, "symbol", symbol.String())
	case errors.Is(err, exchange.ErrNoTicker), errors.Is(err, exchange.ErrStaleTicker):
		c.logger.Warn("Collector: no fresh price", "exchange", name, "symbol", symbol.String(), "error", err)
	default:
		c.logger.Error("Collector: error fetching price", "exchange", name, "symbol", symbol.String(), "error", err)
	}
}

// HasStreamers reports whether any client needs Stream running to serve
// prices.
func (c *Collector) HasStreamers() bool {
	for _, client := range c.clients {
		if _, ok := client.(exchange.Streamer); ok {
			return true
		}
	}
	return false
}

// Stream starts the websocket feeds of all streaming clients and blocks until
// ctx is done or one of them fails.
func (c *Collector) Stream(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, client := range c.clients {
		streamer, ok := client.(exchange.Streamer)
		if !ok {
			continue
		}
		c.logger.Info("Collector: starting price stream", "exchange", client.GetName())
		g.Go(func() error {
			return streamer.StartStream(ctx, c.symbols)
		})
	}
	return g.Wait()
}
