package exchange

import (
	"context"
	"errors"

	"arbscout/internal/model"
)

var (
	// ErrNoTicker is returned when an exchange has no price for a symbol.
	ErrNoTicker = errors.New("no ticker available")
	// ErrStaleTicker is returned when the latest streamed price is too old.
	ErrStaleTicker = errors.New("ticker is stale")
)

// ExchangeClient defines the standard interface for all exchange clients.
type ExchangeClient interface {
	GetName() string
	FetchTicker(ctx context.Context, symbol model.Symbol) (model.PriceTick, error)
}

// Streamer is implemented by clients that keep prices fresh over a long-lived
// connection. StartStream blocks until ctx is done.
type Streamer interface {
	StartStream(ctx context.Context, symbols []model.Symbol) error
}
