package database

import (
	"context"

	"arbscout/internal/model"
)

// Repository defines the standard interface for database operations.
type Repository interface {
	LogPriceTicks(ctx context.Context, ticks []model.PriceTick) error
	LogScanSummary(ctx context.Context, summary model.ScanSummary) error
	Migrate(ctx context.Context) error
}
