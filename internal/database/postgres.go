package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arbscout/internal/model"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS price_ticks (
	id BIGSERIAL PRIMARY KEY,
	fetched_at TIMESTAMPTZ NOT NULL,
	exchange VARCHAR(50) NOT NULL,
	symbol VARCHAR(30) NOT NULL,
	price NUMERIC(30, 12) NOT NULL
);

CREATE INDEX IF NOT EXISTS price_ticks_fetched_at_idx ON price_ticks (fetched_at);

CREATE TABLE IF NOT EXISTS scan_summaries (
	id BIGSERIAL PRIMARY KEY,
	cycle_id VARCHAR(36) NOT NULL UNIQUE,
	started_at TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL,
	prices_fetched INTEGER NOT NULL,
	pairs_evaluated INTEGER NOT NULL,
	pairs_skipped INTEGER NOT NULL,
	opportunities INTEGER NOT NULL,
	best_symbol VARCHAR(30) NOT NULL DEFAULT '',
	best_net_profit NUMERIC(30, 12) NOT NULL DEFAULT 0,
	notification_error TEXT NOT NULL DEFAULT ''
);`

// PostgresRepository implements Repository on a pgx connection pool.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// NewPostgresRepository connects to connString and verifies the connection.
func NewPostgresRepository(ctx context.Context, connString string, maxConns int) (*PostgresRepository, error) {
	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("database: parse config: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}
	return &PostgresRepository{Pool: pool}, nil
}

// Close releases the pool.
func (r *PostgresRepository) Close() {
	r.Pool.Close()
}

// Migrate creates the tables if they do not exist yet.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	return nil
}

// LogPriceTicks bulk-inserts the raw prices fetched in one cycle.
func (r *PostgresRepository) LogPriceTicks(ctx context.Context, ticks []model.PriceTick) error {
	if len(ticks) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(ticks))
	for _, t := range ticks {
		at := t.Time
		if at.IsZero() {
			at = time.Now()
		}
		rows = append(rows, []any{at, t.Exchange, t.Symbol.String(), t.Price})
	}
	_, err := r.Pool.CopyFrom(ctx,
		pgx.Identifier{"price_ticks"},
		[]string{"fetched_at", "exchange", "symbol", "price"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("database: copy price ticks: %w", err)
	}
	return nil
}

// LogScanSummary records the outcome of one scan cycle.
func (r *PostgresRepository) LogScanSummary(ctx context.Context, s model.ScanSummary) error {
	const q = `
	INSERT INTO scan_summaries (
		cycle_id, started_at, duration_ms, prices_fetched, pairs_evaluated,
		pairs_skipped, opportunities, best_symbol, best_net_profit, notification_error
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.Pool.Exec(ctx, q,
		s.CycleID, s.StartedAt, s.Duration.Milliseconds(), s.PricesFetched, s.PairsEvaluated,
		s.PairsSkipped, s.Opportunities, s.BestSymbol, s.BestNetProfit, s.NotificationError,
	)
	if err != nil {
		return fmt.Errorf("database: insert scan summary %s: %w", s.CycleID, err)
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
