// Package journal persists closed trades to PostgreSQL for offline analysis.
// The journal is write-mostly: the bot records every closed position and the
// operator queries summaries through the control API.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"solana-sniper-bot/internal/market"
)

// Config holds database configuration
type Config struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
	Enabled  bool   `json:"enabled"`
}

// Journal wraps the PostgreSQL connection pool
type Journal struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New connects to PostgreSQL and ensures the journal schema exists.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Journal, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(connCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	j := &Journal{
		pool:   pool,
		logger: logger.With().Str("component", "Journal").Logger(),
	}
	if err := j.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	j.logger.Info().Str("database", cfg.Database).Msg("trade journal connected")
	return j, nil
}

// Close closes the database connection
func (j *Journal) Close() {
	if j.pool != nil {
		j.pool.Close()
	}
}

func (j *Journal) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id SERIAL PRIMARY KEY,
			position_id VARCHAR(64) NOT NULL,
			address VARCHAR(64) NOT NULL,
			symbol VARCHAR(32),
			entry_price DECIMAL(30, 12) NOT NULL,
			exit_price DECIMAL(30, 12) NOT NULL,
			quantity DECIMAL(30, 12) NOT NULL,
			size_usd DECIMAL(20, 4) NOT NULL,
			pnl DECIMAL(20, 4) NOT NULL,
			exit_reason VARCHAR(32) NOT NULL,
			opened_at TIMESTAMP NOT NULL,
			closed_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_address ON trades(address)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades(closed_at)`,
	}

	for _, m := range migrations {
		if _, err := j.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// RecordTrade inserts a closed position into the journal.
func (j *Journal) RecordTrade(ctx context.Context, pos market.Position) error {
	if pos.Status != market.PositionClosed || pos.ClosedAt == nil {
		return fmt.Errorf("cannot journal open position %s", pos.ID)
	}

	_, err := j.pool.Exec(ctx,
		`INSERT INTO trades
			(position_id, address, symbol, entry_price, exit_price, quantity, size_usd, pnl, exit_reason, opened_at, closed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		pos.ID, pos.Address, pos.Symbol, pos.EntryPrice, pos.CurrentPrice,
		pos.Quantity, pos.SizeUSD, pos.PnL, pos.ExitReason, pos.OpenedAt, *pos.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record trade: %w", err)
	}
	return nil
}

// TradeRecord is one journaled trade.
type TradeRecord struct {
	ID         int64     `json:"id"`
	PositionID string    `json:"position_id"`
	Address    string    `json:"address"`
	Symbol     string    `json:"symbol"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   float64   `json:"quantity"`
	SizeUSD    float64   `json:"size_usd"`
	PnL        float64   `json:"pnl"`
	ExitReason string    `json:"exit_reason"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at"`
}

// RecentTrades returns the newest journaled trades, most recent first.
func (j *Journal) RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.pool.Query(ctx,
		`SELECT id, position_id, address, symbol, entry_price, exit_price, quantity, size_usd, pnl, exit_reason, opened_at, closed_at
		 FROM trades ORDER BY closed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.PositionID, &t.Address, &t.Symbol,
			&t.EntryPrice, &t.ExitPrice, &t.Quantity, &t.SizeUSD,
			&t.PnL, &t.ExitReason, &t.OpenedAt, &t.ClosedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Summary aggregates journaled performance.
type Summary struct {
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	TotalPnL    float64 `json:"total_pnl"`
	WinRate     float64 `json:"win_rate"`
}

// Summarize computes performance over trades closed since a cutoff time.
func (j *Journal) Summarize(ctx context.Context, since time.Time) (Summary, error) {
	var s Summary
	err := j.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE pnl > 0),
		        COUNT(*) FILTER (WHERE pnl <= 0),
		        COALESCE(SUM(pnl), 0)
		 FROM trades WHERE closed_at >= $1`, since).
		Scan(&s.TotalTrades, &s.Wins, &s.Losses, &s.TotalPnL)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to summarize trades: %w", err)
	}
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.TotalTrades) * 100
	}
	return s, nil
}
