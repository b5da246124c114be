// Package data holds the durable, long-horizon bar archive backing
// internal/barcache: a TimescaleDB/Postgres table that the cache falls
// back to on a cold start or when a requested window is older than its
// local SQLite retention window (spec.md §6.2).
package data

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"

	"github.com/ridopark/decisioncore/internal/market"
)

// TimescaleDBArchive reads and writes OHLCV history in a TimescaleDB
// hypertable, used as internal/barcache's durable upstream.
type TimescaleDBArchive struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewTimescaleDBArchive opens a connection to a TimescaleDB/Postgres
// instance and verifies it's reachable.
func NewTimescaleDBArchive(connectionString string, logger zerolog.Logger) (*TimescaleDBArchive, error) {
	logger.Info().Msg("initializing TimescaleDB archive connection")

	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info().Msg("connected to TimescaleDB archive")
	return &TimescaleDBArchive{db: db, logger: logger}, nil
}

// GetBars retrieves bars for symbol/timeframe within [start, end], ascending.
func (a *TimescaleDBArchive) GetBars(symbol string, tf market.Timeframe, start, end time.Time) ([]market.Bar, error) {
	query := `
		SELECT symbol, timeframe, bar_time, open, high, low, close, volume
		FROM ohlcv_bars
		WHERE symbol = $1 AND timeframe = $2 AND bar_time >= $3 AND bar_time <= $4
		ORDER BY bar_time ASC
	`

	rows, err := a.db.Query(query, symbol, string(tf), start, end)
	if err != nil {
		return nil, fmt.Errorf("query ohlcv_bars: %w", err)
	}
	defer rows.Close()

	var bars []market.Bar
	for rows.Next() {
		var bar market.Bar
		var tfStr string
		if err := rows.Scan(&bar.Symbol, &tfStr, &bar.OpenTime, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("scan ohlcv_bars row: %w", err)
		}
		bar.Timeframe = market.Timeframe(tfStr)
		bar.CloseTime = bar.OpenTime.Add(bar.Timeframe.Duration())
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ohlcv_bars rows: %w", err)
	}

	a.logger.Debug().Str("symbol", symbol).Str("timeframe", string(tf)).Int("count", len(bars)).Msg("fetched bars from archive")
	return bars, nil
}

// GetLastBar returns the most recent archived bar for symbol/timeframe.
func (a *TimescaleDBArchive) GetLastBar(symbol string, tf market.Timeframe) (*market.Bar, error) {
	query := `
		SELECT symbol, timeframe, bar_time, open, high, low, close, volume
		FROM ohlcv_bars
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY bar_time DESC
		LIMIT 1
	`
	row := a.db.QueryRow(query, symbol, string(tf))

	var bar market.Bar
	var tfStr string
	if err := row.Scan(&bar.Symbol, &tfStr, &bar.OpenTime, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no archived bars for %s %s", symbol, tf)
		}
		return nil, fmt.Errorf("get last bar: %w", err)
	}
	bar.Timeframe = market.Timeframe(tfStr)
	bar.CloseTime = bar.OpenTime.Add(bar.Timeframe.Duration())
	return &bar, nil
}

// SaveBars upserts a batch of bars into the archive.
func (a *TimescaleDBArchive) SaveBars(bars []market.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO ohlcv_bars (symbol, timeframe, bar_time, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, timeframe, bar_time) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
			close = EXCLUDED.close, volume = EXCLUDED.volume
	`)
	if err != nil {
		return fmt.Errorf("prepare archive upsert: %w", err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		if _, err := stmt.Exec(bar.Symbol, string(bar.Timeframe), bar.OpenTime, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume); err != nil {
			return fmt.Errorf("upsert bar %s %s %s: %w", bar.Symbol, bar.Timeframe, bar.OpenTime, err)
		}
	}

	a.logger.Debug().Int("count", len(bars)).Msg("flushed bars to archive")
	return tx.Commit()
}

// Close closes the underlying database connection.
func (a *TimescaleDBArchive) Close() error {
	a.logger.Info().Msg("closing TimescaleDB archive connection")
	return a.db.Close()
}
