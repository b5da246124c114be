// Package barcache is a SQLite-backed OHLCV cache (spec.md §4.7):
// upsert-keyed save with chunked batches, ordered load, and
// retention-based cleanup, grounded on
// original_source/agent/backtest/bar_cache.py.
package barcache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ridopark/decisioncore/internal/market"
)

// batchSize bounds memory use on large saves, matching bar_cache.py's
// BATCH_SIZE chunking for save_bars_streaming.
const batchSize = 10_000

const schema = `
CREATE TABLE IF NOT EXISTS bar_cache (
    symbol        TEXT    NOT NULL,
    timeframe     TEXT    NOT NULL,
    bar_time      TEXT    NOT NULL,
    bar_time_unix INTEGER NOT NULL,
    open          REAL    NOT NULL,
    high          REAL    NOT NULL,
    low           REAL    NOT NULL,
    close         REAL    NOT NULL,
    volume        REAL    NOT NULL,
    fetched_at    TEXT    NOT NULL,
    PRIMARY KEY (symbol, timeframe, bar_time)
);

CREATE INDEX IF NOT EXISTS idx_bar_cache_unix ON bar_cache(bar_time_unix);
`

const upsertSQL = `INSERT INTO bar_cache
    (symbol, timeframe, bar_time, bar_time_unix, open, high, low, close, volume, fetched_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT(symbol, timeframe, bar_time) DO UPDATE SET
      open = excluded.open, high = excluded.high, low = excluded.low,
      close = excluded.close, volume = excluded.volume,
      bar_time_unix = excluded.bar_time_unix, fetched_at = excluded.fetched_at`

// Archive is a durable, long-horizon bar store the cache falls back to
// when a requested window isn't in its local retention window (e.g.
// internal/data.TimescaleDBArchive).
type Archive interface {
	GetBars(symbol string, tf market.Timeframe, start, end time.Time) ([]market.Bar, error)
}

// Cache wraps a single-writer SQLite database holding cached bars.
type Cache struct {
	db      *sql.DB
	archive Archive
}

// Open creates or opens the SQLite file at path and applies the
// schema. path may be ":memory:" for tests.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("barcache: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("barcache: apply schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// SetArchive attaches a durable upstream that LoadBarsBetween queries
// when the cache holds no bars in the window or its earliest local bar
// starts after the window's start; a gap at the window's end is not
// checked.
func (c *Cache) SetArchive(a Archive) { c.archive = a }

// Close releases the underlying database handle.
func (c *Cache) Close() error { return c.db.Close() }

// SaveBars upserts bars in batchSize-bounded chunks within one
// transaction per chunk.
func (c *Cache) SaveBars(ctx context.Context, bars []market.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for start := 0; start < len(bars); start += batchSize {
		end := start + batchSize
		if end > len(bars) {
			end = len(bars)
		}
		if err := c.saveChunk(ctx, bars[start:end], now); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) saveChunk(ctx context.Context, chunk []market.Bar, fetchedAt string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("barcache: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("barcache: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, b := range chunk {
		if _, err := stmt.ExecContext(ctx,
			b.Symbol, string(b.Timeframe), b.OpenTime.Format(time.RFC3339), b.OpenTime.Unix(),
			b.Open, b.High, b.Low, b.Close, b.Volume, fetchedAt,
		); err != nil {
			return fmt.Errorf("barcache: upsert %s %s %s: %w", b.Symbol, b.Timeframe, b.OpenTime, err)
		}
	}
	return tx.Commit()
}

// LoadBars returns up to count bars for symbol/timeframe, ordered
// oldest first — the query orders newest-first so LIMIT keeps the most
// recent bars, then the result is reversed.
func (c *Cache) LoadBars(ctx context.Context, symbol string, tf market.Timeframe, count int) ([]market.Bar, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT symbol, timeframe, bar_time, open, high, low, close, volume
		FROM bar_cache
		WHERE symbol = ? AND timeframe = ?
		ORDER BY bar_time_unix DESC LIMIT ?`,
		symbol, string(tf), count,
	)
	if err != nil {
		return nil, fmt.Errorf("barcache: query load: %w", err)
	}
	defer rows.Close()

	var bars []market.Bar
	for rows.Next() {
		var b market.Bar
		var tfStr, barTime string
		if err := rows.Scan(&b.Symbol, &tfStr, &barTime, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("barcache: scan row: %w", err)
		}
		b.Timeframe = market.Timeframe(tfStr)
		b.OpenTime, err = time.Parse(time.RFC3339, barTime)
		if err != nil {
			return nil, fmt.Errorf("barcache: parse bar_time %q: %w", barTime, err)
		}
		b.CloseTime = b.OpenTime.Add(b.Timeframe.Duration())
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// reverse to oldest-first
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// LoadBarsBetween returns all bars for symbol/timeframe with bar_time
// in [from, to], ordered oldest first.
func (c *Cache) LoadBarsBetween(ctx context.Context, symbol string, tf market.Timeframe, from, to time.Time) ([]market.Bar, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT symbol, timeframe, bar_time, open, high, low, close, volume
		FROM bar_cache
		WHERE symbol = ? AND timeframe = ? AND bar_time_unix >= ? AND bar_time_unix <= ?
		ORDER BY bar_time_unix ASC`,
		symbol, string(tf), from.Unix(), to.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("barcache: query between: %w", err)
	}
	defer rows.Close()

	var bars []market.Bar
	for rows.Next() {
		var b market.Bar
		var tfStr, barTime string
		if err := rows.Scan(&b.Symbol, &tfStr, &barTime, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("barcache: scan row: %w", err)
		}
		b.Timeframe = market.Timeframe(tfStr)
		b.OpenTime, err = time.Parse(time.RFC3339, barTime)
		if err != nil {
			return nil, fmt.Errorf("barcache: parse bar_time %q: %w", barTime, err)
		}
		b.CloseTime = b.OpenTime.Add(b.Timeframe.Duration())
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if c.archive != nil && (len(bars) == 0 || bars[0].OpenTime.After(from)) {
		archived, err := c.archive.GetBars(symbol, tf, from, to)
		if err != nil {
			return bars, fmt.Errorf("barcache: archive fallback: %w", err)
		}
		return archived, nil
	}
	return bars, nil
}

// Count returns the number of cached bars for symbol/timeframe.
func (c *Cache) Count(ctx context.Context, symbol string, tf market.Timeframe) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bar_cache WHERE symbol = ? AND timeframe = ?`,
		symbol, string(tf),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("barcache: count: %w", err)
	}
	return n, nil
}

// CleanupOld deletes bars older than retentionDays. A non-positive
// retentionDays is a no-op, matching bar_cache.py's guard.
func (c *Cache) CleanupOld(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-time.Duration(retentionDays) * 24 * time.Hour).Unix()
	res, err := c.db.ExecContext(ctx, `DELETE FROM bar_cache WHERE bar_time_unix < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("barcache: cleanup: %w", err)
	}
	return res.RowsAffected()
}
