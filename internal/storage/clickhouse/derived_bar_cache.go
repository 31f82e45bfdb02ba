package clickhouse

import (
	"context"
	"fmt"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/storage"
)

// DerivedBarCache implements storage.DerivedBarCache using ClickHouse. The
// backing table is a ReplacingMergeTree keyed by (timeframe, symbol,
// instant_ms), so re-inserting an already cached bucket is harmless.
type DerivedBarCache struct {
	conn *Conn
}

// NewDerivedBarCache creates a new DerivedBarCache.
func NewDerivedBarCache(conn *Conn) *DerivedBarCache {
	return &DerivedBarCache{conn: conn}
}

// Compile-time interface check.
var _ storage.DerivedBarCache = (*DerivedBarCache)(nil)

// InsertBulk stores derived bars for a timeframe.
func (s *DerivedBarCache) InsertBulk(ctx context.Context, tf domain.Timeframe, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO derived_bars (
			timeframe, symbol, instant_ms, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		err = batch.Append(
			tf.Token, b.Symbol, uint64(b.InstantMs),
			b.Open, b.High, b.Low, b.Close, b.Volume,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// FetchRange retrieves cached bars within [startMs, endMs], ascending by
// instant. FINAL collapses ReplacingMergeTree duplicates at read time.
func (s *DerivedBarCache) FetchRange(ctx context.Context, tf domain.Timeframe, symbol string, startMs, endMs int64) ([]domain.Bar, error) {
	query := `
		SELECT symbol, instant_ms, open, high, low, close, volume
		FROM derived_bars FINAL
		WHERE timeframe = ? AND symbol = ? AND instant_ms >= ? AND instant_ms <= ?
		ORDER BY instant_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, tf.Token, symbol, uint64(startMs), uint64(endMs))
	if err != nil {
		return nil, fmt.Errorf("query derived bars by range: %w", err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		var instantMs uint64

		err := rows.Scan(
			&b.Symbol, &instantMs,
			&b.Open, &b.High, &b.Low, &b.Close, &b.Volume,
		)
		if err != nil {
			return nil, fmt.Errorf("scan derived bar row: %w", err)
		}

		b.InstantMs = int64(instantMs)
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate derived bar rows: %w", err)
	}

	return bars, nil
}
