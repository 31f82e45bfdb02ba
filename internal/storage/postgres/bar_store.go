package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/storage"
)

// BarStore implements storage.BarStore using PostgreSQL.
type BarStore struct {
	pool *Pool
}

// NewBarStore creates a new BarStore.
func NewBarStore(pool *Pool) *BarStore {
	return &BarStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// Insert adds one base bar. Returns ErrDuplicateKey if (symbol, instant_ms)
// exists.
func (s *BarStore) Insert(ctx context.Context, bar domain.Bar) error {
	query := `
		INSERT INTO bars (
			symbol, instant_ms, open, high, low, close, volume
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		bar.Symbol,
		bar.InstantMs,
		bar.Open,
		bar.High,
		bar.Low,
		bar.Close,
		bar.Volume,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert bar: %w", err)
	}
	return nil
}

// InsertBulk adds multiple bars atomically. Fails entire batch on any
// duplicate.
func (s *BarStore) InsertBulk(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO bars (
			symbol, instant_ms, open, high, low, close, volume
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, bar := range bars {
		_, err := tx.Exec(ctx, query,
			bar.Symbol,
			bar.InstantMs,
			bar.Open,
			bar.High,
			bar.Low,
			bar.Close,
			bar.Volume,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert bar in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// FetchRange retrieves bars for a symbol within [startMs, endMs] inclusive,
// ascending by instant.
func (s *BarStore) FetchRange(ctx context.Context, symbol string, startMs, endMs int64) ([]domain.Bar, error) {
	query := `
		SELECT symbol, instant_ms, open, high, low, close, volume
		FROM bars
		WHERE symbol = $1 AND instant_ms >= $2 AND instant_ms <= $3
		ORDER BY instant_ms ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("fetch bars by range: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// EarliestInstant returns the first bar instant for a symbol.
func (s *BarStore) EarliestInstant(ctx context.Context, symbol string) (int64, error) {
	return s.instantBound(ctx, symbol, "MIN")
}

// LatestInstant returns the newest bar instant for a symbol.
func (s *BarStore) LatestInstant(ctx context.Context, symbol string) (int64, error) {
	return s.instantBound(ctx, symbol, "MAX")
}

func (s *BarStore) instantBound(ctx context.Context, symbol, agg string) (int64, error) {
	query := fmt.Sprintf(`SELECT %s(instant_ms) FROM bars WHERE symbol = $1`, agg)

	var instant *int64
	if err := s.pool.QueryRow(ctx, query, symbol).Scan(&instant); err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNoData
		}
		return 0, fmt.Errorf("query %s bar instant: %w", agg, err)
	}
	if instant == nil {
		return 0, storage.ErrNoData
	}
	return *instant, nil
}

// scanBars scans multiple rows into a slice of Bar.
func scanBars(rows pgx.Rows) ([]domain.Bar, error) {
	var bars []domain.Bar

	for rows.Next() {
		var b domain.Bar

		err := rows.Scan(
			&b.Symbol,
			&b.InstantMs,
			&b.Open,
			&b.High,
			&b.Low,
			&b.Close,
			&b.Volume,
		)
		if err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}

		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bar rows: %w", err)
	}

	return bars, nil
}
