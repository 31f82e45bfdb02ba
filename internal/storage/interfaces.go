// Package storage defines the storage interfaces for the indicator engine
// and the errors shared by their implementations.
package storage

import (
	"context"

	"indicator-lab/internal/domain"
)

// OutputRow is one derived bar instant with the values this configuration
// computed for it. Only defined (non-NaN) values appear in Values; absent
// columns stay NULL in storage.
type OutputRow struct {
	InstantMs int64
	Values    map[string]float64
}

// BarStore provides access to the base (1m) series.
type BarStore interface {
	// Insert adds one bar. Returns ErrDuplicateKey if (symbol, instant)
	// exists: the base series is immutable once written.
	Insert(ctx context.Context, bar domain.Bar) error

	// InsertBulk adds multiple bars atomically. Fails the entire batch on
	// any duplicate.
	InsertBulk(ctx context.Context, bars []domain.Bar) error

	// FetchRange retrieves bars for a symbol within [startMs, endMs]
	// (inclusive), ascending by instant. Gaps are permitted; callers must
	// tolerate missing instants. Returns an empty slice, not ErrNoData,
	// when the range is simply empty.
	FetchRange(ctx context.Context, symbol string, startMs, endMs int64) ([]domain.Bar, error)

	// EarliestInstant returns the first bar instant for a symbol, or
	// ErrNoData when the symbol has no bars.
	EarliestInstant(ctx context.Context, symbol string) (int64, error)

	// LatestInstant returns the newest bar instant for a symbol, or
	// ErrNoData when the symbol has no bars.
	LatestInstant(ctx context.Context, symbol string) (int64, error)
}

// OutputStore persists indicator output columns, one table per timeframe,
// keyed by (symbol, instant). The output column doubles as the durable
// checkpoint: NULL means not yet computed (or inside warm-up), so a restart
// re-derives exactly where it left off.
type OutputStore interface {
	// EnsureColumns lazily creates the timeframe's output table and the
	// configuration's columns. Idempotent; called before first write.
	EnsureColumns(ctx context.Context, tf domain.Timeframe, cols []domain.Column) error

	// MaxInstantWithValue returns the newest instant whose column is
	// non-NULL for this symbol, or ErrNoData when the column has never
	// been populated.
	MaxInstantWithValue(ctx context.Context, tf domain.Timeframe, symbol, column string) (int64, error)

	// UpsertIfNull writes rows with set-if-absent semantics: an existing
	// non-NULL value is never overwritten, so re-running a completed range
	// is a no-op and the first concurrent writer wins. Returns the number
	// of rows actually changed (progress reporting, not correctness).
	UpsertIfNull(ctx context.Context, tf domain.Timeframe, symbol string, cols []domain.Column, rows []OutputRow) (int64, error)

	// ReadRange returns instant -> value for every row in
	// [startMs, endMs] where the column is non-NULL. Boolean columns read
	// back as 0 or 1.
	ReadRange(ctx context.Context, tf domain.Timeframe, symbol string, col domain.Column, startMs, endMs int64) (map[int64]float64, error)

	// ClearRange nulls the given columns in [startMs, endMs]. Used only by
	// explicit forced recomputation; must not run concurrently with an
	// ordinary incremental pass over the same range.
	ClearRange(ctx context.Context, tf domain.Timeframe, symbol string, cols []domain.Column, startMs, endMs int64) error
}

// DerivedBarCache optionally mirrors aggregated bars into an analytics
// store so downstream readers do not re-aggregate hot timeframes. Best
// effort: engine runs proceed when the cache is unavailable.
type DerivedBarCache interface {
	// InsertBulk stores derived bars for a timeframe. Duplicate instants
	// are deduplicated by the backing engine.
	InsertBulk(ctx context.Context, tf domain.Timeframe, bars []domain.Bar) error

	// FetchRange retrieves cached derived bars within [startMs, endMs],
	// ascending by instant.
	FetchRange(ctx context.Context, tf domain.Timeframe, symbol string, startMs, endMs int64) ([]domain.Bar, error)
}
