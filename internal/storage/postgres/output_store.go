package postgres

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/jackc/pgx/v5"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/storage"
)

// OutputStore implements storage.OutputStore using PostgreSQL. Each
// timeframe owns one table (indicator_1m, indicator_15m, ...) keyed by
// (symbol, instant_ms); indicator configurations own columns added lazily.
type OutputStore struct {
	pool *Pool
}

// NewOutputStore creates a new OutputStore.
func NewOutputStore(pool *Pool) *OutputStore {
	return &OutputStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OutputStore = (*OutputStore)(nil)

// tableName returns the per-timeframe output table identifier.
func tableName(tf domain.Timeframe) string {
	return pgx.Identifier{"indicator_" + tf.Token}.Sanitize()
}

func columnType(kind domain.ColumnKind) string {
	if kind == domain.KindBool {
		return "BOOLEAN"
	}
	return "DOUBLE PRECISION"
}

// EnsureColumns creates the timeframe table and the configuration's columns
// if absent. Idempotent.
func (s *OutputStore) EnsureColumns(ctx context.Context, tf domain.Timeframe, cols []domain.Column) error {
	table := tableName(tf)

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			symbol     TEXT   NOT NULL,
			instant_ms BIGINT NOT NULL,
			PRIMARY KEY (symbol, instant_ms)
		)
	`, table)
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("create output table %s: %w", table, err)
	}

	for _, col := range cols {
		addColumn := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s`,
			table, pgx.Identifier{col.Name}.Sanitize(), columnType(col.Kind))
		if _, err := s.pool.Exec(ctx, addColumn); err != nil {
			return fmt.Errorf("add output column %s: %w", col.Name, err)
		}
	}

	return nil
}

// MaxInstantWithValue returns the implicit checkpoint: the newest instant
// whose column is non-NULL.
func (s *OutputStore) MaxInstantWithValue(ctx context.Context, tf domain.Timeframe, symbol, column string) (int64, error) {
	query := fmt.Sprintf(`
		SELECT MAX(instant_ms) FROM %s
		WHERE symbol = $1 AND %s IS NOT NULL
	`, tableName(tf), pgx.Identifier{column}.Sanitize())

	var instant *int64
	if err := s.pool.QueryRow(ctx, query, symbol).Scan(&instant); err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNoData
		}
		return 0, fmt.Errorf("query output checkpoint: %w", err)
	}
	if instant == nil {
		return 0, storage.ErrNoData
	}
	return *instant, nil
}

// UpsertIfNull writes rows with set-if-absent semantics inside one
// transaction: a column already holding a value keeps it (first writer
// wins); a NULL column takes the new value. Returns rows actually changed.
func (s *OutputStore) UpsertIfNull(ctx context.Context, tf domain.Timeframe, symbol string, cols []domain.Column, rows []storage.OutputRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	table := tableName(tf)
	query := upsertIfNullQuery(table, cols)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var changed int64
	for _, row := range rows {
		args := make([]interface{}, 0, len(cols)+2)
		args = append(args, symbol, row.InstantMs)
		for _, col := range cols {
			args = append(args, columnArg(col, row.Values))
		}

		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("upsert output row at %d: %w", row.InstantMs, err)
		}
		changed += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return changed, nil
}

// upsertIfNullQuery builds the INSERT ... ON CONFLICT statement that only
// fills NULL targets. The WHERE clause keeps already-complete rows
// untouched so RowsAffected reflects actual changes.
func upsertIfNullQuery(table string, cols []domain.Column) string {
	names := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	sets := make([]string, len(cols))
	nullChecks := make([]string, len(cols))
	for i, col := range cols {
		ident := pgx.Identifier{col.Name}.Sanitize()
		names[i] = ident
		placeholders[i] = fmt.Sprintf("$%d", i+3)
		sets[i] = fmt.Sprintf("%s = COALESCE(%s.%s, EXCLUDED.%s)", ident, table, ident, ident)
		nullChecks[i] = fmt.Sprintf("%s.%s IS NULL", table, ident)
	}

	return fmt.Sprintf(`
		INSERT INTO %s (symbol, instant_ms, %s)
		VALUES ($1, $2, %s)
		ON CONFLICT (symbol, instant_ms) DO UPDATE SET %s
		WHERE %s
	`, table,
		strings.Join(names, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(sets, ", "),
		strings.Join(nullChecks, " OR "))
}

// columnArg converts a computed value into its SQL argument. Missing or NaN
// values become NULL; boolean columns are encoded as 0/1 by the formula
// library.
func columnArg(col domain.Column, values map[string]float64) interface{} {
	v, ok := values[col.Name]
	if !ok || math.IsNaN(v) {
		return nil
	}
	if col.Kind == domain.KindBool {
		return v != 0
	}
	return v
}

// ReadRange returns instant -> value for non-NULL rows in [startMs, endMs].
// Boolean columns read back as 0/1.
func (s *OutputStore) ReadRange(ctx context.Context, tf domain.Timeframe, symbol string, col domain.Column, startMs, endMs int64) (map[int64]float64, error) {
	ident := pgx.Identifier{col.Name}.Sanitize()
	expr := ident
	if col.Kind == domain.KindBool {
		expr = ident + "::INT::FLOAT8"
	}
	query := fmt.Sprintf(`
		SELECT instant_ms, %s FROM %s
		WHERE symbol = $1 AND instant_ms >= $2 AND instant_ms <= $3 AND %s IS NOT NULL
		ORDER BY instant_ms ASC
	`, expr, tableName(tf), ident)

	rows, err := s.pool.Query(ctx, query, symbol, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("read output range: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]float64)
	for rows.Next() {
		var instant int64
		var value float64
		if err := rows.Scan(&instant, &value); err != nil {
			return nil, fmt.Errorf("scan output row: %w", err)
		}
		out[instant] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate output rows: %w", err)
	}

	return out, nil
}

// ClearRange nulls the configuration's columns in [startMs, endMs]. Only
// forced recomputation calls this.
func (s *OutputStore) ClearRange(ctx context.Context, tf domain.Timeframe, symbol string, cols []domain.Column, startMs, endMs int64) error {
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = NULL", pgx.Identifier{col.Name}.Sanitize())
	}

	query := fmt.Sprintf(`
		UPDATE %s SET %s
		WHERE symbol = $1 AND instant_ms >= $2 AND instant_ms <= $3
	`, tableName(tf), strings.Join(sets, ", "))

	if _, err := s.pool.Exec(ctx, query, symbol, startMs, endMs); err != nil {
		return fmt.Errorf("clear output range: %w", err)
	}
	return nil
}
