package memory

import (
	"context"
	"math"
	"sync"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/storage"
)

type outputKey struct {
	tfToken   string
	symbol    string
	instantMs int64
}

// OutputStore is an in-memory implementation of storage.OutputStore. Rows
// are maps from column name to value; an absent entry models SQL NULL.
type OutputStore struct {
	mu      sync.RWMutex
	columns map[string]map[string]domain.ColumnKind // tf token -> column -> kind
	rows    map[outputKey]map[string]float64
}

// NewOutputStore creates an empty in-memory output store.
func NewOutputStore() *OutputStore {
	return &OutputStore{
		columns: make(map[string]map[string]domain.ColumnKind),
		rows:    make(map[outputKey]map[string]float64),
	}
}

// Compile-time interface check.
var _ storage.OutputStore = (*OutputStore)(nil)

// EnsureColumns registers the timeframe's columns. Idempotent.
func (s *OutputStore) EnsureColumns(_ context.Context, tf domain.Timeframe, cols []domain.Column) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	known, ok := s.columns[tf.Token]
	if !ok {
		known = make(map[string]domain.ColumnKind)
		s.columns[tf.Token] = known
	}
	for _, col := range cols {
		if _, exists := known[col.Name]; !exists {
			known[col.Name] = col.Kind
		}
	}
	return nil
}

// MaxInstantWithValue returns the newest instant whose column holds a value.
func (s *OutputStore) MaxInstantWithValue(_ context.Context, tf domain.Timeframe, symbol, column string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best int64
	found := false
	for key, row := range s.rows {
		if key.tfToken != tf.Token || key.symbol != symbol {
			continue
		}
		if _, ok := row[column]; !ok {
			continue
		}
		if !found || key.instantMs > best {
			best = key.instantMs
			found = true
		}
	}
	if !found {
		return 0, storage.ErrNoData
	}
	return best, nil
}

// UpsertIfNull fills absent cells only. A cell already holding a value is
// left untouched. Returns the number of rows that gained at least one value.
func (s *OutputStore) UpsertIfNull(_ context.Context, tf domain.Timeframe, symbol string, cols []domain.Column, rows []storage.OutputRow) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed int64
	for _, in := range rows {
		key := outputKey{tf.Token, symbol, in.InstantMs}
		row, exists := s.rows[key]
		if !exists {
			row = make(map[string]float64)
			s.rows[key] = row
		}

		rowChanged := false
		for _, col := range cols {
			v, ok := in.Values[col.Name]
			if !ok || math.IsNaN(v) {
				continue
			}
			if _, taken := row[col.Name]; taken {
				continue
			}
			row[col.Name] = v
			rowChanged = true
		}
		if rowChanged {
			changed++
		}
	}
	return changed, nil
}

// ReadRange returns instant -> value for cells holding a value in
// [startMs, endMs].
func (s *OutputStore) ReadRange(_ context.Context, tf domain.Timeframe, symbol string, col domain.Column, startMs, endMs int64) (map[int64]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]float64)
	for key, row := range s.rows {
		if key.tfToken != tf.Token || key.symbol != symbol {
			continue
		}
		if key.instantMs < startMs || key.instantMs > endMs {
			continue
		}
		if v, ok := row[col.Name]; ok {
			out[key.instantMs] = v
		}
	}
	return out, nil
}

// ClearRange drops the given columns' values in [startMs, endMs].
func (s *OutputStore) ClearRange(_ context.Context, tf domain.Timeframe, symbol string, cols []domain.Column, startMs, endMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, row := range s.rows {
		if key.tfToken != tf.Token || key.symbol != symbol {
			continue
		}
		if key.instantMs < startMs || key.instantMs > endMs {
			continue
		}
		for _, col := range cols {
			delete(row, col.Name)
		}
	}
	return nil
}
