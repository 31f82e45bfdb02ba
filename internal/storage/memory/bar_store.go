// Package memory provides in-memory storage implementations for tests and
// local experiments.
package memory

import (
	"context"
	"sort"
	"sync"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/storage"
)

type barKey struct {
	symbol    string
	instantMs int64
}

// BarStore is an in-memory implementation of storage.BarStore.
type BarStore struct {
	mu   sync.RWMutex
	bars map[barKey]domain.Bar
}

// NewBarStore creates an empty in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{bars: make(map[barKey]domain.Bar)}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// Insert adds one bar. Returns ErrDuplicateKey on an existing
// (symbol, instant).
func (s *BarStore) Insert(_ context.Context, bar domain.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := barKey{bar.Symbol, bar.InstantMs}
	if _, exists := s.bars[key]; exists {
		return storage.ErrDuplicateKey
	}
	s.bars[key] = bar
	return nil
}

// InsertBulk adds multiple bars. The whole batch is rejected when any bar
// duplicates an existing instant.
func (s *BarStore) InsertBulk(_ context.Context, bars []domain.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, bar := range bars {
		if _, exists := s.bars[barKey{bar.Symbol, bar.InstantMs}]; exists {
			return storage.ErrDuplicateKey
		}
	}
	for _, bar := range bars {
		s.bars[barKey{bar.Symbol, bar.InstantMs}] = bar
	}
	return nil
}

// FetchRange returns bars in [startMs, endMs] ascending by instant.
func (s *BarStore) FetchRange(_ context.Context, symbol string, startMs, endMs int64) ([]domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Bar
	for key, bar := range s.bars {
		if key.symbol == symbol && key.instantMs >= startMs && key.instantMs <= endMs {
			out = append(out, bar)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstantMs < out[j].InstantMs })
	return out, nil
}

// EarliestInstant returns the first bar instant for a symbol.
func (s *BarStore) EarliestInstant(_ context.Context, symbol string) (int64, error) {
	return s.instantBound(symbol, false)
}

// LatestInstant returns the newest bar instant for a symbol.
func (s *BarStore) LatestInstant(_ context.Context, symbol string) (int64, error) {
	return s.instantBound(symbol, true)
}

func (s *BarStore) instantBound(symbol string, max bool) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bound int64
	found := false
	for key := range s.bars {
		if key.symbol != symbol {
			continue
		}
		if !found || (max && key.instantMs > bound) || (!max && key.instantMs < bound) {
			bound = key.instantMs
			found = true
		}
	}
	if !found {
		return 0, storage.ErrNoData
	}
	return bound, nil
}
