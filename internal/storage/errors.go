package storage

import "errors"

// Storage errors.
var (
	// ErrNoData is returned when a query finds no rows: no bars in range,
	// no checkpoint yet, unknown symbol. Callers distinguish "nothing to
	// do yet" from real failures with this sentinel.
	ErrNoData = errors.New("no data")

	// ErrDuplicateKey is returned when inserting a bar whose
	// (symbol, instant) already exists. The base series is append-only.
	ErrDuplicateKey = errors.New("duplicate key: base series is append-only")
)
