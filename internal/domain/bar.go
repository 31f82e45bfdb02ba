// Package domain defines the core data model for the indicator engine:
// OHLCV bars, timeframes, and indicator output columns.
package domain

// Bar represents one OHLCV record for a fixed time bucket.
// Base (1m) bars are stamped with the bucket start instant as written by the
// collector; derived bars are stamped with the bucket end instant.
type Bar struct {
	Symbol    string  // trading symbol, e.g. "BTCUSDT"
	InstantMs int64   // bar instant, Unix milliseconds
	Open      float64 // first trade price in bucket
	High      float64 // highest trade price in bucket
	Low       float64 // lowest trade price in bucket
	Close     float64 // last trade price in bucket
	Volume    float64 // total traded volume in bucket
}

// TypicalPrice returns (high + low + close) / 3.
func (b Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3
}

// ColumnKind is the SQL type of an indicator output column.
type ColumnKind int

const (
	// KindFloat is a double precision output column.
	KindFloat ColumnKind = iota
	// KindBool is a boolean flag column, e.g. the Bollinger squeeze flag.
	KindBool
)

// Column describes one indicator output column attached to a derived bar.
// A NULL value in a column carries two meanings by convention: the instant
// has not been computed yet (checkpoint), or the value is inside the
// indicator's warm-up and is genuinely undefined.
type Column struct {
	Name string     // SQL column name, unique per configuration
	Kind ColumnKind // SQL type
}
