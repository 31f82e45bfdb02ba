package domain

import (
	"errors"
	"fmt"
	"strconv"
)

// BaseTimeframeMinutes is the finest-grained source resolution. All coarser
// timeframes are derived from it.
const BaseTimeframeMinutes = 1

// ErrInvalidTimeframe is returned for timeframe tokens that do not match
// <integer><m|h|d|w>. A malformed token is a configuration error and is
// never retried.
var ErrInvalidTimeframe = errors.New("invalid timeframe token")

// Timeframe is a parsed timeframe token.
type Timeframe struct {
	Token   string // original token, e.g. "15m"
	Minutes int    // duration in base minutes
}

// unit suffixes in minutes
var timeframeUnits = map[byte]int{
	'm': 1,
	'h': 60,
	'd': 24 * 60,
	'w': 7 * 24 * 60,
}

// ParseTimeframe converts a token such as "1m", "15m", "1h", "1d" into a
// Timeframe. Returns ErrInvalidTimeframe on unmatched tokens.
func ParseTimeframe(token string) (Timeframe, error) {
	if len(token) < 2 {
		return Timeframe{}, fmt.Errorf("%w: %q", ErrInvalidTimeframe, token)
	}

	unit, ok := timeframeUnits[token[len(token)-1]]
	if !ok {
		return Timeframe{}, fmt.Errorf("%w: %q", ErrInvalidTimeframe, token)
	}

	n, err := strconv.Atoi(token[:len(token)-1])
	if err != nil || n <= 0 {
		return Timeframe{}, fmt.Errorf("%w: %q", ErrInvalidTimeframe, token)
	}

	return Timeframe{Token: token, Minutes: n * unit}, nil
}

// MustParseTimeframe is ParseTimeframe that panics on error. For tests and
// compile-time constants only.
func MustParseTimeframe(token string) Timeframe {
	tf, err := ParseTimeframe(token)
	if err != nil {
		panic(err)
	}
	return tf
}

// DurationMs returns the timeframe duration in milliseconds.
func (tf Timeframe) DurationMs() int64 {
	return int64(tf.Minutes) * 60_000
}

// IsBase reports whether this is the base (1m) timeframe.
func (tf Timeframe) IsBase() bool {
	return tf.Minutes == BaseTimeframeMinutes
}

func (tf Timeframe) String() string {
	return tf.Token
}
