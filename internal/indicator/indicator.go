// Package indicator implements the indicator formula library: pure functions,
// one per indicator family, each consuming an aligned OHLCV series and
// producing output series aligned 1:1 with the input.
//
// Warm-up convention: outputs that are mathematically undefined or not yet
// converged are NaN. The persister and validator translate NaN into absent
// (NULL) storage values; a NaN is never written as zero or a partial
// estimate.
package indicator

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"indicator-lab/internal/domain"
)

// Configuration errors. These indicate a programming or config mistake and
// abort the affected tuple immediately, without retry.
var (
	// ErrUnknownFamily is returned for a formula family name that is not
	// registered.
	ErrUnknownFamily = errors.New("unknown indicator family")

	// ErrInvalidParams is returned when family parameters fail validation,
	// e.g. period <= 0.
	ErrInvalidParams = errors.New("invalid indicator parameters")
)

// Family is the capability set every indicator family implements. Compute is
// a pure function: same series and parameters always yield the same output.
type Family interface {
	// Name returns a unique identifier for this configuration, also used
	// as the output column prefix, e.g. "rsi_14".
	Name() string

	// Columns lists the output columns this configuration owns, in a fixed
	// order. The first column is the checkpoint column.
	Columns() []domain.Column

	// LookbackPeriod is the characteristic period used for lookback
	// sizing; for multi-parameter families it is the largest constituent
	// period.
	LookbackPeriod() int

	// LookbackMultiplier is the family-specific convergence multiplier k:
	// rolling sums need k~2, exponential recurrences k~4, Wilder-smoothed
	// recurrences k~10.
	LookbackMultiplier() int

	// FullHistory reports whether the family is a running sum since symbol
	// inception (OBV) that cannot be bounded by a lookback window. Such
	// families recompute the entire history every run and persist only the
	// newly-appended suffix.
	FullHistory() bool

	// Tolerance is the absolute-difference tolerance for validation:
	// tight for deterministic formulas, looser for recurrences sensitive
	// to where the lookback window starts.
	Tolerance() float64

	// Compute returns one series per column, aligned 1:1 with bars, with
	// NaN for the warm-up prefix and undefined values. Boolean columns are
	// encoded as 0/1.
	Compute(bars []domain.Bar) map[string][]float64
}

// fixedLookback is implemented by families that can size their lookback as a
// fixed wall clock span rather than a bar count, e.g. session-anchored VWAP.
// The second return reports whether the fixed span applies to this
// configuration; when false the generic bar-count sizing is used.
type fixedLookback interface {
	FixedLookbackMinutes() (int, bool)
}

// Params carries the declarative parameter set for any family. Unused fields
// are ignored by families that do not need them.
type Params struct {
	Family           string  `json:"family"`
	Period           int     `json:"period,omitempty"`
	Fast             int     `json:"fast,omitempty"`
	Slow             int     `json:"slow,omitempty"`
	Signal           int     `json:"signal,omitempty"`
	StdDev           float64 `json:"stddev,omitempty"`
	Base             string  `json:"base,omitempty"`              // "sma" or "ema" for Bollinger middle band
	SqueezeThreshold float64 `json:"squeeze_threshold,omitempty"` // bandwidth percent, strict less-than
	Rolling          bool    `json:"rolling,omitempty"`           // rolling vs daily-anchored VWAP
}

// New constructs a Family from declarative parameters. Returns
// ErrUnknownFamily or ErrInvalidParams on bad input.
func New(p Params) (Family, error) {
	switch strings.ToLower(p.Family) {
	case "sma":
		return NewSMA(p.Period)
	case "ema":
		return NewEMA(p.Period)
	case "rsi":
		return NewRSI(p.Period)
	case "atr":
		return NewATR(p.Period)
	case "macd":
		return NewMACD(p.Fast, p.Slow, p.Signal)
	case "bollinger":
		return NewBollinger(p.Period, p.StdDev, p.Base, p.SqueezeThreshold)
	case "mfi":
		return NewMFI(p.Period)
	case "obv":
		return NewOBV()
	case "vwap":
		return NewVWAP(p.Rolling, p.Period)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, p.Family)
	}
}

// LookbackMinutes returns how many base minutes before the work range the
// source fetch must start so the family's recurrence has converged by the
// first in-range output.
func LookbackMinutes(f Family, tf domain.Timeframe) int {
	if fl, ok := f.(fixedLookback); ok {
		if minutes, fixed := fl.FixedLookbackMinutes(); fixed {
			return minutes
		}
	}
	return f.LookbackPeriod() * f.LookbackMultiplier() * tf.Minutes
}

// nanSeries returns a series of n NaN values.
func nanSeries(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// closes extracts the close price series.
func closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
