package indicator

import (
	"fmt"
	"math"

	"indicator-lab/internal/domain"
)

const dayMs = 24 * 60 * 60 * 1000

// VWAP is the volume-weighted average price, cumulative
// sum(typicalPrice*volume)/sum(volume). The daily variant resets at each UTC
// day boundary; the rolling variant uses a trailing P-bar window.
type VWAP struct {
	rolling bool
	period  int
}

// NewVWAP creates a VWAP family. For the rolling variant period must be
// positive; the daily variant ignores it.
func NewVWAP(rolling bool, period int) (*VWAP, error) {
	if rolling && period <= 0 {
		return nil, fmt.Errorf("%w: rolling vwap period %d", ErrInvalidParams, period)
	}
	return &VWAP{rolling: rolling, period: period}, nil
}

func (v *VWAP) Name() string {
	if v.rolling {
		return fmt.Sprintf("vwap_roll_%d", v.period)
	}
	return "vwap_d"
}

func (v *VWAP) Columns() []domain.Column {
	return []domain.Column{{Name: v.Name(), Kind: domain.KindFloat}}
}

func (v *VWAP) LookbackPeriod() int {
	if v.rolling {
		return v.period
	}
	return 1
}

func (v *VWAP) LookbackMultiplier() int { return 2 }
func (v *VWAP) FullHistory() bool       { return false }
func (v *VWAP) Tolerance() float64      { return 1e-8 }

// FixedLookbackMinutes anchors the daily variant to the session start: two
// full days of base bars always reach back past the current day's open. The
// rolling variant is an ordinary trailing bar window and sizes by bar count,
// scaled by the target timeframe like every other windowed family.
func (v *VWAP) FixedLookbackMinutes() (int, bool) {
	if v.rolling {
		return 0, false
	}
	return 2 * 24 * 60, true
}

func (v *VWAP) Compute(bars []domain.Bar) map[string][]float64 {
	if v.rolling {
		return map[string][]float64{v.Name(): v.computeRolling(bars)}
	}
	return map[string][]float64{v.Name(): v.computeDaily(bars)}
}

// computeDaily resets the cumulative sums at each UTC day boundary. A bar
// stamped exactly at midnight opens the new session. A zero-volume bucket
// contributes zero to both sums; until the day sees any volume the output
// is NaN.
func (v *VWAP) computeDaily(bars []domain.Bar) []float64 {
	out := nanSeries(len(bars))
	var pvSum, volSum float64
	curDay := int64(math.MinInt64)

	for i, b := range bars {
		day := floorDivMs(b.InstantMs, dayMs)
		if day != curDay {
			curDay = day
			pvSum, volSum = 0, 0
		}
		pvSum += b.TypicalPrice() * b.Volume
		volSum += b.Volume
		if volSum > 0 {
			out[i] = pvSum / volSum
		}
	}
	return out
}

// computeRolling uses trailing P-bar sums with a period-1 NaN prefix.
func (v *VWAP) computeRolling(bars []domain.Bar) []float64 {
	out := nanSeries(len(bars))
	pv := make([]float64, len(bars))
	vol := make([]float64, len(bars))
	for i, b := range bars {
		pv[i] = b.TypicalPrice() * b.Volume
		vol[i] = b.Volume
	}

	var pvSum, volSum float64
	for i := range bars {
		pvSum += pv[i]
		volSum += vol[i]
		if i >= v.period {
			pvSum -= pv[i-v.period]
			volSum -= vol[i-v.period]
		}
		if i >= v.period-1 && volSum > 0 {
			out[i] = pvSum / volSum
		}
	}
	return out
}

func floorDivMs(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
