package indicator

import (
	"fmt"
	"math"

	"indicator-lab/internal/domain"
)

// ATR is the Wilder-smoothed average true range.
type ATR struct {
	period int
}

// NewATR creates an ATR family. period must be positive.
func NewATR(period int) (*ATR, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: atr period %d", ErrInvalidParams, period)
	}
	return &ATR{period: period}, nil
}

func (a *ATR) Name() string { return fmt.Sprintf("atr_%d", a.period) }

func (a *ATR) Columns() []domain.Column {
	return []domain.Column{{Name: a.Name(), Kind: domain.KindFloat}}
}

func (a *ATR) LookbackPeriod() int     { return a.period }
func (a *ATR) LookbackMultiplier() int { return 10 }
func (a *ATR) FullHistory() bool       { return false }
func (a *ATR) Tolerance() float64      { return 0.5 }

// Compute returns the Wilder-smoothed mean of the true range
// TR = max(H-L, |H-prevC|, |L-prevC|), seeded with the plain mean of the
// first P true ranges. The first bar has no previous close, so its TR is
// H-L. The first period-1 outputs are NaN.
func (a *ATR) Compute(bars []domain.Bar) map[string][]float64 {
	out := nanSeries(len(bars))
	p := a.period
	if len(bars) < p {
		return map[string][]float64{a.Name(): out}
	}

	var atr float64
	for i, b := range bars {
		tr := b.High - b.Low
		if i > 0 {
			prevC := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(b.High-prevC), math.Abs(b.Low-prevC)))
		}

		switch {
		case i < p:
			atr += tr
			if i == p-1 {
				atr /= float64(p)
				out[i] = atr
			}
		default:
			atr = (atr*float64(p-1) + tr) / float64(p)
			out[i] = atr
		}
	}

	return map[string][]float64{a.Name(): out}
}
