package indicator

import (
	"fmt"
	"math"

	"indicator-lab/internal/domain"
)

// EMA is the exponential moving average with smoothing factor 2/(P+1),
// seeded with the SMA of the first P values.
type EMA struct {
	period int
}

// NewEMA creates an EMA family. period must be positive.
func NewEMA(period int) (*EMA, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: ema period %d", ErrInvalidParams, period)
	}
	return &EMA{period: period}, nil
}

func (e *EMA) Name() string { return fmt.Sprintf("ema_%d", e.period) }

func (e *EMA) Columns() []domain.Column {
	return []domain.Column{{Name: e.Name(), Kind: domain.KindFloat}}
}

func (e *EMA) LookbackPeriod() int     { return e.period }
func (e *EMA) LookbackMultiplier() int { return 4 }
func (e *EMA) FullHistory() bool       { return false }
func (e *EMA) Tolerance() float64      { return 1e-6 }

func (e *EMA) Compute(bars []domain.Bar) map[string][]float64 {
	return map[string][]float64{e.Name(): emaSeries(closes(bars), e.period)}
}

// emaSeries computes ema[t] = ema[t-1] + (v[t]-ema[t-1]) * 2/(P+1), seeded
// with SMA(P) at index P-1. The first period-1 outputs are NaN. NaN inputs
// (e.g. a MACD warm-up prefix) push the seed window forward.
func emaSeries(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	alpha := 2.0 / float64(period+1)

	seedSum := 0.0
	seedCount := 0
	prev := math.NaN()

	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(prev) {
			seedSum += v
			seedCount++
			if seedCount == period {
				prev = seedSum / float64(period)
				out[i] = prev
			}
			continue
		}
		prev += (v - prev) * alpha
		out[i] = prev
	}
	return out
}
