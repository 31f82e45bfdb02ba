package indicator

import (
	"fmt"

	"indicator-lab/internal/domain"
)

// RSI is the relative strength index over Wilder-smoothed average gain and
// loss. Wilder smoothing decays with factor 1/P, much slower than a regular
// EMA, hence the large lookback multiplier.
type RSI struct {
	period int
}

// NewRSI creates an RSI family. period must be positive.
func NewRSI(period int) (*RSI, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: rsi period %d", ErrInvalidParams, period)
	}
	return &RSI{period: period}, nil
}

func (r *RSI) Name() string { return fmt.Sprintf("rsi_%d", r.period) }

func (r *RSI) Columns() []domain.Column {
	return []domain.Column{{Name: r.Name(), Kind: domain.KindFloat}}
}

func (r *RSI) LookbackPeriod() int     { return r.period }
func (r *RSI) LookbackMultiplier() int { return 10 }
func (r *RSI) FullHistory() bool       { return false }
func (r *RSI) Tolerance() float64      { return 0.5 }

// Compute returns RSI = 100 - 100/(1 + avgGain/avgLoss) with a period-long
// NaN prefix. When avgLoss is zero RSI is 100.
func (r *RSI) Compute(bars []domain.Bar) map[string][]float64 {
	vals := closes(bars)
	out := nanSeries(len(vals))
	p := r.period
	if len(vals) <= p {
		return map[string][]float64{r.Name(): out}
	}

	// Seed averages over the first P price changes, defined at index P.
	var avgGain, avgLoss float64
	for i := 1; i <= p; i++ {
		diff := vals[i] - vals[i-1]
		if diff > 0 {
			avgGain += diff
		} else {
			avgLoss -= diff
		}
	}
	avgGain /= float64(p)
	avgLoss /= float64(p)
	out[p] = rsiValue(avgGain, avgLoss)

	for i := p + 1; i < len(vals); i++ {
		diff := vals[i] - vals[i-1]
		gain, loss := 0.0, 0.0
		if diff > 0 {
			gain = diff
		} else {
			loss = -diff
		}
		avgGain = (avgGain*float64(p-1) + gain) / float64(p)
		avgLoss = (avgLoss*float64(p-1) + loss) / float64(p)
		out[i] = rsiValue(avgGain, avgLoss)
	}

	return map[string][]float64{r.Name(): out}
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}
