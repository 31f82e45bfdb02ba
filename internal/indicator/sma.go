package indicator

import (
	"fmt"

	"indicator-lab/internal/domain"
)

// SMA is the simple moving average of the last P closes.
type SMA struct {
	period int
}

// NewSMA creates an SMA family. period must be positive.
func NewSMA(period int) (*SMA, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: sma period %d", ErrInvalidParams, period)
	}
	return &SMA{period: period}, nil
}

func (s *SMA) Name() string { return fmt.Sprintf("sma_%d", s.period) }

func (s *SMA) Columns() []domain.Column {
	return []domain.Column{{Name: s.Name(), Kind: domain.KindFloat}}
}

func (s *SMA) LookbackPeriod() int     { return s.period }
func (s *SMA) LookbackMultiplier() int { return 2 }
func (s *SMA) FullHistory() bool       { return false }
func (s *SMA) Tolerance() float64      { return 1e-8 }

// Compute returns the rolling mean with a period-1 NaN prefix.
func (s *SMA) Compute(bars []domain.Bar) map[string][]float64 {
	return map[string][]float64{s.Name(): smaSeries(closes(bars), s.period)}
}

// smaSeries computes a rolling arithmetic mean over values. The first
// period-1 outputs are NaN.
func smaSeries(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if len(values) < period {
		return out
	}

	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}
