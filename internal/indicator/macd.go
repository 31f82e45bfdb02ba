package indicator

import (
	"fmt"
	"math"

	"indicator-lab/internal/domain"
)

// MACD is the moving average convergence/divergence: the spread between a
// fast and a slow EMA, a signal EMA over that spread, and their histogram.
// Each EMA leg is seeded independently.
type MACD struct {
	fast, slow, signal int
}

// NewMACD creates a MACD family. All periods must be positive and
// fast < slow.
func NewMACD(fast, slow, signal int) (*MACD, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return nil, fmt.Errorf("%w: macd periods %d/%d/%d", ErrInvalidParams, fast, slow, signal)
	}
	if fast >= slow {
		return nil, fmt.Errorf("%w: macd fast %d must be less than slow %d", ErrInvalidParams, fast, slow)
	}
	return &MACD{fast: fast, slow: slow, signal: signal}, nil
}

func (m *MACD) Name() string { return fmt.Sprintf("macd_%d_%d_%d", m.fast, m.slow, m.signal) }

func (m *MACD) Columns() []domain.Column {
	base := m.Name()
	return []domain.Column{
		{Name: base, Kind: domain.KindFloat},
		{Name: base + "_signal", Kind: domain.KindFloat},
		{Name: base + "_hist", Kind: domain.KindFloat},
	}
}

// LookbackPeriod is the largest constituent period; signal warm-up rides on
// top of the slow leg, so the sum is the safe characteristic period.
func (m *MACD) LookbackPeriod() int     { return m.slow + m.signal }
func (m *MACD) LookbackMultiplier() int { return 5 }
func (m *MACD) FullHistory() bool       { return false }
func (m *MACD) Tolerance() float64      { return 1e-6 }

func (m *MACD) Compute(bars []domain.Bar) map[string][]float64 {
	vals := closes(bars)
	fast := emaSeries(vals, m.fast)
	slow := emaSeries(vals, m.slow)

	macd := nanSeries(len(vals))
	for i := range vals {
		if !math.IsNaN(fast[i]) && !math.IsNaN(slow[i]) {
			macd[i] = fast[i] - slow[i]
		}
	}

	// emaSeries skips the NaN prefix of the MACD line, so the signal leg
	// seeds itself on the first signal-many defined MACD values.
	signal := emaSeries(macd, m.signal)

	hist := nanSeries(len(vals))
	for i := range vals {
		if !math.IsNaN(macd[i]) && !math.IsNaN(signal[i]) {
			hist[i] = macd[i] - signal[i]
		}
	}

	base := m.Name()
	return map[string][]float64{
		base:             macd,
		base + "_signal": signal,
		base + "_hist":   hist,
	}
}
