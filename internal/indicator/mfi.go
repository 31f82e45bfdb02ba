package indicator

import (
	"fmt"
	"math"

	"indicator-lab/internal/domain"
)

// MFI is the money flow index: a volume-weighted RSI analogue over rolling
// sums of signed money flow, where the sign follows the typical-price
// direction.
type MFI struct {
	period int
}

// NewMFI creates an MFI family. period must be positive.
func NewMFI(period int) (*MFI, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: mfi period %d", ErrInvalidParams, period)
	}
	return &MFI{period: period}, nil
}

func (m *MFI) Name() string { return fmt.Sprintf("mfi_%d", m.period) }

func (m *MFI) Columns() []domain.Column {
	return []domain.Column{{Name: m.Name(), Kind: domain.KindFloat}}
}

func (m *MFI) LookbackPeriod() int     { return m.period }
func (m *MFI) LookbackMultiplier() int { return 2 }
func (m *MFI) FullHistory() bool       { return false }
func (m *MFI) Tolerance() float64      { return 1e-8 }

// Compute returns MFI = 100 - 100/(1 + posSum/negSum) over a rolling
// P-window of signed money flow, with a period-long NaN prefix.
// Edge cases: negSum 0 yields 100, posSum 0 yields 0, both 0 (a perfectly
// flat window) yields NaN.
func (m *MFI) Compute(bars []domain.Bar) map[string][]float64 {
	n := len(bars)
	out := nanSeries(n)
	p := m.period
	if n <= p {
		return map[string][]float64{m.Name(): out}
	}

	// Signed money flow per bar; index 0 has no direction.
	pos := make([]float64, n)
	neg := make([]float64, n)
	for i := 1; i < n; i++ {
		tp := bars[i].TypicalPrice()
		prevTP := bars[i-1].TypicalPrice()
		flow := tp * bars[i].Volume
		switch {
		case tp > prevTP:
			pos[i] = flow
		case tp < prevTP:
			neg[i] = flow
		}
	}

	var posSum, negSum float64
	for i := 1; i < n; i++ {
		posSum += pos[i]
		negSum += neg[i]
		if i > p {
			posSum -= pos[i-p]
			negSum -= neg[i-p]
		}
		if i < p {
			continue
		}

		switch {
		case posSum == 0 && negSum == 0:
			out[i] = math.NaN()
		case negSum == 0:
			out[i] = 100
		case posSum == 0:
			out[i] = 0
		default:
			out[i] = 100 - 100/(1+posSum/negSum)
		}
	}

	return map[string][]float64{m.Name(): out}
}
