package indicator

import "indicator-lab/internal/domain"

// OBV is on-balance volume: a cumulative signed-volume running sum over the
// entire history from symbol inception. It is the one family that cannot be
// bounded by a lookback window; every run recomputes full history and
// persists only the newly-appended suffix.
type OBV struct{}

// NewOBV creates an OBV family.
func NewOBV() (*OBV, error) { return &OBV{}, nil }

func (o *OBV) Name() string { return "obv" }

func (o *OBV) Columns() []domain.Column {
	return []domain.Column{{Name: o.Name(), Kind: domain.KindFloat}}
}

func (o *OBV) LookbackPeriod() int     { return 1 }
func (o *OBV) LookbackMultiplier() int { return 0 }
func (o *OBV) FullHistory() bool       { return true }
func (o *OBV) Tolerance() float64      { return 1e-8 }

// Compute starts at 0 on the first bar, then adds volume on a close rise,
// subtracts it on a fall, and holds on a flat close. No warm-up prefix.
func (o *OBV) Compute(bars []domain.Bar) map[string][]float64 {
	out := make([]float64, len(bars))
	obv := 0.0
	for i, b := range bars {
		if i > 0 {
			switch {
			case b.Close > bars[i-1].Close:
				obv += b.Volume
			case b.Close < bars[i-1].Close:
				obv -= b.Volume
			}
		}
		out[i] = obv
	}
	return map[string][]float64{o.Name(): out}
}
