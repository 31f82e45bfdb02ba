package indicator

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"indicator-lab/internal/domain"
)

// Bollinger computes the Bollinger Bands family: middle band (SMA or EMA),
// upper/lower bands at k standard deviations, %B, bandwidth percent, and the
// squeeze flag.
type Bollinger struct {
	period    int
	stddev    float64
	base      string // "sma" or "ema"
	threshold float64
}

// DefaultSqueezeThreshold is the bandwidth percent below which the squeeze
// flag is set when no threshold is configured.
const DefaultSqueezeThreshold = 5.0

// NewBollinger creates a Bollinger family. period must be positive, stddev
// positive, base one of "sma"/"ema" (default "sma").
func NewBollinger(period int, stddev float64, base string, squeezeThreshold float64) (*Bollinger, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: bollinger period %d", ErrInvalidParams, period)
	}
	if stddev <= 0 {
		return nil, fmt.Errorf("%w: bollinger stddev %g", ErrInvalidParams, stddev)
	}
	base = strings.ToLower(base)
	if base == "" {
		base = "sma"
	}
	if base != "sma" && base != "ema" {
		return nil, fmt.Errorf("%w: bollinger base %q", ErrInvalidParams, base)
	}
	if squeezeThreshold <= 0 {
		squeezeThreshold = DefaultSqueezeThreshold
	}
	return &Bollinger{period: period, stddev: stddev, base: base, threshold: squeezeThreshold}, nil
}

func (b *Bollinger) Name() string {
	// "." is not a safe identifier character, so 2.5 becomes 2p5.
	k := strings.ReplaceAll(strconv.FormatFloat(b.stddev, 'g', -1, 64), ".", "p")
	return fmt.Sprintf("bb_%d_%s_%s", b.period, k, b.base)
}

func (b *Bollinger) Columns() []domain.Column {
	base := b.Name()
	return []domain.Column{
		{Name: base + "_middle", Kind: domain.KindFloat},
		{Name: base + "_upper", Kind: domain.KindFloat},
		{Name: base + "_lower", Kind: domain.KindFloat},
		{Name: base + "_pctb", Kind: domain.KindFloat},
		{Name: base + "_width", Kind: domain.KindFloat},
		{Name: base + "_squeeze", Kind: domain.KindBool},
	}
}

func (b *Bollinger) LookbackPeriod() int { return b.period }

func (b *Bollinger) LookbackMultiplier() int {
	if b.base == "ema" {
		return 4
	}
	return 2
}

func (b *Bollinger) FullHistory() bool  { return false }
func (b *Bollinger) Tolerance() float64 { return 1e-6 }

func (b *Bollinger) Compute(bars []domain.Bar) map[string][]float64 {
	vals := closes(bars)
	n := len(vals)

	var middle []float64
	if b.base == "ema" {
		middle = emaSeries(vals, b.period)
	} else {
		middle = smaSeries(vals, b.period)
	}
	dev := rollingStddev(vals, b.period)

	upper := nanSeries(n)
	lower := nanSeries(n)
	pctb := nanSeries(n)
	width := nanSeries(n)
	squeeze := nanSeries(n)

	for i := 0; i < n; i++ {
		if math.IsNaN(middle[i]) || math.IsNaN(dev[i]) {
			continue
		}
		upper[i] = middle[i] + b.stddev*dev[i]
		lower[i] = middle[i] - b.stddev*dev[i]

		if bandRange := upper[i] - lower[i]; bandRange != 0 {
			pctb[i] = (vals[i] - lower[i]) / bandRange
		}
		if middle[i] != 0 {
			width[i] = (upper[i] - lower[i]) / middle[i] * 100
			// strict inequality: bandwidth equal to the threshold is
			// not a squeeze
			if width[i] < b.threshold {
				squeeze[i] = 1
			} else {
				squeeze[i] = 0
			}
		}
	}

	base := b.Name()
	return map[string][]float64{
		base + "_middle":  middle,
		base + "_upper":   upper,
		base + "_lower":   lower,
		base + "_pctb":    pctb,
		base + "_width":   width,
		base + "_squeeze": squeeze,
	}
}

// rollingStddev computes the population standard deviation over a trailing
// window of period values, NaN for the first period-1 outputs.
func rollingStddev(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if len(values) < period {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		mean := 0.0
		for _, v := range window {
			mean += v
		}
		mean /= float64(period)
		sumSq := 0.0
		for _, v := range window {
			d := v - mean
			sumSq += d * d
		}
		out[i] = math.Sqrt(sumSq / float64(period))
	}
	return out
}
