// Package validate independently recomputes indicator output and compares it
// against stored values. It is read-only: mismatches are reported, never
// corrected; correction requires a forced recompute of the main engine.
package validate

import (
	"context"
	"fmt"
	"math"
	"sort"

	"indicator-lab/internal/aggregate"
	"indicator-lab/internal/domain"
	"indicator-lab/internal/indicator"
	"indicator-lab/internal/observability"
	"indicator-lab/internal/storage"
)

const minuteMs = int64(60_000)

// Class is the verdict for one compared (instant, column) cell.
type Class string

const (
	// ClassMatch means stored and recomputed agree within tolerance, or
	// both agree the cell is undefined.
	ClassMatch Class = "match"

	// ClassMismatch means both values exist but differ beyond tolerance.
	ClassMismatch Class = "mismatch"

	// ClassUnexpectedPresent means a value is stored where the warm-up
	// rule says the cell must be NULL.
	ClassUnexpectedPresent Class = "unexpected_present"

	// ClassUnexpectedAbsent means the cell should hold a value but is
	// NULL.
	ClassUnexpectedAbsent Class = "unexpected_absent"
)

// Finding is one non-match cell.
type Finding struct {
	InstantMs  int64
	Column     string
	Class      Class
	Stored     float64 // NaN when absent
	Recomputed float64 // NaN when undefined
}

// Report summarizes one validation run.
type Report struct {
	Symbol    string
	Timeframe domain.Timeframe
	Config    string
	StartMs   int64
	EndMs     int64
	Tolerance float64

	Checked           int
	Matches           int
	Mismatches        int
	UnexpectedPresent int
	UnexpectedAbsent  int
	GapsExcluded      int

	Findings []Finding
}

// Clean reports whether the run found no discrepancies.
func (r *Report) Clean() bool {
	return r.Mismatches == 0 && r.UnexpectedPresent == 0 && r.UnexpectedAbsent == 0
}

// Validator re-derives indicator output from source data with its own
// lookback sizing and compares it against the output store.
type Validator struct {
	bars    storage.BarStore
	outputs storage.OutputStore
	metrics *observability.Metrics
}

// Options for creating Validator.
type Options struct {
	Bars    storage.BarStore
	Outputs storage.OutputStore

	// Optional metrics; nil disables recording.
	Metrics *observability.Metrics
}

// New creates a new Validator.
func New(opts Options) *Validator {
	return &Validator{
		bars:    opts.Bars,
		outputs: opts.Outputs,
		metrics: opts.Metrics,
	}
}

// Validate compares stored output for one configuration against an
// independent recomputation over [startMs, endMs]. Instants whose source
// bucket is a known data gap are excluded from mismatch counting.
func (v *Validator) Validate(ctx context.Context, symbol string, tf domain.Timeframe, params indicator.Params, startMs, endMs int64) (*Report, error) {
	family, err := indicator.New(params)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Symbol:    symbol,
		Timeframe: tf,
		Config:    family.Name(),
		StartMs:   startMs,
		EndMs:     endMs,
		Tolerance: family.Tolerance(),
	}

	series, err := v.sourceSeries(ctx, symbol, tf, family, startMs, endMs)
	if err != nil {
		return nil, err
	}

	outputs := family.Compute(series)
	cols := family.Columns()

	// recomputed[i] maps to series[i]; keep only in-range instants.
	recomputed := make(map[int64]int, len(series))
	for i, b := range series {
		if b.InstantMs >= startMs && b.InstantMs <= endMs {
			recomputed[b.InstantMs] = i
		}
	}

	for _, col := range cols {
		stored, err := v.outputs.ReadRange(ctx, tf, symbol, col, startMs, endMs)
		if err != nil {
			return nil, fmt.Errorf("read stored %s: %w", col.Name, err)
		}
		v.compareColumn(report, col, outputs[col.Name], recomputed, stored)
	}

	// Grid instants with no source bucket are known data gaps; stored
	// values there (if any) reflect the gap, not the indicator, and are
	// excluded from mismatch counting.
	report.GapsExcluded = v.countGaps(tf, recomputed, startMs, endMs) * len(cols)

	// Map iteration scrambles finding order; rendered reports need a stable
	// layout.
	sort.Slice(report.Findings, func(i, j int) bool {
		a, b := report.Findings[i], report.Findings[j]
		if a.InstantMs != b.InstantMs {
			return a.InstantMs < b.InstantMs
		}
		return a.Column < b.Column
	})

	return report, nil
}

// sourceSeries refetches and re-aggregates the source window, sized by the
// validator's own lookback so its warm-up is at least as deep as the
// engine's.
func (v *Validator) sourceSeries(ctx context.Context, symbol string, tf domain.Timeframe, family indicator.Family, startMs, endMs int64) ([]domain.Bar, error) {
	var fetchStart int64
	if family.FullHistory() {
		earliest, err := v.bars.EarliestInstant(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("resolve history start: %w", err)
		}
		fetchStart = earliest
	} else {
		fetchStart = startMs - int64(indicator.LookbackMinutes(family, tf))*minuteMs
		if !tf.IsBase() {
			fetchStart -= tf.DurationMs()
		}
	}

	bars, err := v.bars.FetchRange(ctx, symbol, fetchStart, endMs)
	if err != nil {
		return nil, fmt.Errorf("fetch source bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("fetch source bars [%d, %d]: %w", fetchStart, endMs, storage.ErrNoData)
	}

	return aggregate.Aggregate(bars, tf, endMs), nil
}

// compareColumn classifies every in-range instant of one column. Stored
// values at instants with no source bucket are gaps, excluded rather than
// counted.
func (v *Validator) compareColumn(report *Report, col domain.Column, computed []float64, recomputed map[int64]int, stored map[int64]float64) {
	for instant, i := range recomputed {
		want := computed[i]
		got, present := stored[instant]

		var class Class
		switch {
		case math.IsNaN(want) && !present:
			class = ClassMatch
		case math.IsNaN(want) && present:
			class = ClassUnexpectedPresent
		case !present:
			class = ClassUnexpectedAbsent
		case math.Abs(want-got) <= report.Tolerance:
			class = ClassMatch
		default:
			class = ClassMismatch
		}

		v.record(report, class)
		if class != ClassMatch {
			if !present {
				got = math.NaN()
			}
			report.Findings = append(report.Findings, Finding{
				InstantMs:  instant,
				Column:     col.Name,
				Class:      class,
				Stored:     got,
				Recomputed: want,
			})
		}
	}
}

func (v *Validator) record(report *Report, class Class) {
	report.Checked++
	switch class {
	case ClassMatch:
		report.Matches++
	case ClassMismatch:
		report.Mismatches++
	case ClassUnexpectedPresent:
		report.UnexpectedPresent++
	case ClassUnexpectedAbsent:
		report.UnexpectedAbsent++
	}
	v.metrics.RecordValidation(string(class), 1)
}

// countGaps counts grid instants in [startMs, endMs] with no source bucket.
func (v *Validator) countGaps(tf domain.Timeframe, recomputed map[int64]int, startMs, endMs int64) int {
	tfMs := tf.DurationMs()
	// Smallest grid instant >= startMs; the grid is bucket ends for derived
	// timeframes and minute stamps for the base one.
	first := aggregate.BucketEnd(startMs-1, tfMs)

	gaps := 0
	for t := first; t <= endMs; t += tfMs {
		if _, ok := recomputed[t]; !ok {
			gaps++
		}
	}
	return gaps
}
