package validate

import (
	"context"
	"fmt"

	"indicator-lab/internal/aggregate"
	"indicator-lab/internal/domain"
	"indicator-lab/internal/storage"
)

// GapRange is one contiguous run of missing grid instants.
type GapRange struct {
	StartMs int64
	EndMs   int64
	Missing int
}

// GapReport describes source-series completeness for one symbol and
// timeframe window.
type GapReport struct {
	Symbol    string
	Timeframe domain.Timeframe
	StartMs   int64
	EndMs     int64
	Expected  int
	Present   int
	Gaps      []GapRange
}

// Complete reports whether every expected grid instant has a bar.
func (r *GapReport) Complete() bool {
	return len(r.Gaps) == 0
}

// ScanGaps walks the timeframe grid over [startMs, endMs] and reports every
// contiguous run of instants with no source bucket. The result feeds the
// validator's known-gap exclusion and operator backfill decisions.
func ScanGaps(ctx context.Context, bars storage.BarStore, symbol string, tf domain.Timeframe, startMs, endMs int64) (*GapReport, error) {
	report := &GapReport{
		Symbol:    symbol,
		Timeframe: tf,
		StartMs:   startMs,
		EndMs:     endMs,
	}

	base, err := bars.FetchRange(ctx, symbol, startMs-tf.DurationMs(), endMs)
	if err != nil {
		return nil, fmt.Errorf("fetch source bars: %w", err)
	}

	series := aggregate.Aggregate(base, tf, endMs)
	present := make(map[int64]struct{}, len(series))
	for _, b := range series {
		present[b.InstantMs] = struct{}{}
	}

	tfMs := tf.DurationMs()
	first := aggregate.BucketEnd(startMs-1, tfMs)

	var open *GapRange
	for t := first; t <= endMs; t += tfMs {
		report.Expected++
		if _, ok := present[t]; ok {
			report.Present++
			open = nil
			continue
		}
		if open == nil {
			report.Gaps = append(report.Gaps, GapRange{StartMs: t, EndMs: t, Missing: 1})
			open = &report.Gaps[len(report.Gaps)-1]
			continue
		}
		open.EndMs = t
		open.Missing++
	}

	return report, nil
}
