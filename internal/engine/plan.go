package engine

import (
	"context"
	"errors"
	"fmt"

	"indicator-lab/internal/aggregate"
	"indicator-lab/internal/domain"
	"indicator-lab/internal/indicator"
	"indicator-lab/internal/storage"
)

const minuteMs = int64(60_000)

// workRange is the inclusive set of target-timeframe instants still to be
// computed: every bucket end in [StartMs, EndMs] stepping by the timeframe
// duration.
type workRange struct {
	StartMs int64
	EndMs   int64
}

// resolveWorkRange determines the range needing computation for one
// (symbol, timeframe, configuration) tuple. The checkpoint is implicit: the
// newest instant whose checkpoint column is non-NULL. An absent checkpoint
// (or force) starts from the earliest available source instant. Returns
// ok=false when the configuration is already current, which is a no-op, not
// an error.
func resolveWorkRange(ctx context.Context, bars storage.BarStore, outputs storage.OutputStore, tf domain.Timeframe, symbol, checkpointColumn string, force bool) (workRange, bool, error) {
	latestBase, err := bars.LatestInstant(ctx, symbol)
	if err != nil {
		return workRange{}, false, fmt.Errorf("resolve latest source instant: %w", err)
	}

	baseMs := int64(domain.BaseTimeframeMinutes) * minuteMs
	var maxClosed int64
	if tf.IsBase() {
		maxClosed = latestBase
	} else {
		maxClosed = aggregate.MaxClosedBoundary(latestBase, baseMs, tf.DurationMs())
	}

	start, err := rangeStart(ctx, bars, outputs, tf, symbol, checkpointColumn, force)
	if err != nil {
		return workRange{}, false, err
	}

	if start > maxClosed {
		return workRange{}, false, nil
	}
	return workRange{StartMs: start, EndMs: maxClosed}, true, nil
}

// rangeStart picks the first target instant to compute: one timeframe step
// past the checkpoint, or the first closed bucket of full history when no
// checkpoint exists.
func rangeStart(ctx context.Context, bars storage.BarStore, outputs storage.OutputStore, tf domain.Timeframe, symbol, checkpointColumn string, force bool) (int64, error) {
	if !force {
		checkpoint, err := outputs.MaxInstantWithValue(ctx, tf, symbol, checkpointColumn)
		if err == nil {
			return checkpoint + tf.DurationMs(), nil
		}
		if !errors.Is(err, storage.ErrNoData) {
			return 0, fmt.Errorf("resolve checkpoint: %w", err)
		}
	}

	earliest, err := bars.EarliestInstant(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("resolve earliest source instant: %w", err)
	}
	if tf.IsBase() {
		return earliest, nil
	}
	return aggregate.BucketEnd(earliest, tf.DurationMs()), nil
}

// planFetchStart shifts the source fetch start backward from the first
// target instant by the family's lookback, plus one bucket span on derived
// timeframes because the bucket ending at StartMs covers base instants
// strictly before it. The warm-up prefix fetched this way is computed but
// never persisted.
func planFetchStart(f indicator.Family, tf domain.Timeframe, workStartMs int64) int64 {
	lookbackMs := int64(indicator.LookbackMinutes(f, tf)) * minuteMs
	start := workStartMs - lookbackMs
	if !tf.IsBase() {
		start -= tf.DurationMs()
	}
	return start
}
