// Package aggregate derives coarser-timeframe OHLCV series from the base
// 1-minute series.
//
// Boundary convention: a bucket is identified by its end-of-period instant.
// A base bar stamped t belongs to the bucket ending at floor(t/M)*M + M, so
// the bucket ending at T covers base instants in [T-M, T). This end-stamped
// convention is the canonical contract for every consumer of derived bars;
// producer and validator must agree on it or indicator columns shift by one
// bar.
package aggregate

import (
	"indicator-lab/internal/domain"
)

// BucketEnd returns the end instant of the bucket containing a base bar
// stamped instantMs, for a bucket width of tfMs milliseconds.
func BucketEnd(instantMs, tfMs int64) int64 {
	return floorDiv(instantMs, tfMs)*tfMs + tfMs
}

// MaxClosedBoundary returns the latest bucket end instant that is fully
// closed given the latest available base bar. A base bar stamped t covers
// up to t + baseMs, so every boundary at or before that point is closed.
func MaxClosedBoundary(latestBaseMs, baseMs, tfMs int64) int64 {
	return floorDiv(latestBaseMs+baseMs, tfMs) * tfMs
}

// Aggregate partitions ascending base bars into non-overlapping buckets of
// the target timeframe and emits one end-stamped bar per non-empty bucket:
// open = first open, high = max high, low = min low, close = close of the
// chronologically last bar, volume = sum.
//
// Buckets whose end instant is after maxClosedMs are still in progress and
// are never emitted. For the base timeframe the input is returned unchanged
// (already filtered to maxClosedMs).
func Aggregate(bars []domain.Bar, tf domain.Timeframe, maxClosedMs int64) []domain.Bar {
	if tf.IsBase() {
		out := make([]domain.Bar, 0, len(bars))
		for _, b := range bars {
			if b.InstantMs <= maxClosedMs {
				out = append(out, b)
			}
		}
		return out
	}

	tfMs := tf.DurationMs()
	var out []domain.Bar
	var cur domain.Bar
	var curEnd int64
	open := false

	flush := func() {
		if open && curEnd <= maxClosedMs {
			cur.InstantMs = curEnd
			out = append(out, cur)
		}
		open = false
	}

	for _, b := range bars {
		end := BucketEnd(b.InstantMs, tfMs)
		if !open || end != curEnd {
			flush()
			cur = b
			curEnd = end
			open = true
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	flush()

	return out
}

// floorDiv is integer division rounding toward negative infinity, so that
// pre-epoch instants still bucket correctly.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
