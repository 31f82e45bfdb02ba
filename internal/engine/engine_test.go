package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/indicator"
	"indicator-lab/internal/storage/memory"
)

func newTestEngine(bars *memory.BarStore, outputs *memory.OutputStore) *Engine {
	return New(Options{Bars: bars, Outputs: outputs})
}

func TestEngine_WarmupPrefixStaysNull(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	outputs := memory.NewOutputStore()
	eng := newTestEngine(bars, outputs)

	tf := domain.MustParseTimeframe("1m")
	start := int64(1_700_000_100_000)
	seedMinuteBars(t, bars, "SOLUSDT", start, rampCloses(20, 10, 1), nil)

	res, err := eng.Run(ctx, Job{Symbol: "SOLUSDT", Timeframe: tf, Params: indicator.Params{Family: "sma", Period: 5}})
	require.NoError(t, err)
	assert.False(t, res.AlreadyCurrent)
	assert.Equal(t, 20, res.BarsAggregated)

	col := domain.Column{Name: "sma_5", Kind: domain.KindFloat}
	got, err := outputs.ReadRange(ctx, tf, "SOLUSDT", col, 0, start+100*minute)
	require.NoError(t, err)

	// First 4 bars of history stay NULL; from the 5th on every bar has a
	// value.
	require.Len(t, got, 16)
	for i := 0; i < 4; i++ {
		_, present := got[start+int64(i)*minute]
		assert.False(t, present, "warm-up bar %d must stay NULL", i)
	}
	// closes are 10,11,...; SMA5 at index 4 = mean(10..14) = 12.
	assert.InDelta(t, 12.0, got[start+4*minute], 1e-9)
	assert.InDelta(t, 27.0, got[start+19*minute], 1e-9)
}

func TestEngine_SecondRunIsNoOp(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	outputs := memory.NewOutputStore()
	eng := newTestEngine(bars, outputs)

	tf := domain.MustParseTimeframe("1m")
	start := int64(1_700_000_100_000)
	seedMinuteBars(t, bars, "SOLUSDT", start, rampCloses(20, 10, 1), nil)

	job := Job{Symbol: "SOLUSDT", Timeframe: tf, Params: indicator.Params{Family: "sma", Period: 5}}

	first, err := eng.Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, int64(16), first.RowsChanged)

	second, err := eng.Run(ctx, job)
	require.NoError(t, err)
	assert.True(t, second.AlreadyCurrent)
	assert.Zero(t, second.RowsChanged)
}

func TestEngine_IncrementalAppendAdvancesCheckpoint(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	outputs := memory.NewOutputStore()
	eng := newTestEngine(bars, outputs)

	tf := domain.MustParseTimeframe("1m")
	start := int64(1_700_000_100_000)
	closes := rampCloses(30, 10, 1)
	seedMinuteBars(t, bars, "SOLUSDT", start, closes[:20], nil)

	job := Job{Symbol: "SOLUSDT", Timeframe: tf, Params: indicator.Params{Family: "sma", Period: 5}}
	_, err := eng.Run(ctx, job)
	require.NoError(t, err)

	// New bars arrive; the next run computes only the appended suffix.
	seedMinuteBars(t, bars, "SOLUSDT", start+20*minute, closes[20:], nil)
	res, err := eng.Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, start+20*minute, res.WorkStartMs)
	assert.Equal(t, int64(10), res.RowsChanged)

	col := domain.Column{Name: "sma_5", Kind: domain.KindFloat}
	got, err := outputs.ReadRange(ctx, tf, "SOLUSDT", col, 0, start+100*minute)
	require.NoError(t, err)
	require.Len(t, got, 26)
	assert.InDelta(t, 37.0, got[start+29*minute], 1e-9)
}

func TestEngine_LookbackSufficiency(t *testing.T) {
	ctx := context.Background()
	start := int64(1_700_000_100_000)
	closes := make([]float64, 200)
	for i := range closes {
		closes[i] = 100 + 5*math.Sin(float64(i)*0.7)
	}

	tf := domain.MustParseTimeframe("1m")
	params := indicator.Params{Family: "rsi", Period: 5}
	family, err := indicator.New(params)
	require.NoError(t, err)

	// Reference: full history in one run.
	fullBars := memory.NewBarStore()
	fullOut := memory.NewOutputStore()
	seedMinuteBars(t, fullBars, "SOLUSDT", start, closes, nil)
	_, err = newTestEngine(fullBars, fullOut).Run(ctx, Job{Symbol: "SOLUSDT", Timeframe: tf, Params: params})
	require.NoError(t, err)

	// Incremental: 150 bars, run, then the remaining 50 with only the
	// lookback window available for warm-up.
	incBars := memory.NewBarStore()
	incOut := memory.NewOutputStore()
	incEng := newTestEngine(incBars, incOut)
	seedMinuteBars(t, incBars, "SOLUSDT", start, closes[:150], nil)
	_, err = incEng.Run(ctx, Job{Symbol: "SOLUSDT", Timeframe: tf, Params: params})
	require.NoError(t, err)
	seedMinuteBars(t, incBars, "SOLUSDT", start+150*minute, closes[150:], nil)
	_, err = incEng.Run(ctx, Job{Symbol: "SOLUSDT", Timeframe: tf, Params: params})
	require.NoError(t, err)

	col := family.Columns()[0]
	want, err := fullOut.ReadRange(ctx, tf, "SOLUSDT", col, 0, start+300*minute)
	require.NoError(t, err)
	got, err := incOut.ReadRange(ctx, tf, "SOLUSDT", col, 0, start+300*minute)
	require.NoError(t, err)

	require.Equal(t, len(want), len(got))
	for instant, w := range want {
		g, ok := got[instant]
		require.True(t, ok, "missing value at %d", instant)
		assert.InDelta(t, w, g, family.Tolerance(), "instant %d", instant)
	}
}

func TestEngine_DerivedTimeframeSkipsOpenBucket(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	outputs := memory.NewOutputStore()
	eng := newTestEngine(bars, outputs)

	tf := domain.MustParseTimeframe("15m")
	start := int64(1_700_000_100_000)
	// 3 full 15m buckets plus 7 minutes of an open one.
	seedMinuteBars(t, bars, "SOLUSDT", start, rampCloses(52, 100, 1), nil)

	res, err := eng.Run(ctx, Job{Symbol: "SOLUSDT", Timeframe: tf, Params: indicator.Params{Family: "sma", Period: 2}})
	require.NoError(t, err)
	assert.Equal(t, start+45*minute, res.WorkEndMs)

	col := domain.Column{Name: "sma_2", Kind: domain.KindFloat}
	got, err := outputs.ReadRange(ctx, tf, "SOLUSDT", col, 0, start+200*minute)
	require.NoError(t, err)

	_, open := got[start+60*minute]
	assert.False(t, open, "in-progress bucket must not be persisted")

	// Bucket closes are the 15th, 30th and 45th minute closes.
	assert.InDelta(t, (114.0+129.0)/2, got[start+30*minute], 1e-9)
	assert.InDelta(t, (129.0+144.0)/2, got[start+45*minute], 1e-9)
}

func TestEngine_RollingVWAPDerivedLookback(t *testing.T) {
	ctx := context.Background()
	start := int64(1_700_000_100_000)

	closes := make([]float64, 240)
	volumes := make([]float64, 240)
	for i := range closes {
		closes[i] = 100 + 0.5*float64(i)
		volumes[i] = 5 + float64(i%7)
	}

	tf := domain.MustParseTimeframe("15m")
	params := indicator.Params{Family: "vwap", Rolling: true, Period: 4}

	// Reference: full history in one run.
	fullBars := memory.NewBarStore()
	fullOut := memory.NewOutputStore()
	seedMinuteBars(t, fullBars, "SOLUSDT", start, closes, volumes)
	_, err := newTestEngine(fullBars, fullOut).Run(ctx, Job{Symbol: "SOLUSDT", Timeframe: tf, Params: params})
	require.NoError(t, err)

	// Incremental: the resumed run only sees its lookback window, which must
	// cover the trailing bucket window, not just trailing base minutes.
	incBars := memory.NewBarStore()
	incOut := memory.NewOutputStore()
	incEng := newTestEngine(incBars, incOut)
	job := Job{Symbol: "SOLUSDT", Timeframe: tf, Params: params}
	seedMinuteBars(t, incBars, "SOLUSDT", start, closes[:150], volumes[:150])
	_, err = incEng.Run(ctx, job)
	require.NoError(t, err)
	seedMinuteBars(t, incBars, "SOLUSDT", start+150*minute, closes[150:], volumes[150:])
	_, err = incEng.Run(ctx, job)
	require.NoError(t, err)

	col := domain.Column{Name: "vwap_roll_4", Kind: domain.KindFloat}
	want, err := fullOut.ReadRange(ctx, tf, "SOLUSDT", col, 0, start+300*minute)
	require.NoError(t, err)
	got, err := incOut.ReadRange(ctx, tf, "SOLUSDT", col, 0, start+300*minute)
	require.NoError(t, err)

	require.Equal(t, len(want), len(got))
	for instant, w := range want {
		g, ok := got[instant]
		require.True(t, ok, "missing value at %d", instant)
		assert.InDelta(t, w, g, 1e-9, "instant %d", instant)
	}
}

func TestEngine_OBVFullHistory(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	outputs := memory.NewOutputStore()
	eng := newTestEngine(bars, outputs)

	tf := domain.MustParseTimeframe("1m")
	start := int64(1_700_000_100_000)
	seedMinuteBars(t, bars, "SOLUSDT", start,
		[]float64{10, 12, 11, 11, 13},
		[]float64{100, 50, 30, 20, 40})

	job := Job{Symbol: "SOLUSDT", Timeframe: tf, Params: indicator.Params{Family: "obv"}}
	_, err := eng.Run(ctx, job)
	require.NoError(t, err)

	col := domain.Column{Name: "obv", Kind: domain.KindFloat}
	got, err := outputs.ReadRange(ctx, tf, "SOLUSDT", col, 0, start+100*minute)
	require.NoError(t, err)

	want := []float64{0, 50, 20, 20, 60}
	require.Len(t, got, len(want))
	for i, w := range want {
		assert.InDelta(t, w, got[start+int64(i)*minute], 1e-9, "bar %d", i)
	}

	// The appended suffix continues the running sum from inception, not
	// from the checkpoint.
	seedMinuteBars(t, bars, "SOLUSDT", start+5*minute, []float64{14}, []float64{10})
	res, err := eng.Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsChanged)

	got, err = outputs.ReadRange(ctx, tf, "SOLUSDT", col, 0, start+100*minute)
	require.NoError(t, err)
	assert.InDelta(t, 70.0, got[start+5*minute], 1e-9)
}

func TestEngine_ForcedRecompute(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	outputs := memory.NewOutputStore()
	eng := newTestEngine(bars, outputs)

	tf := domain.MustParseTimeframe("1m")
	start := int64(1_700_000_100_000)
	seedMinuteBars(t, bars, "SOLUSDT", start, rampCloses(20, 10, 1), nil)

	job := Job{Symbol: "SOLUSDT", Timeframe: tf, Params: indicator.Params{Family: "sma", Period: 5}}
	first, err := eng.Run(ctx, job)
	require.NoError(t, err)
	require.Equal(t, int64(16), first.RowsChanged)

	// Force clears the whole range and rewrites it even though the
	// checkpoint says current.
	job.Force = true
	forced, err := eng.Run(ctx, job)
	require.NoError(t, err)
	assert.False(t, forced.AlreadyCurrent)
	assert.Equal(t, int64(16), forced.RowsChanged)

	col := domain.Column{Name: "sma_5", Kind: domain.KindFloat}
	got, err := outputs.ReadRange(ctx, tf, "SOLUSDT", col, 0, start+100*minute)
	require.NoError(t, err)
	assert.InDelta(t, 12.0, got[start+4*minute], 1e-9)
}

func TestEngine_UnknownFamilyIsConfigError(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(memory.NewBarStore(), memory.NewOutputStore())

	_, err := eng.Run(ctx, Job{
		Symbol:    "SOLUSDT",
		Timeframe: domain.MustParseTimeframe("1m"),
		Params:    indicator.Params{Family: "adx", Period: 14},
	})
	assert.ErrorIs(t, err, indicator.ErrUnknownFamily)
	assert.True(t, isConfigError(err))
}

func TestRunner_SkipsFailedTuplesAndContinues(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	outputs := memory.NewOutputStore()
	eng := newTestEngine(bars, outputs)

	tf := domain.MustParseTimeframe("1m")
	start := int64(1_700_000_100_000)
	seedMinuteBars(t, bars, "SOLUSDT", start, rampCloses(20, 10, 1), nil)

	runner := NewRunner(RunnerOptions{Engine: eng, Attempts: 2, BaseDelay: time.Millisecond})

	jobs := []Job{
		// No source data: retried, then skipped.
		{Symbol: "MISSING", Timeframe: tf, Params: indicator.Params{Family: "sma", Period: 5}},
		// Config error: skipped without retry.
		{Symbol: "SOLUSDT", Timeframe: tf, Params: indicator.Params{Family: "sma", Period: 0}},
		// Healthy tuple still runs.
		{Symbol: "SOLUSDT", Timeframe: tf, Params: indicator.Params{Family: "sma", Period: 5}},
	}

	summary, err := runner.RunAll(ctx, jobs)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, int64(16), summary.RowsChanged)
	assert.Len(t, summary.Errors, 2)
}

func TestRunner_AlreadyCurrentCounted(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	outputs := memory.NewOutputStore()
	eng := newTestEngine(bars, outputs)

	tf := domain.MustParseTimeframe("1m")
	start := int64(1_700_000_100_000)
	seedMinuteBars(t, bars, "SOLUSDT", start, rampCloses(20, 10, 1), nil)

	runner := NewRunner(RunnerOptions{Engine: eng, BaseDelay: time.Millisecond})
	job := Job{Symbol: "SOLUSDT", Timeframe: tf, Params: indicator.Params{Family: "sma", Period: 5}}

	_, err := runner.RunAll(ctx, []Job{job})
	require.NoError(t, err)

	summary, err := runner.RunAll(ctx, []Job{job})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Completed)
	assert.Equal(t, 1, summary.AlreadyCurrent)
}
