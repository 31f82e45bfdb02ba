package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/indicator"
	"indicator-lab/internal/storage"
	"indicator-lab/internal/storage/memory"
)

const minute = int64(60_000)

func seedMinuteBars(t *testing.T, store *memory.BarStore, symbol string, startMs int64, closes []float64, volumes []float64) {
	t.Helper()

	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		vol := 10.0
		if volumes != nil {
			vol = volumes[i]
		}
		bars[i] = domain.Bar{
			Symbol:    symbol,
			InstantMs: startMs + int64(i)*minute,
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    vol,
		}
	}
	require.NoError(t, store.InsertBulk(context.Background(), bars))
}

func rampCloses(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestResolveWorkRange_FullHistoryDerived(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	outputs := memory.NewOutputStore()
	tf := domain.MustParseTimeframe("15m")

	// 31 minute bars starting at a bucket boundary: two full 15m buckets
	// close, the third is in progress.
	start := int64(1_700_000_100_000) // multiple of 15m
	seedMinuteBars(t, bars, "SOLUSDT", start, rampCloses(31, 100, 1), nil)

	wr, ok, err := resolveWorkRange(ctx, bars, outputs, tf, "SOLUSDT", "sma_5", false)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, start+15*minute, wr.StartMs)
	assert.Equal(t, start+30*minute, wr.EndMs)
}

func TestResolveWorkRange_ResumesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	outputs := memory.NewOutputStore()
	tf := domain.MustParseTimeframe("15m")

	start := int64(1_700_000_100_000)
	seedMinuteBars(t, bars, "SOLUSDT", start, rampCloses(61, 100, 1), nil)

	cols := []domain.Column{{Name: "sma_5", Kind: domain.KindFloat}}
	require.NoError(t, outputs.EnsureColumns(ctx, tf, cols))
	_, err := outputs.UpsertIfNull(ctx, tf, "SOLUSDT", cols, []storage.OutputRow{
		{InstantMs: start + 30*minute, Values: map[string]float64{"sma_5": 1}},
	})
	require.NoError(t, err)

	wr, ok, err := resolveWorkRange(ctx, bars, outputs, tf, "SOLUSDT", "sma_5", false)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, start+45*minute, wr.StartMs)
	assert.Equal(t, start+60*minute, wr.EndMs)
}

func TestResolveWorkRange_AlreadyCurrent(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	outputs := memory.NewOutputStore()
	tf := domain.MustParseTimeframe("15m")

	start := int64(1_700_000_100_000)
	seedMinuteBars(t, bars, "SOLUSDT", start, rampCloses(31, 100, 1), nil)

	cols := []domain.Column{{Name: "sma_5", Kind: domain.KindFloat}}
	require.NoError(t, outputs.EnsureColumns(ctx, tf, cols))
	_, err := outputs.UpsertIfNull(ctx, tf, "SOLUSDT", cols, []storage.OutputRow{
		{InstantMs: start + 30*minute, Values: map[string]float64{"sma_5": 1}},
	})
	require.NoError(t, err)

	_, ok, err := resolveWorkRange(ctx, bars, outputs, tf, "SOLUSDT", "sma_5", false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveWorkRange_NoSourceData(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	outputs := memory.NewOutputStore()
	tf := domain.MustParseTimeframe("15m")

	_, _, err := resolveWorkRange(ctx, bars, outputs, tf, "UNKNOWN", "sma_5", false)
	assert.ErrorIs(t, err, storage.ErrNoData)
}

func TestResolveWorkRange_ForceIgnoresCheckpoint(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	outputs := memory.NewOutputStore()
	tf := domain.MustParseTimeframe("15m")

	start := int64(1_700_000_100_000)
	seedMinuteBars(t, bars, "SOLUSDT", start, rampCloses(61, 100, 1), nil)

	cols := []domain.Column{{Name: "sma_5", Kind: domain.KindFloat}}
	require.NoError(t, outputs.EnsureColumns(ctx, tf, cols))
	_, err := outputs.UpsertIfNull(ctx, tf, "SOLUSDT", cols, []storage.OutputRow{
		{InstantMs: start + 45*minute, Values: map[string]float64{"sma_5": 1}},
	})
	require.NoError(t, err)

	wr, ok, err := resolveWorkRange(ctx, bars, outputs, tf, "SOLUSDT", "sma_5", true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, start+15*minute, wr.StartMs)
}

func TestPlanFetchStart(t *testing.T) {
	tf := domain.MustParseTimeframe("15m")
	sma, err := indicator.New(indicator.Params{Family: "sma", Period: 5})
	require.NoError(t, err)

	workStart := int64(1_700_000_100_000)

	// 5 * 2 * 15 = 150 lookback minutes, plus one 15m bucket span.
	got := planFetchStart(sma, tf, workStart)
	assert.Equal(t, workStart-150*minute-15*minute, got)

	// Base timeframe needs no extra bucket span.
	base := domain.MustParseTimeframe("1m")
	got = planFetchStart(sma, base, workStart)
	assert.Equal(t, workStart-10*minute, got)
}
