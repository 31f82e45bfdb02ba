package validate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/storage/memory"
)

func TestScanGaps_CompleteSeries(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	tf := domain.MustParseTimeframe("1m")
	start := int64(1_700_000_100_000)

	seedMinuteBars(t, bars, "SOLUSDT", start, rampCloses(30, 10, 1))

	report, err := ScanGaps(ctx, bars, "SOLUSDT", tf, start, start+29*minute)
	require.NoError(t, err)

	assert.True(t, report.Complete())
	assert.Equal(t, 30, report.Expected)
	assert.Equal(t, 30, report.Present)
}

func TestScanGaps_ReportsContiguousRanges(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	tf := domain.MustParseTimeframe("1m")
	start := int64(1_700_000_100_000)

	closes := rampCloses(30, 10, 1)
	seedMinuteBars(t, bars, "SOLUSDT", start, closes[:10])
	seedMinuteBars(t, bars, "SOLUSDT", start+15*minute, closes[15:20])
	seedMinuteBars(t, bars, "SOLUSDT", start+22*minute, closes[22:])

	report, err := ScanGaps(ctx, bars, "SOLUSDT", tf, start, start+29*minute)
	require.NoError(t, err)

	assert.False(t, report.Complete())
	assert.Equal(t, 30, report.Expected)
	assert.Equal(t, 23, report.Present)

	require.Len(t, report.Gaps, 2)
	assert.Equal(t, start+10*minute, report.Gaps[0].StartMs)
	assert.Equal(t, start+14*minute, report.Gaps[0].EndMs)
	assert.Equal(t, 5, report.Gaps[0].Missing)
	assert.Equal(t, start+20*minute, report.Gaps[1].StartMs)
	assert.Equal(t, start+21*minute, report.Gaps[1].EndMs)
	assert.Equal(t, 2, report.Gaps[1].Missing)
}

func TestScanGaps_DerivedTimeframe(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	tf := domain.MustParseTimeframe("15m")
	start := int64(1_700_000_100_000)

	// Two full buckets, then one empty bucket, then another full one.
	closes := rampCloses(60, 10, 1)
	seedMinuteBars(t, bars, "SOLUSDT", start, closes[:30])
	seedMinuteBars(t, bars, "SOLUSDT", start+45*minute, closes[45:])

	report, err := ScanGaps(ctx, bars, "SOLUSDT", tf, start+15*minute, start+60*minute)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Expected)
	assert.Equal(t, 3, report.Present)
	require.Len(t, report.Gaps, 1)
	assert.Equal(t, start+45*minute, report.Gaps[0].StartMs)
}

func TestRenderGapsMarkdown(t *testing.T) {
	report := &GapReport{
		Symbol:    "SOLUSDT",
		Timeframe: domain.MustParseTimeframe("1m"),
		StartMs:   1_700_000_100_000,
		EndMs:     1_700_001_000_000,
		Expected:  10,
		Present:   8,
		Gaps:      []GapRange{{StartMs: 1_700_000_520_000, EndMs: 1_700_000_580_000, Missing: 2}},
	}

	md := RenderGapsMarkdown(report)
	assert.Contains(t, md, "Expected 10, present 8, missing 2")
	assert.NotContains(t, md, "COMPLETE")
}
