package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"indicator-lab/internal/domain"
)

// barsFromCloses builds a bar series with one bar per minute where high,
// low and close all equal the given close price.
func barsFromCloses(closes []float64) []domain.Bar {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    "BTCUSDT",
			InstantMs: start.Add(time.Duration(i) * time.Minute).UnixMilli(),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1,
		}
	}
	return bars
}

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestNew_KnownFamilies(t *testing.T) {
	cases := []Params{
		{Family: "sma", Period: 20},
		{Family: "ema", Period: 20},
		{Family: "rsi", Period: 14},
		{Family: "atr", Period: 14},
		{Family: "macd", Fast: 12, Slow: 26, Signal: 9},
		{Family: "bollinger", Period: 20, StdDev: 2},
		{Family: "mfi", Period: 14},
		{Family: "obv"},
		{Family: "vwap"},
		{Family: "vwap", Rolling: true, Period: 14},
	}
	for _, p := range cases {
		f, err := New(p)
		if err != nil {
			t.Errorf("New(%+v) error: %v", p, err)
			continue
		}
		if f.Name() == "" {
			t.Errorf("New(%+v) produced empty name", p)
		}
		if len(f.Columns()) == 0 {
			t.Errorf("New(%+v) produced no columns", p)
		}
	}
}

func TestNew_UnknownFamily(t *testing.T) {
	_, err := New(Params{Family: "supertrend", Period: 10})
	if !errors.Is(err, ErrUnknownFamily) {
		t.Errorf("expected ErrUnknownFamily, got %v", err)
	}
}

func TestNew_InvalidParams(t *testing.T) {
	cases := []Params{
		{Family: "sma", Period: 0},
		{Family: "rsi", Period: -14},
		{Family: "macd", Fast: 26, Slow: 12, Signal: 9},
		{Family: "macd", Fast: 12, Slow: 26, Signal: 0},
		{Family: "bollinger", Period: 20, StdDev: -1},
		{Family: "bollinger", Period: 20, StdDev: 2, Base: "hull"},
		{Family: "vwap", Rolling: true, Period: 0},
	}
	for _, p := range cases {
		if _, err := New(p); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("New(%+v) = %v, want ErrInvalidParams", p, err)
		}
	}
}

func TestLookbackMinutes(t *testing.T) {
	rsi, _ := NewRSI(14)
	tf := domain.MustParseTimeframe("15m")
	// Wilder smoothing: 14 * 10 * 15 minutes.
	if got := LookbackMinutes(rsi, tf); got != 14*10*15 {
		t.Errorf("rsi lookback = %d minutes, want %d", got, 14*10*15)
	}

	sma, _ := NewSMA(20)
	if got := LookbackMinutes(sma, tf); got != 20*2*15 {
		t.Errorf("sma lookback = %d minutes, want %d", got, 20*2*15)
	}

	// Daily VWAP reaches back a fixed two days regardless of timeframe.
	vwap, _ := NewVWAP(false, 0)
	if got := LookbackMinutes(vwap, tf); got != 2*24*60 {
		t.Errorf("daily vwap lookback = %d minutes, want %d", got, 2*24*60)
	}

	// Rolling VWAP is a trailing bar window: its lookback scales with the
	// target timeframe like any other rolling sum.
	roll, _ := NewVWAP(true, 20)
	if got := LookbackMinutes(roll, tf); got != 20*2*15 {
		t.Errorf("rolling vwap lookback = %d minutes, want %d", got, 20*2*15)
	}
}

func TestColumns_FirstColumnIsCheckpoint(t *testing.T) {
	macd, _ := NewMACD(12, 26, 9)
	cols := macd.Columns()
	if cols[0].Name != "macd_12_26_9" {
		t.Errorf("checkpoint column = %q, want macd_12_26_9", cols[0].Name)
	}

	bb, _ := NewBollinger(20, 2.5, "ema", 0)
	for _, c := range bb.Columns() {
		if c.Name == "" {
			t.Error("bollinger produced empty column name")
		}
	}
	// stddev 2.5 must not produce a "." in the identifier
	if bb.Name() != "bb_20_2p5_ema" {
		t.Errorf("bollinger name = %q, want bb_20_2p5_ema", bb.Name())
	}
}
