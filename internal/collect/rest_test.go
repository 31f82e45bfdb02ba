package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/storage/memory"
)

func klineRow(openTime int64, close float64) []interface{} {
	return []interface{}{
		openTime,
		fmt.Sprintf("%.2f", close-0.5),
		fmt.Sprintf("%.2f", close+1),
		fmt.Sprintf("%.2f", close-1),
		fmt.Sprintf("%.2f", close),
		"10.00",
		openTime + minuteMs - 1,
	}
}

func TestRESTClient_Klines(t *testing.T) {
	start := int64(1_700_000_400_000)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "SOLUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))

		rows := []interface{}{
			klineRow(start, 100),
			klineRow(start+minuteMs, 101),
		}
		require.NoError(t, json.NewEncoder(w).Encode(rows))
	}))
	defer srv.Close()

	client := NewRESTClient(srv.URL)
	bars, err := client.Klines(context.Background(), "SOLUSDT", start, start+10*minuteMs, 1000)
	require.NoError(t, err)

	require.Len(t, bars, 2)
	assert.Equal(t, start, bars[0].InstantMs)
	assert.InDelta(t, 100.0, bars[0].Close, 1e-9)
	assert.InDelta(t, 101.0, bars[1].Close, 1e-9)
	assert.InDelta(t, 10.0, bars[1].Volume, 1e-9)
}

func TestRESTClient_KlinesErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewRESTClient(srv.URL)
	_, err := client.Klines(context.Background(), "NOPE", 0, 1, 1000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestBackfiller_PagesAndSkipsDuplicates(t *testing.T) {
	start := int64(1_700_000_400_000)
	pageSize := 3
	total := 7

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		from, err := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		require.NoError(t, err)

		var rows []interface{}
		for i := 0; i < pageSize; i++ {
			openTime := from + int64(i)*minuteMs
			if openTime >= start+int64(total)*minuteMs {
				break
			}
			rows = append(rows, klineRow(openTime, 100+float64((openTime-start)/minuteMs)))
		}
		require.NoError(t, json.NewEncoder(w).Encode(rows))
	}))
	defer srv.Close()

	bars := memory.NewBarStore()

	// One bar already exists from an earlier overlapping backfill.
	require.NoError(t, bars.Insert(context.Background(), domain.Bar{
		Symbol: "SOLUSDT", InstantMs: start + 2*minuteMs,
		Open: 1, High: 1, Low: 1, Close: 1, Volume: 1,
	}))

	b := NewBackfiller(BackfillOptions{Client: NewRESTClient(srv.URL), Bars: bars})
	result, err := b.BackfillRange(context.Background(), "SOLUSDT", start, start+int64(total-1)*minuteMs)
	require.NoError(t, err)

	assert.Equal(t, total-1, result.BarsIngested)
	assert.Equal(t, 1, result.DuplicatesSkipped)

	got, err := bars.FetchRange(context.Background(), "SOLUSDT", start, start+int64(total)*minuteMs)
	require.NoError(t, err)
	assert.Len(t, got, total)
}
