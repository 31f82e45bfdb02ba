// Package collect supplies base 1m bars: a REST backfiller for history and a
// WebSocket subscriber for live candles. The computation engine treats this
// package as an external collaborator; it only ever appends to the base
// series.
package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/observability"
	"indicator-lab/internal/storage"
)

const (
	klinePageLimit = 1000
	klineInterval  = "1m"
)

// RESTClient fetches historical klines from a Binance-compatible REST API.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRESTClient creates a new RESTClient.
func NewRESTClient(baseURL string) *RESTClient {
	return &RESTClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Klines fetches up to limit 1m bars in [startMs, endMs].
func (c *RESTClient) Klines(ctx context.Context, symbol string, startMs, endMs int64, limit int) ([]domain.Bar, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", klineInterval)
	q.Set("startTime", strconv.FormatInt(startMs, 10))
	q.Set("endTime", strconv.FormatInt(endMs, 10))
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v3/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build klines request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch klines: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch klines: status %d: %s", resp.StatusCode, body)
	}

	// Kline rows are JSON arrays of mixed numbers and numeric strings:
	// [openTime, open, high, low, close, volume, closeTime, ...]
	var rows [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	bars := make([]domain.Bar, 0, len(rows))
	for _, row := range rows {
		bar, err := parseKlineRow(symbol, row)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseKlineRow(symbol string, row []json.RawMessage) (domain.Bar, error) {
	if len(row) < 6 {
		return domain.Bar{}, fmt.Errorf("kline row has %d fields, want >= 6", len(row))
	}

	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return domain.Bar{}, fmt.Errorf("parse kline open time: %w", err)
	}

	fields := make([]float64, 5)
	for i := 0; i < 5; i++ {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return domain.Bar{}, fmt.Errorf("parse kline field %d: %w", i+1, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("parse kline field %d: %w", i+1, err)
		}
		fields[i] = v
	}

	return domain.Bar{
		Symbol:    symbol,
		InstantMs: openTime,
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
	}, nil
}

// Backfiller pages historical 1m bars into the base series.
type Backfiller struct {
	client  *RESTClient
	bars    storage.BarStore
	metrics *observability.Metrics
	logger  *log.Logger
}

// BackfillOptions contains configuration for creating a Backfiller.
type BackfillOptions struct {
	Client  *RESTClient
	Bars    storage.BarStore
	Metrics *observability.Metrics
	Logger  *log.Logger
}

// NewBackfiller creates a new historical bar backfiller.
func NewBackfiller(opts BackfillOptions) *Backfiller {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Backfiller{
		client:  opts.Client,
		bars:    opts.Bars,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// BackfillResult contains statistics from a backfill operation.
type BackfillResult struct {
	BarsIngested      int
	DuplicatesSkipped int
	Duration          time.Duration
}

// BackfillRange pages through [fromMs, toMs] and appends every fetched bar.
// Bars already present are counted as duplicates and skipped, so overlapping
// backfills are safe.
func (b *Backfiller) BackfillRange(ctx context.Context, symbol string, fromMs, toMs int64) (*BackfillResult, error) {
	start := time.Now()
	result := &BackfillResult{}

	b.logger.Printf("Starting backfill %s from %d to %d", symbol, fromMs, toMs)

	cursor := fromMs
	for cursor <= toMs {
		bars, err := b.client.Klines(ctx, symbol, cursor, toMs, klinePageLimit)
		if err != nil {
			return result, err
		}
		if len(bars) == 0 {
			break
		}

		stored, dupes := b.storeBars(ctx, bars)
		result.BarsIngested += stored
		result.DuplicatesSkipped += dupes

		cursor = bars[len(bars)-1].InstantMs + minuteMs
	}

	result.Duration = time.Since(start)
	b.logger.Printf("Backfill complete: %d bars, %d dupes in %v",
		result.BarsIngested, result.DuplicatesSkipped, result.Duration)

	if b.metrics != nil {
		b.metrics.BarsCollected.WithLabelValues("rest").Add(float64(result.BarsIngested))
	}

	return result, nil
}

// storeBars bulk-inserts a page, falling back to one-by-one inserts when the
// page contains already-present bars.
func (b *Backfiller) storeBars(ctx context.Context, bars []domain.Bar) (stored, dupes int) {
	err := b.bars.InsertBulk(ctx, bars)
	if err == nil {
		return len(bars), 0
	}
	if !errors.Is(err, storage.ErrDuplicateKey) {
		b.logger.Printf("Error storing batch: %v", err)
		return 0, 0
	}

	for _, bar := range bars {
		if err := b.bars.Insert(ctx, bar); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				dupes++
				continue
			}
			b.logger.Printf("Error storing bar at %d: %v", bar.InstantMs, err)
			continue
		}
		stored++
	}
	return stored, dupes
}

const minuteMs = int64(60_000)
