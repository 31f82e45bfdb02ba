// Package engine runs incremental indicator computation: it resolves the
// work range for each (symbol, timeframe, configuration) tuple from the
// implicit column checkpoint, fetches a lookback-extended source window,
// aggregates the base series, computes the configuration's formula and
// persists only the in-range output with set-if-absent semantics.
package engine

import (
	"context"
	"fmt"
	"log"
	"math"

	"indicator-lab/internal/aggregate"
	"indicator-lab/internal/domain"
	"indicator-lab/internal/indicator"
	"indicator-lab/internal/observability"
	"indicator-lab/internal/storage"
)

// Engine computes and persists indicator output for one tuple at a time.
type Engine struct {
	bars    storage.BarStore
	outputs storage.OutputStore
	cache   storage.DerivedBarCache
	metrics *observability.Metrics
	verbose bool
}

// Options for creating Engine.
type Options struct {
	// Required stores
	Bars    storage.BarStore
	Outputs storage.OutputStore

	// Optional derived bar cache; engine runs proceed when nil or failing.
	Cache storage.DerivedBarCache

	// Optional metrics; nil disables recording.
	Metrics *observability.Metrics

	Verbose bool
}

// New creates a new Engine.
func New(opts Options) *Engine {
	return &Engine{
		bars:    opts.Bars,
		outputs: opts.Outputs,
		cache:   opts.Cache,
		metrics: opts.Metrics,
		verbose: opts.Verbose,
	}
}

// Job is one (symbol, timeframe, configuration) tuple.
type Job struct {
	Symbol    string
	Timeframe domain.Timeframe
	Params    indicator.Params

	// Force clears the configuration's columns over the full available
	// range and recomputes from history start. Destructive; must not run
	// concurrently with an incremental pass over the same range.
	Force bool
}

// RunResult describes the outcome of one tuple run.
type RunResult struct {
	Symbol         string
	Timeframe      domain.Timeframe
	Config         string
	AlreadyCurrent bool
	BarsAggregated int
	RowsChanged    int64
	WorkStartMs    int64
	WorkEndMs      int64
}

// Run executes one tuple end to end. Configuration errors (unknown family,
// invalid parameters) are returned unwrapped for the caller to classify as
// fatal; storage.ErrNoData signals source unavailability.
func (e *Engine) Run(ctx context.Context, job Job) (*RunResult, error) {
	family, err := indicator.New(job.Params)
	if err != nil {
		return nil, err
	}

	cols := family.Columns()
	checkpointColumn := cols[0].Name
	result := &RunResult{
		Symbol:    job.Symbol,
		Timeframe: job.Timeframe,
		Config:    family.Name(),
	}

	if err := e.outputs.EnsureColumns(ctx, job.Timeframe, cols); err != nil {
		return nil, fmt.Errorf("ensure output columns: %w", err)
	}

	wr, ok, err := resolveWorkRange(ctx, e.bars, e.outputs, job.Timeframe, job.Symbol, checkpointColumn, job.Force)
	if err != nil {
		return nil, err
	}
	if !ok {
		result.AlreadyCurrent = true
		return result, nil
	}
	result.WorkStartMs = wr.StartMs
	result.WorkEndMs = wr.EndMs

	if job.Force {
		if err := e.outputs.ClearRange(ctx, job.Timeframe, job.Symbol, cols, wr.StartMs, wr.EndMs); err != nil {
			return nil, fmt.Errorf("clear forced range: %w", err)
		}
	}

	series, err := e.sourceSeries(ctx, job, family, wr)
	if err != nil {
		return nil, err
	}
	result.BarsAggregated = len(series)

	e.cacheDerived(ctx, job.Timeframe, series, wr.StartMs)

	outputs := family.Compute(series)
	rows := inRangeRows(series, cols, outputs, wr.StartMs)

	changed, err := e.outputs.UpsertIfNull(ctx, job.Timeframe, job.Symbol, cols, rows)
	if err != nil {
		return nil, fmt.Errorf("persist output rows: %w", err)
	}
	result.RowsChanged = changed

	e.metrics.RecordPersisted(len(series), changed)
	e.log("%s %s %s: %d bars, %d rows changed, range [%d, %d]",
		job.Symbol, job.Timeframe.Token, result.Config, len(series), changed, wr.StartMs, wr.EndMs)

	return result, nil
}

// sourceSeries fetches the lookback-extended base window and aggregates it
// to the job's timeframe. Full-history families refetch from symbol
// inception every run instead of a bounded lookback.
func (e *Engine) sourceSeries(ctx context.Context, job Job, family indicator.Family, wr workRange) ([]domain.Bar, error) {
	var fetchStart int64
	if family.FullHistory() {
		earliest, err := e.bars.EarliestInstant(ctx, job.Symbol)
		if err != nil {
			return nil, fmt.Errorf("resolve history start: %w", err)
		}
		fetchStart = earliest
	} else {
		fetchStart = planFetchStart(family, job.Timeframe, wr.StartMs)
	}

	bars, err := e.bars.FetchRange(ctx, job.Symbol, fetchStart, wr.EndMs)
	if err != nil {
		return nil, fmt.Errorf("fetch source bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("fetch source bars [%d, %d]: %w", fetchStart, wr.EndMs, storage.ErrNoData)
	}

	return aggregate.Aggregate(bars, job.Timeframe, wr.EndMs), nil
}

// cacheDerived mirrors the newly derived in-range bars into the analytics
// cache. Best effort: failures are logged, never fatal.
func (e *Engine) cacheDerived(ctx context.Context, tf domain.Timeframe, series []domain.Bar, workStartMs int64) {
	if e.cache == nil || tf.IsBase() {
		return
	}

	var fresh []domain.Bar
	for _, b := range series {
		if b.InstantMs >= workStartMs {
			fresh = append(fresh, b)
		}
	}
	if len(fresh) == 0 {
		return
	}

	if err := e.cache.InsertBulk(ctx, tf, fresh); err != nil {
		log.Printf("[engine] cache derived bars %s: %v", tf.Token, err)
	}
}

// inRangeRows converts the computed series into output rows, keeping only
// instants at or after the work start. The lookback prefix is discarded
// here, never persisted. NaN values are omitted so warm-up and undefined
// cells stay NULL.
func inRangeRows(series []domain.Bar, cols []domain.Column, outputs map[string][]float64, workStartMs int64) []storage.OutputRow {
	var rows []storage.OutputRow
	for i, b := range series {
		if b.InstantMs < workStartMs {
			continue
		}
		values := make(map[string]float64, len(cols))
		for _, col := range cols {
			v := outputs[col.Name][i]
			if !math.IsNaN(v) {
				values[col.Name] = v
			}
		}
		rows = append(rows, storage.OutputRow{InstantMs: b.InstantMs, Values: values})
	}
	return rows
}

func (e *Engine) log(format string, args ...interface{}) {
	if e.verbose {
		log.Printf("[engine] "+format, args...)
	}
}
