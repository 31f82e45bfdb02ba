package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/indicator"
)

// Runner executes a batch of tuples sequentially. Each tuple owns an
// independent checkpoint, so the serialization is a resource bound, not a
// correctness requirement.
type Runner struct {
	engine    *Engine
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
	verbose   bool
}

// RunnerOptions for creating Runner.
type RunnerOptions struct {
	Engine *Engine

	// Attempts per tuple for transient failures. Default 3.
	Attempts int

	// BaseDelay is the first backoff delay, doubled per attempt up to
	// MaxDelay. Defaults 2s and 30s.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	Verbose bool
}

// NewRunner creates a new Runner.
func NewRunner(opts RunnerOptions) *Runner {
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	return &Runner{
		engine:    opts.Engine,
		attempts:  attempts,
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		verbose:   opts.Verbose,
	}
}

// Summary aggregates the outcome of one batch.
type Summary struct {
	Completed      int
	AlreadyCurrent int
	Skipped        int
	RowsChanged    int64
	Errors         []string
}

// RunAll runs every job in order. Configuration errors abort their tuple
// without retry; transient failures are retried with bounded exponential
// backoff and then the tuple is skipped, never the whole batch. Only context
// cancellation stops the run early.
func (r *Runner) RunAll(ctx context.Context, jobs []Job) (*Summary, error) {
	summary := &Summary{}

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		started := time.Now()
		res, err := r.runWithRetry(ctx, job)
		elapsed := time.Since(started).Seconds()

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return summary, err
			}
			summary.Skipped++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s/%s/%s: %v",
				job.Symbol, job.Timeframe.Token, job.Params.Family, err))
			r.engine.metrics.RecordTuple(job.Timeframe.Token, "skipped", elapsed)
			r.log("skip %s %s %s: %v", job.Symbol, job.Timeframe.Token, job.Params.Family, err)
			continue
		}

		if res.AlreadyCurrent {
			summary.AlreadyCurrent++
			r.engine.metrics.RecordTuple(job.Timeframe.Token, "already_current", elapsed)
			continue
		}

		summary.Completed++
		summary.RowsChanged += res.RowsChanged
		r.engine.metrics.RecordTuple(job.Timeframe.Token, "completed", elapsed)
	}

	if m := r.engine.metrics; m != nil {
		m.LastEngineRun.SetToCurrentTime()
	}

	return summary, nil
}

// runWithRetry retries transient failures with doubling delay. Configuration
// errors are surfaced immediately.
func (r *Runner) runWithRetry(ctx context.Context, job Job) (*RunResult, error) {
	delay := r.baseDelay

	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		res, err := r.engine.Run(ctx, job)
		if err == nil {
			return res, nil
		}
		if isConfigError(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err

		if attempt < r.attempts {
			r.log("retry %s %s %s (attempt %d/%d): %v",
				job.Symbol, job.Timeframe.Token, job.Params.Family, attempt, r.attempts, err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > r.maxDelay {
				delay = r.maxDelay
			}
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", r.attempts, lastErr)
}

// isConfigError reports whether the error indicates a programming or config
// mistake that retrying cannot fix.
func isConfigError(err error) bool {
	return errors.Is(err, indicator.ErrUnknownFamily) ||
		errors.Is(err, indicator.ErrInvalidParams) ||
		errors.Is(err, domain.ErrInvalidTimeframe)
}

func (r *Runner) log(format string, args ...interface{}) {
	if r.verbose {
		log.Printf("[runner] "+format, args...)
	}
}
