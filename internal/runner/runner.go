// Package runner drives statement executions through a connection pool.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/colstorm/internal/config"
	"github.com/wesleyorama2/colstorm/internal/metrics"
	"github.com/wesleyorama2/colstorm/internal/pacing"
	"github.com/wesleyorama2/colstorm/internal/pool"
)

// Options configures a Runner.
type Options struct {
	Mode          config.Mode
	Statement     string
	Workers       int
	Repeat        int
	ProgressEvery int
	FailFast      bool

	// Rate caps executions per second across all workers. Zero means
	// unpaced.
	Rate float64

	// Thresholds decide Result.Passed. Nil means no thresholds.
	Thresholds []Threshold

	// Logger receives lifecycle events. Nil discards them.
	Logger *slog.Logger
}

// Runner owns one load run: it builds the pool, starts the workers, joins
// them and tears the pool down.
//
// Example usage:
//
//	r, _ := runner.New(source, console, runner.Options{
//		Mode: config.ModeMutation, Statement: stmt, Workers: 8, Repeat: 1000,
//	})
//	result, err := r.Run(ctx)
type Runner struct {
	opener  pool.Opener
	sink    Sink
	opts    Options
	metrics *metrics.Engine
	logger  *slog.Logger
}

// New validates opts and returns a Runner.
//
// In schema mode the worker and repeat counts are forced to 1 and the run is
// fail-fast: a DDL statement is executed exactly once and never retried.
func New(opener pool.Opener, sink Sink, opts Options) (*Runner, error) {
	if opener == nil {
		return nil, errors.New("runner: nil opener")
	}
	if sink == nil {
		sink = NopSink{}
	}

	errs := &config.ValidationErrors{}
	if !opts.Mode.Valid() {
		errs.Add("mode", fmt.Sprintf("invalid mode %q: must be DDL or DML", opts.Mode))
	}
	if strings.TrimSpace(opts.Statement) == "" {
		errs.Add("statement", "the SQL statement is empty")
	}

	if opts.Mode == config.ModeSchema {
		opts.Workers = 1
		opts.Repeat = 1
		opts.FailFast = true
		opts.Rate = 0
	}
	if opts.ProgressEvery == 0 {
		opts.ProgressEvery = config.DefaultProgressEvery
	}

	if opts.Workers < 1 {
		errs.Add("workers", fmt.Sprintf("worker count must be at least 1, got %d", opts.Workers))
	}
	if opts.Repeat < 1 {
		errs.Add("repeat", fmt.Sprintf("repeat count must be at least 1, got %d", opts.Repeat))
	}
	if opts.ProgressEvery < 1 {
		errs.Add("progress-every", fmt.Sprintf("progress interval must be at least 1, got %d", opts.ProgressEvery))
	}
	if opts.Rate < 0 || math.IsNaN(opts.Rate) || math.IsInf(opts.Rate, 0) {
		errs.Add("rate", fmt.Sprintf("rate must be a non-negative number of executions per second, got %g", opts.Rate))
	}
	if errs.HasErrors() {
		return nil, errs
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Runner{
		opener:  opener,
		sink:    sink,
		opts:    opts,
		metrics: metrics.NewEngine(),
		logger:  logger,
	}, nil
}

// Options returns the effective options after mode adjustments.
func (r *Runner) Options() Options {
	return r.opts
}

// Result is the outcome of a load run.
type Result struct {
	Mode          config.Mode             `json:"mode" yaml:"mode"`
	PoolSize      int                     `json:"poolSize" yaml:"poolSize"`
	Workers       []WorkerResult          `json:"workers" yaml:"workers"`
	Attempted     int64                   `json:"attempted" yaml:"attempted"`
	Succeeded     int64                   `json:"succeeded" yaml:"succeeded"`
	Failed        int64                   `json:"failed" yaml:"failed"`
	Metrics       *metrics.Snapshot       `json:"metrics" yaml:"metrics"`
	WorkerLatency []metrics.WorkerLatency `json:"workerLatency,omitempty" yaml:"workerLatency,omitempty"`
	PoolStats     pool.Stats              `json:"pool" yaml:"pool"`
	Pacing        *pacing.Stats           `json:"pacing,omitempty" yaml:"pacing,omitempty"`
	Thresholds    []ThresholdResult       `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Interrupted   bool                    `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
	Passed        bool                    `json:"passed" yaml:"passed"`
	StartTime     time.Time               `json:"startTime" yaml:"startTime"`
	EndTime       time.Time               `json:"endTime" yaml:"endTime"`
	Duration      time.Duration           `json:"duration" yaml:"duration"`
}

// Run executes the load run.
//
// A *pool.ConnectError is returned, with a nil Result, when the pool cannot be
// built; no worker is started in that case. Otherwise all workers are started
// together and joined, the pool is closed and a Result is returned. The error
// is an *ExecutionError when a fail-fast run stopped on a failure, joined with
// any error from closing the pool.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	startTime := time.Now()

	r.logger.Debug("opening pool", "mode", r.opts.Mode, "size", r.opts.Workers)
	p, err := pool.New(ctx, r.opener, r.opts.Workers)
	if err != nil {
		return nil, err
	}

	var pacer *pacing.Pacer
	if r.opts.Rate > 0 {
		// Rate was validated in New.
		pacer, _ = pacing.New(r.opts.Rate)
	}

	r.metrics.Start()
	results := make([]WorkerResult, r.opts.Workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < r.opts.Workers; i++ {
		w := &Worker{
			ID:            i + 1,
			Pool:          p,
			Statement:     r.opts.Statement,
			Repeat:        r.opts.Repeat,
			ProgressEvery: r.opts.ProgressEvery,
			FailFast:      r.opts.FailFast,
			Sink:          r.sink,
			Metrics:       r.metrics,
			Pacer:         pacer,
		}
		g.Go(func() error {
			res, err := w.Run(gctx)
			results[w.ID-1] = res
			return err
		})
	}
	runErr := g.Wait()
	r.metrics.Stop()

	stats := p.Stats()
	closeErr := p.Close()
	if closeErr != nil {
		r.logger.Warn("closing pool", "error", closeErr)
	}

	result := &Result{
		Mode:          r.opts.Mode,
		PoolSize:      p.Size(),
		Workers:       results,
		Metrics:       r.metrics.Snapshot(),
		WorkerLatency: r.metrics.WorkerStats(),
		PoolStats:     stats,
		Interrupted:   ctx.Err() != nil,
		StartTime:     startTime,
		EndTime:       time.Now(),
	}
	result.Duration = result.EndTime.Sub(startTime)
	if pacer != nil {
		stats := pacer.Stats()
		result.Pacing = &stats
	}

	for _, wr := range results {
		result.Attempted += int64(wr.Attempted)
		result.Succeeded += int64(wr.Succeeded)
		result.Failed += int64(wr.Failed)
		if err := wr.Err(); err != nil {
			r.logger.Debug("worker saw failures",
				"worker", wr.WorkerID,
				"failed", wr.Failed,
				"first_error", err)
		}
	}

	result.Thresholds = EvaluateThresholds(r.opts.Thresholds, result.Metrics)
	result.Passed = runErr == nil && closeErr == nil && !result.Interrupted && AllPassed(result.Thresholds)

	r.logger.Debug("run finished",
		"attempted", result.Attempted,
		"failed", result.Failed,
		"passed", result.Passed,
		"duration", result.Duration)

	if closeErr != nil {
		return result, errors.Join(runErr, fmt.Errorf("close pool: %w", closeErr))
	}
	return result, runErr
}
