package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wesleyorama2/colstorm/internal/metrics"
	"github.com/wesleyorama2/colstorm/internal/pacing"
	"github.com/wesleyorama2/colstorm/internal/pool"
)

// Sink receives worker notifications. Implementations must be safe for
// concurrent use and must write each notification atomically.
type Sink interface {
	// Progress is called after a successful execution whose index is a
	// multiple of the progress interval.
	Progress(worker, index, repeat int)

	// ExecFailed is called for every failed execution.
	ExecFailed(worker, index int, err error)

	// WorkerDone is called once per worker after its loop ends.
	WorkerDone(result WorkerResult)
}

// NopSink discards all notifications.
type NopSink struct{}

func (NopSink) Progress(int, int, int) {}

func (NopSink) ExecFailed(int, int, error) {}

func (NopSink) WorkerDone(WorkerResult) {}

// ExecutionError is a statement failure that ended the run: any failure in
// schema mode, or the first failure of a fail-fast mutation run.
type ExecutionError struct {
	WorkerID int
	Index    int
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("worker %d: execution %d failed: %v", e.WorkerID, e.Index+1, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// WorkerResult is the outcome of one worker. SessionID is the pool slot the
// worker used, zero if it never got one.
type WorkerResult struct {
	WorkerID   int           `json:"workerId" yaml:"workerId"`
	SessionID  int           `json:"sessionId" yaml:"sessionId"`
	Planned    int           `json:"planned" yaml:"planned"`
	Attempted  int           `json:"attempted" yaml:"attempted"`
	Succeeded  int           `json:"succeeded" yaml:"succeeded"`
	Failed     int           `json:"failed" yaml:"failed"`
	Cancelled  bool          `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
	FirstError string        `json:"firstError,omitempty" yaml:"firstError,omitempty"`
	Duration   time.Duration `json:"duration" yaml:"duration"`

	firstErr error
}

// Err returns the first execution error the worker saw.
func (r WorkerResult) Err() error {
	return r.firstErr
}

// Worker runs one statement a fixed number of times on a single pooled
// session.
type Worker struct {
	ID            int
	Pool          *pool.Pool
	Statement     string
	Repeat        int
	ProgressEvery int
	FailFast      bool
	Sink          Sink
	Metrics       *metrics.Engine

	// Pacer, when set, spaces executions to a rate shared with other workers.
	Pacer *pacing.Pacer
}

// Run acquires one session, executes the statement Repeat times on it and
// releases it on every exit path.
//
// With FailFast unset a failed execution is counted and the loop continues.
// With FailFast set the first failure stops the worker and is returned as an
// *ExecutionError. Context cancellation stops the loop before the next
// execution and is not an error.
func (w *Worker) Run(ctx context.Context) (WorkerResult, error) {
	result := WorkerResult{WorkerID: w.ID, Planned: w.Repeat}
	start := time.Now()

	if w.Metrics != nil {
		w.Metrics.WorkerStarted()
		defer w.Metrics.WorkerFinished()
	}

	progressEvery := w.ProgressEvery
	if progressEvery < 1 {
		progressEvery = 1
	}

	err := w.Pool.With(ctx, func(h *pool.Handle) error {
		result.SessionID = h.ID()

		for i := 0; i < w.Repeat; i++ {
			if ctx.Err() != nil {
				result.Cancelled = true
				return nil
			}
			if w.Pacer != nil {
				if err := w.Pacer.Wait(ctx); err != nil {
					result.Cancelled = true
					return nil
				}
			}

			execStart := time.Now()
			execErr := h.Exec(ctx, w.Statement)
			elapsed := time.Since(execStart)

			if execErr != nil && ctx.Err() != nil {
				// Interrupted mid-statement, not a statement failure.
				result.Cancelled = true
				return nil
			}

			result.Attempted++
			if w.Metrics != nil {
				w.Metrics.RecordExecution(w.ID, elapsed, execErr == nil)
			}

			if execErr != nil {
				result.Failed++
				if result.firstErr == nil {
					result.firstErr = execErr
					result.FirstError = execErr.Error()
				}
				w.Sink.ExecFailed(w.ID, i, execErr)
				if w.FailFast {
					return &ExecutionError{WorkerID: w.ID, Index: i, Err: execErr}
				}
				continue
			}

			result.Succeeded++
			if i%progressEvery == 0 {
				w.Sink.Progress(w.ID, i, w.Repeat)
			}
		}
		return nil
	})

	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// Cancelled while waiting for a session.
		result.Cancelled = true
		err = nil
	}

	result.Duration = time.Since(start)
	w.Sink.WorkerDone(result)

	return result, err
}
