// Package metrics aggregates statement execution latencies.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Engine collects execution metrics using HDR histograms.
//
// Every execution is recorded once in the overall histogram and once in the
// histogram of the worker that ran it, so per-worker latency is available
// without a second pass.
//
// # Thread Safety
//
// Engine is safe for concurrent use. Counters use atomic operations and
// histograms are guarded by mutexes.
type Engine struct {
	// Range: 1 microsecond to 1 hour, 3 significant figures
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	workerHists   map[int]*hdrhistogram.Histogram
	workerHistsMu sync.Mutex

	totalExecs   atomic.Int64
	successExecs atomic.Int64
	failedExecs  atomic.Int64

	activeWorkers atomic.Int32

	timingMu  sync.RWMutex
	startTime time.Time
	endTime   time.Time

	config EngineConfig
}

// EngineConfig contains configuration for the metrics engine.
type EngineConfig struct {
	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 3600000000 = 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		HistogramMin:     1,
		HistogramMax:     3600000000, // 1 hour in microseconds
		HistogramSigFigs: 3,
	}
}

// NewEngine creates a metrics engine with default configuration. The
// measurement window starts now.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig creates a metrics engine with custom configuration.
func NewEngineWithConfig(config EngineConfig) *Engine {
	return &Engine{
		latencyHist: hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		workerHists: make(map[int]*hdrhistogram.Histogram),
		startTime:   time.Now(),
		config:      config,
	}
}

// Start restarts the measurement window. Call it right before the first
// execution so session setup is excluded from throughput.
func (e *Engine) Start() {
	e.timingMu.Lock()
	e.startTime = time.Now()
	e.endTime = time.Time{}
	e.timingMu.Unlock()
}

// Stop closes the measurement window. Snapshots taken afterwards report a
// fixed elapsed time.
func (e *Engine) Stop() {
	e.timingMu.Lock()
	if e.endTime.IsZero() {
		e.endTime = time.Now()
	}
	e.timingMu.Unlock()
}

// RecordExecution records the latency and outcome of one statement execution
// run by worker.
func (e *Engine) RecordExecution(worker int, duration time.Duration, success bool) {
	latencyMicros := e.clamp(duration.Microseconds())

	e.latencyHistMu.Lock()
	_ = e.latencyHist.RecordValue(latencyMicros)
	e.latencyHistMu.Unlock()

	e.recordWorkerHistogram(worker, latencyMicros)

	e.totalExecs.Add(1)
	if success {
		e.successExecs.Add(1)
	} else {
		e.failedExecs.Add(1)
	}
}

func (e *Engine) clamp(micros int64) int64 {
	if micros < e.config.HistogramMin {
		return e.config.HistogramMin
	}
	if micros > e.config.HistogramMax {
		return e.config.HistogramMax
	}
	return micros
}

// recordWorkerHistogram records a latency in a per-worker histogram.
// HDR histogram RecordValue is not thread-safe, so the lock is held.
func (e *Engine) recordWorkerHistogram(worker int, latencyMicros int64) {
	e.workerHistsMu.Lock()
	defer e.workerHistsMu.Unlock()

	hist, exists := e.workerHists[worker]
	if !exists {
		hist = hdrhistogram.New(e.config.HistogramMin, e.config.HistogramMax, e.config.HistogramSigFigs)
		e.workerHists[worker] = hist
	}

	_ = hist.RecordValue(latencyMicros)
}

// WorkerStarted marks a worker as running.
func (e *Engine) WorkerStarted() {
	e.activeWorkers.Add(1)
}

// WorkerFinished marks a worker as done.
func (e *Engine) WorkerFinished() {
	e.activeWorkers.Add(-1)
}

// ActiveWorkers returns the number of workers currently running.
func (e *Engine) ActiveWorkers() int {
	return int(e.activeWorkers.Load())
}

// Snapshot returns a point-in-time view of all metrics.
func (e *Engine) Snapshot() *Snapshot {
	e.latencyHistMu.Lock()
	latency := statsOf(e.latencyHist)
	e.latencyHistMu.Unlock()

	e.timingMu.RLock()
	start, end := e.startTime, e.endTime
	e.timingMu.RUnlock()
	if end.IsZero() {
		end = time.Now()
	}
	elapsed := end.Sub(start)

	total := e.totalExecs.Load()
	failed := e.failedExecs.Load()

	throughput := 0.0
	if elapsed > 0 {
		throughput = float64(total) / elapsed.Seconds()
	}

	errorRate := 0.0
	if total > 0 {
		errorRate = float64(failed) / float64(total)
	}

	return &Snapshot{
		TotalExecs:    total,
		SuccessExecs:  e.successExecs.Load(),
		FailedExecs:   failed,
		Latency:       latency,
		Throughput:    throughput,
		ErrorRate:     errorRate,
		ActiveWorkers: e.ActiveWorkers(),
		Elapsed:       elapsed,
		StartTime:     start,
		Timestamp:     time.Now(),
	}
}

// LatencyPercentiles returns the current overall latency percentiles.
func (e *Engine) LatencyPercentiles() LatencyStats {
	e.latencyHistMu.Lock()
	defer e.latencyHistMu.Unlock()
	return statsOf(e.latencyHist)
}

// WorkerStats returns latency statistics per worker, ordered by worker id.
func (e *Engine) WorkerStats() []WorkerLatency {
	e.workerHistsMu.Lock()
	defer e.workerHistsMu.Unlock()

	result := make([]WorkerLatency, 0, len(e.workerHists))
	for id, hist := range e.workerHists {
		result = append(result, WorkerLatency{WorkerID: id, Latency: statsOf(hist)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].WorkerID < result[j].WorkerID })
	return result
}

// Reset clears all recorded data and restarts the measurement window.
func (e *Engine) Reset() {
	e.latencyHistMu.Lock()
	e.latencyHist.Reset()
	e.latencyHistMu.Unlock()

	e.workerHistsMu.Lock()
	e.workerHists = make(map[int]*hdrhistogram.Histogram)
	e.workerHistsMu.Unlock()

	e.totalExecs.Store(0)
	e.successExecs.Store(0)
	e.failedExecs.Store(0)
	e.activeWorkers.Store(0)

	e.Start()
}

func statsOf(hist *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    time.Duration(hist.Min()) * time.Microsecond,
		Max:    time.Duration(hist.Max()) * time.Microsecond,
		Mean:   time.Duration(hist.Mean()) * time.Microsecond,
		StdDev: time.Duration(hist.StdDev()) * time.Microsecond,
		P50:    time.Duration(hist.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(hist.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(hist.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(hist.ValueAtQuantile(99)) * time.Microsecond,
		Count:  hist.TotalCount(),
	}
}

// Snapshot contains a point-in-time view of all metrics.
type Snapshot struct {
	TotalExecs    int64         `json:"totalExecs" yaml:"totalExecs"`
	SuccessExecs  int64         `json:"successExecs" yaml:"successExecs"`
	FailedExecs   int64         `json:"failedExecs" yaml:"failedExecs"`
	Latency       LatencyStats  `json:"latency" yaml:"latency"`
	Throughput    float64       `json:"throughput" yaml:"throughput"`
	ErrorRate     float64       `json:"errorRate" yaml:"errorRate"`
	ActiveWorkers int           `json:"activeWorkers" yaml:"activeWorkers"`
	Elapsed       time.Duration `json:"elapsed" yaml:"elapsed"`
	StartTime     time.Time     `json:"startTime" yaml:"startTime"`
	Timestamp     time.Time     `json:"timestamp" yaml:"timestamp"`
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min" yaml:"min"`
	Max    time.Duration `json:"max" yaml:"max"`
	Mean   time.Duration `json:"mean" yaml:"mean"`
	StdDev time.Duration `json:"stdDev" yaml:"stdDev"`
	P50    time.Duration `json:"p50" yaml:"p50"`
	P90    time.Duration `json:"p90" yaml:"p90"`
	P95    time.Duration `json:"p95" yaml:"p95"`
	P99    time.Duration `json:"p99" yaml:"p99"`
	Count  int64         `json:"count" yaml:"count"`
}

// WorkerLatency is the latency distribution of one worker.
type WorkerLatency struct {
	WorkerID int          `json:"workerId" yaml:"workerId"`
	Latency  LatencyStats `json:"latency" yaml:"latency"`
}
