// Package pacing spaces statement executions to a target rate shared by all
// workers of a run.
package pacing

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// ErrInvalidRate is returned for a rate that is not a positive finite number.
var ErrInvalidRate = errors.New("pacing: rate must be a positive number of executions per second")

// Pacer hands out evenly spaced start times, one per execution, from a
// token bucket with a burst of one: consecutive slots are one interval apart
// and a caller that is behind starts immediately.
//
// At most one slot is banked. After an idle period only the first caller
// starts at once, so a slow phase is not followed by a burst.
//
// Pacer is safe for concurrent use from multiple goroutines.
//
// Example:
//
//	p, _ := pacing.New(200) // 200 executions per second across all workers
//	for i := 0; i < n; i++ {
//		if err := p.Wait(ctx); err != nil {
//			return err
//		}
//		exec()
//	}
type Pacer struct {
	rate    float64
	limiter *rate.Limiter

	scheduled atomic.Int64
	waited    atomic.Int64 // nanoseconds
}

// Stats describes what a pacer did during a run.
type Stats struct {
	Rate      float64       `json:"rate" yaml:"rate"`
	Scheduled int64         `json:"scheduled" yaml:"scheduled"`
	Waited    time.Duration `json:"waited" yaml:"waited"`
}

// New returns a pacer for r executions per second.
func New(r float64) (*Pacer, error) {
	if r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return nil, ErrInvalidRate
	}
	return &Pacer{rate: r, limiter: rate.NewLimiter(rate.Limit(r), 1)}, nil
}

// Rate returns the target rate in executions per second.
func (p *Pacer) Rate() float64 {
	return p.rate
}

// Interval returns the spacing between consecutive slots.
func (p *Pacer) Interval() time.Duration {
	interval := time.Duration(float64(time.Second) / p.rate)
	if interval <= 0 {
		interval = 1
	}
	return interval
}

// reserve claims the next slot as of now and returns its start time.
func (p *Pacer) reserve(now time.Time) time.Time {
	res := p.limiter.ReserveN(now, 1)
	d := res.DelayFrom(now)

	p.scheduled.Add(1)
	if d > 0 {
		p.waited.Add(int64(d))
	}
	return now.Add(d)
}

// Wait blocks until the caller's slot starts or ctx is done. A cancelled
// wait gives its slot back and is not counted.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now()
	res := p.limiter.ReserveN(now, 1)
	d := res.DelayFrom(now)
	if d <= 0 {
		p.scheduled.Add(1)
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		res.Cancel()
		return ctx.Err()
	case <-timer.C:
		p.scheduled.Add(1)
		p.waited.Add(int64(d))
		return nil
	}
}

// Stats returns the pacer's counters.
func (p *Pacer) Stats() Stats {
	return Stats{
		Rate:      p.rate,
		Scheduled: p.scheduled.Load(),
		Waited:    time.Duration(p.waited.Load()),
	}
}
