package pacing

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		interval time.Duration
		wantErr  bool
	}{
		{"100 per second", 100, 10 * time.Millisecond, false},
		{"fractional", 0.5, 2 * time.Second, false},
		{"zero", 0, 0, true},
		{"negative", -10, 0, true},
		{"NaN", math.NaN(), 0, true},
		{"infinite", math.Inf(1), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.rate)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%v) error = %v, wantErr %v", tt.rate, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if p.Interval() != tt.interval {
				t.Errorf("Interval() = %v, want %v", p.Interval(), tt.interval)
			}
			if p.Rate() != tt.rate {
				t.Errorf("Rate() = %v, want %v", p.Rate(), tt.rate)
			}
		})
	}
}

// near reports whether got is within a microsecond of want; the limiter
// converts between tokens and durations in floating point.
func near(got, want time.Duration) bool {
	d := got - want
	return d > -time.Microsecond && d < time.Microsecond
}

func TestPacer_SlotsAreEvenlySpaced(t *testing.T) {
	p, _ := New(100)
	now := time.Now()

	first := p.reserve(now)
	second := p.reserve(now.Add(time.Millisecond))
	third := p.reserve(now.Add(2 * time.Millisecond))

	if !first.Equal(now) {
		t.Errorf("first slot = %v, want now", first.Sub(now))
	}
	if got := second.Sub(first); !near(got, 10*time.Millisecond) {
		t.Errorf("second slot offset = %v, want 10ms", got)
	}
	if got := third.Sub(second); !near(got, 10*time.Millisecond) {
		t.Errorf("third slot offset = %v, want 10ms", got)
	}

	stats := p.Stats()
	if stats.Scheduled != 3 {
		t.Errorf("Scheduled = %d, want 3", stats.Scheduled)
	}
	// 9ms for the second slot, 18ms for the third.
	if !near(stats.Waited, 27*time.Millisecond) {
		t.Errorf("Waited = %v, want 27ms", stats.Waited)
	}
}

func TestPacer_NoBurstAfterIdle(t *testing.T) {
	p, _ := New(100)
	now := time.Now()

	p.reserve(now)
	later := now.Add(time.Second)

	first := p.reserve(later)
	second := p.reserve(later)
	if !first.Equal(later) {
		t.Errorf("slot after idle = %v, want the current time", first.Sub(later))
	}
	if got := second.Sub(first); !near(got, 10*time.Millisecond) {
		t.Errorf("slot after idle is followed by %v, want the normal 10ms interval", got)
	}
}

func TestPacer_CancelledWaitReturnsSlot(t *testing.T) {
	p, _ := New(10)
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() = %v, want immediate nil", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx); err != context.DeadlineExceeded {
		t.Fatalf("Wait() error = %v, want DeadlineExceeded", err)
	}

	stats := p.Stats()
	if stats.Scheduled != 1 {
		t.Errorf("Scheduled = %d, want 1", stats.Scheduled)
	}
	if stats.Waited != 0 {
		t.Errorf("Waited = %v, want 0 for a cancelled wait", stats.Waited)
	}

	// The cancelled slot was given back: the next one is 100ms after the
	// first, not 200ms.
	next := p.reserve(time.Now())
	if d := time.Until(next); d > 100*time.Millisecond {
		t.Errorf("next slot in %v, want at most 100ms", d)
	}
}

func TestPacer_WaitRespectsContext(t *testing.T) {
	p, _ := New(1)
	ctx := context.Background()

	if err := p.Wait(ctx); err != nil {
		t.Fatalf("first Wait() = %v, want immediate nil", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Wait(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Wait() took %v after cancellation", elapsed)
	}
}

func TestPacer_WaitCancelledBeforeStart(t *testing.T) {
	p, _ := New(1000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Wait(ctx); err != context.Canceled {
		t.Errorf("Wait() error = %v, want Canceled", err)
	}
}

func TestPacer_ConcurrentRate(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	const rate, workers, perWorker = 200.0, 4, 10
	p, _ := New(rate)

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_ = p.Wait(context.Background())
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	// 40 slots at 5ms spacing: the last one starts 195ms in.
	if elapsed < 190*time.Millisecond {
		t.Errorf("40 executions at %v/s finished in %v, want at least 190ms", rate, elapsed)
	}
	if got := p.Stats().Scheduled; got != workers*perWorker {
		t.Errorf("Scheduled = %d, want %d", got, workers*perWorker)
	}
}
