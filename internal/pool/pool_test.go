package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

type fakeConn struct {
	id      int
	holders atomic.Int32
	closes  atomic.Int32
}

func (c *fakeConn) Exec(ctx context.Context, stmt string) error {
	return nil
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	return nil
}

// fakeOpener hands out fakeConns and fails on attempt failOn (1-based, 0 = never).
type fakeOpener struct {
	mu     sync.Mutex
	opened []*fakeConn
	failOn int
	calls  int
}

func (o *fakeOpener) Open(ctx context.Context) (Conn, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.calls++
	if o.failOn > 0 && o.calls == o.failOn {
		return nil, errBoom
	}
	c := &fakeConn{id: len(o.opened) + 1}
	o.opened = append(o.opened, c)
	return c, nil
}

func newTestPool(t *testing.T, size int) (*Pool, *fakeOpener) {
	t.Helper()
	opener := &fakeOpener{}
	p, err := New(context.Background(), opener, size)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p, opener
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew_OpensAllConnections(t *testing.T) {
	p, opener := newTestPool(t, 3)
	defer p.Close()

	if len(opener.opened) != 3 {
		t.Errorf("opened %d connections, want 3", len(opener.opened))
	}
	if p.Size() != 3 {
		t.Errorf("Size() = %d, want 3", p.Size())
	}

	stats := p.Stats()
	if stats.Size != 3 || stats.Idle != 3 || stats.InUse != 0 {
		t.Errorf("Stats() = %+v, want size=3 idle=3 inUse=0", stats)
	}
}

func TestNew_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := New(context.Background(), &fakeOpener{}, size)
		if !errors.Is(err, ErrInvalidSize) {
			t.Errorf("New(size=%d) error = %v, want ErrInvalidSize", size, err)
		}
	}
}

func TestNew_FailureClosesOpenedConnections(t *testing.T) {
	opener := &fakeOpener{failOn: 2}

	p, err := New(context.Background(), opener, 2)
	if p != nil {
		t.Fatal("New() returned a pool on failure")
	}

	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("New() error = %v, want *ConnectError", err)
	}
	if connErr.Attempt != 2 || connErr.Size != 2 {
		t.Errorf("ConnectError = attempt %d of %d, want 2 of 2", connErr.Attempt, connErr.Size)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("ConnectError does not wrap the opener error: %v", err)
	}

	if len(opener.opened) != 1 {
		t.Fatalf("opened %d connections, want 1", len(opener.opened))
	}
	if got := opener.opened[0].closes.Load(); got != 1 {
		t.Errorf("first connection closed %d times, want 1", got)
	}
}

func TestNew_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opener := &fakeOpener{}
	_, err := New(ctx, opener, 2)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("New() error = %v, want context.Canceled", err)
	}
	if opener.calls != 0 {
		t.Errorf("opener called %d times, want 0", opener.calls)
	}
}

func TestNew_NilConnIsAnError(t *testing.T) {
	opener := OpenerFunc(func(ctx context.Context) (Conn, error) {
		return nil, nil
	})

	_, err := New(context.Background(), opener, 1)
	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("New() error = %v, want *ConnectError", err)
	}
}

func TestAcquireRelease(t *testing.T) {
	p, _ := newTestPool(t, 3)
	defer p.Close()

	ctx := context.Background()
	h1, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	h2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if h1 == h2 || h1.Conn() == h2.Conn() {
		t.Fatal("Acquire() returned the same connection twice")
	}

	stats := p.Stats()
	if stats.Idle != 1 || stats.InUse != 2 {
		t.Errorf("after two acquires Stats() = %+v, want idle=1 inUse=2", stats)
	}

	if err := p.Release(h1); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if err := p.Release(h2); err != nil {
		t.Errorf("Release() error = %v", err)
	}

	stats = p.Stats()
	if stats.Idle != 3 || stats.InUse != 0 {
		t.Errorf("after releases Stats() = %+v, want idle=3 inUse=0", stats)
	}
	if stats.Acquired != 2 {
		t.Errorf("Acquired = %d, want 2", stats.Acquired)
	}
}

func TestRelease_RejectsHandlesNotCheckedOut(t *testing.T) {
	p, _ := newTestPool(t, 2)
	defer p.Close()
	other, _ := newTestPool(t, 1)
	defer other.Close()

	h, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := p.Release(h); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	foreign, err := other.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer other.Release(foreign)

	tests := []struct {
		name   string
		handle *Handle
	}{
		{"double release", h},
		{"foreign handle", foreign},
		{"nil handle", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := p.Stats()
			if err := p.Release(tt.handle); !errors.Is(err, ErrNotCheckedOut) {
				t.Errorf("Release() error = %v, want ErrNotCheckedOut", err)
			}
			if after := p.Stats(); after != before {
				t.Errorf("Stats changed from %+v to %+v", before, after)
			}
		})
	}
}

func TestAcquire_BlocksUntilRelease(t *testing.T) {
	p, _ := newTestPool(t, 1)
	defer p.Close()

	held, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	got := make(chan *Handle, 1)
	go func() {
		h, err := p.Acquire(context.Background())
		if err != nil {
			t.Errorf("blocked Acquire() error = %v", err)
		}
		got <- h
	}()

	waitFor(t, "acquirer to park", func() bool { return p.Stats().Waiting == 1 })

	select {
	case <-got:
		t.Fatal("Acquire() returned while the only connection was checked out")
	default:
	}

	if err := p.Release(held); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	select {
	case h := <-got:
		if h != held {
			t.Error("waiter did not receive the released connection")
		}
		stats := p.Stats()
		if stats.Idle != 0 || stats.InUse != 1 || stats.Waiting != 0 {
			t.Errorf("after handoff Stats() = %+v, want idle=0 inUse=1 waiting=0", stats)
		}
		if err := p.Release(h); err != nil {
			t.Errorf("Release() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by Release")
	}
}

func TestAcquire_ContextCancelled(t *testing.T) {
	p, _ := newTestPool(t, 1)
	defer p.Close()

	held, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := p.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire() error = %v, want DeadlineExceeded", err)
	}

	stats := p.Stats()
	if stats.Waiting != 0 {
		t.Errorf("Waiting = %d after cancellation, want 0", stats.Waiting)
	}
	if stats.WaitCount != 1 {
		t.Errorf("WaitCount = %d, want 1", stats.WaitCount)
	}

	if err := p.Release(held); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if idle := p.Stats().Idle; idle != 1 {
		t.Errorf("Idle = %d after release, want 1", idle)
	}
}

func TestAcquire_AlreadyCancelledContextWithIdleConnection(t *testing.T) {
	p, _ := newTestPool(t, 1)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// An idle connection is handed out without consulting ctx.
	h, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	p.Release(h)
}

func TestPool_ConcurrentExclusivityAndInvariant(t *testing.T) {
	const (
		size       = 3
		goroutines = 16
		iterations = 200
	)

	p, opener := newTestPool(t, size)
	defer p.Close()

	stop := make(chan struct{})
	var checker sync.WaitGroup
	checker.Add(1)
	go func() {
		defer checker.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			s := p.Stats()
			if s.Idle+s.InUse != s.Size {
				t.Errorf("invariant broken: idle=%d inUse=%d size=%d", s.Idle, s.InUse, s.Size)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				h, err := p.Acquire(context.Background())
				if err != nil {
					t.Errorf("Acquire() error = %v", err)
					return
				}
				c := h.Conn().(*fakeConn)
				if n := c.holders.Add(1); n != 1 {
					t.Errorf("connection %d held by %d owners", c.id, n)
				}
				c.holders.Add(-1)
				if err := p.Release(h); err != nil {
					t.Errorf("Release() error = %v", err)
					return
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("acquirers did not all complete")
	}
	close(stop)
	checker.Wait()

	stats := p.Stats()
	if stats.Idle != size || stats.InUse != 0 || stats.Waiting != 0 {
		t.Errorf("final Stats() = %+v, want idle=%d inUse=0 waiting=0", stats, size)
	}
	if stats.Acquired != goroutines*iterations {
		t.Errorf("Acquired = %d, want %d", stats.Acquired, goroutines*iterations)
	}
	if len(opener.opened) != size {
		t.Errorf("opener called %d times, want %d", len(opener.opened), size)
	}
}

func TestClose_DisconnectsEveryConnectionOnce(t *testing.T) {
	p, opener := newTestPool(t, 3)

	held, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if _, err := p.Acquire(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Acquire() after Close error = %v, want ErrClosed", err)
	}

	// The checked-out connection is disconnected when it comes back.
	if err := p.Release(held); err != nil {
		t.Errorf("Release() after Close error = %v", err)
	}
	if err := p.Release(held); !errors.Is(err, ErrNotCheckedOut) {
		t.Errorf("second Release() after Close error = %v, want ErrNotCheckedOut", err)
	}

	for _, c := range opener.opened {
		if got := c.closes.Load(); got != 1 {
			t.Errorf("connection %d closed %d times, want 1", c.id, got)
		}
	}

	stats := p.Stats()
	if !stats.Closed || stats.Idle != 0 || stats.InUse != 0 {
		t.Errorf("Stats() after Close = %+v", stats)
	}
}

func TestClose_WakesWaiters(t *testing.T) {
	p, _ := newTestPool(t, 1)

	held, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		errCh <- err
	}()

	waitFor(t, "acquirer to park", func() bool { return p.Stats().Waiting == 1 })

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("waiter error = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by Close")
	}

	p.Release(held)
}

func TestWith_ReleasesOnEveryPath(t *testing.T) {
	p, _ := newTestPool(t, 1)
	defer p.Close()

	ctx := context.Background()

	if err := p.With(ctx, func(h *Handle) error { return nil }); err != nil {
		t.Errorf("With() error = %v", err)
	}

	if err := p.With(ctx, func(h *Handle) error { return errBoom }); !errors.Is(err, errBoom) {
		t.Errorf("With() error = %v, want errBoom", err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = p.With(ctx, func(h *Handle) error { panic("worker blew up") })
	}()

	if idle := p.Stats().Idle; idle != 1 {
		t.Errorf("Idle = %d after With calls, want 1", idle)
	}
}

func TestConnectError_Message(t *testing.T) {
	err := &ConnectError{Attempt: 2, Size: 4, Err: errBoom}
	want := "failed to open connection 2 of 4: boom"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
