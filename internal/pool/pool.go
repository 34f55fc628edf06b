// Package pool manages a fixed set of database sessions shared by load workers.
//
// All sessions are opened up front by New. Workers check a session out with
// Acquire, use it exclusively, and hand it back with Release. When every
// session is checked out, Acquire parks the caller in a FIFO wait queue and the
// next Release hands its session directly to the oldest waiter.
//
// # Thread Safety
//
// Pool is safe for concurrent use. A single mutex guards the idle queue, the
// checked-out set and the wait queue. Acquire is the only blocking operation.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrClosed is returned by Acquire once the pool has been closed.
	ErrClosed = errors.New("pool is closed")

	// ErrNotCheckedOut is returned by Release for a handle that is not
	// currently checked out from the pool (double release or foreign handle).
	ErrNotCheckedOut = errors.New("connection is not checked out from this pool")

	// ErrInvalidSize is returned by New when size is less than one.
	ErrInvalidSize = errors.New("pool size must be at least 1")
)

// Conn is a single live database session.
type Conn interface {
	// Exec runs one statement and discards any result.
	Exec(ctx context.Context, stmt string) error

	// Close disconnects the session.
	Close() error
}

// Opener establishes new sessions.
type Opener interface {
	Open(ctx context.Context) (Conn, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context) (Conn, error)

// Open calls f(ctx).
func (f OpenerFunc) Open(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// ConnectError reports that the pool could not open all of its sessions.
type ConnectError struct {
	// Attempt is the 1-based index of the session that failed to open.
	Attempt int
	// Size is the requested pool size.
	Size int
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to open connection %d of %d: %v", e.Attempt, e.Size, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Handle is exclusive ownership of one pooled session.
type Handle struct {
	id   int
	conn Conn
	pool *Pool
}

// ID returns the 1-based slot of the session in its pool.
func (h *Handle) ID() int {
	return h.id
}

// Conn returns the underlying session.
func (h *Handle) Conn() Conn {
	return h.conn
}

// Exec runs stmt on the underlying session.
func (h *Handle) Exec(ctx context.Context, stmt string) error {
	return h.conn.Exec(ctx, stmt)
}

type waiter struct {
	ch chan *Handle
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Size         int           `json:"size" yaml:"size"`
	Idle         int           `json:"idle" yaml:"idle"`
	InUse        int           `json:"inUse" yaml:"inUse"`
	Waiting      int           `json:"waiting" yaml:"waiting"`
	Acquired     int64         `json:"acquired" yaml:"acquired"`
	WaitCount    int64         `json:"waitCount" yaml:"waitCount"`
	WaitDuration time.Duration `json:"waitDuration" yaml:"waitDuration"`
	Closed       bool          `json:"closed" yaml:"closed"`
}

// Pool is a fixed-size pool of sessions.
type Pool struct {
	size int

	mu      sync.Mutex
	idle    []*Handle
	inUse   map[*Handle]struct{}
	waiters []*waiter
	closed  bool

	acquired     int64
	waitCount    int64
	waitDuration time.Duration
}

// New opens size sessions from opener, one after another.
//
// If any attempt fails, every session opened so far is closed and a
// *ConnectError is returned. A partially built pool is never returned.
func New(ctx context.Context, opener Opener, size int) (*Pool, error) {
	if size < 1 {
		return nil, ErrInvalidSize
	}

	p := &Pool{
		size:  size,
		idle:  make([]*Handle, 0, size),
		inUse: make(map[*Handle]struct{}, size),
	}

	for i := 0; i < size; i++ {
		var conn Conn
		err := ctx.Err()
		if err == nil {
			conn, err = opener.Open(ctx)
		}
		if err == nil && conn == nil {
			err = errors.New("opener returned no connection")
		}
		if err != nil {
			var closeErrs []error
			for _, h := range p.idle {
				if cerr := h.conn.Close(); cerr != nil {
					closeErrs = append(closeErrs, fmt.Errorf("close connection %d: %w", h.id, cerr))
				}
			}
			p.idle = nil
			return nil, &ConnectError{
				Attempt: i + 1,
				Size:    size,
				Err:     errors.Join(append([]error{err}, closeErrs...)...),
			}
		}
		p.idle = append(p.idle, &Handle{id: i + 1, conn: conn, pool: p})
	}

	return p, nil
}

// Size returns the number of sessions the pool was built with.
func (p *Pool) Size() int {
	return p.size
}

// Acquire checks out a session, blocking until one is available.
//
// The pool has no timeout of its own; cancel ctx to stop waiting.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}

	if len(p.idle) > 0 {
		h := p.idle[0]
		p.idle[0] = nil
		p.idle = p.idle[1:]
		p.inUse[h] = struct{}{}
		p.acquired++
		p.mu.Unlock()
		return h, nil
	}

	if err := ctx.Err(); err != nil {
		p.mu.Unlock()
		return nil, err
	}

	w := &waiter{ch: make(chan *Handle, 1)}
	p.waiters = append(p.waiters, w)
	p.waitCount++
	p.mu.Unlock()

	start := time.Now()
	select {
	case h, ok := <-w.ch:
		p.recordWait(time.Since(start))
		if !ok {
			return nil, ErrClosed
		}
		return h, nil

	case <-ctx.Done():
		p.mu.Lock()
		removed := p.removeWaiterLocked(w)
		p.mu.Unlock()
		p.recordWait(time.Since(start))

		if !removed {
			// A release or close got to the waiter first.
			if h, ok := <-w.ch; ok {
				_ = p.Release(h)
			}
		}
		return nil, ctx.Err()
	}
}

// Release returns a session to the pool.
//
// If callers are waiting, the session goes straight to the oldest one.
// Releasing a handle that is not checked out returns ErrNotCheckedOut and
// changes nothing. After Close, released sessions are disconnected.
func (p *Pool) Release(h *Handle) error {
	if h == nil || h.pool != p {
		return ErrNotCheckedOut
	}

	p.mu.Lock()
	if _, ok := p.inUse[h]; !ok {
		p.mu.Unlock()
		return ErrNotCheckedOut
	}

	if p.closed {
		delete(p.inUse, h)
		p.mu.Unlock()
		return h.conn.Close()
	}

	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters[0] = nil
		p.waiters = p.waiters[1:]
		p.acquired++
		// Ownership moves to the waiter; h stays in the checked-out set.
		w.ch <- h
		p.mu.Unlock()
		return nil
	}

	delete(p.inUse, h)
	p.idle = append(p.idle, h)
	p.mu.Unlock()
	return nil
}

// With acquires a session, passes it to fn and releases it on every exit
// path, including a panic in fn.
func (p *Pool) With(ctx context.Context, fn func(h *Handle) error) (err error) {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := p.Release(h); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn(h)
}

// Close disconnects every idle session and wakes all waiters with ErrClosed.
//
// Sessions still checked out are disconnected when they are released.
// Close is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, w := range waiters {
		close(w.ch)
	}

	var errs []error
	for _, h := range idle {
		if err := h.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection %d: %w", h.id, err))
		}
	}
	return errors.Join(errs...)
}

// Stats returns a consistent snapshot of the pool state.
//
// While the pool is open, Idle+InUse always equals Size.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Size:         p.size,
		Idle:         len(p.idle),
		InUse:        len(p.inUse),
		Waiting:      len(p.waiters),
		Acquired:     p.acquired,
		WaitCount:    p.waitCount,
		WaitDuration: p.waitDuration,
		Closed:       p.closed,
	}
}

func (p *Pool) removeWaiterLocked(w *waiter) bool {
	for i, candidate := range p.waiters {
		if candidate == w {
			copy(p.waiters[i:], p.waiters[i+1:])
			p.waiters[len(p.waiters)-1] = nil
			p.waiters = p.waiters[:len(p.waiters)-1]
			return true
		}
	}
	return false
}

func (p *Pool) recordWait(d time.Duration) {
	p.mu.Lock()
	p.waitDuration += d
	p.mu.Unlock()
}
