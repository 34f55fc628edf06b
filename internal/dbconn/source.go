// Package dbconn turns a connection string into database sessions for the
// connection pool.
package dbconn

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/colstorm/internal/pool"
)

// Source opens sessions against one database. Each session is a dedicated
// driver connection, so closing a session disconnects it.
type Source struct {
	driver         string
	db             *sql.DB
	connectTimeout time.Duration
	execTimeout    time.Duration
	logger         *slog.Logger
	opened         atomic.Int64
}

// Options tunes a Source.
type Options struct {
	// MaxSessions caps the number of concurrently open sessions.
	MaxSessions int
	// ConnectTimeout bounds opening one session. Zero means no limit beyond
	// the caller's context.
	ConnectTimeout time.Duration
	// ExecTimeout bounds one statement execution. Zero means no limit.
	ExecTimeout time.Duration
	// Logger receives session lifecycle events. Nil discards them.
	Logger *slog.Logger
}

// NewSource resolves connString and prepares a database handle. No network
// connection is made until Open is called.
func NewSource(connString string, opts Options) (*Source, error) {
	driverName, dsn, err := Resolve(connString)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	if opts.MaxSessions > 0 {
		db.SetMaxOpenConns(opts.MaxSessions)
	}
	// Idle connections are never kept by database/sql: a released session
	// is really disconnected.
	db.SetMaxIdleConns(0)

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Source{
		driver:         driverName,
		db:             db,
		connectTimeout: opts.ConnectTimeout,
		execTimeout:    opts.ExecTimeout,
		logger:         logger.With("driver", driverName),
	}, nil
}

// Driver returns the database/sql driver name.
func (s *Source) Driver() string {
	return s.driver
}

// Open establishes one session and verifies it with a ping.
func (s *Source) Open(ctx context.Context) (pool.Conn, error) {
	if s.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.connectTimeout)
		defer cancel()
	}

	start := time.Now()
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", s.driver, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping %s: %w", s.driver, err)
	}

	id := s.opened.Add(1)
	s.logger.Debug("session opened", "session", id, "elapsed", time.Since(start))

	return &Session{id: id, conn: conn, source: s}, nil
}

// Close releases the underlying database handle. Sessions still open are
// closed by database/sql once they are returned.
func (s *Source) Close() error {
	return s.db.Close()
}

// Session is one open database session.
type Session struct {
	id     int64
	conn   *sql.Conn
	source *Source
	closed atomic.Bool
}

// Exec runs stmt on this session and discards any result rows. Driver
// errors are returned as *ExecError.
func (s *Session) Exec(ctx context.Context, stmt string) error {
	if s.closed.Load() {
		return &ExecError{Driver: s.source.driver, Err: sql.ErrConnDone}
	}
	if s.source.execTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.source.execTimeout)
		defer cancel()
	}

	_, err := s.conn.ExecContext(ctx, stmt)
	return Classify(s.source.driver, err)
}

// Close disconnects the session. Calling Close more than once is a no-op.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.source.logger.Debug("session closed", "session", s.id)
	return s.conn.Close()
}
