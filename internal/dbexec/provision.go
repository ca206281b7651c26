package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNoExecutor indicates that a request carried no execution handle and no
// fallback source was configured. This is a configuration error, not a
// per-request recoverable condition.
var ErrNoExecutor = errors.New("dbexec: no executor in request and no default source configured")

// Source provides fallback executors for requests that do not already
// carry one.
type Source struct {
	db   *sql.DB
	opts Options
}

// NewSource creates a fallback executor source backed by a connection pool.
func NewSource(db *sql.DB, opts Options) *Source {
	return &Source{db: db, opts: opts}
}

// Acquire opens a fresh session-backed executor from the pool. Executors
// drawn here are owned by the provisioning caller, which must release them
// on every exit path, including cancellation.
func (s *Source) Acquire(ctx context.Context) (*Executor, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("dbexec: failed to acquire connection: %w", err)
	}
	return &Executor{conn: conn, opts: s.opts}, nil
}

// Close releases the session held by a source-acquired executor. Closing a
// pool- or transaction-backed executor is a no-op: those handles belong to
// the caller that supplied them.
func (e *Executor) Close() error {
	if e.conn == nil {
		return nil
	}
	conn := e.conn
	e.conn = nil
	return conn.Close()
}

// Provision returns the request's existing executor when present; otherwise
// it draws one from the fallback source. The returned owned flag is true
// only for executors the provisioner opened itself: callers never close a
// handle the request supplied, and always close one they were handed here.
func Provision(ctx context.Context, existing *Executor, source *Source) (exec *Executor, owned bool, err error) {
	if existing != nil {
		return existing, false, nil
	}
	if source == nil {
		return nil, false, ErrNoExecutor
	}
	exec, err = source.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	return exec, true, nil
}
