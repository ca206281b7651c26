// Package dbexec provides the database execution handle used by the
// resolution pipeline. An Executor wraps exactly one of a connection pool,
// an active session, or an active transaction, and carries per-request
// query options. It also owns the provisioning rules and the database
// version cache consulted during context composition.
package dbexec

import (
	"context"
	"database/sql"
	"time"
)

// Rows abstracts sql.Rows to allow wrapped cleanup behavior.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor abstracts SQL execution so callers can swap handles without
// caring whether they run against a pool, session, or transaction.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Options carry per-request execution overrides.
type Options struct {
	// QueryTimeout bounds each statement; zero means no per-statement bound.
	QueryTimeout time.Duration
}

// Executor is the per-request execution handle. It dispatches to the most
// specific handle it wraps: transaction, then session, then pool. An
// Executor is never shared across concurrent requests.
type Executor struct {
	db   *sql.DB
	conn *sql.Conn
	tx   *sql.Tx
	opts Options
}

// NewExecutor wraps a connection pool.
func NewExecutor(db *sql.DB, opts Options) *Executor {
	return &Executor{db: db, opts: opts}
}

// NewSessionExecutor wraps an active session. The caller retains ownership
// of the connection unless the executor was provisioned from a Source.
func NewSessionExecutor(conn *sql.Conn, opts Options) *Executor {
	return &Executor{conn: conn, opts: opts}
}

// NewTxExecutor wraps an active transaction. Commit/rollback stays with
// the caller.
func NewTxExecutor(tx *sql.Tx, opts Options) *Executor {
	return &Executor{tx: tx, opts: opts}
}

// Options returns the per-request execution overrides.
func (e *Executor) Options() Options { return e.opts }

func (e *Executor) statementContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.QueryTimeout > 0 {
		return context.WithTimeout(ctx, e.opts.QueryTimeout)
	}
	return ctx, func() {}
}

func (e *Executor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	ctx, cancel := e.statementContext(ctx)

	var rows *sql.Rows
	var err error
	switch {
	case e.tx != nil:
		rows, err = e.tx.QueryContext(ctx, query, args...)
	case e.conn != nil:
		rows, err = e.conn.QueryContext(ctx, query, args...)
	case e.db != nil:
		rows, err = e.db.QueryContext(ctx, query, args...)
	default:
		cancel()
		return nil, sql.ErrConnDone
	}
	if err != nil {
		cancel()
		return nil, err
	}
	return &timeoutRows{Rows: rows, cancel: cancel}, nil
}

func (e *Executor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, cancel := e.statementContext(ctx)
	defer cancel()

	switch {
	case e.tx != nil:
		return e.tx.ExecContext(ctx, query, args...)
	case e.conn != nil:
		return e.conn.ExecContext(ctx, query, args...)
	case e.db != nil:
		return e.db.ExecContext(ctx, query, args...)
	default:
		return nil, sql.ErrConnDone
	}
}

// timeoutRows keeps the per-statement context alive until the rows are closed.
type timeoutRows struct {
	*sql.Rows
	cancel context.CancelFunc
}

func (r *timeoutRows) Close() error {
	defer r.cancel()
	return r.Rows.Close()
}
