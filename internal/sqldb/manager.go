// Package sqldb owns the pooled connection source of the store and maps each
// transaction handle to a single reserved connection.
//
// In auto-commit mode every operation runs directly on the pool. Otherwise a
// handle returned by Begin reserves one connection on first Acquire and keeps
// it, across commits and aborts, until Release.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/clusterstore/internal/logger"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// Manager is the connection/transaction manager. It is safe for concurrent
// use; concurrency is bounded by the pool size.
type Manager struct {
	cfg     types.Config
	dialect Dialect
	db      *sql.DB
	logger  logger.Logger

	reserved atomic.Int64
	closed   atomic.Bool
}

// Tx is a transaction handle. It is owned by one unit of work and must be
// released when that work ends.
type Tx struct {
	id uuid.UUID

	mu       sync.Mutex
	conn     *sql.Conn
	tx       *sql.Tx
	released bool
}

// ID identifies the handle in logs.
func (t *Tx) ID() uuid.UUID { return t.id }

func (t *Tx) String() string { return "tx-" + t.id.String() }

// Open validates cfg, opens and sizes the pool, and pings the backend.
// Returns a Configuration error for bad settings and a ConnectionError when
// the backend cannot be reached.
func Open(ctx context.Context, cfg types.Config, l logger.Logger) (*Manager, error) {
	if l == nil {
		l = logger.NopLogger
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d, err := DialectFor(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	if d == SQLite {
		if err := os.MkdirAll(filepath.Dir(SQLitePath(cfg)), 0o755); err != nil {
			return nil, errors.Wrap(errors.New(errors.Configuration, err.Error()), "creating data directory")
		}
	}
	dsn, err := d.DSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, errors.Wrap(errors.New(errors.ConnectionError, err.Error()), "opening database")
	}
	db.SetMaxOpenConns(cfg.MaxPoolSize)
	db.SetMaxIdleConns(cfg.MinIdle)
	db.SetConnMaxIdleTime(cfg.IdleTimeout)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	pctx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.New(errors.ConnectionError, err.Error()), "pinging database")
	}

	l = l.WithPrefix("[sqldb] ")
	l.Infof("opened %s pool: max=%d idle=%d autocommit=%t readonly=%t", d.Name(), cfg.MaxPoolSize, cfg.MinIdle, cfg.AutoCommit, cfg.ReadOnly)
	return &Manager{cfg: cfg, dialect: d, db: db, logger: l}, nil
}

// Config returns the configuration the manager was opened with.
func (m *Manager) Config() types.Config { return m.cfg }

// Dialect returns the backend dialect.
func (m *Manager) Dialect() Dialect { return m.dialect }

// DB returns the underlying pool, for stats collection.
func (m *Manager) DB() *sql.DB { return m.db }

// Reserved returns the number of connections currently held by handles.
func (m *Manager) Reserved() int64 { return m.reserved.Load() }

// AutoCommit reports whether handles are bypassed.
func (m *Manager) AutoCommit() bool { return m.cfg.AutoCommit }

// Begin returns a new transaction handle. No connection is reserved until
// the first Acquire.
func (m *Manager) Begin() *Tx {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &Tx{id: id}
}

// Pool returns a Conn running directly on the pool, outside any handle.
func (m *Manager) Pool() *Conn {
	return NewConn(m.db, m.dialect, m.logger)
}

// Acquire returns the connection bound to t. In auto-commit mode t is
// ignored and the pool is returned. Otherwise t is required; the first call
// reserves a pooled connection and starts a transaction on it, and later
// calls return the same connection. Blocks while the pool is exhausted, up
// to the configured acquire timeout.
func (m *Manager) Acquire(ctx context.Context, t *Tx) (*Conn, error) {
	if m.closed.Load() {
		return nil, errors.New(errors.ConnectionError, "store is closed")
	}
	if m.cfg.AutoCommit {
		return m.Pool(), nil
	}
	if t == nil {
		return nil, errors.New(errors.Configuration, "a transaction handle is required when auto_commit is off")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.released {
		return nil, errors.Newf(errors.TransactionState, "%s was released", t)
	}
	if t.conn == nil {
		conn, err := m.reserve(ctx)
		if err != nil {
			return nil, err
		}
		t.conn = conn
		m.reserved.Add(1)
		m.logger.Debugf("%s reserved a connection", t)
	}
	if t.tx == nil {
		// The transaction must outlive the caller's context; it ends only on
		// Commit, Abort or Release.
		tx, err := t.conn.BeginTx(context.WithoutCancel(ctx), m.txOptions())
		if err != nil {
			return nil, m.dialect.Translate(err, fmt.Sprintf("beginning %s", t))
		}
		t.tx = tx
	}
	return NewConn(t.tx, m.dialect, m.logger), nil
}

func (m *Manager) reserve(ctx context.Context) (*sql.Conn, error) {
	actx, cancel := context.WithTimeout(ctx, m.cfg.AcquireTimeout)
	defer cancel()
	conn, err := m.db.Conn(actx)
	if err == nil {
		return conn, nil
	}
	if ctx.Err() == nil && actx.Err() == context.DeadlineExceeded {
		return nil, errors.Newf(errors.PoolExhausted, "no connection available within %s", m.cfg.AcquireTimeout)
	}
	if ctx.Err() != nil {
		return nil, errors.Wrap(ctx.Err(), "acquiring connection")
	}
	return nil, errors.Wrap(errors.New(errors.ConnectionError, err.Error()), "acquiring connection")
}

func (m *Manager) txOptions() *sql.TxOptions {
	// SQLite read-only mode is enforced by the query_only pragma instead.
	if m.cfg.ReadOnly && m.dialect != SQLite {
		return &sql.TxOptions{ReadOnly: true}
	}
	return nil
}

// Commit commits the active transaction of t. The connection stays reserved;
// the next Acquire starts a new transaction on it. No-op in auto-commit mode.
func (m *Manager) Commit(t *Tx) error {
	return m.end(t, "commit", func(tx *sql.Tx) error { return tx.Commit() })
}

// Abort rolls back the active transaction of t. The connection stays
// reserved. No-op in auto-commit mode.
func (m *Manager) Abort(t *Tx) error {
	return m.end(t, "abort", func(tx *sql.Tx) error { return tx.Rollback() })
}

func (m *Manager) end(t *Tx, op string, fn func(*sql.Tx) error) error {
	if m.cfg.AutoCommit {
		return nil
	}
	if t == nil {
		return errors.Newf(errors.Configuration, "%s needs a transaction handle", op)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.released || t.tx == nil {
		return errors.Newf(errors.TransactionState, "%s of %s without an active transaction", op, t)
	}
	err := fn(t.tx)
	t.tx = nil
	if err != nil {
		return m.dialect.Translate(err, fmt.Sprintf("%s %s", op, t))
	}
	m.logger.Debugf("%s %s", op, t)
	return nil
}

// Release rolls back any transaction still open on t and returns its
// connection to the pool. Safe on nil, unused or already released handles.
func (m *Manager) Release(t *Tx) error {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.released {
		return nil
	}
	t.released = true

	var err error
	if t.tx != nil {
		m.logger.Warnf("%s released with an open transaction, rolling back", t)
		if rerr := t.tx.Rollback(); rerr != nil && rerr != sql.ErrTxDone {
			err = m.dialect.Translate(rerr, fmt.Sprintf("rolling back %s", t))
		}
		t.tx = nil
	}
	if t.conn != nil {
		if cerr := t.conn.Close(); cerr != nil && err == nil {
			err = m.dialect.Translate(cerr, fmt.Sprintf("releasing %s", t))
		}
		t.conn = nil
		m.reserved.Add(-1)
	}
	return err
}

// WithTx runs fn in a transaction on the pool, outside any handle, and
// commits when fn returns nil.
func (m *Manager) WithTx(ctx context.Context, fn func(*Conn) error) error {
	tx, err := m.db.BeginTx(ctx, m.txOptions())
	if err != nil {
		return m.dialect.Translate(err, "beginning transaction")
	}
	if err := fn(NewConn(tx, m.dialect, m.logger)); err != nil {
		tx.Rollback()
		return err
	}
	return m.dialect.Translate(tx.Commit(), "committing transaction")
}

// Close closes the pool. Connections still reserved by handles are closed
// when those handles are released. Idempotent.
func (m *Manager) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	if n := m.reserved.Load(); n > 0 {
		m.logger.Warnf("closing with %d reserved connections", n)
	}
	m.logger.Infof("closed")
	return m.db.Close()
}
