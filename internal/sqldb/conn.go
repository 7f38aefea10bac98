package sqldb

import (
	"context"
	"database/sql"

	"github.com/mesh-intelligence/clusterstore/internal/logger"
)

// DBTX is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Querier is what handlers execute against. Statements are written with "?"
// placeholders; the implementation rebinds them for the dialect and
// translates driver errors.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *Row
	Dialect() Dialect
}

// Ensure Conn implements interface.
var _ Querier = (*Conn)(nil)

// Conn is a connection bound to one unit of work: the pool in auto-commit
// mode, or the transaction of a reserved connection.
type Conn struct {
	db      DBTX
	dialect Dialect
	logger  logger.Logger
}

// NewConn wraps db for the given dialect.
func NewConn(db DBTX, d Dialect, l logger.Logger) *Conn {
	if l == nil {
		l = logger.NopLogger
	}
	return &Conn{db: db, dialect: d, logger: l}
}

func (c *Conn) Dialect() Dialect { return c.dialect }

// Exec runs a statement and returns the number of rows affected.
func (c *Conn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	query = c.dialect.Rebind(query)
	c.logger.Debugf("exec: %s", query)
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, c.dialect.Translate(err, "exec")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, c.dialect.Translate(err, "rows affected")
	}
	return n, nil
}

// Query runs a statement returning rows. The caller closes the rows.
func (c *Conn) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	query = c.dialect.Rebind(query)
	c.logger.Debugf("query: %s", query)
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, c.dialect.Translate(err, "query")
	}
	return rows, nil
}

// QueryRow runs a statement returning at most one row.
func (c *Conn) QueryRow(ctx context.Context, query string, args ...any) *Row {
	query = c.dialect.Rebind(query)
	c.logger.Debugf("query row: %s", query)
	return &Row{row: c.db.QueryRowContext(ctx, query, args...), dialect: c.dialect}
}

// Row wraps sql.Row so Scan translates driver errors. sql.ErrNoRows is
// returned unchanged.
type Row struct {
	row     *sql.Row
	dialect Dialect
}

func (r *Row) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if err == nil || err == sql.ErrNoRows {
		return err
	}
	return r.dialect.Translate(err, "scan")
}
