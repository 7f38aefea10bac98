package sqldb

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// SQLiteFileName is the database file created in Config.DataDir.
const SQLiteFileName = "clusterstore.db"

// Dialect captures the per-backend differences: driver, DSN, placeholder
// style, column types, upsert syntax and driver error classification.
type Dialect struct {
	name string
}

// Supported dialects.
var (
	SQLite   = Dialect{name: types.DialectSQLite}
	Postgres = Dialect{name: types.DialectPostgres}
	MySQL    = Dialect{name: types.DialectMySQL}
)

// DialectFor returns the Dialect named in a config.
func DialectFor(name string) (Dialect, error) {
	switch name {
	case types.DialectSQLite:
		return SQLite, nil
	case types.DialectPostgres:
		return Postgres, nil
	case types.DialectMySQL:
		return MySQL, nil
	}
	return Dialect{}, errors.Newf(errors.Configuration, "unknown dialect %q", name)
}

func (d Dialect) Name() string { return d.name }

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	return d.name
}

// DSN builds the driver connection string from cfg.
func (d Dialect) DSN(cfg types.Config) (string, error) {
	switch d {
	case SQLite:
		return sqliteDSN(cfg), nil
	case Postgres:
		return postgresDSN(cfg)
	case MySQL:
		return mysqlDSN(cfg)
	}
	return "", errors.Newf(errors.Configuration, "unknown dialect %q", d.name)
}

// SQLitePath returns the database file path used for cfg.
func SQLitePath(cfg types.Config) string {
	if cfg.URI != "" {
		p := strings.TrimPrefix(cfg.URI, "file:")
		if i := strings.IndexByte(p, '?'); i >= 0 {
			p = p[:i]
		}
		return p
	}
	return filepath.Join(cfg.DataDir, SQLiteFileName)
}

func sqliteDSN(cfg types.Config) string {
	params := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=journal_mode(WAL)",
		"_pragma=busy_timeout(5000)",
		"_time_format=sqlite",
	}
	if cfg.ReadOnly {
		params = append(params, "_pragma=query_only(1)")
	}
	dsn := "file:" + SQLitePath(cfg)
	if i := strings.IndexByte(cfg.URI, '?'); i >= 0 {
		params = append([]string{cfg.URI[i+1:]}, params...)
	}
	return dsn + "?" + strings.Join(params, "&")
}

func postgresDSN(cfg types.Config) (string, error) {
	if !strings.HasPrefix(cfg.URI, "postgres://") && !strings.HasPrefix(cfg.URI, "postgresql://") {
		// key=value form
		dsn := cfg.URI
		if cfg.User != "" {
			dsn += " user=" + cfg.User
		}
		if cfg.Password != "" {
			dsn += " password=" + cfg.Password
		}
		return dsn, nil
	}
	u, err := url.Parse(cfg.URI)
	if err != nil {
		return "", errors.Wrap(errors.New(errors.Configuration, err.Error()), "parsing postgres uri")
	}
	if u.User == nil && cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}
	return u.String(), nil
}

func mysqlDSN(cfg types.Config) (string, error) {
	var mc *mysql.Config
	if strings.Contains(cfg.URI, "@") || strings.Contains(cfg.URI, "(") {
		parsed, err := mysql.ParseDSN(cfg.URI)
		if err != nil {
			return "", errors.Wrap(errors.New(errors.Configuration, err.Error()), "parsing mysql uri")
		}
		mc = parsed
	} else {
		mc = mysql.NewConfig()
		mc.Net = "tcp"
		addr, db, _ := strings.Cut(cfg.URI, "/")
		mc.Addr, mc.DBName = addr, db
	}
	if mc.User == "" {
		mc.User = cfg.User
	}
	if mc.Passwd == "" {
		mc.Passwd = cfg.Password
	}
	mc.ParseTime = true
	return mc.FormatDSN(), nil
}

// Rebind rewrites "?" placeholders into the dialect's bind style.
func (d Dialect) Rebind(query string) string {
	return sqlx.Rebind(d.bindType(), query)
}

func (d Dialect) bindType() int {
	if d == Postgres {
		return sqlx.DOLLAR
	}
	return sqlx.QUESTION
}

// ColumnTypes are the DDL types used by the handlers' CREATE TABLE statements.
type ColumnTypes struct {
	UUID      string
	Name      string // short key strings
	String    string // long key strings such as naming paths
	Text      string
	Blob      string
	Int       string
	Bool      string
	Timestamp string
}

// Types returns the DDL types for the dialect, sized from cfg.
func (d Dialect) Types(cfg types.Config) ColumnTypes {
	ct := ColumnTypes{
		Name:   fmt.Sprintf("VARCHAR(%d)", cfg.NameLength),
		String: fmt.Sprintf("VARCHAR(%d)", cfg.StringLength),
		Int:    "INTEGER",
		Bool:   "BOOLEAN",
	}
	switch d {
	case Postgres:
		ct.UUID, ct.Text, ct.Blob, ct.Timestamp = "UUID", "TEXT", "BYTEA", "TIMESTAMP"
	case MySQL:
		ct.UUID, ct.Text, ct.Blob, ct.Timestamp = "CHAR(36)", "LONGTEXT", "LONGBLOB", "DATETIME(6)"
	default:
		ct.UUID, ct.Text, ct.Blob, ct.Timestamp = "VARCHAR(36)", "TEXT", "BLOB", "TIMESTAMP"
	}
	return ct
}

// LikeEscape is the ESCAPE clause matching EscapeLike.
func (d Dialect) LikeEscape() string {
	if d == MySQL {
		return ` ESCAPE '\\'`
	}
	return ` ESCAPE '\'`
}

// EscapeLike escapes LIKE metacharacters in a literal fragment.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Upsert returns an insert statement that updates the non-key columns when
// the key already exists.
func (d Dialect) Upsert(table string, columns, keys []string) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), marks)

	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	var sets []string
	for _, c := range columns {
		if isKey[c] {
			continue
		}
		if d == MySQL {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
		} else {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}

	switch {
	case d == MySQL && len(sets) == 0:
		return strings.Replace(stmt, "INSERT INTO", "INSERT IGNORE INTO", 1)
	case d == MySQL:
		return stmt + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	case len(sets) == 0:
		return stmt + fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(keys, ", "))
	default:
		return stmt + fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(keys, ", "), strings.Join(sets, ", "))
	}
}

// Translate maps a driver error into the store's error codes. Errors it
// cannot classify are wrapped with msg and returned.
func (d Dialect) Translate(err error, msg string) error {
	if err == nil {
		return nil
	}
	if code, ok := classify(err); ok {
		return errors.Wrap(errors.New(code, err.Error()), msg)
	}
	return errors.Wrap(err, msg)
}

func classify(err error) (errors.Code, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return classifySQLite(se.Code())
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		switch {
		case pe.Code == "23505":
			return errors.Conflict, true
		case pe.Code == "23503", pe.Code == "23502":
			return errors.InvalidData, true
		case pe.Code.Class() == "08":
			return errors.ConnectionError, true
		}
		return "", false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case 1062:
			return errors.Conflict, true
		case 1048, 1451, 1452:
			return errors.InvalidData, true
		}
		return "", false
	}

	var ne net.Error
	switch {
	case errors.Cause(err) == driver.ErrBadConn,
		errors.Cause(err) == sql.ErrConnDone,
		errors.Cause(err) == mysql.ErrInvalidConn,
		errors.As(err, &ne):
		return errors.ConnectionError, true
	}
	return "", false
}

func classifySQLite(code int) (errors.Code, bool) {
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, sqlite3.SQLITE_CONSTRAINT_NOTNULL, sqlite3.SQLITE_CONSTRAINT_CHECK:
		return errors.InvalidData, true
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return errors.ConnectionError, true
	}
	switch code & 0xff {
	case sqlite3.SQLITE_CONSTRAINT:
		return errors.Conflict, true
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN:
		return errors.ConnectionError, true
	}
	return "", false
}
