package cluster

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/mesh-intelligence/clusterstore/internal/sqldb"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// uuidColumn leads every cluster table's primary key.
const uuidColumn = "UUID"

type keyColumn struct {
	name    string
	numeric bool
}

// table holds what every handler shares: the name, the key layout, and the
// predicate and statement builders over them.
type table struct {
	typ     types.ClusterType
	name    string
	keys    []keyColumn
	values  []string // non-key columns in insert order
	cfg     types.Config
	ddlBody func(ct sqldb.ColumnTypes) string
}

func (t *table) Type() types.ClusterType { return t.typ }
func (t *table) Table() string           { return t.name }

func (t *table) KeyColumns() []string {
	out := []string{uuidColumn}
	for _, k := range t.keys {
		out = append(out, k.name)
	}
	return out
}

func (t *table) Columns() []string {
	return append(t.KeyColumns(), t.values...)
}

func (t *table) EnsureSchema(ctx context.Context, q sqldb.Querier) error {
	ct := q.Dialect().Types(t.cfg)
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s %s NOT NULL,\n%s,\n    CONSTRAINT PK_%s PRIMARY KEY (%s)\n)",
		t.name, uuidColumn, ct.UUID, t.ddlBody(ct), t.name, strings.Join(t.KeyColumns(), ", "))
	if _, err := q.Exec(ctx, ddl); err != nil {
		return errors.Wrapf(err, "creating table %s", t.name)
	}
	return nil
}

// where builds the primary-key predicate for id and keys. With complete set,
// keys must name exactly one row. Numeric key columns must parse as ints.
func (t *table) where(id types.EntityID, keys []string, complete bool) (string, []any, error) {
	if len(keys) > len(t.keys) {
		return "", nil, errors.Newf(errors.InvalidData, "%s takes at most %d keys, got %d", t.typ, len(t.keys), len(keys))
	}
	if complete && len(keys) != len(t.keys) {
		return "", nil, errors.Newf(errors.InvalidData, "%s needs %d keys, got %d", t.typ, len(t.keys), len(keys))
	}

	preds := []string{uuidColumn + " = ?"}
	args := []any{id}
	for i, k := range keys {
		col := t.keys[i]
		if err := t.checkSegment(col, k); err != nil {
			return "", nil, err
		}
		preds = append(preds, col.name+" = ?")
		if col.numeric {
			n, err := strconv.Atoi(k)
			if err != nil {
				return "", nil, errors.Newf(errors.InvalidData, "%s key %s must be an integer, got %q", t.typ, col.name, k)
			}
			args = append(args, n)
		} else {
			args = append(args, k)
		}
	}
	return strings.Join(preds, " AND "), args, nil
}

func (t *table) Exists(ctx context.Context, q sqldb.Querier, id types.EntityID, keys ...string) (bool, error) {
	pred, args, err := t.where(id, keys, false)
	if err != nil {
		return false, err
	}
	var one int
	err = q.QueryRow(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE %s LIMIT 1", t.name, pred), args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "checking %s", t.typ)
	}
	return true, nil
}

func (t *table) Delete(ctx context.Context, q sqldb.Querier, id types.EntityID, keys ...string) (int64, error) {
	pred, args, err := t.where(id, keys, false)
	if err != nil {
		return 0, err
	}
	n, err := q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", t.name, pred), args...)
	if err != nil {
		return 0, errors.Wrapf(err, "deleting %s", t.typ)
	}
	return n, nil
}

func (t *table) NextKeySegments(ctx context.Context, q sqldb.Querier, id types.EntityID, keys ...string) ([]string, error) {
	pred, args, err := t.where(id, keys, false)
	if err != nil {
		return nil, err
	}
	if len(keys) == len(t.keys) {
		return []string{}, nil
	}
	col := t.keys[len(keys)].name
	rows, err := q.Query(ctx, fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s ORDER BY %s", col, t.name, pred, col), args...)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", t.typ)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrapf(err, "scanning %s key", t.typ)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "listing %s", t.typ)
	}
	return out, nil
}

// checkSegment rejects key values that could not be addressed again
// through a cluster path.
func (t *table) checkSegment(col keyColumn, k string) error {
	if k == "" {
		return errors.Newf(errors.InvalidData, "%s key %s is empty", t.typ, col.name)
	}
	if strings.Contains(k, types.PathDelimiter) {
		return errors.Newf(errors.InvalidData, "%s key %s must not contain %q, got %q", t.typ, col.name, types.PathDelimiter, k)
	}
	return nil
}

// insert writes one row. vals follow Columns() order.
func (t *table) insert(ctx context.Context, q sqldb.Querier, vals ...any) (int64, error) {
	cols := t.Columns()
	for i, col := range t.keys {
		if k, ok := vals[1+i].(string); ok {
			if err := t.checkSegment(col, k); err != nil {
				return 0, err
			}
		}
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	n, err := q.Exec(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, strings.Join(cols, ", "), marks), vals...)
	if err != nil {
		return 0, errors.Wrapf(err, "inserting %s", t.typ)
	}
	return n, nil
}

// update rewrites the non-key columns of the row at keys. vals follow t.values.
func (t *table) update(ctx context.Context, q sqldb.Querier, id types.EntityID, keys []string, vals ...any) (int64, error) {
	pred, args, err := t.where(id, keys, true)
	if err != nil {
		return 0, err
	}
	sets := make([]string, len(t.values))
	for i, c := range t.values {
		sets[i] = c + " = ?"
	}
	n, err := q.Exec(ctx, fmt.Sprintf("UPDATE %s SET %s WHERE %s", t.name, strings.Join(sets, ", "), pred), append(vals, args...)...)
	if err != nil {
		return 0, errors.Wrapf(err, "updating %s", t.typ)
	}
	return n, nil
}

// selectRow runs SELECT of t.values at a complete key.
func (t *table) selectRow(ctx context.Context, q sqldb.Querier, id types.EntityID, keys []string) (*sqldb.Row, error) {
	pred, args, err := t.where(id, keys, true)
	if err != nil {
		return nil, err
	}
	return q.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(t.values, ", "), t.name, pred), args...), nil
}

// fetchStruct selects t.values at a complete key, each column aliased to its
// lower-case name, and scans the row into a T through its db tags.
func fetchStruct[T any](ctx context.Context, t *table, q sqldb.Querier, id types.EntityID, keys []string) (*T, error) {
	pred, args, err := t.where(id, keys, true)
	if err != nil {
		return nil, err
	}
	cols := make([]string, len(t.values))
	for i, c := range t.values {
		cols[i] = c + " AS " + strings.ToLower(c)
	}
	rows, err := q.Query(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(cols, ", "), t.name, pred), args...)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", t.typ)
	}
	defer rows.Close()

	var out []T
	if err := sqlx.StructScan(rows, &out); err != nil {
		return nil, t.scanErr(err, id, keys)
	}
	if len(out) == 0 {
		return nil, t.scanErr(sql.ErrNoRows, id, keys)
	}
	return &out[0], nil
}

// scanErr maps a fetch scan error.
func (t *table) scanErr(err error, id types.EntityID, keys []string) error {
	if err == sql.ErrNoRows {
		return errors.Newf(errors.NotFound, "%s not found for %s", types.NewClusterPath(t.typ, keys...), id)
	}
	return errors.Wrapf(err, "fetching %s", t.typ)
}

// lastID is max(ID) for the entity or -1.
func (t *table) lastID(ctx context.Context, q sqldb.Querier, id types.EntityID) (int, error) {
	var last sql.NullInt64
	err := q.QueryRow(ctx, fmt.Sprintf("SELECT MAX(%s) FROM %s WHERE %s = ?", t.keys[0].name, t.name, uuidColumn), id).Scan(&last)
	if err != nil {
		return 0, errors.Wrapf(err, "reading last %s id", t.typ)
	}
	if !last.Valid {
		return -1, nil
	}
	return int(last.Int64), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
