package transfer

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/clusterstore/internal/cluster"
	"github.com/mesh-intelligence/clusterstore/internal/logger"
	"github.com/mesh-intelligence/clusterstore/internal/sqldb"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// Window restricts an export of cluster tables to entities with at least one
// audit event in [From, To). A zero bound is open.
type Window struct {
	From time.Time
	To   time.Time
}

// IsZero reports whether the window is unbounded.
func (w Window) IsZero() bool { return w.From.IsZero() && w.To.IsZero() }

func (w Window) predicate() (string, []any) {
	var (
		conds []string
		args  []any
	)
	ts := cluster.HistoryTimestampColumn
	if !w.From.IsZero() {
		conds = append(conds, ts+" >= ?")
		args = append(args, w.From.UTC())
	}
	if !w.To.IsZero() {
		conds = append(conds, ts+" < ?")
		args = append(args, w.To.UTC())
	}
	return "UUID IN (SELECT UUID FROM " + cluster.HistoryTable + " WHERE " + strings.Join(conds, " AND ") + ")", args
}

// windowed is satisfied by cluster handlers. Directory tables are always
// exported whole.
type windowed interface {
	Type() types.ClusterType
}

// Workers bounds the tables exported at once to half the pool, leaving the
// rest for handles that hold reserved connections.
func Workers(cfg types.Config) int {
	return max(1, cfg.MaxPoolSize/2)
}

// Export writes every table to dir, at most workers at a time, and returns
// the row count per table. A non-positive workers exports one table at a
// time. Each file is replaced atomically; a failed export leaves earlier
// files of the same name untouched.
func Export(ctx context.Context, q sqldb.Querier, dir string, tables []Table, w Window, workers int, l logger.Logger) (map[string]int64, error) {
	if l == nil {
		l = logger.NopLogger
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating export directory %s", dir)
	}

	var (
		mu     sync.Mutex
		counts = make(map[string]int64, len(tables))
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, workers))
	for _, t := range tables {
		g.Go(func() error {
			n, err := exportTable(ctx, q, dir, t, w)
			if err != nil {
				return errors.Wrapf(err, "exporting %s", t.Table())
			}
			mu.Lock()
			counts[t.Table()] = n
			mu.Unlock()
			l.Debugf("exported %s: %d rows", t.Table(), n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

func exportTable(ctx context.Context, q sqldb.Querier, dir string, t Table, w Window) (int64, error) {
	cols := t.Columns()
	query := "SELECT " + strings.Join(cols, ", ") + " FROM " + t.Table()
	var args []any
	if _, ok := t.(windowed); ok && !w.IsZero() {
		pred, pargs := w.predicate()
		query += " WHERE " + pred
		args = pargs
	}
	query += " ORDER BY " + strings.Join(t.KeyColumns(), ", ")

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var n int64
	err = writeAtomic(FileName(dir, t.Table()), func(out io.Writer) error {
		cw := csv.NewWriter(out)
		if err := cw.Write(cols); err != nil {
			return err
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		record := make([]string, len(cols))
		for rows.Next() {
			if err := rows.Scan(ptrs...); err != nil {
				return errors.Wrap(err, "scanning row")
			}
			for i, c := range cols {
				record[i] = encode(c, vals[i])
			}
			if err := cw.Write(record); err != nil {
				return err
			}
			n++
		}
		if err := rows.Err(); err != nil {
			return errors.Wrap(err, "reading rows")
		}
		cw.Flush()
		return cw.Error()
	})
	return n, err
}
