package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/mesh-intelligence/clusterstore/internal/transfer"
)

// Window restricts an export to entities with audit events in [From, To).
type Window = transfer.Window

// tables lists every table in dependency order: the directory first and the
// naming tree, which references it, last.
func (s *Store) tables() []transfer.Table {
	out := []transfer.Table{s.items}
	for _, h := range s.registry.Handlers() {
		out = append(out, h)
	}
	return append(out, s.roles, s.perms, s.paths)
}

// Export writes one CSV file per table to dir and returns the row count per
// table. A non-zero window limits the cluster tables to entities with audit
// events inside it; the directory and naming tree are exported whole.
func (s *Store) Export(ctx context.Context, dir string, w Window) (counts map[string]int64, err error) {
	defer s.observe(entityComponent, "export", time.Now(), &err)
	return transfer.Export(ctx, s.m.Pool(), dir, s.tables(), w, transfer.Workers(s.cfg), s.logger.WithPrefix("[export] "))
}

// Import loads the CSV files in dir, upserting rows and committing every
// batchSize rows. A non-positive batchSize uses the default.
func (s *Store) Import(ctx context.Context, dir string, batchSize int) (counts map[string]int64, err error) {
	defer s.observe(entityComponent, "import", time.Now(), &err)

	if err := s.writable(); err != nil {
		return nil, err
	}
	return transfer.Import(ctx, s.m, dir, s.tables(), batchSize, s.logger.WithPrefix("[import] "))
}

// Stats describes the backend and its contents.
type Stats struct {
	Dialect  string           `json:"dialect"`
	Rows     map[string]int64 `json:"rows"`
	Reserved int64            `json:"reserved"`
	Pool     sql.DBStats      `json:"pool"`
}

// Stats counts the rows of every table.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		Dialect:  s.m.Dialect().Name(),
		Rows:     make(map[string]int64),
		Reserved: s.m.Reserved(),
		Pool:     s.m.DB().Stats(),
	}
	q := s.m.Pool()
	for _, t := range s.tables() {
		var n int64
		if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM "+t.Table()).Scan(&n); err != nil {
			return st, err
		}
		st.Rows[t.Table()] = n
	}
	return st, nil
}
