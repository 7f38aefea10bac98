package transfer

import (
	"context"
	"encoding/csv"
	"io"
	"os"

	"github.com/mesh-intelligence/clusterstore/internal/logger"
	"github.com/mesh-intelligence/clusterstore/internal/sqldb"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
)

// DefaultBatchSize is the number of rows committed per transaction.
const DefaultBatchSize = 50

// TxRunner runs a function in its own transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(*sqldb.Conn) error) error
	Dialect() sqldb.Dialect
}

// Import loads the files under dir into tables, in the order given, so
// referenced tables must come first. Rows are upserted on their key and
// committed every batchSize rows. Tables without a file are skipped. Returns
// the row count per imported table.
func Import(ctx context.Context, db TxRunner, dir string, tables []Table, batchSize int, l logger.Logger) (map[string]int64, error) {
	if l == nil {
		l = logger.NopLogger
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	counts := make(map[string]int64, len(tables))
	for _, t := range tables {
		f, err := os.Open(FileName(dir, t.Table()))
		if os.IsNotExist(err) {
			l.Debugf("no file for %s, skipping", t.Table())
			continue
		}
		if err != nil {
			return counts, errors.Wrapf(err, "opening %s", t.Table())
		}
		n, err := importTable(ctx, db, f, t, batchSize)
		f.Close()
		if err != nil {
			return counts, errors.Wrapf(err, "importing %s", t.Table())
		}
		counts[t.Table()] = n
		l.Debugf("imported %s: %d rows", t.Table(), n)
	}
	return counts, nil
}

func importTable(ctx context.Context, db TxRunner, r io.Reader, t Table, batchSize int) (int64, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(errors.New(errors.InvalidData, err.Error()), "reading header")
	}
	if err := checkHeader(t, header); err != nil {
		return 0, err
	}
	cr.FieldsPerRecord = len(header)
	stmt := db.Dialect().Upsert(t.Table(), header, t.KeyColumns())

	var (
		total int64
		batch [][]any
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := db.WithTx(ctx, func(c *sqldb.Conn) error {
			for _, args := range batch {
				if _, err := c.Exec(ctx, stmt, args...); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		total += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return total, errors.Wrap(errors.New(errors.InvalidData, err.Error()), "reading record")
		}
		args := make([]any, len(record))
		for i, cell := range record {
			if args[i], err = decode(header[i], cell); err != nil {
				return total, errors.Wrapf(err, "line %d", line)
			}
		}
		batch = append(batch, args)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	return total, flush()
}

// checkHeader requires known columns and every key column.
func checkHeader(t Table, header []string) error {
	known := make(map[string]bool)
	for _, c := range t.Columns() {
		known[c] = true
	}
	seen := make(map[string]bool, len(header))
	for _, c := range header {
		if !known[c] {
			return errors.Newf(errors.InvalidData, "unknown column %s", c)
		}
		if seen[c] {
			return errors.Newf(errors.InvalidData, "duplicate column %s", c)
		}
		seen[c] = true
	}
	for _, k := range t.KeyColumns() {
		if !seen[k] {
			return errors.Newf(errors.InvalidData, "missing key column %s", k)
		}
	}
	return nil
}
