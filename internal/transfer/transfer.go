// Package transfer moves store tables to and from a directory of CSV files,
// one file per table named after the table.
package transfer

import (
	"bufio"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mesh-intelligence/clusterstore/pkg/errors"
)

// Table is what a transfer needs to know about one table. Cluster and
// directory handlers satisfy it.
type Table interface {
	Table() string
	Columns() []string
	KeyColumns() []string
}

// NullValue marks a NULL cell.
const NullValue = `\N`

// FileExt is appended to the table name to form its file name.
const FileExt = ".csv"

// FileName returns the export file of table under dir.
func FileName(dir, table string) string {
	return filepath.Join(dir, table+FileExt)
}

type kind int

const (
	textKind kind = iota
	boolKind
	timeKind
	blobKind
)

// Columns not listed are carried as text; the backend converts numeric text
// on insert.
var columnKinds = map[string]kind{
	"IS_MUTABLE":            boolKind,
	"HAS_ATTACHMENT":        boolKind,
	"IS_AGENT":              boolKind,
	"IS_PASSWORD_TEMPORARY": boolKind,
	"JOBLIST":               boolKind,
	"EVENT_TS":              timeKind,
	"CREATION_TS":           timeKind,
	"DATA":                  blobKind,
}

func kindOf(column string) kind { return columnKinds[column] }

// encode renders one scanned value as a CSV cell.
func encode(column string, v any) string {
	if v == nil {
		return NullValue
	}
	k := kindOf(column)
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case bool:
		return strconv.FormatBool(x)
	case int64:
		if k == boolKind {
			return strconv.FormatBool(x != 0)
		}
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []byte:
		if k == blobKind {
			return base64.StdEncoding.EncodeToString(x)
		}
		return encode(column, string(x))
	case string:
		if k == boolKind {
			if b, err := strconv.ParseBool(x); err == nil {
				return strconv.FormatBool(b)
			}
		}
		return x
	}
	return ""
}

// decode turns a CSV cell back into a statement argument.
func decode(column, cell string) (any, error) {
	if cell == NullValue {
		return nil, nil
	}
	switch kindOf(column) {
	case boolKind:
		b, err := strconv.ParseBool(cell)
		if err != nil {
			return nil, errors.Newf(errors.InvalidData, "column %s: %q is not a boolean", column, cell)
		}
		return b, nil
	case timeKind:
		t, err := time.Parse(time.RFC3339Nano, cell)
		if err != nil {
			return nil, errors.Newf(errors.InvalidData, "column %s: %q is not a timestamp", column, cell)
		}
		return t.UTC(), nil
	case blobKind:
		b, err := base64.StdEncoding.DecodeString(cell)
		if err != nil {
			return nil, errors.Newf(errors.InvalidData, "column %s: invalid base64", column)
		}
		return b, nil
	}
	return cell, nil
}

// writeAtomic writes path through a synced temp file in the same directory
// and renames it into place.
func writeAtomic(path string, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".export-*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpName := tmp.Name()
	fail := func(err error, msg string) error {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, msg)
	}

	w := bufio.NewWriter(tmp)
	if err := fill(w); err != nil {
		return fail(err, "writing records")
	}
	if err := w.Flush(); err != nil {
		return fail(err, "flushing buffer")
	}
	if err := tmp.Sync(); err != nil {
		return fail(err, "syncing temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "closing temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "renaming temp file")
	}
	return nil
}
