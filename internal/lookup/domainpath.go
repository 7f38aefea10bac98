package lookup

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/clusterstore/internal/logger"
	"github.com/mesh-intelligence/clusterstore/internal/sqldb"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// DomainPathTable is the naming tree table.
const DomainPathTable = "DOMAIN_PATH"

// DomainPathHandler serves the naming tree: one row per full path, with an
// optional target entity. Every proper prefix of a stored path is stored
// too. Delete removes exactly one row and does not check for descendants;
// removing a subtree means deleting its paths in reverse lexicographic
// order so that every node goes after all of its descendants.
type DomainPathHandler struct {
	cfg    types.Config
	logger logger.Logger
}

// NewDomainPathHandler returns the naming tree handler.
func NewDomainPathHandler(cfg types.Config, l logger.Logger) *DomainPathHandler {
	if l == nil {
		l = logger.NopLogger
	}
	return &DomainPathHandler{cfg: cfg, logger: l}
}

func (h *DomainPathHandler) Table() string        { return DomainPathTable }
func (h *DomainPathHandler) Columns() []string    { return []string{"PATH", "TARGET"} }
func (h *DomainPathHandler) KeyColumns() []string { return []string{"PATH"} }

func (h *DomainPathHandler) EnsureSchema(ctx context.Context, q sqldb.Querier) error {
	ct := q.Dialect().Types(h.cfg)
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
    PATH %[2]s NOT NULL,
    TARGET %[3]s,
    CONSTRAINT PK_%[1]s PRIMARY KEY (PATH),
    CONSTRAINT FK_%[1]s FOREIGN KEY (TARGET) REFERENCES %[4]s (UUID)
)`, DomainPathTable, ct.String, ct.UUID, ItemTable)
	if _, err := q.Exec(ctx, ddl); err != nil {
		return errors.Wrapf(err, "creating table %s", DomainPathTable)
	}
	return nil
}

// Insert stores path and every missing ancestor, root first. Ancestors get no
// target; the path itself gets target. Existing rows are left untouched, so
// the returned count is the number of rows actually added.
func (h *DomainPathHandler) Insert(ctx context.Context, q sqldb.Querier, path string, target uuid.NullUUID) (int64, error) {
	path, err := types.CleanNamingPath(path)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, p := range append(types.Ancestors(path), path) {
		found, err := h.Exists(ctx, q, p)
		if err != nil {
			return total, err
		}
		if found {
			continue
		}
		t := uuid.NullUUID{}
		if p == path {
			t = target
		}
		n, err := q.Exec(ctx, "INSERT INTO "+DomainPathTable+" (PATH, TARGET) VALUES (?, ?)", p, t)
		if err != nil {
			return total, errors.Wrapf(err, "inserting naming path %s", p)
		}
		total += n
	}
	h.logger.Debugf("inserted %s: %d rows", path, total)
	return total, nil
}

func (h *DomainPathHandler) Exists(ctx context.Context, q sqldb.Querier, path string) (bool, error) {
	var one int
	err := q.QueryRow(ctx, "SELECT 1 FROM "+DomainPathTable+" WHERE PATH = ?", path).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "checking naming path")
	}
	return true, nil
}

// Fetch returns the node at path. Returns NotFound if absent.
func (h *DomainPathHandler) Fetch(ctx context.Context, q sqldb.Querier, path string) (types.NamingNode, error) {
	n := types.NamingNode{Path: path}
	err := q.QueryRow(ctx, "SELECT TARGET FROM "+DomainPathTable+" WHERE PATH = ?", path).Scan(&n.Target)
	if err == sql.ErrNoRows {
		return types.NamingNode{}, errors.Newf(errors.NotFound, "naming path %s not found", path)
	}
	if err != nil {
		return types.NamingNode{}, errors.Wrap(err, "fetching naming path")
	}
	return n, nil
}

// Delete removes exactly the row at path, whether or not it has descendants.
func (h *DomainPathHandler) Delete(ctx context.Context, q sqldb.Querier, path string) (int64, error) {
	n, err := q.Exec(ctx, "DELETE FROM "+DomainPathTable+" WHERE PATH = ?", path)
	if err != nil {
		return 0, errors.Wrap(err, "deleting naming path")
	}
	return n, nil
}

// DeleteByTarget removes every node resolving to id.
func (h *DomainPathHandler) DeleteByTarget(ctx context.Context, q sqldb.Querier, id types.EntityID) (int64, error) {
	n, err := q.Exec(ctx, "DELETE FROM "+DomainPathTable+" WHERE TARGET = ?", id)
	if err != nil {
		return 0, errors.Wrap(err, "deleting naming paths by target")
	}
	return n, nil
}

// Search matches path strings below root. A blank name matches root and all
// of its descendants. Otherwise ExactName matches descendants whose last
// segment is name, and Wildcard matches descendants ending with name. A
// non-empty targets list restricts the result to nodes resolving to one of
// them. Results are ordered by path.
func (h *DomainPathHandler) Search(ctx context.Context, q sqldb.Querier, root, name string, mode types.SearchMode, targets ...types.EntityID) ([]types.NamingNode, error) {
	prefix, err := rootPrefix(root)
	if err != nil {
		return nil, err
	}
	esc := q.Dialect().LikeEscape()
	base := sqldb.EscapeLike(prefix)

	var (
		pred string
		args []any
	)
	switch {
	case strings.TrimSpace(name) == "":
		pred = "(PATH = ? OR PATH LIKE ?" + esc + ")"
		args = []any{prefix, base + "/%"}
	case mode == types.ExactName:
		pred = "(PATH = ? OR PATH LIKE ?" + esc + ")"
		args = []any{prefix + "/" + name, base + "/%/" + sqldb.EscapeLike(name)}
	default:
		pred = "PATH LIKE ?" + esc
		args = []any{base + "/%" + sqldb.EscapeLike(name)}
	}
	if len(targets) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(targets)), ", ")
		pred += " AND TARGET IN (" + marks + ")"
		for _, t := range targets {
			args = append(args, t)
		}
	}
	return h.query(ctx, q, pred, args, 0, 0)
}

// Children returns the direct children of root ordered by path. A positive
// limit caps the result; offset skips that many rows first.
func (h *DomainPathHandler) Children(ctx context.Context, q sqldb.Querier, root string, offset, limit int) ([]types.NamingNode, error) {
	pred, args, err := childPredicate(q, root)
	if err != nil {
		return nil, err
	}
	return h.query(ctx, q, pred, args, offset, limit)
}

// CountChildren returns the number of direct children of root.
func (h *DomainPathHandler) CountChildren(ctx context.Context, q sqldb.Querier, root string) (int, error) {
	pred, args, err := childPredicate(q, root)
	if err != nil {
		return 0, err
	}
	return h.count(ctx, q, pred, args)
}

// Descendants returns root, when stored, and every path below it.
func (h *DomainPathHandler) Descendants(ctx context.Context, q sqldb.Querier, root string) ([]types.NamingNode, error) {
	return h.Search(ctx, q, root, "", types.Wildcard)
}

// FindByTarget returns the nodes resolving to id, ordered by path.
func (h *DomainPathHandler) FindByTarget(ctx context.Context, q sqldb.Querier, id types.EntityID, offset, limit int) ([]types.NamingNode, error) {
	return h.query(ctx, q, "TARGET = ?", []any{id}, offset, limit)
}

// CountByTarget returns the number of nodes resolving to id.
func (h *DomainPathHandler) CountByTarget(ctx context.Context, q sqldb.Querier, id types.EntityID) (int, error) {
	return h.count(ctx, q, "TARGET = ?", []any{id})
}

func (h *DomainPathHandler) query(ctx context.Context, q sqldb.Querier, pred string, args []any, offset, limit int) ([]types.NamingNode, error) {
	query := "SELECT PATH, TARGET FROM " + DomainPathTable + " WHERE " + pred + " ORDER BY PATH"
	switch {
	case limit > 0:
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, max(offset, 0))
	case offset > 0:
		query += " LIMIT ? OFFSET ?"
		args = append(args, math.MaxInt32, offset)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "searching naming paths")
	}
	defer rows.Close()

	out := []types.NamingNode{}
	for rows.Next() {
		var n types.NamingNode
		if err := rows.Scan(&n.Path, &n.Target); err != nil {
			return nil, errors.Wrap(err, "scanning naming path")
		}
		out = append(out, n)
	}
	return out, errors.Wrap(rows.Err(), "searching naming paths")
}

func (h *DomainPathHandler) count(ctx context.Context, q sqldb.Querier, pred string, args []any) (int, error) {
	var n int
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM "+DomainPathTable+" WHERE "+pred, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "counting naming paths")
	}
	return n, nil
}

func childPredicate(q sqldb.Querier, root string) (string, []any, error) {
	prefix, err := rootPrefix(root)
	if err != nil {
		return "", nil, err
	}
	esc := q.Dialect().LikeEscape()
	base := sqldb.EscapeLike(prefix)
	return "PATH LIKE ?" + esc + " AND PATH NOT LIKE ?" + esc, []any{base + "/%", base + "/%/%"}, nil
}

// rootPrefix cleans a search root. "/" is the root of the whole tree and
// becomes the empty prefix.
func rootPrefix(root string) (string, error) {
	if root == types.PathDelimiter {
		return "", nil
	}
	return types.CleanNamingPath(root)
}
