package lookup

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mesh-intelligence/clusterstore/internal/sqldb"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// PermissionTable holds the permissions granted to each role.
const PermissionTable = "ROLE_PERMISSION"

// PermissionHandler serves the permission list of roles. SEQ keeps the
// order the permissions were given in.
type PermissionHandler struct {
	cfg types.Config
}

// NewPermissionHandler returns the role permission handler.
func NewPermissionHandler(cfg types.Config) *PermissionHandler {
	return &PermissionHandler{cfg: cfg}
}

func (h *PermissionHandler) Table() string        { return PermissionTable }
func (h *PermissionHandler) Columns() []string    { return []string{"ROLE_PATH", "PERMISSION", "SEQ"} }
func (h *PermissionHandler) KeyColumns() []string { return []string{"ROLE_PATH", "PERMISSION"} }

func (h *PermissionHandler) EnsureSchema(ctx context.Context, q sqldb.Querier) error {
	ct := q.Dialect().Types(h.cfg)
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
    ROLE_PATH %[2]s NOT NULL,
    PERMISSION %[2]s NOT NULL,
    SEQ %[3]s NOT NULL,
    CONSTRAINT PK_%[1]s PRIMARY KEY (ROLE_PATH, PERMISSION)
)`, PermissionTable, ct.String, ct.Int)
	if _, err := q.Exec(ctx, ddl); err != nil {
		return errors.Wrapf(err, "creating table %s", PermissionTable)
	}
	return nil
}

// Insert appends perms to the role, skipping empty and repeated entries.
// Returns Conflict if one of them is already granted.
func (h *PermissionHandler) Insert(ctx context.Context, q sqldb.Querier, role string, perms []string) (int64, error) {
	var next int
	if err := q.QueryRow(ctx, "SELECT COALESCE(MAX(SEQ) + 1, 0) FROM "+PermissionTable+" WHERE ROLE_PATH = ?", role).Scan(&next); err != nil {
		return 0, errors.Wrap(err, "numbering permissions")
	}
	var total int64
	for i, p := range types.UniquePermissions(perms) {
		n, err := q.Exec(ctx, "INSERT INTO "+PermissionTable+" (ROLE_PATH, PERMISSION, SEQ) VALUES (?, ?, ?)", role, p, next+i)
		if err != nil {
			return total, errors.Wrapf(err, "granting %s to role %s", p, role)
		}
		total += n
	}
	return total, nil
}

// Fetch returns the permissions of role in the order they were granted.
func (h *PermissionHandler) Fetch(ctx context.Context, q sqldb.Querier, role string) ([]string, error) {
	rows, err := q.Query(ctx, "SELECT PERMISSION FROM "+PermissionTable+" WHERE ROLE_PATH = ? ORDER BY SEQ", role)
	if err != nil {
		return nil, errors.Wrap(err, "fetching permissions")
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, errors.Wrap(err, "scanning permission")
		}
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "fetching permissions")
}

func (h *PermissionHandler) Exists(ctx context.Context, q sqldb.Querier, role string) (bool, error) {
	var one int
	err := q.QueryRow(ctx, "SELECT 1 FROM "+PermissionTable+" WHERE ROLE_PATH = ? LIMIT 1", role).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "checking permissions")
	}
	return true, nil
}

// Delete removes every permission of role.
func (h *PermissionHandler) Delete(ctx context.Context, q sqldb.Querier, role string) (int64, error) {
	n, err := q.Exec(ctx, "DELETE FROM "+PermissionTable+" WHERE ROLE_PATH = ?", role)
	if err != nil {
		return 0, errors.Wrap(err, "deleting permissions")
	}
	return n, nil
}
