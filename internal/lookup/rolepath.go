package lookup

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/clusterstore/internal/logger"
	"github.com/mesh-intelligence/clusterstore/internal/sqldb"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// RolePathTable is the role directory table.
const RolePathTable = "ROLE_PATH"

// NoAgent is the AGENT value of the row that stands for the role itself.
var NoAgent = uuid.Nil

// RolePathHandler serves the role directory. Each role has one row with
// AGENT set to NoAgent, and one more row per agent holding the role. The
// JOBLIST flag is copied onto every row of a role.
type RolePathHandler struct {
	cfg    types.Config
	logger logger.Logger
}

// NewRolePathHandler returns the role directory handler.
func NewRolePathHandler(cfg types.Config, l logger.Logger) *RolePathHandler {
	if l == nil {
		l = logger.NopLogger
	}
	return &RolePathHandler{cfg: cfg, logger: l}
}

func (h *RolePathHandler) Table() string        { return RolePathTable }
func (h *RolePathHandler) Columns() []string    { return []string{"PATH", "AGENT", "JOBLIST"} }
func (h *RolePathHandler) KeyColumns() []string { return []string{"PATH", "AGENT"} }

func (h *RolePathHandler) EnsureSchema(ctx context.Context, q sqldb.Querier) error {
	ct := q.Dialect().Types(h.cfg)
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
    PATH %[2]s NOT NULL,
    AGENT %[3]s NOT NULL,
    JOBLIST %[4]s NOT NULL,
    CONSTRAINT PK_%[1]s PRIMARY KEY (PATH, AGENT)
)`, RolePathTable, ct.String, ct.UUID, ct.Bool)
	if _, err := q.Exec(ctx, ddl); err != nil {
		return errors.Wrapf(err, "creating table %s", RolePathTable)
	}
	return nil
}

// Insert adds the role row for path, or the membership row of agent when
// agent is not NoAgent. Returns Conflict if the row exists.
func (h *RolePathHandler) Insert(ctx context.Context, q sqldb.Querier, path string, agent types.EntityID, jobList bool) (int64, error) {
	n, err := q.Exec(ctx, "INSERT INTO "+RolePathTable+" (PATH, AGENT, JOBLIST) VALUES (?, ?, ?)", path, agent, jobList)
	if err != nil {
		return 0, errors.Wrapf(err, "inserting role %s", path)
	}
	h.logger.Debugf("inserted role %s agent %s", path, agent)
	return n, nil
}

// Update sets the job list flag on every row of the role.
func (h *RolePathHandler) Update(ctx context.Context, q sqldb.Querier, path string, jobList bool) (int64, error) {
	n, err := q.Exec(ctx, "UPDATE "+RolePathTable+" SET JOBLIST = ? WHERE PATH = ?", jobList, path)
	if err != nil {
		return 0, errors.Wrapf(err, "updating role %s", path)
	}
	return n, nil
}

// Delete removes the role and every membership in it.
func (h *RolePathHandler) Delete(ctx context.Context, q sqldb.Querier, path string) (int64, error) {
	n, err := q.Exec(ctx, "DELETE FROM "+RolePathTable+" WHERE PATH = ?", path)
	if err != nil {
		return 0, errors.Wrapf(err, "deleting role %s", path)
	}
	return n, nil
}

// Unassign removes the membership of agent in the role.
func (h *RolePathHandler) Unassign(ctx context.Context, q sqldb.Querier, path string, agent types.EntityID) (int64, error) {
	if agent == NoAgent {
		return 0, errors.New(errors.InvalidData, "unassigning needs an agent")
	}
	n, err := q.Exec(ctx, "DELETE FROM "+RolePathTable+" WHERE PATH = ? AND AGENT = ?", path, agent)
	if err != nil {
		return 0, errors.Wrapf(err, "removing %s from role %s", agent, path)
	}
	return n, nil
}

// DeleteByAgent removes every membership of agent.
func (h *RolePathHandler) DeleteByAgent(ctx context.Context, q sqldb.Querier, agent types.EntityID) (int64, error) {
	if agent == NoAgent {
		return 0, nil
	}
	n, err := q.Exec(ctx, "DELETE FROM "+RolePathTable+" WHERE AGENT = ?", agent)
	if err != nil {
		return 0, errors.Wrap(err, "deleting role memberships")
	}
	return n, nil
}

// Exists reports whether the row (path, agent) is stored. With NoAgent it
// reports whether the role exists.
func (h *RolePathHandler) Exists(ctx context.Context, q sqldb.Querier, path string, agent types.EntityID) (bool, error) {
	var one int
	err := q.QueryRow(ctx, "SELECT 1 FROM "+RolePathTable+" WHERE PATH = ? AND AGENT = ?", path, agent).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "checking role")
	}
	return true, nil
}

// Fetch returns the role at path without its permissions. Returns NotFound
// if absent.
func (h *RolePathHandler) Fetch(ctx context.Context, q sqldb.Querier, path string) (types.Role, error) {
	r := types.Role{Path: path}
	err := q.QueryRow(ctx, "SELECT JOBLIST FROM "+RolePathTable+" WHERE PATH = ? AND AGENT = ?", path, NoAgent).Scan(&r.JobList)
	if err == sql.ErrNoRows {
		return types.Role{}, errors.Newf(errors.NotFound, "role %s not found", path)
	}
	if err != nil {
		return types.Role{}, errors.Wrap(err, "fetching role")
	}
	return r, nil
}

// FindAgents returns the agents holding the role, ordered by id.
func (h *RolePathHandler) FindAgents(ctx context.Context, q sqldb.Querier, path string) ([]types.EntityID, error) {
	rows, err := q.Query(ctx, "SELECT AGENT FROM "+RolePathTable+" WHERE PATH = ? AND AGENT <> ? ORDER BY AGENT", path, NoAgent)
	if err != nil {
		return nil, errors.Wrap(err, "finding role agents")
	}
	defer rows.Close()

	out := []types.EntityID{}
	for rows.Next() {
		var id types.EntityID
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scanning role agent")
		}
		out = append(out, id)
	}
	return out, errors.Wrap(rows.Err(), "finding role agents")
}

// FindByAgent returns the roles agent holds ordered by path, without
// permissions.
func (h *RolePathHandler) FindByAgent(ctx context.Context, q sqldb.Querier, agent types.EntityID, offset, limit int) ([]types.Role, error) {
	if agent == NoAgent {
		return []types.Role{}, nil
	}
	return h.query(ctx, q, "AGENT = ?", []any{agent}, offset, limit)
}

// CountByAgent returns the number of roles agent holds.
func (h *RolePathHandler) CountByAgent(ctx context.Context, q sqldb.Querier, agent types.EntityID) (int, error) {
	if agent == NoAgent {
		return 0, nil
	}
	return h.count(ctx, q, "AGENT = ?", []any{agent})
}

// FindByName returns every role whose last segment is name.
func (h *RolePathHandler) FindByName(ctx context.Context, q sqldb.Querier, name string) ([]types.Role, error) {
	esc := q.Dialect().LikeEscape()
	return h.query(ctx, q, "AGENT = ? AND PATH LIKE ?"+esc, []any{NoAgent, "%/" + sqldb.EscapeLike(name)}, 0, 0)
}

// Children returns the direct child roles of root. RoleRoot lists the
// top-level roles.
func (h *RolePathHandler) Children(ctx context.Context, q sqldb.Querier, root string, offset, limit int) ([]types.Role, error) {
	pred, args, err := childPredicate(q, root)
	if err != nil {
		return nil, err
	}
	return h.query(ctx, q, "AGENT = ? AND "+pred, append([]any{NoAgent}, args...), offset, limit)
}

// CountChildren returns the number of direct child roles of root.
func (h *RolePathHandler) CountChildren(ctx context.Context, q sqldb.Querier, root string) (int, error) {
	pred, args, err := childPredicate(q, root)
	if err != nil {
		return 0, err
	}
	return h.count(ctx, q, "AGENT = ? AND "+pred, append([]any{NoAgent}, args...))
}

func (h *RolePathHandler) query(ctx context.Context, q sqldb.Querier, pred string, args []any, offset, limit int) ([]types.Role, error) {
	query := "SELECT PATH, JOBLIST FROM " + RolePathTable + " WHERE " + pred + " ORDER BY PATH"
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
		return nil, errors.Wrap(err, "searching roles")
	}
	defer rows.Close()

	out := []types.Role{}
	for rows.Next() {
		var r types.Role
		if err := rows.Scan(&r.Path, &r.JobList); err != nil {
			return nil, errors.Wrap(err, "scanning role")
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "searching roles")
}

func (h *RolePathHandler) count(ctx context.Context, q sqldb.Querier, pred string, args []any) (int, error) {
	var n int
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM "+RolePathTable+" WHERE "+pred, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "counting roles")
	}
	return n, nil
}
