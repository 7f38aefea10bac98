package lookup

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/clusterstore/internal/cluster"
	"github.com/mesh-intelligence/clusterstore/internal/sqldb"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

type fixture struct {
	q        sqldb.Querier
	registry *cluster.Registry
	items    *ItemHandler
	paths    *DomainPathHandler
	roles    *RolePathHandler
	perms    *PermissionHandler
}

// newFixture opens an auto-commit SQLite pool in a temp dir and creates the
// cluster, ITEM, DOMAIN_PATH and role tables.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	cfg := types.DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "db")
	cfg.AutoCommit = true
	cfg.MaxPoolSize = 4
	cfg.MinIdle = 1

	m, err := sqldb.Open(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	f := &fixture{
		q:        m.Pool(),
		registry: cluster.NewRegistry(cfg, nil),
		items:    NewItemHandler(cfg),
		paths:    NewDomainPathHandler(cfg, nil),
		roles:    NewRolePathHandler(cfg, nil),
		perms:    NewPermissionHandler(cfg),
	}
	require.NoError(t, f.registry.EnsureSchema(ctx, f.q))
	require.NoError(t, f.items.EnsureSchema(ctx, f.q))
	require.NoError(t, f.paths.EnsureSchema(ctx, f.q))
	require.NoError(t, f.roles.EnsureSchema(ctx, f.q))
	require.NoError(t, f.perms.EnsureSchema(ctx, f.q))
	return f
}

// item registers a plain entity and returns its id.
func (f *fixture) item(t *testing.T) types.EntityID {
	t.Helper()
	id := uuid.New()
	_, err := f.items.Insert(context.Background(), f.q, types.ItemHandle{ID: id})
	require.NoError(t, err)
	return id
}

func target(id types.EntityID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: true}
}

func pathsOf(nodes []types.NamingNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Path
	}
	return out
}

func rolePaths(roles []types.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = r.Path
	}
	return out
}
