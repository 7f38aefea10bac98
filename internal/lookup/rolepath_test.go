package lookup

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// seedRoles creates /role/Admin (with a job list), /role/Admin/Deputy,
// /role/User and /role/Team/User.
func seedRoles(t *testing.T, f *fixture) {
	t.Helper()
	for _, r := range []types.Role{
		{Path: "/role/Admin", JobList: true},
		{Path: "/role/Admin/Deputy"},
		{Path: "/role/User"},
		{Path: "/role/Team"},
		{Path: "/role/Team/User"},
	} {
		_, err := f.roles.Insert(context.Background(), f.q, r.Path, NoAgent, r.JobList)
		require.NoError(t, err, r.Path)
	}
}

func TestRoleInsertAndFetch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedRoles(t, f)

	r, err := f.roles.Fetch(ctx, f.q, "/role/Admin")
	require.NoError(t, err)
	assert.Equal(t, types.Role{Path: "/role/Admin", JobList: true}, r)
	assert.Equal(t, "Admin", r.Name())

	_, err = f.roles.Fetch(ctx, f.q, "/role/Nobody")
	assert.True(t, errors.Is(err, errors.NotFound), "got %v", err)

	_, err = f.roles.Insert(ctx, f.q, "/role/Admin", NoAgent, false)
	assert.True(t, errors.Is(err, errors.Conflict), "got %v", err)
}

func TestRoleMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedRoles(t, f)
	a, b := uuid.New(), uuid.New()

	for _, agent := range []types.EntityID{a, b} {
		_, err := f.roles.Insert(ctx, f.q, "/role/Admin", agent, true)
		require.NoError(t, err)
	}
	_, err := f.roles.Insert(ctx, f.q, "/role/User", a, false)
	require.NoError(t, err)

	ok, err := f.roles.Exists(ctx, f.q, "/role/Admin", a)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.roles.Exists(ctx, f.q, "/role/Team", a)
	require.NoError(t, err)
	assert.False(t, ok)

	agents, err := f.roles.FindAgents(ctx, f.q, "/role/Admin")
	require.NoError(t, err)
	want := []string{a.String(), b.String()}
	sort.Strings(want)
	got := []string{agents[0].String(), agents[1].String()}
	assert.Equal(t, want, got)

	roles, err := f.roles.FindByAgent(ctx, f.q, a, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"/role/Admin", "/role/User"}, rolePaths(roles))
	assert.True(t, roles[0].JobList)

	roles, err = f.roles.FindByAgent(ctx, f.q, a, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"/role/User"}, rolePaths(roles))

	n, err := f.roles.CountByAgent(ctx, f.q, a)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// The role rows themselves never count as an agent's roles.
	roles, err = f.roles.FindByAgent(ctx, f.q, NoAgent, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, roles)

	removed, err := f.roles.Unassign(ctx, f.q, "/role/Admin", a)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	removed, err = f.roles.Unassign(ctx, f.q, "/role/Admin", a)
	require.NoError(t, err)
	assert.Zero(t, removed)
	_, err = f.roles.Unassign(ctx, f.q, "/role/Admin", NoAgent)
	assert.True(t, errors.Is(err, errors.InvalidData), "got %v", err)

	removed, err = f.roles.DeleteByAgent(ctx, f.q, b)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	agents, err = f.roles.FindAgents(ctx, f.q, "/role/Admin")
	require.NoError(t, err)
	assert.Empty(t, agents)

	// The role survives losing its agents.
	_, err = f.roles.Fetch(ctx, f.q, "/role/Admin")
	require.NoError(t, err)
}

func TestRoleUpdateCoversMemberships(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedRoles(t, f)
	agent := uuid.New()
	_, err := f.roles.Insert(ctx, f.q, "/role/User", agent, false)
	require.NoError(t, err)

	n, err := f.roles.Update(ctx, f.q, "/role/User", true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	roles, err := f.roles.FindByAgent(ctx, f.q, agent, 0, 0)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.True(t, roles[0].JobList)
}

func TestRoleFindByNameAndChildren(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedRoles(t, f)

	tests := []struct {
		name string
		want []string
	}{
		{"Deputy", []string{"/role/Admin/Deputy"}},
		{"User", []string{"/role/Team/User", "/role/User"}},
		{"Use", []string{}},
		{"%", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.roles.FindByName(ctx, f.q, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rolePaths(got))
		})
	}

	kids, err := f.roles.Children(ctx, f.q, types.RoleRoot, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"/role/Admin", "/role/Team", "/role/User"}, rolePaths(kids))

	n, err := f.roles.CountChildren(ctx, f.q, "/role/Admin")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	deleted, err := f.roles.Delete(ctx, f.q, "/role/Admin/Deputy")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	n, err = f.roles.CountChildren(ctx, f.q, "/role/Admin")
	require.NoError(t, err)
	assert.Zero(t, n)
}
