package store

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

func registerAgent(t *testing.T, s *Store, name string) types.EntityID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, s.RegisterAgent(context.Background(), nil, id, name, "", "secret", false))
	return id
}

func sortedIDs(ids ...types.EntityID) []types.EntityID {
	out := append([]types.EntityID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func roleNames(roles []types.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = r.Name()
	}
	return out
}

// newRoleStore opens a store with a top-level User role and the agents Jim
// and Tom.
func newRoleStore(t *testing.T) (s *Store, jim, tom types.EntityID) {
	t.Helper()
	s = openStore(t, true)
	require.NoError(t, s.CreateRole(context.Background(), nil, types.Role{Path: "/role/User"}))
	return s, registerAgent(t, s, "Jim"), registerAgent(t, s, "Tom")
}

func TestCreateRole(t *testing.T) {
	s, _, _ := newRoleStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		jobList bool
		perms   []string
	}{
		{"Internist", false, nil},
		{"Cardiologist", true, []string{"Patient:*:read", "Patient:Heart:write"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/role/User/" + tt.name
			require.NoError(t, s.CreateRole(ctx, nil, types.Role{Path: path, JobList: tt.jobList, Permissions: tt.perms}))

			want := types.Role{Path: path, JobList: tt.jobList, Permissions: tt.perms}
			if want.Permissions == nil {
				want.Permissions = []string{}
			}
			got, err := s.Role(ctx, nil, path)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			got, err = s.RoleByName(ctx, nil, tt.name)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	err := s.CreateRole(ctx, nil, types.Role{Path: "/role/User/Internist"})
	assert.True(t, errors.Is(err, errors.Conflict), "got %v", err)

	err = s.CreateRole(ctx, nil, types.Role{Path: "/role/Clerk/Secretary"})
	assert.True(t, errors.Is(err, errors.NotFound), "missing parent: %v", err)

	err = s.CreateRole(ctx, nil, types.Role{Path: "/desc/Clerk"})
	assert.True(t, errors.Is(err, errors.InvalidData), "got %v", err)
}

func TestRoleByName(t *testing.T) {
	s, _, _ := newRoleStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateRole(ctx, nil, types.Role{Path: "/role/Team"}))
	require.NoError(t, s.CreateRole(ctx, nil, types.Role{Path: "/role/Team/User"}))

	_, err := s.RoleByName(ctx, nil, "User")
	assert.True(t, errors.Is(err, errors.Conflict), "ambiguous name: %v", err)
	_, err = s.RoleByName(ctx, nil, "Nurse")
	assert.True(t, errors.Is(err, errors.NotFound), "got %v", err)

	got, err := s.RoleByName(ctx, nil, "Team")
	require.NoError(t, err)
	assert.Equal(t, "/role/Team", got.Path)
}

func TestAddAndRemoveRoles(t *testing.T) {
	s, jim, tom := newRoleStore(t)
	ctx := context.Background()
	internist, cardiologist := "/role/User/Internist", "/role/User/Cardiologist"
	require.NoError(t, s.CreateRole(ctx, nil, types.Role{Path: internist}))
	require.NoError(t, s.CreateRole(ctx, nil, types.Role{Path: cardiologist}))

	require.NoError(t, s.AddRole(ctx, nil, jim, internist))
	require.NoError(t, s.AddRole(ctx, nil, jim, cardiologist))
	require.NoError(t, s.AddRole(ctx, nil, tom, cardiologist))

	err := s.AddRole(ctx, nil, jim, internist)
	assert.True(t, errors.Is(err, errors.Conflict), "got %v", err)

	roles, err := s.Roles(ctx, nil, jim, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cardiologist", "Internist"}, roleNames(roles))
	n, err := s.CountRoles(ctx, nil, jim)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	agents, err := s.Agents(ctx, nil, cardiologist)
	require.NoError(t, err)
	assert.Equal(t, sortedIDs(jim, tom), agents)

	require.NoError(t, s.RemoveRole(ctx, nil, jim, cardiologist))
	ok, err := s.HasRole(ctx, nil, jim, cardiologist)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.HasRole(ctx, nil, jim, internist)
	require.NoError(t, err)
	assert.True(t, ok)

	agents, err = s.Agents(ctx, nil, cardiologist)
	require.NoError(t, err)
	assert.Equal(t, []types.EntityID{tom}, agents)

	err = s.RemoveRole(ctx, nil, jim, cardiologist)
	assert.True(t, errors.Is(err, errors.NotFound), "not related: %v", err)
}

func TestAddRoleChecksBothSides(t *testing.T) {
	s, jim, _ := newRoleStore(t)
	ctx := context.Background()
	item := register(t, s)

	err := s.AddRole(ctx, nil, jim, "/role/Ghost")
	assert.True(t, errors.Is(err, errors.NotFound), "got %v", err)
	err = s.AddRole(ctx, nil, uuid.New(), "/role/User")
	assert.True(t, errors.Is(err, errors.NotFound), "got %v", err)
	err = s.AddRole(ctx, nil, item, "/role/User")
	assert.True(t, errors.Is(err, errors.InvalidData), "got %v", err)
	_, err = s.Agents(ctx, nil, "/role/Ghost")
	assert.True(t, errors.Is(err, errors.NotFound), "got %v", err)
}

func TestJobListAndPermissions(t *testing.T) {
	s, jim, _ := newRoleStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddRole(ctx, nil, jim, "/role/User"))

	require.NoError(t, s.SetHasJobList(ctx, nil, "/role/User", true))
	require.NoError(t, s.SetRolePermissions(ctx, nil, "/role/User", []string{"b", "a", "b"}))

	got, err := s.Role(ctx, nil, "/role/User")
	require.NoError(t, err)
	assert.Equal(t, types.Role{Path: "/role/User", JobList: true, Permissions: []string{"b", "a"}}, got)

	roles, err := s.Roles(ctx, nil, jim, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []types.Role{got}, roles)

	require.NoError(t, s.SetRolePermissions(ctx, nil, "/role/User", nil))
	got, err = s.Role(ctx, nil, "/role/User")
	require.NoError(t, err)
	assert.Empty(t, got.Permissions)

	err = s.SetHasJobList(ctx, nil, "/role/Ghost", true)
	assert.True(t, errors.Is(err, errors.NotFound), "got %v", err)
}

func TestDeleteRoleAndHierarchy(t *testing.T) {
	s, jim, tom := newRoleStore(t)
	ctx := context.Background()
	sam := registerAgent(t, s, "Sam")
	internist := "/role/User/Internist"
	require.NoError(t, s.CreateRole(ctx, nil, types.Role{Path: internist, Permissions: []string{"read"}}))

	require.NoError(t, s.AddRole(ctx, nil, sam, "/role/User"))
	require.NoError(t, s.AddRole(ctx, nil, jim, internist))
	require.NoError(t, s.AddRole(ctx, nil, tom, internist))

	agents, err := s.Agents(ctx, nil, "/role/User")
	require.NoError(t, err)
	assert.Equal(t, []types.EntityID{sam}, agents)
	kids, err := s.RoleChildren(ctx, nil, "/role/User", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Internist"}, roleNames(kids))
	assert.Equal(t, []string{"read"}, kids[0].Permissions)

	err = s.DeleteRole(ctx, nil, "/role/User")
	assert.True(t, errors.Is(err, errors.IllegalMutation), "got %v", err)

	require.NoError(t, s.DeleteRole(ctx, nil, internist))
	_, err = s.Role(ctx, nil, internist)
	assert.True(t, errors.Is(err, errors.NotFound), "got %v", err)
	roles, err := s.Roles(ctx, nil, jim, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, roles)

	// A recreated role starts without the old permissions or agents.
	require.NoError(t, s.CreateRole(ctx, nil, types.Role{Path: internist}))
	got, err := s.Role(ctx, nil, internist)
	require.NoError(t, err)
	assert.Empty(t, got.Permissions)
	agents, err = s.Agents(ctx, nil, internist)
	require.NoError(t, err)
	assert.Empty(t, agents)
}

func TestRolesPaged(t *testing.T) {
	s, jim, _ := newRoleStore(t)
	ctx := context.Background()
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		path := "/role/User/" + name
		require.NoError(t, s.CreateRole(ctx, nil, types.Role{Path: path}))
		require.NoError(t, s.AddRole(ctx, nil, jim, path))
	}

	page, err := s.Roles(ctx, nil, jim, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "D"}, roleNames(page))
	page, err = s.Roles(ctx, nil, jim, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"E"}, roleNames(page))
}

func TestUnregisterAndEraseDropMemberships(t *testing.T) {
	s, jim, tom := newRoleStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddRole(ctx, nil, jim, "/role/User"))
	require.NoError(t, s.AddRole(ctx, nil, tom, "/role/User"))

	require.NoError(t, s.Unregister(ctx, nil, jim))
	_, err := s.Erase(ctx, nil, tom)
	require.NoError(t, err)

	agents, err := s.Agents(ctx, nil, "/role/User")
	require.NoError(t, err)
	assert.Empty(t, agents)
	_, err = s.Role(ctx, nil, "/role/User")
	require.NoError(t, err)
}

func TestRoleWritesRejectedWhenReadOnly(t *testing.T) {
	cfg := testConfig(t, true)
	rw, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, rw.CreateRole(context.Background(), nil, types.Role{Path: "/role/User"}))
	require.NoError(t, rw.Close())

	cfg.ReadOnly = true
	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()

	err = s.CreateRole(context.Background(), nil, types.Role{Path: "/role/Other"})
	assert.True(t, errors.Is(err, errors.Configuration), "got %v", err)
	err = s.SetHasJobList(context.Background(), nil, "/role/User", true)
	assert.True(t, errors.Is(err, errors.Configuration), "got %v", err)

	got, err := s.Role(context.Background(), nil, "/role/User")
	require.NoError(t, err)
	assert.Equal(t, "/role/User", got.Path)
}
