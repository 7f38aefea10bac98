package store

import (
	"context"
	"time"

	"github.com/mesh-intelligence/clusterstore/internal/lookup"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// CreateRole adds a role and its permissions. Returns Conflict if the role
// exists and NotFound if its parent role does not.
func (s *Store) CreateRole(ctx context.Context, tx *Tx, role types.Role) (err error) {
	defer s.observe(roleComponent, "create", time.Now(), &err)

	if err := s.writable(); err != nil {
		return err
	}
	path, err := types.CleanRolePath(role.Path)
	if err != nil {
		return err
	}
	q, err := s.conn(ctx, tx)
	if err != nil {
		return err
	}
	found, err := s.roles.Exists(ctx, q, path, lookup.NoAgent)
	if err != nil {
		return err
	}
	if found {
		return errors.Newf(errors.Conflict, "role %s exists", path)
	}
	if parent := types.ParentRole(path); parent != "" {
		found, err := s.roles.Exists(ctx, q, parent, lookup.NoAgent)
		if err != nil {
			return err
		}
		if !found {
			return errors.Newf(errors.NotFound, "parent role %s does not exist", parent)
		}
	}
	if _, err := s.roles.Insert(ctx, q, path, lookup.NoAgent, role.JobList); err != nil {
		return err
	}
	_, err = s.perms.Insert(ctx, q, path, role.Permissions)
	return err
}

// Role returns the role at path with its permissions.
func (s *Store) Role(ctx context.Context, tx *Tx, path string) (r types.Role, err error) {
	defer s.observe(roleComponent, "get", time.Now(), &err)

	path, err = types.CleanRolePath(path)
	if err != nil {
		return r, err
	}
	q, err := s.conn(ctx, tx)
	if err != nil {
		return r, err
	}
	if r, err = s.roles.Fetch(ctx, q, path); err != nil {
		return r, err
	}
	r.Permissions, err = s.perms.Fetch(ctx, q, path)
	return r, err
}

// RoleByName finds the role whose last path segment is name. Returns
// NotFound when there is none and Conflict when the name is ambiguous.
func (s *Store) RoleByName(ctx context.Context, tx *Tx, name string) (r types.Role, err error) {
	defer s.observe(roleComponent, "by_name", time.Now(), &err)

	if name == "" {
		return r, errors.New(errors.InvalidData, "role name must not be empty")
	}
	q, err := s.conn(ctx, tx)
	if err != nil {
		return r, err
	}
	found, err := s.roles.FindByName(ctx, q, name)
	if err != nil {
		return r, err
	}
	switch {
	case len(found) == 0:
		return r, errors.Newf(errors.NotFound, "role %q does not exist", name)
	case len(found) > 1:
		return r, errors.Newf(errors.Conflict, "role name %q is ambiguous: %d roles", name, len(found))
	}
	r = found[0]
	r.Permissions, err = s.perms.Fetch(ctx, q, r.Path)
	return r, err
}

// SetRolePermissions replaces the permissions of a role.
func (s *Store) SetRolePermissions(ctx context.Context, tx *Tx, path string, perms []string) (err error) {
	defer s.observe(roleComponent, "set_permissions", time.Now(), &err)

	if err := s.writable(); err != nil {
		return err
	}
	path, q, err := s.existingRole(ctx, tx, path)
	if err != nil {
		return err
	}
	if _, err := s.perms.Delete(ctx, q, path); err != nil {
		return err
	}
	_, err = s.perms.Insert(ctx, q, path, perms)
	return err
}

// SetHasJobList sets whether agents holding the role keep a job list.
func (s *Store) SetHasJobList(ctx context.Context, tx *Tx, path string, jobList bool) (err error) {
	defer s.observe(roleComponent, "set_joblist", time.Now(), &err)

	if err := s.writable(); err != nil {
		return err
	}
	path, q, err := s.existingRole(ctx, tx, path)
	if err != nil {
		return err
	}
	_, err = s.roles.Update(ctx, q, path, jobList)
	return err
}

// DeleteRole removes a role, its memberships and its permissions. Returns
// IllegalMutation if it has child roles.
func (s *Store) DeleteRole(ctx context.Context, tx *Tx, path string) (err error) {
	defer s.observe(roleComponent, "delete", time.Now(), &err)

	if err := s.writable(); err != nil {
		return err
	}
	path, q, err := s.existingRole(ctx, tx, path)
	if err != nil {
		return err
	}
	kids, err := s.roles.CountChildren(ctx, q, path)
	if err != nil {
		return err
	}
	if kids > 0 {
		return errors.Newf(errors.IllegalMutation, "role %s has %d child roles", path, kids)
	}
	if _, err := s.perms.Delete(ctx, q, path); err != nil {
		return err
	}
	_, err = s.roles.Delete(ctx, q, path)
	return err
}

// AddRole gives a registered agent the role. Returns NotFound if either is
// missing and Conflict if the agent already holds it.
func (s *Store) AddRole(ctx context.Context, tx *Tx, agent types.EntityID, path string) (err error) {
	defer s.observe(roleComponent, "add_agent", time.Now(), &err)

	if err := s.writable(); err != nil {
		return err
	}
	path, q, err := s.existingRole(ctx, tx, path)
	if err != nil {
		return err
	}
	e, err := s.items.Fetch(ctx, q, agent)
	if err != nil {
		return err
	}
	if !e.IsAgent() {
		return errors.Newf(errors.InvalidData, "entity %s is not an agent", agent)
	}
	held, err := s.roles.Exists(ctx, q, path, agent)
	if err != nil {
		return err
	}
	if held {
		return errors.Newf(errors.Conflict, "agent %s already holds role %s", agent, path)
	}
	r, err := s.roles.Fetch(ctx, q, path)
	if err != nil {
		return err
	}
	_, err = s.roles.Insert(ctx, q, path, agent, r.JobList)
	return err
}

// RemoveRole takes the role from an agent. Returns NotFound if the role is
// missing or the agent does not hold it.
func (s *Store) RemoveRole(ctx context.Context, tx *Tx, agent types.EntityID, path string) (err error) {
	defer s.observe(roleComponent, "remove_agent", time.Now(), &err)

	if err := s.writable(); err != nil {
		return err
	}
	path, q, err := s.existingRole(ctx, tx, path)
	if err != nil {
		return err
	}
	n, err := s.roles.Unassign(ctx, q, path, agent)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Newf(errors.NotFound, "agent %s does not hold role %s", agent, path)
	}
	return nil
}

// HasRole reports whether the agent holds the role.
func (s *Store) HasRole(ctx context.Context, tx *Tx, agent types.EntityID, path string) (ok bool, err error) {
	defer s.observe(roleComponent, "has", time.Now(), &err)

	if agent == lookup.NoAgent {
		return false, nil
	}
	path, err = types.CleanRolePath(path)
	if err != nil {
		return false, err
	}
	q, err := s.conn(ctx, tx)
	if err != nil {
		return false, err
	}
	return s.roles.Exists(ctx, q, path, agent)
}

// Agents lists the agents holding the role.
func (s *Store) Agents(ctx context.Context, tx *Tx, path string) (ids []types.EntityID, err error) {
	defer s.observe(roleComponent, "agents", time.Now(), &err)

	path, q, err := s.existingRole(ctx, tx, path)
	if err != nil {
		return nil, err
	}
	return s.roles.FindAgents(ctx, q, path)
}

// Roles lists the roles an agent holds, ordered by path, with their
// permissions. A positive limit caps the result; offset skips rows first.
func (s *Store) Roles(ctx context.Context, tx *Tx, agent types.EntityID, offset, limit int) (out []types.Role, err error) {
	defer s.observe(roleComponent, "of_agent", time.Now(), &err)

	q, err := s.conn(ctx, tx)
	if err != nil {
		return nil, err
	}
	if out, err = s.roles.FindByAgent(ctx, q, agent, offset, limit); err != nil {
		return nil, err
	}
	return out, s.withPermissions(ctx, q, out)
}

// CountRoles returns the number of roles an agent holds.
func (s *Store) CountRoles(ctx context.Context, tx *Tx, agent types.EntityID) (n int, err error) {
	defer s.observe(roleComponent, "count_of_agent", time.Now(), &err)

	q, err := s.conn(ctx, tx)
	if err != nil {
		return 0, err
	}
	return s.roles.CountByAgent(ctx, q, agent)
}

// RoleChildren lists the direct child roles of root with their permissions.
// types.RoleRoot lists the top-level roles.
func (s *Store) RoleChildren(ctx context.Context, tx *Tx, root string, offset, limit int) (out []types.Role, err error) {
	defer s.observe(roleComponent, "children", time.Now(), &err)

	q, err := s.conn(ctx, tx)
	if err != nil {
		return nil, err
	}
	if out, err = s.roles.Children(ctx, q, root, offset, limit); err != nil {
		return nil, err
	}
	return out, s.withPermissions(ctx, q, out)
}

// existingRole cleans path and checks the role exists.
func (s *Store) existingRole(ctx context.Context, tx *Tx, path string) (string, querier, error) {
	path, err := types.CleanRolePath(path)
	if err != nil {
		return "", nil, err
	}
	q, err := s.conn(ctx, tx)
	if err != nil {
		return "", nil, err
	}
	found, err := s.roles.Exists(ctx, q, path, lookup.NoAgent)
	if err != nil {
		return "", nil, err
	}
	if !found {
		return "", nil, errors.Newf(errors.NotFound, "role %s does not exist", path)
	}
	return path, q, nil
}

func (s *Store) withPermissions(ctx context.Context, q querier, roles []types.Role) error {
	for i := range roles {
		perms, err := s.perms.Fetch(ctx, q, roles[i].Path)
		if err != nil {
			return err
		}
		roles[i].Permissions = perms
	}
	return nil
}
