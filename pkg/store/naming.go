package store

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// AddPath adds a naming node and any missing ancestors. A nil target makes
// a pure directory node. Returns Conflict if the path exists.
func (s *Store) AddPath(ctx context.Context, tx *Tx, path string, target types.EntityID) (err error) {
	defer s.observe(namingComponent, "add", time.Now(), &err)

	if err := s.writable(); err != nil {
		return err
	}
	path, err = types.CleanNamingPath(path)
	if err != nil {
		return err
	}
	q, err := s.conn(ctx, tx)
	if err != nil {
		return err
	}
	found, err := s.paths.Exists(ctx, q, path)
	if err != nil {
		return err
	}
	if found {
		return errors.Newf(errors.Conflict, "naming path %s exists", path)
	}
	_, err = s.paths.Insert(ctx, q, path, uuid.NullUUID{UUID: target, Valid: target != uuid.Nil})
	return err
}

// RemovePath removes a leaf naming node. Returns NotFound if it is absent
// and IllegalMutation if it has children.
func (s *Store) RemovePath(ctx context.Context, tx *Tx, path string) (err error) {
	defer s.observe(namingComponent, "remove", time.Now(), &err)

	if err := s.writable(); err != nil {
		return err
	}
	path, err = types.CleanNamingPath(path)
	if err != nil {
		return err
	}
	q, err := s.conn(ctx, tx)
	if err != nil {
		return err
	}
	found, err := s.paths.Exists(ctx, q, path)
	if err != nil {
		return err
	}
	if !found {
		return errors.Newf(errors.NotFound, "naming path %s not found", path)
	}
	children, err := s.paths.CountChildren(ctx, q, path)
	if err != nil {
		return err
	}
	if children > 0 {
		return errors.Newf(errors.IllegalMutation, "path is not a leaf: %s has %d children", path, children)
	}
	_, err = s.paths.Delete(ctx, q, path)
	return err
}

// RemoveTree removes root and every node below it, deepest first: the paths
// are sorted and deleted in reverse, so each node goes after all of its
// descendants. Run it under one handle to make it atomic. Returns the number
// of nodes removed, or NotFound if there were none.
func (s *Store) RemoveTree(ctx context.Context, tx *Tx, root string) (n int64, err error) {
	defer s.observe(namingComponent, "remove_tree", time.Now(), &err)

	if err := s.writable(); err != nil {
		return 0, err
	}
	root, err = types.CleanNamingPath(root)
	if err != nil {
		return 0, err
	}
	q, err := s.conn(ctx, tx)
	if err != nil {
		return 0, err
	}
	nodes, err := s.paths.Descendants(ctx, q, root)
	if err != nil {
		return 0, err
	}
	if len(nodes) == 0 {
		return 0, errors.Newf(errors.NotFound, "naming path %s not found", root)
	}

	paths := make([]string, len(nodes))
	for i, node := range nodes {
		paths[i] = node.Path
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	for _, p := range paths {
		d, err := s.paths.Delete(ctx, q, p)
		if err != nil {
			return n, err
		}
		n += d
	}
	return n, nil
}

// Resolve returns the entity a naming node targets. Returns NotFound if the
// path is absent or is a pure directory node.
func (s *Store) Resolve(ctx context.Context, tx *Tx, path string) (id types.EntityID, err error) {
	defer s.observe(namingComponent, "resolve", time.Now(), &err)

	path, err = types.CleanNamingPath(path)
	if err != nil {
		return id, err
	}
	q, err := s.conn(ctx, tx)
	if err != nil {
		return id, err
	}
	node, err := s.paths.Fetch(ctx, q, path)
	if err != nil {
		return id, err
	}
	if !node.IsLeafTarget() {
		return id, errors.Newf(errors.NotFound, "naming path %s has no target", path)
	}
	return node.Target.UUID, nil
}

// Node returns the naming node at path.
func (s *Store) Node(ctx context.Context, tx *Tx, path string) (node types.NamingNode, err error) {
	defer s.observe(namingComponent, "get", time.Now(), &err)

	path, err = types.CleanNamingPath(path)
	if err != nil {
		return node, err
	}
	q, err := s.conn(ctx, tx)
	if err != nil {
		return node, err
	}
	return s.paths.Fetch(ctx, q, path)
}

// Search returns the naming nodes below root matching name. A blank name
// returns root and its whole subtree. With targets set, only nodes resolving
// to one of them are returned.
func (s *Store) Search(ctx context.Context, tx *Tx, root, name string, mode types.SearchMode, targets ...types.EntityID) (nodes []types.NamingNode, err error) {
	defer s.observe(namingComponent, "search", time.Now(), &err)

	q, err := s.conn(ctx, tx)
	if err != nil {
		return nil, err
	}
	return s.paths.Search(ctx, q, root, name, mode, targets...)
}

// SearchByProperties returns the naming nodes below root whose targets hold
// every given property value.
func (s *Store) SearchByProperties(ctx context.Context, tx *Tx, root string, props ...types.Property) ([]types.NamingNode, error) {
	ids, err := s.FindEntities(ctx, tx, props...)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []types.NamingNode{}, nil
	}
	return s.Search(ctx, tx, root, "", types.Wildcard, ids...)
}

// Children returns the direct children of root ordered by path. A positive
// limit caps the page; offset skips rows first.
func (s *Store) Children(ctx context.Context, tx *Tx, root string, offset, limit int) (nodes []types.NamingNode, err error) {
	defer s.observe(namingComponent, "children", time.Now(), &err)

	q, err := s.conn(ctx, tx)
	if err != nil {
		return nil, err
	}
	return s.paths.Children(ctx, q, root, offset, limit)
}

// CountChildren returns the number of direct children of root.
func (s *Store) CountChildren(ctx context.Context, tx *Tx, root string) (n int, err error) {
	defer s.observe(namingComponent, "count_children", time.Now(), &err)

	q, err := s.conn(ctx, tx)
	if err != nil {
		return 0, err
	}
	return s.paths.CountChildren(ctx, q, root)
}

// Aliases returns the naming nodes targeting id, ordered by path.
func (s *Store) Aliases(ctx context.Context, tx *Tx, id types.EntityID, offset, limit int) (nodes []types.NamingNode, err error) {
	defer s.observe(namingComponent, "aliases", time.Now(), &err)

	q, err := s.conn(ctx, tx)
	if err != nil {
		return nil, err
	}
	return s.paths.FindByTarget(ctx, q, id, offset, limit)
}

// CountAliases returns the number of naming nodes targeting id.
func (s *Store) CountAliases(ctx context.Context, tx *Tx, id types.EntityID) (n int, err error) {
	defer s.observe(namingComponent, "count_aliases", time.Now(), &err)

	q, err := s.conn(ctx, tx)
	if err != nil {
		return 0, err
	}
	return s.paths.CountByTarget(ctx, q, id)
}
