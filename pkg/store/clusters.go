package store

import (
	"context"
	"time"

	"github.com/mesh-intelligence/clusterstore/internal/cluster"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// Put stores rec under id: an insert when its key is new, otherwise an
// update. Updating an append-only type fails with IllegalMutation and leaves
// the row unchanged.
func (s *Store) Put(ctx context.Context, tx *Tx, id types.EntityID, rec types.Record) (n int64, err error) {
	return s.write(ctx, tx, "put", id, rec, func(h cluster.Handler, q querier) (int64, error) {
		return h.Put(ctx, q, id, rec)
	})
}

// Insert adds rec under id. Returns Conflict if its key exists.
func (s *Store) Insert(ctx context.Context, tx *Tx, id types.EntityID, rec types.Record) (n int64, err error) {
	return s.write(ctx, tx, "insert", id, rec, func(h cluster.Handler, q querier) (int64, error) {
		return h.Insert(ctx, q, id, rec)
	})
}

// Update rewrites rec under id. Append-only types fail with IllegalMutation.
func (s *Store) Update(ctx context.Context, tx *Tx, id types.EntityID, rec types.Record) (n int64, err error) {
	return s.write(ctx, tx, "update", id, rec, func(h cluster.Handler, q querier) (int64, error) {
		return cluster.Update(ctx, h, q, id, rec)
	})
}

func (s *Store) write(ctx context.Context, tx *Tx, op string, id types.EntityID, rec types.Record, fn func(cluster.Handler, querier) (int64, error)) (n int64, err error) {
	if rec == nil {
		return 0, errors.New(errors.InvalidData, "nil record")
	}
	defer s.observe(string(rec.ClusterType()), op, time.Now(), &err)

	if err := s.writable(); err != nil {
		return 0, err
	}
	h, err := s.registry.ForType(rec.ClusterType())
	if err != nil {
		return 0, err
	}
	q, err := s.conn(ctx, tx)
	if err != nil {
		return 0, err
	}
	return fn(h, q)
}

// Get returns the record at a complete path.
func (s *Store) Get(ctx context.Context, tx *Tx, id types.EntityID, path types.ClusterPath) (rec types.Record, err error) {
	defer s.observe(string(path.Type), "get", time.Now(), &err)

	h, q, err := s.resolve(ctx, tx, path)
	if err != nil {
		return nil, err
	}
	if !path.IsComplete() {
		return nil, errors.Newf(errors.InvalidPath, "get needs a complete %s path, got %q", path.Type, path)
	}
	return h.Fetch(ctx, q, id, path.Keys...)
}

// Exists reports whether any row matches a complete or partial path.
func (s *Store) Exists(ctx context.Context, tx *Tx, id types.EntityID, path types.ClusterPath) (found bool, err error) {
	defer s.observe(string(path.Type), "exists", time.Now(), &err)

	h, q, err := s.resolve(ctx, tx, path)
	if err != nil {
		return false, err
	}
	return h.Exists(ctx, q, id, path.Keys...)
}

// Delete removes the row at a complete path, or every row under a partial
// one. A complete path with no row is NotFound.
func (s *Store) Delete(ctx context.Context, tx *Tx, id types.EntityID, path types.ClusterPath) (n int64, err error) {
	defer s.observe(string(path.Type), "delete", time.Now(), &err)

	if err := s.writable(); err != nil {
		return 0, err
	}
	h, q, err := s.resolve(ctx, tx, path)
	if err != nil {
		return 0, err
	}
	n, err = h.Delete(ctx, q, id, path.Keys...)
	if err != nil {
		return 0, err
	}
	if n == 0 && path.IsComplete() {
		return 0, errors.Newf(errors.NotFound, "%s has no %s", id, path)
	}
	return n, nil
}

// List browses the clusters of id. An empty path lists the cluster types
// holding rows; a partial path lists the distinct values of the next key; a
// complete path lists nothing.
func (s *Store) List(ctx context.Context, tx *Tx, id types.EntityID, path string) (out []string, err error) {
	if path == "" {
		defer s.observe(entityComponent, "list", time.Now(), &err)
		q, err := s.conn(ctx, tx)
		if err != nil {
			return nil, err
		}
		cts, err := s.registry.Clusters(ctx, q, id)
		if err != nil {
			return nil, err
		}
		out = make([]string, len(cts))
		for i, ct := range cts {
			out[i] = string(ct)
		}
		return out, nil
	}

	p, err := types.ParseClusterPath(path)
	if err != nil {
		return nil, err
	}
	defer s.observe(string(p.Type), "list", time.Now(), &err)
	h, q, err := s.resolve(ctx, tx, p)
	if err != nil {
		return nil, err
	}
	return h.NextKeySegments(ctx, q, id, p.Keys...)
}

// LastIntegerID returns the highest issued id of an AuditTrail or Job
// cluster, or -1 when it is empty. Other types are InvalidPath.
func (s *Store) LastIntegerID(ctx context.Context, tx *Tx, id types.EntityID, ct types.ClusterType) (last int, err error) {
	defer s.observe(string(ct), "last_id", time.Now(), &err)

	h, err := s.registry.ForType(ct)
	if err != nil {
		return 0, err
	}
	seq, ok := h.(cluster.Sequencer)
	if !ok {
		return 0, errors.Newf(errors.InvalidPath, "%s has no integer ids", ct)
	}
	q, err := s.conn(ctx, tx)
	if err != nil {
		return 0, err
	}
	return seq.LastID(ctx, q, id)
}

// SnapshotCollection copies the current version of a collection to a new
// named version. Returns Conflict if that version exists.
func (s *Store) SnapshotCollection(ctx context.Context, tx *Tx, id types.EntityID, name, version string) (c *types.Collection, err error) {
	defer s.observe(string(types.CollectionCluster), "snapshot", time.Now(), &err)

	if err := s.writable(); err != nil {
		return nil, err
	}
	q, err := s.conn(ctx, tx)
	if err != nil {
		return nil, err
	}
	return s.registry.Collections().Snapshot(ctx, q, id, name, version)
}

// FindEntities returns the ids holding every given property value.
func (s *Store) FindEntities(ctx context.Context, tx *Tx, props ...types.Property) (ids []types.EntityID, err error) {
	defer s.observe(string(types.PropertyCluster), "find", time.Now(), &err)

	q, err := s.conn(ctx, tx)
	if err != nil {
		return nil, err
	}
	return s.registry.Properties().FindEntities(ctx, q, props...)
}

// EntityByName resolves an entity through its Name property. Returns
// NotFound when no entity has the name and Conflict when several do.
func (s *Store) EntityByName(ctx context.Context, tx *Tx, name string) (types.EntityID, error) {
	ids, err := s.FindEntities(ctx, tx, types.Property{Name: types.NameProperty, Value: name})
	if err != nil {
		return types.EntityID{}, err
	}
	switch len(ids) {
	case 0:
		return types.EntityID{}, errors.Newf(errors.NotFound, "no entity named %q", name)
	case 1:
		return ids[0], nil
	}
	return types.EntityID{}, errors.Newf(errors.Conflict, "%d entities are named %q", len(ids), name)
}

// Erase removes every trace of id: its cluster rows, the naming nodes that
// target it, its role memberships and its directory entry. Returns the
// number of rows removed.
func (s *Store) Erase(ctx context.Context, tx *Tx, id types.EntityID) (n int64, err error) {
	defer s.observe(entityComponent, "erase", time.Now(), &err)

	if err := s.writable(); err != nil {
		return 0, err
	}
	q, err := s.conn(ctx, tx)
	if err != nil {
		return 0, err
	}
	if n, err = s.registry.DeleteAll(ctx, q, id); err != nil {
		return n, err
	}
	paths, err := s.paths.DeleteByTarget(ctx, q, id)
	if err != nil {
		return n, err
	}
	roles, err := s.roles.DeleteByAgent(ctx, q, id)
	if err != nil {
		return n + paths, err
	}
	items, err := s.items.Delete(ctx, q, id)
	if err != nil {
		return n + paths + roles, err
	}
	n += paths + roles + items
	s.logger.Debugf("erased %s: %d rows", id, n)
	return n, nil
}

func (s *Store) resolve(ctx context.Context, tx *Tx, path types.ClusterPath) (cluster.Handler, querier, error) {
	if err := path.Validate(); err != nil {
		return nil, nil, err
	}
	h, err := s.registry.ForType(path.Type)
	if err != nil {
		return nil, nil, err
	}
	q, err := s.conn(ctx, tx)
	if err != nil {
		return nil, nil, err
	}
	return h, q, nil
}
