// Package cluster implements one handler per cluster type and the registry
// that dispatches to them. Each handler owns one table keyed by the entity
// id plus its type-specific key columns.
//
// Append-only types (Outcome, AuditTrail, Job, Attachment) do not implement
// Updater. Put on an existing key of those types fails with IllegalMutation.
package cluster

import (
	"context"
	"reflect"

	"github.com/mesh-intelligence/clusterstore/internal/sqldb"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// Handler is the CRUD contract every cluster type implements.
type Handler interface {
	// Type is the cluster type the handler serves.
	Type() types.ClusterType
	// Table is the backing table name.
	Table() string
	// Columns lists every column in insert order; KeyColumns the primary key.
	Columns() []string
	KeyColumns() []string

	// EnsureSchema creates the table if it does not exist.
	EnsureSchema(ctx context.Context, q sqldb.Querier) error

	// Fetch returns the record at a complete key. Returns NotFound if absent.
	Fetch(ctx context.Context, q sqldb.Querier, id types.EntityID, keys ...string) (types.Record, error)
	// Exists reports whether any row matches a complete or partial key.
	Exists(ctx context.Context, q sqldb.Querier, id types.EntityID, keys ...string) (bool, error)
	// Put inserts rec, or updates it when its key exists and the type allows.
	Put(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error)
	// Insert adds rec. Returns Conflict if its key exists.
	Insert(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error)
	// Delete removes the rows under a complete or partial key.
	Delete(ctx context.Context, q sqldb.Querier, id types.EntityID, keys ...string) (int64, error)
	// NextKeySegments lists the distinct values of the key following keys.
	NextKeySegments(ctx context.Context, q sqldb.Querier, id types.EntityID, keys ...string) ([]string, error)
}

// Updater is implemented by the handlers of mutable cluster types only.
type Updater interface {
	Update(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error)
}

// Sequencer is implemented by handlers whose key is an issued integer id.
type Sequencer interface {
	// LastID returns the highest id stored for the entity, or -1.
	LastID(ctx context.Context, q sqldb.Querier, id types.EntityID) (int, error)
}

// Update dispatches to h when it is mutable. Append-only handlers yield
// IllegalMutation without touching the backend.
func Update(ctx context.Context, h Handler, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	if isNil(rec) {
		return 0, wrongRecord(h.Type(), nil)
	}
	u, ok := h.(Updater)
	if !ok {
		return 0, mustNotUpdate(h.Type())
	}
	return u.Update(ctx, q, id, rec)
}

func mustNotUpdate(ct types.ClusterType) error {
	return errors.Newf(errors.IllegalMutation, "%s must not be updated", ct)
}

// put is the shared fetch-then-branch upsert.
func put(ctx context.Context, h Handler, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	if isNil(rec) {
		return 0, wrongRecord(h.Type(), nil)
	}
	if rec.ClusterType() != h.Type() {
		return 0, wrongRecord(h.Type(), rec)
	}
	found, err := h.Exists(ctx, q, id, rec.Key()...)
	if err != nil {
		return 0, err
	}
	if !found {
		return h.Insert(ctx, q, id, rec)
	}
	return Update(ctx, h, q, id, rec)
}

// isNil reports a nil interface or a nil record pointer inside one.
func isNil(rec types.Record) bool {
	if rec == nil {
		return true
	}
	v := reflect.ValueOf(rec)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func wrongRecord(ct types.ClusterType, rec types.Record) error {
	if isNil(rec) {
		return errors.Newf(errors.InvalidData, "%s handler got a nil record", ct)
	}
	return errors.Newf(errors.InvalidData, "%s handler got a %s record", ct, rec.ClusterType())
}
