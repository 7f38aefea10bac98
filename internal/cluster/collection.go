package cluster

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/clusterstore/internal/sqldb"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// CollectionTable stores Collection records.
const CollectionTable = "COLLECTION"

var (
	_ Handler = (*CollectionHandler)(nil)
	_ Updater = (*CollectionHandler)(nil)
)

// CollectionHandler serves the Collection cluster: (id, name, version) to a
// serialized membership list.
type CollectionHandler struct {
	table
}

// NewCollectionHandler returns the Collection handler.
func NewCollectionHandler(cfg types.Config) *CollectionHandler {
	return &CollectionHandler{table{
		typ:    types.CollectionCluster,
		name:   CollectionTable,
		keys:   []keyColumn{{name: "NAME"}, {name: "VERSION"}},
		values: []string{"XML"},
		cfg:    cfg,
		ddlBody: func(ct sqldb.ColumnTypes) string {
			return fmt.Sprintf("    NAME %s NOT NULL,\n    VERSION %s NOT NULL,\n    XML %s NOT NULL", ct.Name, ct.Name, ct.Text)
		},
	}}
}

func (h *CollectionHandler) Fetch(ctx context.Context, q sqldb.Querier, id types.EntityID, keys ...string) (types.Record, error) {
	row, err := h.selectRow(ctx, q, id, keys)
	if err != nil {
		return nil, err
	}
	c := &types.Collection{Name: keys[0], Version: keys[1]}
	if err := row.Scan(&c.Data); err != nil {
		return nil, h.scanErr(err, id, keys)
	}
	return c, nil
}

func (h *CollectionHandler) Put(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	return put(ctx, h, q, id, rec)
}

func (h *CollectionHandler) Insert(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	c, err := h.collection(rec)
	if err != nil {
		return 0, err
	}
	return h.insert(ctx, q, id, c.Name, c.Version, c.Data)
}

func (h *CollectionHandler) Update(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	c, err := h.collection(rec)
	if err != nil {
		return 0, err
	}
	return h.update(ctx, q, id, c.Key(), c.Data)
}

// Snapshot copies the current version of a collection into a new numbered
// version. Returns NotFound without a current version and Conflict when the
// target version exists.
func (h *CollectionHandler) Snapshot(ctx context.Context, q sqldb.Querier, id types.EntityID, name, version string) (*types.Collection, error) {
	if version == "" || version == types.CurrentVersion {
		return nil, errors.Newf(errors.InvalidData, "snapshot version must be a new version name, got %q", version)
	}
	rec, err := h.Fetch(ctx, q, id, name, types.CurrentVersion)
	if err != nil {
		return nil, err
	}
	snap := *rec.(*types.Collection)
	snap.Version = version
	if _, err := h.Insert(ctx, q, id, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (h *CollectionHandler) collection(rec types.Record) (*types.Collection, error) {
	c, ok := rec.(*types.Collection)
	if !ok || c == nil {
		return nil, wrongRecord(h.typ, rec)
	}
	if c.Name == "" || c.Version == "" {
		return nil, errors.New(errors.InvalidData, "collection needs a name and a version")
	}
	return c, nil
}
