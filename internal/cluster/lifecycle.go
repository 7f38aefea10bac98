package cluster

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/clusterstore/internal/sqldb"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// LifecycleTable stores Lifecycle records.
const LifecycleTable = "LIFECYCLE"

var (
	_ Handler = (*LifecycleHandler)(nil)
	_ Updater = (*LifecycleHandler)(nil)
)

// LifecycleHandler serves the LifeCycle cluster: (id, name) to the
// serialized workflow instance.
type LifecycleHandler struct {
	table
}

// NewLifecycleHandler returns the LifeCycle handler.
func NewLifecycleHandler(cfg types.Config) *LifecycleHandler {
	return &LifecycleHandler{table{
		typ:    types.LifecycleCluster,
		name:   LifecycleTable,
		keys:   []keyColumn{{name: "NAME"}},
		values: []string{"XML"},
		cfg:    cfg,
		ddlBody: func(ct sqldb.ColumnTypes) string {
			return fmt.Sprintf("    NAME %s NOT NULL,\n    XML %s NOT NULL", ct.Name, ct.Text)
		},
	}}
}

func (h *LifecycleHandler) Fetch(ctx context.Context, q sqldb.Querier, id types.EntityID, keys ...string) (types.Record, error) {
	row, err := h.selectRow(ctx, q, id, keys)
	if err != nil {
		return nil, err
	}
	l := &types.Lifecycle{Name: keys[0]}
	if err := row.Scan(&l.Data); err != nil {
		return nil, h.scanErr(err, id, keys)
	}
	return l, nil
}

func (h *LifecycleHandler) Put(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	return put(ctx, h, q, id, rec)
}

func (h *LifecycleHandler) Insert(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	l, err := h.lifecycle(rec)
	if err != nil {
		return 0, err
	}
	return h.insert(ctx, q, id, l.Name, l.Data)
}

func (h *LifecycleHandler) Update(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	l, err := h.lifecycle(rec)
	if err != nil {
		return 0, err
	}
	return h.update(ctx, q, id, l.Key(), l.Data)
}

func (h *LifecycleHandler) lifecycle(rec types.Record) (*types.Lifecycle, error) {
	l, ok := rec.(*types.Lifecycle)
	if !ok || l == nil {
		return nil, wrongRecord(h.typ, rec)
	}
	if l.Name == "" {
		return nil, errors.New(errors.InvalidData, "lifecycle name must not be empty")
	}
	return l, nil
}
