package cluster

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/clusterstore/internal/sqldb"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// ViewpointTable stores Viewpoint records.
const ViewpointTable = "VIEWPOINT"

var (
	_ Handler = (*ViewpointHandler)(nil)
	_ Updater = (*ViewpointHandler)(nil)
)

// ViewpointHandler serves the Viewpoint cluster: (id, schema, view name) to
// the schema version and event id of the outcome it points at.
type ViewpointHandler struct {
	table
}

// NewViewpointHandler returns the Viewpoint handler.
func NewViewpointHandler(cfg types.Config) *ViewpointHandler {
	return &ViewpointHandler{table{
		typ:    types.ViewpointCluster,
		name:   ViewpointTable,
		keys:   []keyColumn{{name: "SCHEMA_NAME"}, {name: "NAME"}},
		values: []string{"SCHEMA_VERSION", "EVENT_ID"},
		cfg:    cfg,
		ddlBody: func(ct sqldb.ColumnTypes) string {
			return fmt.Sprintf("    SCHEMA_NAME %s NOT NULL,\n    NAME %s NOT NULL,\n    SCHEMA_VERSION %s NOT NULL,\n    EVENT_ID %s NOT NULL",
				ct.Name, ct.Name, ct.Int, ct.Int)
		},
	}}
}

func (h *ViewpointHandler) Fetch(ctx context.Context, q sqldb.Querier, id types.EntityID, keys ...string) (types.Record, error) {
	row, err := h.selectRow(ctx, q, id, keys)
	if err != nil {
		return nil, err
	}
	v := &types.Viewpoint{SchemaName: keys[0], Name: keys[1]}
	if err := row.Scan(&v.SchemaVersion, &v.EventID); err != nil {
		return nil, h.scanErr(err, id, keys)
	}
	return v, nil
}

func (h *ViewpointHandler) Put(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	return put(ctx, h, q, id, rec)
}

func (h *ViewpointHandler) Insert(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	v, err := h.viewpoint(rec)
	if err != nil {
		return 0, err
	}
	return h.insert(ctx, q, id, v.SchemaName, v.Name, v.SchemaVersion, v.EventID)
}

func (h *ViewpointHandler) Update(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	v, err := h.viewpoint(rec)
	if err != nil {
		return 0, err
	}
	return h.update(ctx, q, id, v.Key(), v.SchemaVersion, v.EventID)
}

func (h *ViewpointHandler) viewpoint(rec types.Record) (*types.Viewpoint, error) {
	v, ok := rec.(*types.Viewpoint)
	if !ok || v == nil {
		return nil, wrongRecord(h.typ, rec)
	}
	if v.SchemaName == "" || v.Name == "" {
		return nil, errors.New(errors.InvalidData, "viewpoint needs a schema name and a view name")
	}
	return v, nil
}
