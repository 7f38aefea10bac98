package cluster

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mesh-intelligence/clusterstore/internal/sqldb"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// OutcomeTable stores Outcome records.
const OutcomeTable = "OUTCOME"

var _ Handler = (*OutcomeHandler)(nil)

// OutcomeHandler serves the append-only Outcome cluster:
// (id, schema, version, event id) to an opaque XML payload.
type OutcomeHandler struct {
	table
}

// NewOutcomeHandler returns the Outcome handler.
func NewOutcomeHandler(cfg types.Config) *OutcomeHandler {
	return &OutcomeHandler{table{
		typ:  types.OutcomeCluster,
		name: OutcomeTable,
		keys: []keyColumn{
			{name: "SCHEMA_NAME"},
			{name: "SCHEMA_VERSION", numeric: true},
			{name: "EVENT_ID", numeric: true},
		},
		values: []string{"XML"},
		cfg:    cfg,
		ddlBody: func(ct sqldb.ColumnTypes) string {
			return fmt.Sprintf("    SCHEMA_NAME %s NOT NULL,\n    SCHEMA_VERSION %s NOT NULL,\n    EVENT_ID %s NOT NULL,\n    XML %s NOT NULL",
				ct.Name, ct.Int, ct.Int, ct.Text)
		},
	}}
}

func (h *OutcomeHandler) Fetch(ctx context.Context, q sqldb.Querier, id types.EntityID, keys ...string) (types.Record, error) {
	row, err := h.selectRow(ctx, q, id, keys)
	if err != nil {
		return nil, err
	}
	o := &types.Outcome{SchemaName: keys[0]}
	// Keys were validated as integers by selectRow.
	o.SchemaVersion, _ = strconv.Atoi(keys[1])
	o.EventID, _ = strconv.Atoi(keys[2])
	if err := row.Scan(&o.Data); err != nil {
		return nil, h.scanErr(err, id, keys)
	}
	return o, nil
}

func (h *OutcomeHandler) Put(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	return put(ctx, h, q, id, rec)
}

func (h *OutcomeHandler) Insert(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	o, ok := rec.(*types.Outcome)
	if !ok || o == nil {
		return 0, wrongRecord(h.typ, rec)
	}
	if o.SchemaName == "" {
		return 0, errors.New(errors.InvalidData, "outcome schema name must not be empty")
	}
	return h.insert(ctx, q, id, o.SchemaName, o.SchemaVersion, o.EventID, o.Data)
}
