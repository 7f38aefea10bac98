package cluster

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/clusterstore/internal/sqldb"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// PropertyTable stores Property records.
const PropertyTable = "ITEM_PROPERTY"

var (
	_ Handler = (*PropertyHandler)(nil)
	_ Updater = (*PropertyHandler)(nil)
)

// PropertyHandler serves the Property cluster: (id, name) to value.
type PropertyHandler struct {
	table
}

// NewPropertyHandler returns the Property handler.
func NewPropertyHandler(cfg types.Config) *PropertyHandler {
	return &PropertyHandler{table{
		typ:    types.PropertyCluster,
		name:   PropertyTable,
		keys:   []keyColumn{{name: "NAME"}},
		values: []string{"VALUE", "IS_MUTABLE"},
		cfg:    cfg,
		ddlBody: func(ct sqldb.ColumnTypes) string {
			return fmt.Sprintf("    NAME %s NOT NULL,\n    VALUE %s,\n    IS_MUTABLE %s NOT NULL", ct.Name, ct.Text, ct.Bool)
		},
	}}
}

func (h *PropertyHandler) Fetch(ctx context.Context, q sqldb.Querier, id types.EntityID, keys ...string) (types.Record, error) {
	row, err := h.selectRow(ctx, q, id, keys)
	if err != nil {
		return nil, err
	}
	p := &types.Property{Name: keys[0]}
	var value sql.NullString
	if err := row.Scan(&value, &p.Mutable); err != nil {
		return nil, h.scanErr(err, id, keys)
	}
	p.Value = value.String
	return p, nil
}

func (h *PropertyHandler) Put(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	return put(ctx, h, q, id, rec)
}

func (h *PropertyHandler) Insert(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	p, ok := rec.(*types.Property)
	if !ok || p == nil {
		return 0, wrongRecord(h.typ, rec)
	}
	if p.Name == "" {
		return 0, errors.New(errors.InvalidData, "property name must not be empty")
	}
	return h.insert(ctx, q, id, p.Name, p.Value, p.Mutable)
}

func (h *PropertyHandler) Update(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	p, ok := rec.(*types.Property)
	if !ok || p == nil {
		return 0, wrongRecord(h.typ, rec)
	}
	return h.update(ctx, q, id, p.Key(), p.Value, p.Mutable)
}

// FindEntities returns the ids of entities holding every given name/value
// pair. An empty list matches nothing.
func (h *PropertyHandler) FindEntities(ctx context.Context, q sqldb.Querier, props ...types.Property) ([]types.EntityID, error) {
	if len(props) == 0 {
		return []types.EntityID{}, nil
	}
	var (
		preds []string
		args  []any
	)
	for _, p := range props {
		preds = append(preds, "(NAME = ? AND VALUE = ?)")
		args = append(args, p.Name, p.Value)
	}
	query := fmt.Sprintf("SELECT UUID FROM %s WHERE %s GROUP BY UUID HAVING COUNT(*) = ? ORDER BY UUID",
		h.name, strings.Join(preds, " OR "))
	args = append(args, len(props))

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "finding entities by property")
	}
	defer rows.Close()

	out := []types.EntityID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scanning entity id")
		}
		out = append(out, id)
	}
	return out, errors.Wrap(rows.Err(), "finding entities by property")
}
