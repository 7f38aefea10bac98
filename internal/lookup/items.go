// Package lookup implements the entity directory and the naming tree: the
// ITEM table of registered entities and the DOMAIN_PATH materialized-path
// directory that resolves human-readable names to entity ids.
package lookup

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mesh-intelligence/clusterstore/internal/cluster"
	"github.com/mesh-intelligence/clusterstore/internal/sqldb"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// ItemTable is the entity directory table.
const ItemTable = "ITEM"

// ItemHandler serves the entity directory. Its key is the entity id alone.
type ItemHandler struct {
	cfg types.Config
}

// NewItemHandler returns the entity directory handler.
func NewItemHandler(cfg types.Config) *ItemHandler {
	return &ItemHandler{cfg: cfg}
}

func (h *ItemHandler) Table() string { return ItemTable }

func (h *ItemHandler) Columns() []string {
	return []string{"UUID", "IOR", "IS_AGENT", "PASSWORD", "IS_PASSWORD_TEMPORARY"}
}

func (h *ItemHandler) KeyColumns() []string { return []string{"UUID"} }

func (h *ItemHandler) EnsureSchema(ctx context.Context, q sqldb.Querier) error {
	ct := q.Dialect().Types(h.cfg)
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    UUID %s NOT NULL,
    IOR %s,
    IS_AGENT %s NOT NULL,
    PASSWORD %s,
    IS_PASSWORD_TEMPORARY %s,
    CONSTRAINT PK_%s PRIMARY KEY (UUID)
)`, ItemTable, ct.UUID, ct.String, ct.Bool, ct.String, ct.Bool, ItemTable)
	if _, err := q.Exec(ctx, ddl); err != nil {
		return errors.Wrapf(err, "creating table %s", ItemTable)
	}
	return nil
}

func (h *ItemHandler) Exists(ctx context.Context, q sqldb.Querier, id types.EntityID) (bool, error) {
	var one int
	err := q.QueryRow(ctx, "SELECT 1 FROM "+ItemTable+" WHERE UUID = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "checking item")
	}
	return true, nil
}

// Fetch returns an ItemHandle, or an AgentHandle carrying the stored
// credential and the agent's Name property. Returns NotFound if id is not
// registered.
func (h *ItemHandler) Fetch(ctx context.Context, q sqldb.Querier, id types.EntityID) (types.EntityHandle, error) {
	query := fmt.Sprintf(`SELECT i.IOR, i.IS_AGENT, i.PASSWORD, i.IS_PASSWORD_TEMPORARY, p.VALUE
FROM %s i LEFT JOIN %s p ON p.UUID = i.UUID AND p.NAME = ?
WHERE i.UUID = ?`, ItemTable, cluster.PropertyTable)

	var (
		ior, password, name sql.NullString
		isAgent             bool
		temporary           sql.NullBool
	)
	err := q.QueryRow(ctx, query, types.NameProperty, id).Scan(&ior, &isAgent, &password, &temporary, &name)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.NotFound, "entity %s is not registered", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "fetching item")
	}

	item := types.ItemHandle{ID: id, Address: ior.String}
	if !isAgent {
		return item, nil
	}
	return types.AgentHandle{
		ItemHandle:        item,
		Name:              name.String,
		Credential:        password.String,
		TemporaryPassword: temporary.Bool,
	}, nil
}

// Insert registers an entity. Returns Conflict if the id is registered.
func (h *ItemHandler) Insert(ctx context.Context, q sqldb.Querier, e types.EntityHandle) (int64, error) {
	id, ior, agent, password, temporary, err := itemColumns(e)
	if err != nil {
		return 0, err
	}
	n, err := q.Exec(ctx,
		"INSERT INTO "+ItemTable+" (UUID, IOR, IS_AGENT, PASSWORD, IS_PASSWORD_TEMPORARY) VALUES (?, ?, ?, ?, ?)",
		id, ior, agent, password, temporary)
	if err != nil {
		return 0, errors.Wrap(err, "inserting item")
	}
	return n, nil
}

// Update rewrites the address, agent flag and credential of an entity.
func (h *ItemHandler) Update(ctx context.Context, q sqldb.Querier, e types.EntityHandle) (int64, error) {
	id, ior, agent, password, temporary, err := itemColumns(e)
	if err != nil {
		return 0, err
	}
	n, err := q.Exec(ctx,
		"UPDATE "+ItemTable+" SET IOR = ?, IS_AGENT = ?, PASSWORD = ?, IS_PASSWORD_TEMPORARY = ? WHERE UUID = ?",
		ior, agent, password, temporary, id)
	if err != nil {
		return 0, errors.Wrap(err, "updating item")
	}
	return n, nil
}

// Put inserts or updates e.
func (h *ItemHandler) Put(ctx context.Context, q sqldb.Querier, e types.EntityHandle) (int64, error) {
	if e == nil {
		return 0, errors.New(errors.InvalidData, "nil entity")
	}
	found, err := h.Exists(ctx, q, e.EntityID())
	if err != nil {
		return 0, err
	}
	if found {
		return h.Update(ctx, q, e)
	}
	return h.Insert(ctx, q, e)
}

func (h *ItemHandler) Delete(ctx context.Context, q sqldb.Querier, id types.EntityID) (int64, error) {
	n, err := q.Exec(ctx, "DELETE FROM "+ItemTable+" WHERE UUID = ?", id)
	if err != nil {
		return 0, errors.Wrap(err, "deleting item")
	}
	return n, nil
}

// UpdatePassword stores a new credential for an agent. Returns NotFound if
// id is not a registered agent.
func (h *ItemHandler) UpdatePassword(ctx context.Context, q sqldb.Querier, id types.EntityID, hash string, temporary bool) error {
	n, err := q.Exec(ctx,
		"UPDATE "+ItemTable+" SET PASSWORD = ?, IS_PASSWORD_TEMPORARY = ? WHERE UUID = ? AND IS_AGENT = ?",
		hash, temporary, id, true)
	if err != nil {
		return errors.Wrap(err, "updating password")
	}
	if n == 0 {
		return errors.Newf(errors.NotFound, "agent %s is not registered", id)
	}
	return nil
}

func itemColumns(e types.EntityHandle) (id types.EntityID, ior sql.NullString, agent bool, password sql.NullString, temporary sql.NullBool, err error) {
	switch v := e.(type) {
	case types.ItemHandle:
		return v.ID, nullString(v.Address), false, sql.NullString{}, sql.NullBool{}, nil
	case *types.ItemHandle:
		return itemColumns(*v)
	case types.AgentHandle:
		return v.ID, nullString(v.Address), true, nullString(v.Credential), sql.NullBool{Bool: v.TemporaryPassword, Valid: true}, nil
	case *types.AgentHandle:
		return itemColumns(*v)
	}
	err = errors.Newf(errors.InvalidData, "unsupported entity handle %T", e)
	return
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
