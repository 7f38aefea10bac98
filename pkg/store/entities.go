package store

import (
	"context"
	"time"

	"github.com/mesh-intelligence/clusterstore/internal/lookup"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// Metric component labels for operations outside the cluster tables.
const (
	entityComponent = "entity"
	namingComponent = "naming"
	roleComponent   = "role"
)

// RegisterItem adds id to the entity directory. Returns Conflict if it is
// registered.
func (s *Store) RegisterItem(ctx context.Context, tx *Tx, id types.EntityID, address string) (err error) {
	defer s.observe(entityComponent, "register", time.Now(), &err)

	if err := s.writable(); err != nil {
		return err
	}
	q, err := s.conn(ctx, tx)
	if err != nil {
		return err
	}
	_, err = s.items.Insert(ctx, q, types.ItemHandle{ID: id, Address: address})
	return err
}

// RegisterAgent adds an agent to the entity directory with a hashed
// password and records its Name property. Returns Conflict if the id is
// registered or another entity has the name.
func (s *Store) RegisterAgent(ctx context.Context, tx *Tx, id types.EntityID, name, address, password string, temporary bool) (err error) {
	defer s.observe(entityComponent, "register_agent", time.Now(), &err)

	if err := s.writable(); err != nil {
		return err
	}
	if name == "" {
		return errors.New(errors.InvalidData, "agent name must not be empty")
	}
	hash, err := lookup.HashPassword(password)
	if err != nil {
		return err
	}
	switch _, err := s.EntityByName(ctx, tx, name); {
	case err == nil:
		return errors.Newf(errors.Conflict, "an entity is already named %q", name)
	case !errors.Is(err, errors.NotFound):
		return err
	}

	q, err := s.conn(ctx, tx)
	if err != nil {
		return err
	}
	agent := types.AgentHandle{
		ItemHandle:        types.ItemHandle{ID: id, Address: address},
		Name:              name,
		Credential:        hash,
		TemporaryPassword: temporary,
	}
	if _, err := s.items.Insert(ctx, q, agent); err != nil {
		return err
	}
	_, err = s.registry.Properties().Put(ctx, q, id, &types.Property{Name: types.NameProperty, Value: name, Mutable: true})
	return err
}

// Entity returns the directory entry of id: an ItemHandle, or an AgentHandle
// for agents.
func (s *Store) Entity(ctx context.Context, tx *Tx, id types.EntityID) (e types.EntityHandle, err error) {
	defer s.observe(entityComponent, "get", time.Now(), &err)

	q, err := s.conn(ctx, tx)
	if err != nil {
		return nil, err
	}
	return s.items.Fetch(ctx, q, id)
}

// SetAgentPassword replaces the credential of an agent.
func (s *Store) SetAgentPassword(ctx context.Context, tx *Tx, id types.EntityID, password string, temporary bool) (err error) {
	defer s.observe(entityComponent, "set_password", time.Now(), &err)

	if err := s.writable(); err != nil {
		return err
	}
	hash, err := lookup.HashPassword(password)
	if err != nil {
		return err
	}
	q, err := s.conn(ctx, tx)
	if err != nil {
		return err
	}
	return s.items.UpdatePassword(ctx, q, id, hash, temporary)
}

// Authenticate returns the agent with the given name when password matches
// its credential. An unknown name and a wrong password are both NotFound.
func (s *Store) Authenticate(ctx context.Context, tx *Tx, name, password string) (agent types.AgentHandle, err error) {
	defer s.observe(entityComponent, "authenticate", time.Now(), &err)

	denied := errors.Newf(errors.NotFound, "no agent %q with that password", name)
	id, err := s.EntityByName(ctx, tx, name)
	if errors.Is(err, errors.NotFound) {
		return agent, denied
	}
	if err != nil {
		return agent, err
	}
	q, err := s.conn(ctx, tx)
	if err != nil {
		return agent, err
	}
	e, err := s.items.Fetch(ctx, q, id)
	if errors.Is(err, errors.NotFound) {
		return agent, denied
	}
	if err != nil {
		return agent, err
	}
	a, ok := e.(types.AgentHandle)
	if !ok || !lookup.CheckPassword(a.Credential, password) {
		return agent, denied
	}
	return a, nil
}

// Unregister removes the directory entry of id and its role memberships.
// Naming nodes still targeting it make this fail with InvalidData; Erase
// removes everything.
func (s *Store) Unregister(ctx context.Context, tx *Tx, id types.EntityID) (err error) {
	defer s.observe(entityComponent, "unregister", time.Now(), &err)

	if err := s.writable(); err != nil {
		return err
	}
	q, err := s.conn(ctx, tx)
	if err != nil {
		return err
	}
	if _, err := s.roles.DeleteByAgent(ctx, q, id); err != nil {
		return err
	}
	n, err := s.items.Delete(ctx, q, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Newf(errors.NotFound, "entity %s is not registered", id)
	}
	return nil
}
