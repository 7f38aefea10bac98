// Package store is the public entry point of the cluster storage engine. A
// Store owns the connection/transaction manager, the cluster handler
// registry, the entity directory, the role directory and the naming tree,
// and exposes every operation against them under an explicit transaction
// handle.
//
// Example:
//
//	s, err := store.Open(ctx, cfg, store.WithLogger(logger.NewStandardLogger(os.Stderr)))
//	if err != nil { ... }
//	defer s.Close()
//
//	tx := s.Begin()
//	defer s.Release(tx)
//	if _, err := s.Put(ctx, tx, id, &types.Property{Name: "Type", Value: "Doc"}); err != nil {
//	    s.Abort(tx)
//	    return err
//	}
//	return s.Commit(tx)
package store

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mesh-intelligence/clusterstore/internal/cluster"
	"github.com/mesh-intelligence/clusterstore/internal/logger"
	"github.com/mesh-intelligence/clusterstore/internal/lookup"
	"github.com/mesh-intelligence/clusterstore/internal/metrics"
	"github.com/mesh-intelligence/clusterstore/internal/sqldb"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// Tx is a transaction handle returned by Begin. In auto-commit mode handles
// are accepted and ignored, and nil is allowed.
type Tx = sqldb.Tx

// Store is safe for concurrent use. Each handle must be used by one unit of
// work at a time.
type Store struct {
	cfg      types.Config
	m        *sqldb.Manager
	registry *cluster.Registry
	items    *lookup.ItemHandler
	paths    *lookup.DomainPathHandler
	roles    *lookup.RolePathHandler
	perms    *lookup.PermissionHandler
	metrics  *metrics.Recorder
	logger   logger.Logger

	mu   sync.Mutex
	live map[*Tx]struct{}
}

type options struct {
	logger     logger.Logger
	registerer prometheus.Registerer
	noSchema   bool
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer registers the store metrics on r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// WithoutSchema skips table creation on open.
func WithoutSchema() Option {
	return func(o *options) { o.noSchema = true }
}

// Open connects to the backend described by cfg and creates any missing
// tables. Read-only stores never create tables.
func Open(ctx context.Context, cfg types.Config, opts ...Option) (*Store, error) {
	o := options{logger: logger.NopLogger}
	for _, opt := range opts {
		opt(&o)
	}

	m, err := sqldb.Open(ctx, cfg, o.logger)
	if err != nil {
		return nil, err
	}
	s := &Store{
		cfg:      cfg,
		m:        m,
		registry: cluster.NewRegistry(cfg, o.logger.WithPrefix("[cluster] ")),
		items:    lookup.NewItemHandler(cfg),
		paths:    lookup.NewDomainPathHandler(cfg, o.logger.WithPrefix("[lookup] ")),
		roles:    lookup.NewRolePathHandler(cfg, o.logger.WithPrefix("[roles] ")),
		perms:    lookup.NewPermissionHandler(cfg),
		metrics:  metrics.NopRecorder,
		logger:   o.logger,
		live:     make(map[*Tx]struct{}),
	}

	if o.registerer != nil {
		reserved := func() float64 { return float64(m.Reserved()) }
		if s.metrics, err = metrics.New(o.registerer, reserved, m.DB()); err != nil {
			m.Close()
			return nil, err
		}
	}

	if !o.noSchema && !cfg.ReadOnly {
		if err := s.ensureSchema(ctx); err != nil {
			m.Close()
			return nil, err
		}
	}
	return s, nil
}

// ensureSchema creates the directory table before the cluster tables and the
// naming tree last, which references it.
func (s *Store) ensureSchema(ctx context.Context) error {
	q := s.m.Pool()
	if err := s.items.EnsureSchema(ctx, q); err != nil {
		return err
	}
	if err := s.registry.EnsureSchema(ctx, q); err != nil {
		return err
	}
	if err := s.roles.EnsureSchema(ctx, q); err != nil {
		return err
	}
	if err := s.perms.EnsureSchema(ctx, q); err != nil {
		return err
	}
	if err := s.paths.EnsureSchema(ctx, q); err != nil {
		return err
	}
	s.logger.Infof("schema ready (%s)", s.m.Dialect().Name())
	return nil
}

// Close releases every live handle, rolling back open transactions, and
// closes the pool.
func (s *Store) Close() error {
	s.mu.Lock()
	live := s.live
	s.live = make(map[*Tx]struct{})
	s.mu.Unlock()

	for tx := range live {
		if err := s.m.Release(tx); err != nil {
			s.logger.Warnf("releasing %s: %v", tx, err)
		}
	}
	return s.m.Close()
}

// Config returns the configuration the store was opened with.
func (s *Store) Config() types.Config { return s.cfg }

// Begin returns a new transaction handle. Release it when the unit of work
// ends.
func (s *Store) Begin() *Tx {
	tx := s.m.Begin()
	s.mu.Lock()
	s.live[tx] = struct{}{}
	s.mu.Unlock()
	return tx
}

// Commit commits the work done under tx. The handle stays usable.
func (s *Store) Commit(tx *Tx) error {
	return s.m.Commit(tx)
}

// Abort rolls back the work done under tx. The handle stays usable.
func (s *Store) Abort(tx *Tx) error {
	return s.m.Abort(tx)
}

// Release ends tx, rolling back anything uncommitted, and returns its
// connection to the pool. Safe to call more than once.
func (s *Store) Release(tx *Tx) error {
	if tx == nil {
		return nil
	}
	s.mu.Lock()
	delete(s.live, tx)
	s.mu.Unlock()
	return s.m.Release(tx)
}

type querier = sqldb.Querier

// conn returns the querier bound to tx.
func (s *Store) conn(ctx context.Context, tx *Tx) (querier, error) {
	c, err := s.m.Acquire(ctx, tx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) writable() error {
	if s.cfg.ReadOnly {
		return errors.New(errors.Configuration, "store is read-only")
	}
	return nil
}

// observe records one operation; call it deferred with a pointer to the
// named error result.
func (s *Store) observe(component, op string, start time.Time, err *error) {
	s.metrics.Observe(component, op, start, *err)
}
