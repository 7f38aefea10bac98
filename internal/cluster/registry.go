package cluster

import (
	"context"

	"github.com/mesh-intelligence/clusterstore/internal/logger"
	"github.com/mesh-intelligence/clusterstore/internal/sqldb"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// Registry maps every cluster type to its handler. The mapping is fixed at
// construction. It does not manage transactions; callers pass the Querier
// bound to their transaction handle.
type Registry struct {
	handlers map[types.ClusterType]Handler
	order    []Handler
	logger   logger.Logger
}

// NewRegistry builds the registry with one handler per cluster type.
func NewRegistry(cfg types.Config, l logger.Logger) *Registry {
	if l == nil {
		l = logger.NopLogger
	}
	r := &Registry{
		handlers: make(map[types.ClusterType]Handler),
		logger:   l,
	}
	for _, h := range []Handler{
		NewPropertyHandler(cfg),
		NewOutcomeHandler(cfg),
		NewViewpointHandler(cfg),
		NewHistoryHandler(cfg),
		NewJobHandler(cfg),
		NewCollectionHandler(cfg),
		NewLifecycleHandler(cfg),
		NewAttachmentHandler(cfg),
	} {
		r.handlers[h.Type()] = h
		r.order = append(r.order, h)
	}
	return r
}

// ForType returns the handler of ct. Returns InvalidPath for unknown types.
func (r *Registry) ForType(ct types.ClusterType) (Handler, error) {
	h, ok := r.handlers[ct]
	if !ok {
		return nil, errors.Newf(errors.InvalidPath, "no handler for cluster type %q", string(ct))
	}
	return h, nil
}

// Handlers returns every handler in cluster listing order.
func (r *Registry) Handlers() []Handler {
	out := make([]Handler, len(r.order))
	copy(out, r.order)
	return out
}

// Properties returns the Property handler, which also serves entity search.
func (r *Registry) Properties() *PropertyHandler {
	return r.handlers[types.PropertyCluster].(*PropertyHandler)
}

// Collections returns the Collection handler.
func (r *Registry) Collections() *CollectionHandler {
	return r.handlers[types.CollectionCluster].(*CollectionHandler)
}

// EnsureSchema creates every cluster table.
func (r *Registry) EnsureSchema(ctx context.Context, q sqldb.Querier) error {
	for _, h := range r.order {
		if err := h.EnsureSchema(ctx, q); err != nil {
			return err
		}
		r.logger.Debugf("ensured table %s", h.Table())
	}
	return nil
}

// Clusters lists the cluster types holding at least one row for id.
func (r *Registry) Clusters(ctx context.Context, q sqldb.Querier, id types.EntityID) ([]types.ClusterType, error) {
	out := []types.ClusterType{}
	for _, h := range r.order {
		found, err := h.Exists(ctx, q, id)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, h.Type())
		}
	}
	return out, nil
}

// DeleteAll removes every cluster row of id and returns the row count.
func (r *Registry) DeleteAll(ctx context.Context, q sqldb.Querier, id types.EntityID) (int64, error) {
	var total int64
	for _, h := range r.order {
		n, err := h.Delete(ctx, q, id)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
