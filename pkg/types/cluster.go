package types

import (
	"github.com/google/uuid"

	"github.com/mesh-intelligence/clusterstore/pkg/errors"
)

// EntityID names one Item. Immutable once assigned.
type EntityID = uuid.UUID

// ClusterType is the closed set of typed sub-stores an Item exposes. The
// string value is the first segment of a ClusterPath.
type ClusterType string

// Cluster types.
const (
	PropertyCluster   ClusterType = "Property"
	OutcomeCluster    ClusterType = "Outcome"
	ViewpointCluster  ClusterType = "ViewPoint"
	HistoryCluster    ClusterType = "AuditTrail"
	JobCluster        ClusterType = "Job"
	CollectionCluster ClusterType = "Collection"
	LifecycleCluster  ClusterType = "LifeCycle"
	AttachmentCluster ClusterType = "Attachment"
)

// clusterTypes is ordered as clusters are listed for an entity.
var clusterTypes = []ClusterType{
	PropertyCluster,
	OutcomeCluster,
	ViewpointCluster,
	HistoryCluster,
	JobCluster,
	CollectionCluster,
	LifecycleCluster,
	AttachmentCluster,
}

var clusterArity = map[ClusterType]int{
	PropertyCluster:   1, // name
	OutcomeCluster:    3, // schema, version, event id
	ViewpointCluster:  2, // schema, view name
	HistoryCluster:    1, // event id
	JobCluster:        1, // job id
	CollectionCluster: 2, // name, version
	LifecycleCluster:  1, // name
	AttachmentCluster: 3, // schema, version, event id
}

var appendOnly = map[ClusterType]bool{
	OutcomeCluster:    true,
	HistoryCluster:    true,
	JobCluster:        true,
	AttachmentCluster: true,
}

// ClusterTypes returns every cluster type in listing order.
func ClusterTypes() []ClusterType {
	out := make([]ClusterType, len(clusterTypes))
	copy(out, clusterTypes)
	return out
}

// ParseClusterType maps a path segment to its ClusterType. Matching is
// case-sensitive. Returns an InvalidPath error for anything else.
func ParseClusterType(s string) (ClusterType, error) {
	ct := ClusterType(s)
	if _, ok := clusterArity[ct]; !ok {
		return "", errors.Newf(errors.InvalidPath, "unknown cluster type %q", s)
	}
	return ct, nil
}

// Valid reports whether ct is one of the known cluster types.
func (ct ClusterType) Valid() bool {
	_, ok := clusterArity[ct]
	return ok
}

// Arity is the number of key segments that identify exactly one row.
func (ct ClusterType) Arity() int {
	return clusterArity[ct]
}

// AppendOnly reports whether rows of this type may never be updated.
func (ct ClusterType) AppendOnly() bool {
	return appendOnly[ct]
}

func (ct ClusterType) String() string {
	return string(ct)
}
