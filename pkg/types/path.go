package types

import (
	"strings"

	"github.com/mesh-intelligence/clusterstore/pkg/errors"
)

// PathDelimiter separates the segments of cluster and naming paths.
const PathDelimiter = "/"

// ClusterPath addresses a row (complete) or a set of rows (partial) within
// one entity's cluster of the given type.
type ClusterPath struct {
	Type ClusterType
	Keys []string
}

// NewClusterPath builds a path from a type and key segments. It does not
// validate; use Validate or ParseClusterPath for untrusted input.
func NewClusterPath(ct ClusterType, keys ...string) ClusterPath {
	return ClusterPath{Type: ct, Keys: keys}
}

// ParseClusterPath splits s on "/" and maps the first segment to a
// ClusterType. Leading and trailing delimiters are ignored. The empty string
// is not a cluster path; callers that list clusters handle it themselves.
func ParseClusterPath(s string) (ClusterPath, error) {
	s = strings.Trim(s, PathDelimiter)
	if s == "" {
		return ClusterPath{}, errors.New(errors.InvalidPath, "empty cluster path")
	}
	segs := strings.Split(s, PathDelimiter)
	ct, err := ParseClusterType(segs[0])
	if err != nil {
		return ClusterPath{}, err
	}
	p := ClusterPath{Type: ct, Keys: segs[1:]}
	if err := p.Validate(); err != nil {
		return ClusterPath{}, err
	}
	return p, nil
}

// Validate checks the type is known, no key segment is empty, and there are
// no more keys than the type's arity.
func (p ClusterPath) Validate() error {
	if !p.Type.Valid() {
		return errors.Newf(errors.InvalidPath, "unknown cluster type %q", string(p.Type))
	}
	if len(p.Keys) > p.Type.Arity() {
		return errors.Newf(errors.InvalidPath, "%s takes at most %d keys, got %d", p.Type, p.Type.Arity(), len(p.Keys))
	}
	for i, k := range p.Keys {
		if k == "" {
			return errors.Newf(errors.InvalidPath, "%s key %d is empty", p.Type, i)
		}
	}
	return nil
}

// IsComplete reports whether the path identifies exactly one row.
func (p ClusterPath) IsComplete() bool {
	return len(p.Keys) == p.Type.Arity()
}

// Child returns the path extended by one key segment.
func (p ClusterPath) Child(key string) ClusterPath {
	keys := make([]string, len(p.Keys), len(p.Keys)+1)
	copy(keys, p.Keys)
	return ClusterPath{Type: p.Type, Keys: append(keys, key)}
}

func (p ClusterPath) String() string {
	if len(p.Keys) == 0 {
		return string(p.Type)
	}
	return string(p.Type) + PathDelimiter + strings.Join(p.Keys, PathDelimiter)
}
