package types

import (
	"strings"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/clusterstore/pkg/errors"
)

// NamingNode is one row of the naming tree. Target is set only on nodes that
// resolve to an entity; pure directory nodes have none.
type NamingNode struct {
	Path   string        `json:"path"`
	Target uuid.NullUUID `json:"target"`
}

// IsLeafTarget reports whether the node resolves to an entity.
func (n NamingNode) IsLeafTarget() bool {
	return n.Target.Valid
}

// SearchMode selects how a search name is matched against path strings.
type SearchMode int

const (
	// Wildcard matches any path below the root ending with the name.
	Wildcard SearchMode = iota
	// ExactName matches paths below the root whose last segment is the name.
	ExactName
)

// CleanNamingPath checks that p is absolute with no empty segments and trims
// a trailing delimiter.
func CleanNamingPath(p string) (string, error) {
	if !strings.HasPrefix(p, PathDelimiter) {
		return "", errors.Newf(errors.InvalidData, "naming path %q must start with %q", p, PathDelimiter)
	}
	p = strings.TrimSuffix(p, PathDelimiter)
	if p == "" {
		return "", errors.New(errors.InvalidData, "naming path must have at least one segment")
	}
	for _, seg := range strings.Split(p[1:], PathDelimiter) {
		if seg == "" {
			return "", errors.Newf(errors.InvalidData, "naming path %q has an empty segment", p)
		}
	}
	return p, nil
}

// Ancestors returns every proper prefix of a clean path, root first.
// Ancestors("/a/b/c") is ["/a", "/a/b"].
func Ancestors(p string) []string {
	var out []string
	for i := 1; i < len(p); i++ {
		if p[i] == '/' {
			out = append(out, p[:i])
		}
	}
	return out
}
