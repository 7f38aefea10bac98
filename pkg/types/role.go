package types

import (
	"strings"

	"github.com/mesh-intelligence/clusterstore/pkg/errors"
)

// RoleRoot is the path every role lives under.
const RoleRoot = "/role"

// Role is an entry of the role directory. JobList marks roles whose agents
// keep a persistent job list. Permissions are unique and kept in the order
// given when they were set.
type Role struct {
	Path        string   `json:"path"`
	JobList     bool     `json:"jobList"`
	Permissions []string `json:"permissions,omitempty"`
}

// Name is the last segment of the role path.
func (r Role) Name() string {
	return r.Path[strings.LastIndex(r.Path, PathDelimiter)+1:]
}

// CleanRolePath cleans p as a naming path and checks it lies strictly below
// RoleRoot.
func CleanRolePath(p string) (string, error) {
	p, err := CleanNamingPath(p)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(p, RoleRoot+PathDelimiter) {
		return "", errors.Newf(errors.InvalidData, "role path %q must be below %s", p, RoleRoot)
	}
	return p, nil
}

// ParentRole returns the parent role of a clean role path, or "" for a
// top-level role.
func ParentRole(p string) string {
	parent := p[:strings.LastIndex(p, PathDelimiter)]
	if parent == RoleRoot {
		return ""
	}
	return parent
}

// UniquePermissions drops empty and repeated permissions, keeping the first
// occurrence of each.
func UniquePermissions(perms []string) []string {
	out := make([]string, 0, len(perms))
	seen := make(map[string]bool, len(perms))
	for _, p := range perms {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
