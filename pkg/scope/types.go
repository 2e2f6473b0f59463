package scope

import (
	"sort"
	"time"

	"github.com/platinummonkey/orgscope/pkg/grants"
	"github.com/platinummonkey/orgscope/pkg/hierarchy"
)

// ScopeGrant summarizes one contributing grant inside a computed scope
type ScopeGrant struct {
	GrantID              string      `json:"grant_id"`
	NodeID               string      `json:"node_id"`
	NodePath             string      `json:"node_path"`
	NodeName             string      `json:"node_name"`
	Role                 grants.Role `json:"role"`
	InheritToDescendants bool        `json:"inherit_to_descendants"`
}

// AccessScope represents the full derived access of one actor: the
// contributing grants and the union of paths they reach. Treat it as an
// immutable snapshot; it may be shared between concurrent readers.
type AccessScope struct {
	ActorID         string       `json:"actor_id"`
	Grants          []ScopeGrant `json:"grants"`
	AccessiblePaths []string     `json:"accessible_paths"`
	ReachableNodes  int          `json:"reachable_nodes"`
	ComputedAt      time.Time    `json:"computed_at"`
}

// Empty reports whether the scope conveys no access at all.
func (s *AccessScope) Empty() bool {
	return len(s.Grants) == 0
}

// IsPathAccessible reports whether targetPath falls inside the scope: an
// exact grant-path match, or a strict descendant of an inheriting grant's
// path. Reasoning over grants rather than the materialized path list keeps
// nodes created after computation reachable through inheriting ancestors.
func (s *AccessScope) IsPathAccessible(targetPath string) bool {
	for i := range s.Grants {
		g := &s.Grants[i]
		if g.NodePath == targetPath {
			return true
		}
		if g.InheritToDescendants && hierarchy.IsAncestor(g.NodePath, targetPath) {
			return true
		}
	}
	return false
}

// EffectiveRole returns the highest role among all grants covering
// targetPath. The max-role tie-break is security relevant: a narrow
// low-role grant must never mask a broader high-role grant.
func (s *AccessScope) EffectiveRole(targetPath string) (grants.Role, bool) {
	var best grants.Role
	found := false
	for i := range s.Grants {
		g := &s.Grants[i]
		covers := g.NodePath == targetPath ||
			(g.InheritToDescendants && hierarchy.IsAncestor(g.NodePath, targetPath))
		if !covers {
			continue
		}
		if !found || g.Role.Rank() > best.Rank() {
			best = g.Role
			found = true
		}
	}
	return best, found
}

// MatchingGrantPaths returns the grant paths through which targetPath is
// reachable, root-to-leaf ordered. Provenance for query results.
func (s *AccessScope) MatchingGrantPaths(targetPath string) []string {
	var paths []string
	for i := range s.Grants {
		g := &s.Grants[i]
		if g.NodePath == targetPath ||
			(g.InheritToDescendants && hierarchy.IsAncestor(g.NodePath, targetPath)) {
			paths = append(paths, g.NodePath)
		}
	}
	sort.Strings(paths)
	return paths
}

// HasDirectGrantAt reports whether some grant sits exactly at path, as
// opposed to covering it through inheritance.
func (s *AccessScope) HasDirectGrantAt(path string) bool {
	for i := range s.Grants {
		if s.Grants[i].NodePath == path {
			return true
		}
	}
	return false
}

// AccessDecision represents the outcome of a point authorization check
type AccessDecision struct {
	ActorID           string      `json:"actor_id"`
	TargetPath        string      `json:"target_path,omitempty"`
	TargetUserID      string      `json:"target_user_id,omitempty"`
	Allowed           bool        `json:"allowed"`
	Role              grants.Role `json:"role,omitempty"`
	Reason            string      `json:"reason"`
	MatchedGrantPaths []string    `json:"matched_grant_paths,omitempty"`
	CheckedAt         time.Time   `json:"checked_at"`
}

// GrantDecision represents the outcome of a can-this-actor-grant check
type GrantDecision struct {
	Allowed       bool        `json:"allowed"`
	Reason        string      `json:"reason"`
	EffectiveRole grants.Role `json:"effective_role,omitempty"`
}
