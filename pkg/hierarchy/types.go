package hierarchy

import (
	"time"
)

// Node represents one element of the organization tree
type Node struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Code      string         `json:"code"`
	Path      string         `json:"path"`
	Level     int            `json:"level"`
	ParentID  *string        `json:"parent_id,omitempty"`
	SortOrder int            `json:"sort_order"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	IsActive  bool           `json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// IsRoot reports whether the node sits at the top of the tree.
func (n *Node) IsRoot() bool {
	return n.ParentID == nil
}

// CreateNodeRequest represents a request to create a node
type CreateNodeRequest struct {
	Name      string         `json:"name"`
	Code      string         `json:"code"`
	ParentID  *string        `json:"parent_id,omitempty"`
	SortOrder int            `json:"sort_order,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// UpdateNodeRequest represents a request to update node display fields.
// Code, path and parent are immutable here; relocation goes through MoveSubtree.
type UpdateNodeRequest struct {
	Name      *string        `json:"name,omitempty"`
	SortOrder *int           `json:"sort_order,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// MoveNodeRequest represents a request to move a subtree under a new parent.
// A nil NewParentID makes the node a root.
type MoveNodeRequest struct {
	NewParentID *string `json:"new_parent_id"`
}

// TreeNode represents a node with its resolved children, for tree rendering
type TreeNode struct {
	Node
	Children []*TreeNode `json:"children,omitempty"`
}

// IssueSeverity grades integrity findings
type IssueSeverity string

const (
	SeverityWarning IssueSeverity = "warning"
	SeverityError   IssueSeverity = "error"
)

// IntegrityIssue represents one anomaly found by an integrity scan
type IntegrityIssue struct {
	NodeID   string        `json:"node_id"`
	Path     string        `json:"path"`
	Code     string        `json:"code"`
	Severity IssueSeverity `json:"severity"`
	Problem  string        `json:"problem"`
}

// IntegrityReport represents the outcome of a whole-tree integrity scan
type IntegrityReport struct {
	CheckedNodes int              `json:"checked_nodes"`
	Issues       []IntegrityIssue `json:"issues"`
	CheckedAt    time.Time        `json:"checked_at"`
}

// Healthy reports whether the scan found no issues.
func (r *IntegrityReport) Healthy() bool {
	return len(r.Issues) == 0
}
