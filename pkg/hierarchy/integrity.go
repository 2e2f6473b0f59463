package hierarchy

import (
	"context"
	"fmt"
	"time"
)

// Integrity scans report anomalies, they never repair them. Severity is
// error for cycles and warning for everything else.

// RunIntegrityReport scans the whole tree for orphans, level mismatches,
// path mismatches and parent-chain cycles.
func (s *Store) RunIntegrityReport(ctx context.Context) (*IntegrityReport, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+nodeColumns+" FROM org_nodes ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes for integrity scan: %w", err)
	}
	defer rows.Close()

	all, err := collectNodes(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Node, len(all))
	for _, node := range all {
		byID[node.ID] = node
	}

	report := &IntegrityReport{CheckedAt: time.Now().UTC()}
	for _, node := range all {
		if !node.IsActive {
			continue
		}
		report.CheckedNodes++
		report.Issues = append(report.Issues, checkNode(node, byID)...)
	}

	return report, nil
}

func checkNode(node *Node, byID map[string]*Node) []IntegrityIssue {
	var issues []IntegrityIssue

	issue := func(severity IssueSeverity, format string, args ...interface{}) {
		issues = append(issues, IntegrityIssue{
			NodeID:   node.ID,
			Path:     node.Path,
			Code:     node.Code,
			Severity: severity,
			Problem:  fmt.Sprintf(format, args...),
		})
	}

	if node.ParentID == nil {
		if node.Level != 0 {
			issue(SeverityWarning, "root node has level %d, want 0", node.Level)
		}
		if node.Path != node.Code {
			issue(SeverityWarning, "root node path %q does not equal its code %q", node.Path, node.Code)
		}
	} else {
		parent, ok := byID[*node.ParentID]
		switch {
		case !ok:
			issue(SeverityWarning, "orphaned: parent %s does not exist", *node.ParentID)
		case !parent.IsActive:
			issue(SeverityWarning, "orphaned: parent %s is inactive", *node.ParentID)
		default:
			if node.Level != parent.Level+1 {
				issue(SeverityWarning, "level %d does not equal parent level %d + 1", node.Level, parent.Level)
			}
			if want := parent.Path + PathSeparator + node.Code; node.Path != want {
				issue(SeverityWarning, "path %q does not equal %q", node.Path, want)
			}
		}
	}

	if cycle := parentChainCycle(node, byID); cycle {
		issue(SeverityError, "parent chain contains a cycle")
	}

	return issues
}

// parentChainCycle walks up the parent references looking for a repeat.
// The materialized path makes cycles impossible by construction, so any hit
// means the parent_id column was corrupted out of band.
func parentChainCycle(node *Node, byID map[string]*Node) bool {
	visited := map[string]bool{node.ID: true}
	current := node
	for current.ParentID != nil {
		parent, ok := byID[*current.ParentID]
		if !ok {
			return false
		}
		if visited[parent.ID] {
			return true
		}
		visited[parent.ID] = true
		current = parent
	}
	return false
}
