package hierarchy

import (
	"sort"
)

// BuildTree assembles a nested tree from a flat node list. Nodes whose
// parent is absent from the list surface as roots, so a subtree slice
// renders as a subtree. Children are ordered by sort_order then code.
func BuildTree(nodes []*Node) []*TreeNode {
	byID := make(map[string]*TreeNode, len(nodes))
	for _, node := range nodes {
		byID[node.ID] = &TreeNode{Node: *node}
	}

	var roots []*TreeNode
	for _, node := range nodes {
		treeNode := byID[node.ID]
		if node.ParentID != nil {
			if parent, ok := byID[*node.ParentID]; ok {
				parent.Children = append(parent.Children, treeNode)
				continue
			}
		}
		roots = append(roots, treeNode)
	}

	var sortChildren func(nodes []*TreeNode)
	sortChildren = func(nodes []*TreeNode) {
		sort.Slice(nodes, func(i, j int) bool {
			if nodes[i].SortOrder != nodes[j].SortOrder {
				return nodes[i].SortOrder < nodes[j].SortOrder
			}
			return nodes[i].Code < nodes[j].Code
		})
		for _, node := range nodes {
			sortChildren(node.Children)
		}
	}
	sortChildren(roots)

	return roots
}
