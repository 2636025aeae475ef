package taxonomy

import (
	"cmp"
	"slices"
	"strings"
)

// BuildTree materialises a forest from a flat list of categories.
//
// Children are indexed by parent id in a single pass. A category whose
// parent_id does not resolve to anything in the input is promoted to a root.
// Levels on the returned nodes are the materialised depth, so roots are
// always level 0. Duplicate ids keep the first occurrence.
func BuildTree(categories []Category) []*Node {
	nodes := make(map[int64]*Node, len(categories))
	order := make([]*Node, 0, len(categories))
	for _, c := range categories {
		if _, dup := nodes[c.ID]; dup {
			continue
		}
		n := &Node{Category: c, Children: []*Node{}}
		nodes[c.ID] = n
		order = append(order, n)
	}

	parents := make(map[int64]*Node, len(order))
	roots := make([]*Node, 0)
	for _, n := range order {
		if n.ParentID != nil && *n.ParentID != n.ID {
			if parent, ok := nodes[*n.ParentID]; ok {
				parent.Children = append(parent.Children, n)
				parents[n.ID] = parent
				continue
			}
		}
		roots = append(roots, n)
	}

	visited := make(map[int64]struct{}, len(order))
	for _, root := range roots {
		materialise(root, 0, true, visited)
	}

	// Anything not reached from a root sits on a parent cycle. Break the
	// cycle at the first such node and treat it as an orphan.
	for _, n := range order {
		if _, ok := visited[n.ID]; ok {
			continue
		}
		if parent := parents[n.ID]; parent != nil {
			parent.Children = slices.DeleteFunc(parent.Children, func(c *Node) bool { return c == n })
		}
		roots = append(roots, n)
		materialise(n, 0, true, visited)
	}

	sortNodes(roots)
	return roots
}

func materialise(n *Node, depth int, parentActive bool, visited map[int64]struct{}) {
	if _, seen := visited[n.ID]; seen {
		return
	}
	visited[n.ID] = struct{}{}
	n.Level = depth
	n.EffectiveActive = parentActive && n.IsActive
	for _, child := range n.Children {
		materialise(child, depth+1, n.EffectiveActive, visited)
	}
}

// sortNodes orders every level by sort_order, then case-insensitive name.
func sortNodes(nodes []*Node) {
	slices.SortStableFunc(nodes, compareNodes)
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

func compareNodes(a, b *Node) int {
	if c := cmp.Compare(a.SortOrder, b.SortOrder); c != 0 {
		return c
	}
	return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
}

// Flatten returns the forest as a pre-order list of categories.
func Flatten(tree []*Node) []Category {
	out := make([]Category, 0)
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			out = append(out, n.Category)
			walk(n.Children)
		}
	}
	walk(tree)
	return out
}

// Count returns the number of nodes in the forest.
func Count(tree []*Node) int {
	total := 0
	for _, n := range tree {
		total += 1 + Count(n.Children)
	}
	return total
}

// Find returns the node with the given id, or nil.
func Find(tree []*Node, id int64) *Node {
	for _, n := range tree {
		if n.ID == id {
			return n
		}
		if found := Find(n.Children, id); found != nil {
			return found
		}
	}
	return nil
}
