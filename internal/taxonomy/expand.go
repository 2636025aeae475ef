package taxonomy

import "slices"

// ExpandedSet holds the ids of expanded nodes. It is owned by a single view
// and is not safe for concurrent use.
type ExpandedSet struct {
	ids map[int64]struct{}
}

// NewExpandedSet returns an empty (fully collapsed) set.
func NewExpandedSet() *ExpandedSet {
	return &ExpandedSet{ids: make(map[int64]struct{})}
}

// ExpandAll marks every node that has at least one child as expanded.
func (s *ExpandedSet) ExpandAll(tree []*Node) {
	for _, n := range tree {
		if n.HasChildren() {
			s.ids[n.ID] = struct{}{}
			s.ExpandAll(n.Children)
		}
	}
}

// CollapseAll empties the set.
func (s *ExpandedSet) CollapseAll() {
	clear(s.ids)
}

// Toggle flips membership of id and returns the new state.
func (s *ExpandedSet) Toggle(id int64) bool {
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *ExpandedSet) Expand(id int64) {
	s.ids[id] = struct{}{}
}

func (s *ExpandedSet) Collapse(id int64) {
	delete(s.ids, id)
}

func (s *ExpandedSet) IsExpanded(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *ExpandedSet) Len() int {
	return len(s.ids)
}

// IDs returns the expanded ids in ascending order.
func (s *ExpandedSet) IDs() []int64 {
	ids := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Retain drops ids that are no longer expandable nodes of tree. Call it when
// the underlying data set changes so stale expansion state is not carried over.
func (s *ExpandedSet) Retain(tree []*Node) {
	expandable := make(map[int64]struct{})
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			if n.HasChildren() {
				expandable[n.ID] = struct{}{}
			}
			walk(n.Children)
		}
	}
	walk(tree)
	for id := range s.ids {
		if _, ok := expandable[id]; !ok {
			delete(s.ids, id)
		}
	}
}

// Row is one rendered line of the tree.
type Row struct {
	Node     *Node
	Depth    int
	Expanded bool
}

// Walk visits nodes in render order. A node's children are only visited
// when the node is in the expanded set. Returning false from fn stops the walk.
func Walk(tree []*Node, expanded *ExpandedSet, fn func(n *Node, depth int) bool) {
	walkNodes(tree, expanded, 0, fn)
}

func walkNodes(nodes []*Node, expanded *ExpandedSet, depth int, fn func(*Node, int) bool) bool {
	for _, n := range nodes {
		if !fn(n, depth) {
			return false
		}
		if expanded != nil && expanded.IsExpanded(n.ID) {
			if !walkNodes(n.Children, expanded, depth+1, fn) {
				return false
			}
		}
	}
	return true
}

// Visible returns the rows that would be rendered for the given expansion state.
func Visible(tree []*Node, expanded *ExpandedSet) []Row {
	rows := make([]Row, 0)
	Walk(tree, expanded, func(n *Node, depth int) bool {
		rows = append(rows, Row{
			Node:     n,
			Depth:    depth,
			Expanded: expanded != nil && expanded.IsExpanded(n.ID),
		})
		return true
	})
	return rows
}
