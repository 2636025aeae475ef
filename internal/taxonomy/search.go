package taxonomy

import "strings"

// Filter prunes the forest to nodes whose name contains term
// (case-insensitive) plus every ancestor of such a node. Non-matching
// siblings are dropped. The input forest is left untouched; an empty term
// returns it unchanged.
func Filter(tree []*Node, term string) []*Node {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return tree
	}
	return prune(tree, func(n *Node) bool {
		return strings.Contains(strings.ToLower(n.Name), term)
	})
}

// FilterActive keeps only effectively active nodes. An inactive node hides
// its whole subtree.
func FilterActive(tree []*Node) []*Node {
	out := make([]*Node, 0, len(tree))
	for _, n := range tree {
		if !n.EffectiveActive {
			continue
		}
		cp := *n
		cp.Children = FilterActive(n.Children)
		out = append(out, &cp)
	}
	return out
}

// prune is evaluated bottom-up so a matching leaf keeps its ancestor chain.
func prune(nodes []*Node, match func(*Node) bool) []*Node {
	out := make([]*Node, 0)
	for _, n := range nodes {
		kept := prune(n.Children, match)
		if len(kept) == 0 && !match(n) {
			continue
		}
		cp := *n
		cp.Children = kept
		out = append(out, &cp)
	}
	return out
}

// MatchingIDs returns the ids of nodes whose own name contains term.
func MatchingIDs(tree []*Node, term string) map[int64]struct{} {
	term = strings.ToLower(strings.TrimSpace(term))
	ids := make(map[int64]struct{})
	if term == "" {
		return ids
	}
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			if strings.Contains(strings.ToLower(n.Name), term) {
				ids[n.ID] = struct{}{}
			}
			walk(n.Children)
		}
	}
	walk(tree)
	return ids
}
