package fsm

import "github.com/comalice/scxmlcore/ir"

// LCA returns the least common ancestor of a and b per W3C 3.13: ancestors
// exclude the node itself, so LCA(a, a) == a trivially, and LCA walks a's
// proper ancestors into a set before scanning b's proper ancestors for the
// first hit. Adapted from the teacher's string-prefix computeLCCA
// (comalice/statechartx internal/core/machine_helper.go) to pointer-chain
// walking, which needs no path-join/split and works uniformly across
// parallel regions.
func LCA(a, b *ir.StateNode) *ir.StateNode {
	if a == b {
		return a
	}
	ancestorSet := make(map[*ir.StateNode]struct{})
	for p := a.Parent; p != nil; p = p.Parent {
		ancestorSet[p] = struct{}{}
	}
	for p := b.Parent; p != nil; p = p.Parent {
		if _, ok := ancestorSet[p]; ok {
			return p
		}
	}
	// The scan above finds nothing when b has no proper ancestor in a's
	// chain: in a well-formed IR, when b is the root or a is the root.
	// Walking a's own chain against b returns b when b is an ancestor of a
	// (so LCA(x, root) == root). Any other case, including a being the
	// root and b a descendant of it, yields nil.
	for p := a; p != nil; p = p.Parent {
		if p == b {
			return b
		}
	}
	return nil
}

// LCAOfSet returns the least common ancestor across a transition's source
// and all of its targets (spec.md §4.4 computeExitSet/computeEntrySet both
// key off this).
func LCAOfSet(source *ir.StateNode, targets []*ir.StateNode) *ir.StateNode {
	lca := source
	for _, t := range targets {
		lca = LCA(lca, t)
	}
	return lca
}

// IsProperDescendant reports whether n is a strict descendant of ancestor.
func IsProperDescendant(n, ancestor *ir.StateNode) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

// IsDescendantOrSelf reports whether n == ancestor or n is a proper
// descendant of ancestor.
func IsDescendantOrSelf(n, ancestor *ir.StateNode) bool {
	return n == ancestor || IsProperDescendant(n, ancestor)
}
