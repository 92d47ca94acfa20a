// Package fsm implements the Configuration Manager (C5): active-state set
// tracking, LCA computation, entry/exit set computation, history recording
// and restoration, and the hierarchical/parallel configuration invariants
// (spec.md §3 Configuration, §4.4).
package fsm

import (
	"fmt"
	"sort"

	"github.com/comalice/scxmlcore/ir"
)

// Configuration is the mutable set of active StateIDs for one session.
// Adapted from the teacher's path-indexed stateCache/ancestorCache split
// (comalice/statechartx internal/core.Machine) but keyed by *ir.StateNode
// pointers instead of dot-joined path strings, since the Chart IR already
// gives every node a stable pointer identity — no path string round-trip is
// needed to walk ancestors.
type Configuration struct {
	active map[ir.StateID]*ir.StateNode
}

// New returns an empty Configuration.
func New() *Configuration {
	return &Configuration{active: make(map[ir.StateID]*ir.StateNode)}
}

// Add marks n active.
func (c *Configuration) Add(n *ir.StateNode) { c.active[n.ID] = n }

// Remove marks n inactive.
func (c *Configuration) Remove(n *ir.StateNode) { delete(c.active, n.ID) }

// Has reports whether id is currently active.
func (c *Configuration) Has(id ir.StateID) bool {
	_, ok := c.active[id]
	return ok
}

// Nodes returns every active StateNode, in no particular order; callers
// that need document order should sort via SortByDocumentOrder.
func (c *Configuration) Nodes() []*ir.StateNode {
	out := make([]*ir.StateNode, 0, len(c.active))
	for _, n := range c.active {
		out = append(out, n)
	}
	return out
}

// AtomicLeaves returns the active Atomic/Final states, which anchor
// transition-candidate search (W3C Appendix D selectTransitions walks up
// from each active atomic state).
func (c *Configuration) AtomicLeaves() []*ir.StateNode {
	var out []*ir.StateNode
	for _, n := range c.active {
		if n.IsAtomicLike() {
			out = append(out, n)
		}
	}
	SortByDocumentOrder(out)
	return out
}

// SortByDocumentOrder sorts nodes ascending by DocumentOrder in place.
func SortByDocumentOrder(nodes []*ir.StateNode) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].DocumentOrder < nodes[j].DocumentOrder
	})
}

// SortForExit sorts nodes for exit execution: deepest first, then
// rightmost (highest document order) first — spec.md §4.4 "Exit order:
// sort exit set by (depth desc, document-order desc)".
func SortForExit(nodes []*ir.StateNode) {
	sort.Slice(nodes, func(i, j int) bool {
		di, dj := nodes[i].Depth(), nodes[j].Depth()
		if di != dj {
			return di > dj
		}
		return nodes[i].DocumentOrder > nodes[j].DocumentOrder
	})
}

// ValidateInvariants checks the closure/compound/parallel/atomicity
// invariants of spec.md §3 and §8 over the current configuration. Returns a
// descriptive error identifying the first violation found, used by the
// session driver to detect a fatal invariant violation (spec.md §7).
func (c *Configuration) ValidateInvariants(chart *ir.Chart) error {
	for id, n := range c.active {
		// Closure: every active state's parent chain is active.
		for p := n.Parent; p != nil; p = p.Parent {
			if !c.Has(p.ID) {
				return fmt.Errorf("fsm: closure violation: %q active but ancestor %q is not", id, p.ID)
			}
		}

		switch n.Kind {
		case ir.Compound:
			activeChildren := 0
			for _, ch := range n.Children {
				if c.Has(ch.ID) {
					activeChildren++
				}
			}
			if activeChildren != 1 {
				return fmt.Errorf("fsm: compound invariant violation: %q has %d active children, want 1", id, activeChildren)
			}
		case ir.Parallel:
			for _, ch := range n.Children {
				if !c.Has(ch.ID) {
					return fmt.Errorf("fsm: parallel invariant violation: %q missing active region %q", id, ch.ID)
				}
			}
		case ir.Atomic, ir.Final:
			for _, ch := range n.Children {
				if c.Has(ch.ID) {
					return fmt.Errorf("fsm: atomicity violation: atomic/final %q has active child %q", id, ch.ID)
				}
			}
		}
	}
	return nil
}

// Snapshot returns a sorted copy of active StateIDs, for diagnostics,
// persistence, and GetActiveStates().
func (c *Configuration) Snapshot() []ir.StateID {
	nodes := c.Nodes()
	SortByDocumentOrder(nodes)
	out := make([]ir.StateID, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}
