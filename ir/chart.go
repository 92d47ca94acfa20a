package ir

import "fmt"

// Chart is the immutable, fully-resolved parsed representation of one
// <scxml> document. It is produced by the (external) parser and consumed
// read-only by every core component. BaseDir anchors relative src/
// scriptsrc resolution (W3C 5.8, §6 of the spec: external-script paths must
// resolve inside BaseDir).
type Chart struct {
	Name    string
	BaseDir string

	Root *StateNode

	// Initial is the top-level initial target(s): normally a single state,
	// but may be a deep-initial list when <scxml initial="a b"> names
	// states in more than one parallel region.
	Initial []StateID

	// ByID indexes every StateNode (including history pseudo-states) by
	// id for O(1) lookup; built once at construction.
	ByID map[StateID]*StateNode

	DataItems []*DataItem

	// Binding is "early" (default) or "late" (W3C 5.3): controls whether
	// <data> declarations not yet reached by document order are
	// initialized at startup (early) or on first entry of their owning
	// state (late). The core only needs to know which; Binding == "late"
	// is honored by the session driver's initialize() step.
	Binding string
}

// NewChart indexes root and returns the Chart. The caller (parser or test
// fixture builder) is responsible for having already assigned DocumentOrder
// and wired Parent pointers.
func NewChart(name, baseDir string, root *StateNode, initial []StateID, dataItems []*DataItem, binding string) *Chart {
	c := &Chart{
		Name:      name,
		BaseDir:   baseDir,
		Root:      root,
		Initial:   initial,
		DataItems: dataItems,
		Binding:   binding,
		ByID:      make(map[StateID]*StateNode),
	}
	var index func(*StateNode)
	index = func(n *StateNode) {
		c.ByID[n.ID] = n
		for _, ch := range n.Children {
			index(ch)
		}
	}
	index(root)
	return c
}

// State resolves a StateID; returns an error if unknown (W3C transition
// target references must be resolvable at parse time, but the core
// re-validates defensively since it treats the IR as an external contract).
func (c *Chart) State(id StateID) (*StateNode, error) {
	n, ok := c.ByID[id]
	if !ok {
		return nil, fmt.Errorf("scxmlcore/ir: unknown state %q", id)
	}
	return n, nil
}
