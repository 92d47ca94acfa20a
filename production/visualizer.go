package production

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/comalice/scxmlcore/ir"
)

// DefaultVisualizer is the stdlib-only Visualizer, adapted from the
// teacher's DefaultVisualizer to walk the Chart IR's *ir.StateNode tree
// directly instead of primitives.MachineConfig/StateConfig.
type DefaultVisualizer struct{}

// ExportDOT generates Graphviz DOT source for chart, highlighting the
// states named in active.
func (v *DefaultVisualizer) ExportDOT(chart *ir.Chart, active []ir.StateID) string {
	activeSet := make(map[ir.StateID]bool, len(active))
	for _, id := range active {
		activeSet[id] = true
	}

	var buf bytes.Buffer
	buf.WriteString("digraph Statechart {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box, fontsize=10, style=rounded];\n")
	buf.WriteString("  edge [fontsize=9];\n")

	renderState(&buf, chart.Root, activeSet)

	var walkEdges func(n *ir.StateNode)
	walkEdges = func(n *ir.StateNode) {
		for _, t := range n.Transitions {
			label := "ε"
			if len(t.EventDescriptors) > 0 {
				label = t.EventDescriptors[0]
			}
			for _, tgt := range t.Targets {
				fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", n.ID, tgt, label)
			}
		}
		for _, ch := range n.Children {
			walkEdges(ch)
		}
	}
	walkEdges(chart.Root)

	buf.WriteString("}\n")
	return buf.String()
}

func renderState(buf *bytes.Buffer, n *ir.StateNode, active map[ir.StateID]bool) {
	if len(n.Children) > 0 {
		fmt.Fprintf(buf, "  subgraph cluster_%s {\n", n.ID)
		style := ""
		if active[n.ID] {
			style = " style=filled fillcolor=orange"
		}
		fmt.Fprintf(buf, "    label=%q%s;\n", fmt.Sprintf("%s (%s)", n.ID, n.Kind), style)
		for _, ch := range n.Children {
			renderState(buf, ch, active)
		}
		buf.WriteString("  }\n")
		return
	}
	style := ""
	if active[n.ID] {
		style = " style=filled fillcolor=lightgreen"
	}
	fmt.Fprintf(buf, "  %q [label=%q%s];\n", n.ID, n.ID, style)
}

// chartSnapshot is the JSON-friendly mirror of a Chart used by ExportJSON;
// *ir.StateNode isn't itself JSON-tagged since the execution core never
// serializes it, so the visualizer builds this view explicitly.
type chartSnapshot struct {
	Name string           `json:"name"`
	Root *stateNodeView   `json:"root"`
}

type stateNodeView struct {
	ID       ir.StateID       `json:"id"`
	Kind     string           `json:"kind"`
	Children []*stateNodeView `json:"children,omitempty"`
}

func toView(n *ir.StateNode) *stateNodeView {
	v := &stateNodeView{ID: n.ID, Kind: n.Kind.String()}
	for _, ch := range n.Children {
		v.Children = append(v.Children, toView(ch))
	}
	return v
}

// ExportJSON serializes chart's state tree to JSON.
func (v *DefaultVisualizer) ExportJSON(chart *ir.Chart) ([]byte, error) {
	snap := chartSnapshot{Name: chart.Name, Root: toView(chart.Root)}
	return json.MarshalIndent(snap, "", "  ")
}
