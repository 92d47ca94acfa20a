package session

import (
	"github.com/comalice/scxmlcore/ir"
)

// initializeDataItems evaluates chart.DataItems in document order at
// startup (W3C 5.3's top-level <datamodel> is always initialized eagerly,
// regardless of binding mode), then, for early binding, walks the whole
// state tree initializing every other state's data items too. Late binding
// leaves per-state data items for initStateDataItemsOnce on first entry.
func (s *Session) initializeDataItems(topLevel []*ir.DataItem) {
	for _, d := range topLevel {
		s.setDataItem(d)
	}
	s.dataInitialized[s.chart.Root.ID] = true

	if s.chart.Binding == "late" {
		for k, v := range s.initialData {
			if err := s.dm.Set(k, v); err != nil {
				s.logger.Error("set initial invoke data", "key", k, "err", err)
			}
		}
		return
	}

	var walk func(n *ir.StateNode)
	walk = func(n *ir.StateNode) {
		s.initStateDataItemsOnce(n)
		for _, ch := range n.Children {
			walk(ch)
		}
	}
	walk(s.chart.Root)

	for k, v := range s.initialData {
		if err := s.dm.Set(k, v); err != nil {
			s.logger.Error("set initial invoke data", "key", k, "err", err)
		}
	}
}

// initStateDataItemsOnce evaluates n's own <datamodel> items exactly once,
// the first time it is reached (either eagerly, for early binding, or on
// first entry, for late binding — W3C 5.3).
func (s *Session) initStateDataItemsOnce(n *ir.StateNode) {
	if s.dataInitialized[n.ID] {
		return
	}
	s.dataInitialized[n.ID] = true
	for _, d := range n.DataItems {
		s.setDataItem(d)
	}
}

func (s *Session) setDataItem(d *ir.DataItem) {
	var value any
	switch {
	case d.Expr != "":
		v, err := s.dm.EvalExpr(d.Expr)
		if err != nil {
			s.raiseInternal("error.execution", err)
			return
		}
		value = v
	case d.InlineContent != "":
		value = d.InlineContent
	case d.Src != "":
		// The session does not load external documents (WithChartLoader
		// only resolves <invoke> charts), so a <data src="..."> item
		// initializes to nil rather than failing the whole session (W3C
		// 5.3 treats an unresolvable src as an execution error on use, not
		// on declaration).
		value = nil
	default:
		value = nil
	}
	if err := s.dm.DeclareIfAbsent(d.ID, value); err != nil {
		s.raiseInternal("error.execution", err)
		return
	}
	if err := s.dm.Set(d.ID, value); err != nil {
		s.raiseInternal("error.execution", err)
	}
}
