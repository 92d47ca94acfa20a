package session

import (
	"fmt"

	"github.com/comalice/scxmlcore/fsm"
	"github.com/comalice/scxmlcore/ir"
	"github.com/comalice/scxmlcore/selector"
)

// guardEvalAdapter lets *datamodel.Context satisfy selector.GuardEvaluator
// without that package importing datamodel.
type guardEvalAdapter struct{ s *Session }

func (g guardEvalAdapter) Eval(guard string) (bool, error) {
	return g.s.dm.EvalGuard(guard)
}

// runToQuiescence drives microsteps until both queues are empty and no
// eventless transition is enabled, per spec.md §4.8's macrostep loop: the
// eventless pass always runs to exhaustion before either queue is touched,
// internal events strictly precede external ones, and a single popped
// external event can itself only ever trigger one microstep before control
// returns to the eventless pass.
func (s *Session) runToQuiescence() {
	guard := guardEvalAdapter{s: s}

	for {
		ran := s.runEventlessPass(guard)
		if ran {
			continue
		}

		if ev, ok := s.qp.NextInternal(); ok {
			s.handleEvent(ev, guard)
			continue
		}

		if ev, ok := s.qp.NextExternal(); ok {
			s.inv.Autoforward(ev)
			s.handleEvent(ev, guard)
			continue
		}

		return
	}
}

// runEventlessPass fires eventless microsteps until none is enabled,
// bounded by maxEventlessIterations per call to surface a malformed chart
// (a transition cycle with no progress) as a logged diagnostic rather than
// hanging the process (spec.md §8 "Monotonic eventless termination"). It
// reports whether any microstep ran; on hitting the cap it logs and
// reports false so the caller moves on to the queues.
func (s *Session) runEventlessPass(guard selector.GuardEvaluator) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < maxEventlessIterations; i++ {
		trans, guardErrs := selector.Select(s.chart, s.cfg, "", true, guard)
		for _, ge := range guardErrs {
			s.raiseInternal("error.execution", ge.Err)
		}
		if len(trans) == 0 {
			return i > 0
		}
		s.runMicrostep(trans, ir.EventObject{})
	}
	s.logger.Error("eventless transition loop exceeded iteration cap", "session", s.id, "cap", maxEventlessIterations)
	return false
}

func (s *Session) handleEvent(ev ir.EventObject, guard selector.GuardEvaluator) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inv.RunFinalizeIfOrigin(ev)
	if err := s.dm.SetEvent(eventToJS(ev)); err != nil {
		s.logger.Error("bind _event", "err", err)
	}

	trans, guardErrs := selector.Select(s.chart, s.cfg, ev.Name, false, guard)
	for _, ge := range guardErrs {
		s.raiseInternal("error.execution", ge.Err)
	}
	if len(trans) > 0 {
		s.runMicrostep(trans, ev)
	}
}

// runMicrostep executes one conflict-resolved transition set against the
// current configuration: exit, transition actions, entry — in that order,
// per W3C Appendix D microstep() (spec.md §4.4). Caller holds s.mu.
func (s *Session) runMicrostep(trans []*ir.TransitionNode, triggering ir.EventObject) {
	type resolved struct {
		t       *ir.TransitionNode
		targets []*ir.StateNode
	}
	rs := make([]resolved, 0, len(trans))
	for _, t := range trans {
		var targets []*ir.StateNode
		for _, id := range t.Targets {
			if sn, err := s.chart.State(id); err == nil {
				targets = append(targets, sn)
			}
		}
		rs = append(rs, resolved{t: t, targets: targets})
	}

	exitSeen := make(map[ir.StateID]*ir.StateNode)
	for _, r := range rs {
		for _, n := range fsm.ComputeExitSet(r.t, r.targets, s.cfg) {
			exitSeen[n.ID] = n
		}
	}
	exitSet := make([]*ir.StateNode, 0, len(exitSeen))
	for _, n := range exitSeen {
		exitSet = append(exitSet, n)
	}
	fsm.SortForExit(exitSet)

	s.runExitSet(exitSet)

	for _, r := range rs {
		s.ex.RunBlock(r.t.Actions)
	}

	entrySeen := make(map[ir.StateID]*ir.StateNode)
	var entryOrdered []*ir.StateNode
	for _, r := range rs {
		for _, n := range fsm.ComputeEntrySet(s.chart, r.t, r.targets, s.hist) {
			if _, ok := entrySeen[n.ID]; ok {
				continue
			}
			entrySeen[n.ID] = n
			entryOrdered = append(entryOrdered, n)
		}
	}
	fsm.SortByDocumentOrder(entryOrdered)
	s.runEntrySet(entryOrdered)

	if err := s.cfg.ValidateInvariants(s.chart); err != nil {
		s.logger.Error("configuration invariant violation", "session", s.id, "err", err)
		s.raiseInternal("error.execution", err)
	}
}

// runExitSet records history for every exited parent before removing any of
// its children, then runs onexit handlers and tears down invokes, deepest
// state first (spec.md §4.4). Caller holds s.mu.
func (s *Session) runExitSet(exitSet []*ir.StateNode) {
	parentsDone := make(map[ir.StateID]struct{})
	for _, n := range exitSet {
		if n.Parent == nil {
			continue
		}
		if _, ok := parentsDone[n.Parent.ID]; ok {
			continue
		}
		parentsDone[n.Parent.ID] = struct{}{}
		s.hist.RecordOnExit(n.Parent, s.cfg)
	}

	for _, n := range exitSet {
		for _, block := range n.OnExit {
			s.ex.RunBlock(block)
		}
		s.inv.StopAll(n.ID)
		s.cfg.Remove(n)
	}
}

// runEntrySet activates each entered state in document order, initializing
// late-bound data items on first entry, running onentry handlers, queueing
// any <invoke> children for startup once the enclosing macrostep reaches
// quiescence, and raising done.state.<id> for newly-completed compound/
// parallel ancestors (spec.md §4.4, §4.7). Caller holds s.mu.
func (s *Session) runEntrySet(entrySet []*ir.StateNode) {
	for _, n := range entrySet {
		s.cfg.Add(n)
		if s.chart.Binding == "late" {
			s.initStateDataItemsOnce(n)
		}
		for _, block := range n.OnEntry {
			s.ex.RunBlock(block)
		}
		if len(n.Invokes) > 0 {
			s.enteredThisMacrostep = append(s.enteredThisMacrostep, n)
		}
		if n.Kind == ir.Final {
			s.raiseDoneState(n)
		}
	}
}

// raiseDoneState implements W3C 3.7's done.state.<id> cascade: entering a
// <final> child of a compound state completes that state immediately;
// entering one inside a parallel region only completes the parallel
// ancestor once every region reports done, and completion itself cascades
// upward through nested compounds/parallels.
func (s *Session) raiseDoneState(final *ir.StateNode) {
	parent := final.Parent
	if parent == nil {
		return
	}
	switch parent.Kind {
	case ir.Compound:
		s.enqueueDoneState(parent, final)
		s.cascadeDoneState(parent)
	case ir.Parallel:
		// final's immediate parent can only be Parallel if final is a bare
		// top-level final region of that parallel (unusual but legal);
		// still check grandparent-style completion.
		s.checkParallelDone(parent)
	default:
		// final's parent is itself a region root (Compound handled above);
		// if the grandparent is Parallel, completion of this region may
		// complete the whole parallel.
	}
	if region := parent; region.Parent != nil && region.Parent.Kind == ir.Parallel {
		s.checkParallelDone(region.Parent)
	}
}

func (s *Session) cascadeDoneState(completed *ir.StateNode) {
	if completed.Parent == nil {
		return
	}
	if completed.Parent.Kind == ir.Parallel {
		s.checkParallelDone(completed.Parent)
	}
}

// checkParallelDone raises done.state.<parallel.ID> once every region of
// parallel independently reports a completed (final) substate.
func (s *Session) checkParallelDone(parallel *ir.StateNode) {
	for _, region := range parallel.Children {
		if region.IsHistory() {
			continue
		}
		if !s.regionDone(region) {
			return
		}
	}
	s.enqueueDoneState(parallel, nil)
	s.cascadeDoneState(parallel)
}

func (s *Session) regionDone(region *ir.StateNode) bool {
	for _, n := range s.cfg.Nodes() {
		if n.Kind == ir.Final && fsm.IsDescendantOrSelf(n, region) {
			return true
		}
	}
	return false
}

func (s *Session) enqueueDoneState(owner *ir.StateNode, final *ir.StateNode) {
	var data any
	if final != nil && final.DoneData != nil {
		data = s.evalDoneData(final.DoneData)
	}
	s.qp.Internal.Enqueue(ir.EventObject{
		Name: "done.state." + string(owner.ID),
		Type: ir.EventInternal,
		Data: data,
	})
}

func (s *Session) evalDoneData(dd *ir.DoneData) any {
	if dd.ContentExpr != "" {
		v, err := s.dm.EvalExpr(dd.ContentExpr)
		if err != nil {
			s.raiseInternal("error.execution", err)
			return nil
		}
		return v
	}
	if len(dd.Params) == 0 {
		return nil
	}
	out := make(map[string]any, len(dd.Params))
	for _, p := range dd.Params {
		v, err := s.dm.EvalExpr(p.Expr)
		if err != nil {
			s.raiseInternal("error.execution", err)
			continue
		}
		out[p.Name] = v
	}
	return out
}

func (s *Session) raiseInternal(name string, cause error) {
	s.qp.Internal.Enqueue(ir.EventObject{
		Name: name,
		Type: ir.EventInternal,
		Data: map[string]any{"message": fmt.Sprint(cause)},
	})
}

// startPendingInvokes starts every <invoke> declared on a state entered
// during the macrostep that just reached quiescence, per W3C 6.4: invokes
// run only once their state's macrostep is fully settled, never mid-step.
func (s *Session) startPendingInvokes() {
	s.mu.Lock()
	pending := s.enteredThisMacrostep
	s.enteredThisMacrostep = nil
	s.mu.Unlock()

	for _, n := range pending {
		if !s.cfg.Has(n.ID) {
			continue // exited again before invokes could start
		}
		for _, inv := range n.Invokes {
			if err := s.inv.Start(inv, n.ID); err != nil {
				s.raiseInternal("error.communication", err)
			}
		}
	}
}

// eventToJS builds the `_event` system-variable value from an EventObject
// (spec.md §4.1, W3C 5.10.1).
func eventToJS(ev ir.EventObject) map[string]any {
	typeName := "internal"
	switch ev.Type {
	case ir.EventExternal:
		typeName = "external"
	case ir.EventPlatform:
		typeName = "platform"
	}
	return map[string]any{
		"name":       ev.Name,
		"type":       typeName,
		"sendid":     ev.SendID,
		"origin":     ev.Origin,
		"origintype": ev.OriginType,
		"invokeid":   ev.InvokeID,
		"data":       ev.Data,
	}
}
