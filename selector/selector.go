package selector

import (
	"github.com/comalice/scxmlcore/fsm"
	"github.com/comalice/scxmlcore/ir"
)

// GuardEvaluator evaluates a <transition cond="..."> expression against the
// session's current data model. A non-nil err means the guard raised
// (expression error or non-boolean result); callers must raise
// error.execution and treat the transition as not enabled (spec.md §4.5,
// §8: "guard that errors ⇒ treated false AND error.execution raised").
type GuardEvaluator interface {
	Eval(guard string) (bool, error)
}

// GuardError is returned alongside the selection result to tell the caller
// which guards raised, so it can enqueue error.execution for each — the
// selector itself never touches a session's event queues (spec.md keeps C6
// and C3 separate).
type GuardError struct {
	Transition *ir.TransitionNode
	Err        error
}

// candidate is one enabled transition before conflict resolution. exitSet is
// computed eagerly (spec.md §4.4 computeExitSet, against the configuration
// active when Select was called) since conflict detection is defined on
// exit-set intersection, not on source ancestry (W3C Appendix D.2).
type candidate struct {
	source  *ir.StateNode
	trans   *ir.TransitionNode
	exitSet []*ir.StateNode
}

// resolveTargets looks up a transition's literal target ids in chart, for
// feeding into fsm.TransitionDomain/fsm.ComputeExitSet.
func resolveTargets(chart *ir.Chart, t *ir.TransitionNode) []*ir.StateNode {
	var targets []*ir.StateNode
	for _, id := range t.Targets {
		if sn, err := chart.State(id); err == nil {
			targets = append(targets, sn)
		}
	}
	return targets
}

// Select enumerates and conflict-resolves the optimal transition set for
// eventName against cfg; eventless == true selects the eventless pass, in
// which eventName is ignored. Per W3C Appendix D
// selectTransitions: for each active atomic state, walk ancestors and take
// the FIRST matching+enabled transition found on that branch; candidates
// are then ordered by source document order and conflict-resolved.
func Select(chart *ir.Chart, cfg *fsm.Configuration, eventName string, eventless bool, guardEval GuardEvaluator) ([]*ir.TransitionNode, []GuardError) {
	var candidates []candidate
	var guardErrs []GuardError

	for _, leaf := range cfg.AtomicLeaves() {
		// Ancestors() is root-first; we need leaf-to-root for "first
		// matching transition per branch" (innermost wins per branch).
		anc := leaf.Ancestors()
		reversed := make([]*ir.StateNode, 0, len(anc)+1)
		reversed = append(reversed, leaf)
		for i := len(anc) - 1; i >= 0; i-- {
			reversed = append(reversed, anc[i])
		}

		found := false
		for _, s := range reversed {
			if found {
				break
			}
			for _, t := range s.Transitions {
				if eventless {
					if !t.IsEventless() {
						continue
					}
				} else {
					if t.IsEventless() || !MatchesAny(t.EventDescriptors, eventName) {
						continue
					}
				}
				if t.Guard != "" {
					ok, err := guardEval.Eval(t.Guard)
					if err != nil {
						guardErrs = append(guardErrs, GuardError{Transition: t, Err: err})
						continue
					}
					if !ok {
						continue
					}
				}
				exitSet := fsm.ComputeExitSet(t, resolveTargets(chart, t), cfg)
				candidates = append(candidates, candidate{source: s, trans: t, exitSet: exitSet})
				found = true
				break
			}
		}
	}

	SortCandidatesByDocumentOrder(candidates)
	optimal := resolveConflicts(candidates)

	out := make([]*ir.TransitionNode, len(optimal))
	for i, c := range optimal {
		out[i] = c.trans
	}
	return out, guardErrs
}

// SortCandidatesByDocumentOrder orders candidates by source document order,
// matching spec.md §4.5 step 2.
func SortCandidatesByDocumentOrder(cands []candidate) {
	for i := 1; i < len(cands); i++ {
		j := i
		for j > 0 && cands[j-1].source.DocumentOrder > cands[j].source.DocumentOrder {
			cands[j-1], cands[j] = cands[j], cands[j-1]
			j--
		}
	}
}

// resolveConflicts applies W3C Appendix D.2's removeConflictingTransitions:
// for each candidate t1 in document order, compare against every
// already-retained t2. If their exit sets intersect, t1 preempts t2 (and t2
// is dropped) exactly when t1's source is a proper descendant of t2's
// source — the more specific transition wins; otherwise t1 itself is
// preempted (an earlier, less specific transition already claimed the
// conflicting exit-set member) and is dropped instead.
func resolveConflicts(cands []candidate) []candidate {
	var retained []candidate
	for _, t1 := range cands {
		t1Preempted := false
		var toRemove []int
		for i, t2 := range retained {
			if !conflicts(t1, t2) {
				continue
			}
			if fsm.IsProperDescendant(t1.source, t2.source) {
				toRemove = append(toRemove, i)
				continue
			}
			t1Preempted = true
			break
		}
		if t1Preempted {
			continue
		}
		for i := len(toRemove) - 1; i >= 0; i-- {
			idx := toRemove[i]
			retained = append(retained[:idx], retained[idx+1:]...)
		}
		retained = append(retained, t1)
	}
	return retained
}

// conflicts implements W3C D.2: two transitions conflict exactly when their
// exit sets intersect. A targetless transition has an empty exit set (it
// changes no configuration) and so never conflicts with anything.
func conflicts(t1, t2 candidate) bool {
	if len(t1.exitSet) == 0 || len(t2.exitSet) == 0 {
		return false
	}
	for _, n1 := range t1.exitSet {
		for _, n2 := range t2.exitSet {
			if n1 == n2 {
				return true
			}
		}
	}
	return false
}
