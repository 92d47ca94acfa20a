package fsm

import (
	"github.com/comalice/scxmlcore/ir"
)

// TransitionDomain returns the ancestor boundary used for both exit-set and
// entry-set computation (W3C Appendix D getTransitionDomain): for an
// Internal transition on a non-Parallel source whose targets are all proper
// descendants of the source, the domain is the source itself (no exit);
// otherwise it's the LCA of source and all targets.
func TransitionDomain(t *ir.TransitionNode, targets []*ir.StateNode) *ir.StateNode {
	source := t.Source
	if t.Kind == ir.Internal && source.Kind != ir.Parallel {
		allDescendants := len(targets) > 0
		for _, tgt := range targets {
			if !IsProperDescendant(tgt, source) {
				allDescendants = false
				break
			}
		}
		if allDescendants {
			return source
		}
	}
	return LCAOfSet(source, targets)
}

// ComputeExitSet implements spec.md §4.4 computeExitSet for one transition
// against the currently active configuration: every active state that is a
// proper descendant of the transition's domain, plus the source itself for
// an External self-transition (domain == source).
func ComputeExitSet(t *ir.TransitionNode, targets []*ir.StateNode, cfg *Configuration) []*ir.StateNode {
	if t.IsTargetless() {
		return nil
	}
	domain := TransitionDomain(t, targets)
	if domain == nil {
		return nil
	}

	var exit []*ir.StateNode
	for _, n := range cfg.Nodes() {
		if IsProperDescendant(n, domain) {
			exit = append(exit, n)
		}
	}
	if t.Kind == ir.External && t.Source == domain && cfg.Has(t.Source.ID) {
		exit = append(exit, t.Source)
	}
	return exit
}

// EffectiveTargetStates resolves a transition's literal Targets into the
// StateNodes that must actually be entered, substituting a history
// pseudo-state target with its recorded configuration (or, absent history,
// its default transition's targets), recursively.
func EffectiveTargetStates(chart *ir.Chart, targets []*ir.StateNode, hist *HistoryStore) []*ir.StateNode {
	seen := make(map[ir.StateID]struct{})
	var out []*ir.StateNode
	var resolve func(n *ir.StateNode)
	resolve = func(n *ir.StateNode) {
		if !n.IsHistory() {
			if _, ok := seen[n.ID]; !ok {
				seen[n.ID] = struct{}{}
				out = append(out, n)
			}
			return
		}
		if restored, ok := hist.Restore(n.ID); ok {
			for _, id := range restored {
				if sn, err := chart.State(id); err == nil {
					resolve(sn)
				}
			}
			return
		}
		// No history recorded: fall back to the history node's own
		// default transition (spec.md §3 StateNode invariant: "history
		// node ... has exactly one default target transition").
		if len(n.Transitions) > 0 {
			for _, tid := range n.Transitions[0].Targets {
				if sn, err := chart.State(tid); err == nil {
					resolve(sn)
				}
			}
		}
	}
	for _, t := range targets {
		resolve(t)
	}
	return out
}

// entrySetBuilder accumulates the ordered, deduplicated entry set and the
// set of compound states that need their default-initial child entered, per
// the W3C Appendix D addDescendantStatesToEnter/addAncestorStatesToEnter
// pair. Keeping it as a small struct (rather than free functions closing
// over return values) lets the two mutually-recursive passes share state
// without threading four parameters through every call.
type entrySetBuilder struct {
	chart       *ir.Chart
	hist        *HistoryStore
	entered     map[ir.StateID]struct{}
	orderedList []*ir.StateNode
}

func newEntrySetBuilder(chart *ir.Chart, hist *HistoryStore) *entrySetBuilder {
	return &entrySetBuilder{
		chart:   chart,
		hist:    hist,
		entered: make(map[ir.StateID]struct{}),
	}
}

func (b *entrySetBuilder) add(n *ir.StateNode) {
	if _, ok := b.entered[n.ID]; ok {
		return
	}
	b.entered[n.ID] = struct{}{}
	b.orderedList = append(b.orderedList, n)
}

func (b *entrySetBuilder) contains(n *ir.StateNode) bool {
	_, ok := b.entered[n.ID]
	return ok
}

// anyEnteredIsDescendantOf reports whether some already-scheduled state is a
// descendant of child; used to decide whether a parallel region's default
// entry is still needed (it isn't, if an explicit deeper target already
// covers that region).
func (b *entrySetBuilder) anyEnteredIsDescendantOf(child *ir.StateNode) bool {
	for _, n := range b.orderedList {
		if n == child || IsProperDescendant(n, child) {
			return true
		}
	}
	return false
}

func (b *entrySetBuilder) addDescendantStatesToEnter(state *ir.StateNode) {
	if state.IsHistory() {
		if restored, ok := b.hist.Restore(state.ID); ok {
			var resolvedTargets []*ir.StateNode
			for _, id := range restored {
				if sn, err := b.chart.State(id); err == nil {
					resolvedTargets = append(resolvedTargets, sn)
				}
			}
			for _, s := range resolvedTargets {
				b.addDescendantStatesToEnter(s)
			}
			for _, s := range resolvedTargets {
				b.addAncestorStatesToEnter(s, state.Parent)
			}
			return
		}
		if len(state.Transitions) == 0 {
			return
		}
		var defaults []*ir.StateNode
		for _, tid := range state.Transitions[0].Targets {
			if sn, err := b.chart.State(tid); err == nil {
				defaults = append(defaults, sn)
			}
		}
		for _, s := range defaults {
			b.addDescendantStatesToEnter(s)
		}
		for _, s := range defaults {
			b.addAncestorStatesToEnter(s, state.Parent)
		}
		return
	}

	b.add(state)

	switch state.Kind {
	case ir.Compound:
		var defaults []*ir.StateNode
		if len(state.InitialChild) > 0 {
			for _, id := range state.InitialChild {
				if sn, err := b.chart.State(id); err == nil {
					defaults = append(defaults, sn)
				}
			}
		} else if len(state.Children) > 0 {
			defaults = append(defaults, state.Children[0])
		}
		for _, s := range defaults {
			b.addDescendantStatesToEnter(s)
		}
		for _, s := range defaults {
			b.addAncestorStatesToEnter(s, state)
		}
	case ir.Parallel:
		for _, child := range state.Children {
			if child.IsHistory() {
				continue
			}
			if !b.anyEnteredIsDescendantOf(child) {
				b.addDescendantStatesToEnter(child)
			}
		}
	}
}

func (b *entrySetBuilder) addAncestorStatesToEnter(state, ancestor *ir.StateNode) {
	var chain []*ir.StateNode
	for p := state.Parent; p != nil && p != ancestor; p = p.Parent {
		chain = append(chain, p)
	}
	// root-first order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	for _, anc := range chain {
		b.add(anc)
		if anc.Kind == ir.Parallel {
			for _, child := range anc.Children {
				if child.IsHistory() {
					continue
				}
				if !b.anyEnteredIsDescendantOf(child) {
					b.addDescendantStatesToEnter(child)
				}
			}
		}
	}
}

// ComputeEntrySet implements spec.md §4.4 computeEntrySet for one
// transition: for each literal target, add its descendant defaults
// (history/compound-initial/parallel-regions), then add the ancestor chain
// up to (excluding) the transition's domain, expanding any parallel
// ancestor's other regions too. The result preserves document order among
// siblings because the chain built by addAncestorStatesToEnter walks
// root-first and addDescendantStatesToEnter always adds a node before its
// children.
func ComputeEntrySet(chart *ir.Chart, t *ir.TransitionNode, targets []*ir.StateNode, hist *HistoryStore) []*ir.StateNode {
	if t.IsTargetless() {
		return nil
	}
	b := newEntrySetBuilder(chart, hist)
	domain := TransitionDomain(t, targets)

	for _, target := range targets {
		b.addDescendantStatesToEnter(target)
	}
	effective := EffectiveTargetStates(chart, targets, hist)
	for _, s := range effective {
		b.addAncestorStatesToEnter(s, domain)
	}

	SortByDocumentOrder(b.orderedList)
	return b.orderedList
}

// InitialEntrySet computes the entry set for session startup: entering
// chart.Initial (possibly a deep-initial list) from above the root, i.e.
// with no transition domain restriction.
func InitialEntrySet(chart *ir.Chart, hist *HistoryStore) []*ir.StateNode {
	b := newEntrySetBuilder(chart, hist)
	var targets []*ir.StateNode
	for _, id := range chart.Initial {
		if sn, err := chart.State(id); err == nil {
			targets = append(targets, sn)
		}
	}
	if len(targets) == 0 {
		targets = []*ir.StateNode{chart.Root}
	}
	for _, target := range targets {
		b.addDescendantStatesToEnter(target)
	}
	// Ancestors up to (and including, since there is no real domain above
	// root) each target's chain back to the chart root's parent (nil).
	for _, target := range targets {
		b.addAncestorStatesToEnter(target, nil)
	}
	SortByDocumentOrder(b.orderedList)
	return b.orderedList
}
