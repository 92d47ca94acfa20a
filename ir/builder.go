package ir

// Builder provides a fluent API for constructing a Chart in tests and
// examples, in the teacher's MachineBuilder/StateBuilder idiom
// (comalice/statechartx internal/primitives/machinebuilder.go) adapted to
// SCXML's richer state kinds and document-order bookkeeping.
type Builder struct {
	name    string
	baseDir string
	nodes   map[StateID]*StateNode
	order   int
	initial []StateID
	binding string
	data    []*DataItem
}

// NewBuilder starts a new Chart builder.
func NewBuilder(name string) *Builder {
	return &Builder{name: name, nodes: make(map[StateID]*StateNode), binding: "early"}
}

// WithBaseDir sets the chart's base directory for relative src resolution.
func (b *Builder) WithBaseDir(dir string) *Builder {
	b.baseDir = dir
	return b
}

// WithLateBinding switches data-item binding to "late" (W3C 5.3).
func (b *Builder) WithLateBinding() *Builder {
	b.binding = "late"
	return b
}

// WithInitial sets the top-level initial target(s).
func (b *Builder) WithInitial(ids ...StateID) *Builder {
	b.initial = ids
	return b
}

// WithData adds a top-level <datamodel> declaration.
func (b *Builder) WithData(d *DataItem) *Builder {
	b.data = append(b.data, d)
	return b
}

// AddState registers n (and its already-built children) into the builder's
// flat index and assigns DocumentOrder in pre-order. Call once per root
// passed to Build, or for nested construction build the full tree first and
// call AddState on the top-level root.
func (b *Builder) AddState(n *StateNode) *Builder {
	b.index(n)
	return b
}

func (b *Builder) index(n *StateNode) {
	n.DocumentOrder = b.order
	b.order++
	b.nodes[n.ID] = n
	for _, ch := range n.Children {
		ch.Parent = n
		b.index(ch)
	}
	for i, t := range n.Transitions {
		t.Source = n
		t.DocumentOrder = i
	}
}

// Build finalizes the Chart. root must already have been passed to
// AddState.
func (b *Builder) Build(root *StateNode) *Chart {
	initial := b.initial
	if len(initial) == 0 {
		initial = []StateID{root.ID}
	}
	return NewChart(b.name, b.baseDir, root, initial, b.data, b.binding)
}

// NewState is a small convenience constructor for test fixtures.
func NewState(id StateID, kind StateKind) *StateNode {
	return &StateNode{ID: id, Kind: kind}
}

// WithChildren attaches children in order (parent pointers fixed up by the
// builder's index pass, not here, so children can be built independently of
// their eventual parent).
func (s *StateNode) WithChildren(children ...*StateNode) *StateNode {
	s.Children = append(s.Children, children...)
	return s
}

// WithInitialChild sets the compound state's default initial target.
func (s *StateNode) WithInitialChild(ids ...StateID) *StateNode {
	s.InitialChild = ids
	return s
}

// WithTransition appends a transition in document order.
func (s *StateNode) WithTransition(t *TransitionNode) *StateNode {
	s.Transitions = append(s.Transitions, t)
	return s
}

// NewTransition is a convenience constructor; Source/DocumentOrder are
// filled in by Builder.AddState.
func NewTransition(event string, guard string, targets ...StateID) *TransitionNode {
	var descriptors []string
	if event != "" {
		descriptors = []string{event}
	}
	return &TransitionNode{
		EventDescriptors: descriptors,
		Guard:            guard,
		Targets:          targets,
		Kind:             External,
	}
}
