// Package session implements the Session/Macrostep Driver (C9): the
// orchestrator that initializes the data model, enters the initial
// configuration, and drives microsteps to quiescence between external
// events (spec.md §4.8).
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/comalice/scxmlcore/actions"
	"github.com/comalice/scxmlcore/datamodel"
	"github.com/comalice/scxmlcore/equeue"
	"github.com/comalice/scxmlcore/fsm"
	"github.com/comalice/scxmlcore/internal/logx"
	"github.com/comalice/scxmlcore/invoke"
	"github.com/comalice/scxmlcore/ir"
	"github.com/comalice/scxmlcore/scheduler"
)

// ParentSender is the minimal surface a parent session exposes to its
// invoked children for #_parent routing: deliver an event, and report an
// id to stamp as Origin. *Session satisfies this directly, so a child's
// WithParent option can be passed the parent *Session itself.
type ParentSender interface {
	SendExternal(ev ir.EventObject)
	ID() string
}

type HTTPSender interface {
	Post(url string, ev ir.EventObject) error
}

// State of the Session per spec.md §4.8.
type Phase int

const (
	Uninitialized Phase = iota
	Initializing
	Running
	Terminated
)

// maxEventlessIterations bounds a single macrostep's eventless-transition
// loop (spec.md §4.8, §8 "Monotonic eventless termination").
const maxEventlessIterations = 100

// Session is one running SCXML session: the C9 orchestrator wiring C2–C8
// together for one Chart.
type Session struct {
	mu sync.Mutex

	id    string
	chart *ir.Chart

	cfg  *fsm.Configuration
	hist *fsm.HistoryStore
	dm   *datamodel.Context
	qp   *equeue.Pair
	sch  *scheduler.Scheduler
	ex   *actions.Executor
	inv  *invoke.Manager

	phase Phase

	parent      ParentSender
	invokeID    string
	http        HTTPSender
	onDone      func(*Session)
	chartLoader func(inv *ir.InvokeNode) (*ir.Chart, error)
	logger      *logx.Logger

	enteredThisMacrostep []*ir.StateNode
	dataInitialized      map[ir.StateID]bool
	initialData          map[string]any
}

// Option configures a Session at construction, in the teacher's functional
// options idiom (comalice/statechartx internal/core.Option).
type Option func(*Session)

// WithParent sets the session's parent, used for #_parent sends and
// finalize-origin matching.
func WithParent(p ParentSender) Option {
	return func(s *Session) { s.parent = p }
}

// WithInvokeID records the id the PARENT's invoke.Manager tracks this
// session's <invoke> under, distinct from ID() (the child's own opaque
// session id). A #_parent send stamps invokeid with this value and origin
// with ID(), matching spec.md §4.6's distinction between the two fields.
func WithInvokeID(id string) Option {
	return func(s *Session) { s.invokeID = id }
}

// WithHTTPSender installs the BasicHTTPEventProcessor sink.
func WithHTTPSender(h HTTPSender) Option {
	return func(s *Session) { s.http = h }
}

// WithCompletionCallback registers a callback invoked once, when the session
// reaches a top-level final state. Stop does not invoke it.
func WithCompletionCallback(fn func(*Session)) Option {
	return func(s *Session) { s.onDone = fn }
}

// WithChartLoader installs the function used to resolve an <invoke src=...>
// into a child Chart; without one, Src/SrcExpr invokes fail to start.
func WithChartLoader(fn func(inv *ir.InvokeNode) (*ir.Chart, error)) Option {
	return func(s *Session) { s.chartLoader = fn }
}

// WithLogger installs a logging facade; defaults to logx.Default().
func WithLogger(l *logx.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithInitialData seeds the top-level data model with values, applied after
// the chart's own <datamodel> initialization so the values win — used to
// carry an <invoke>'s namelist/param values into a freshly spawned child
// session (W3C 6.4.1).
func WithInitialData(values map[string]any) Option {
	return func(s *Session) { s.initialData = values }
}

// New creates a Session for chart, identified by id.
func New(id string, chart *ir.Chart, opts ...Option) *Session {
	s := &Session{
		id:              id,
		chart:           chart,
		cfg:             fsm.New(),
		hist:            fsm.NewHistoryStore(),
		dm:              datamodel.NewSession(nil),
		qp:              equeue.NewPair(),
		sch:             scheduler.New(id),
		logger:          logx.Default(),
		dataInitialized: make(map[ir.StateID]bool),
	}
	s.inv = invoke.New(&parentHostAdapter{s: s})
	s.ex = actions.New(&execHostAdapter{s: s})
	for _, opt := range opts {
		opt(s)
	}
	if err := s.dm.BindInPredicate(func(stateID string) bool {
		return s.cfg.Has(ir.StateID(stateID))
	}); err != nil {
		s.logger.Error("bind In() predicate", "err", err)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// IsRunning reports whether the session has started and not yet terminated.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == Running
}

// IsInFinalState reports whether the top-level final state is active.
func (s *Session) IsInFinalState() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.cfg.Nodes() {
		if n.Kind == ir.Final && n.Parent == s.chart.Root {
			return true
		}
	}
	return false
}

// GetActiveStates returns a snapshot of the active configuration.
func (s *Session) GetActiveStates() []ir.StateID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Snapshot()
}

// DoneData returns the <donedata> payload of whichever top-level final state
// is active, or nil.
func (s *Session) DoneData() *ir.DoneData {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.cfg.Nodes() {
		if n.Kind == ir.Final && n.Parent == s.chart.Root {
			return n.DoneData
		}
	}
	return nil
}

// EvalDoneDataExpr evaluates a <donedata> content/param expression against
// this session's own data model, satisfying invoke.ChildSession so the
// invoke manager can build a done.invoke.<id> payload in the CHILD's scope
// rather than the parent's (W3C 6.4/6.4.1).
func (s *Session) EvalDoneDataExpr(expr string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dm.EvalExpr(expr)
}

// ioProcessors returns the _ioprocessors system variable value (spec.md §6:
// "map with at least key scxml whose value has a location field").
func (s *Session) ioProcessors() map[string]any {
	return map[string]any{
		"scxml": map[string]any{"location": "#_scxml_" + s.id},
	}
}

// Start runs initialize() through the first macrostep to quiescence,
// including startup invokes, per spec.md §4.8.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.phase != Uninitialized {
		s.mu.Unlock()
		return fmt.Errorf("session %s: already started", s.id)
	}
	s.phase = Initializing
	s.mu.Unlock()

	if err := s.dm.SetupSystemVars(s.id, s.chart.Name, s.ioProcessors()); err != nil {
		return err
	}
	s.initializeDataItems(s.chart.DataItems)

	s.mu.Lock()
	entry := fsm.InitialEntrySet(s.chart, s.hist)
	s.runEntrySet(entry)
	s.mu.Unlock()

	s.mu.Lock()
	s.phase = Running
	s.mu.Unlock()

	s.runToQuiescence()
	s.startPendingInvokes()
	s.checkTermination()
	return nil
}

// Stop terminates the session immediately: cancels the scheduler and every
// live invoke (spec.md §3 Session destruction).
func (s *Session) Stop() {
	s.mu.Lock()
	if s.phase == Terminated {
		s.mu.Unlock()
		return
	}
	s.phase = Terminated
	s.mu.Unlock()

	s.sch.Shutdown()
	for _, n := range s.cfg.Nodes() {
		s.inv.StopAll(n.ID)
	}
}

// SendExternal enqueues ev onto this session's external queue without
// running the macrostep loop — used by a parent routing into a child, or a
// child routing into its parent, so the receiving side's own goroutine/
// Tick drives processing (spec.md §5: message passing only).
func (s *Session) SendExternal(ev ir.EventObject) {
	s.qp.External.Enqueue(ev)
}

// ProcessEvent enqueues ev externally and runs the macrostep loop, per
// spec.md §4.8 processEvent(ev).
func (s *Session) ProcessEvent(ev ir.EventObject) error {
	s.mu.Lock()
	if s.phase != Running {
		s.mu.Unlock()
		return fmt.Errorf("session %s: not running", s.id)
	}
	s.mu.Unlock()

	s.qp.External.Enqueue(ev)
	s.runToQuiescence()
	s.startPendingInvokes()
	s.checkTermination()
	return nil
}

// Tick drains the scheduler's ready events as of now and delivers each to
// its queue or target, then runs to quiescence, which also processes any
// events that arrived via SendExternal since the last run. Call
// periodically or from an external timer (spec.md §5 tick() entry point).
func (s *Session) Tick(now time.Time) {
	s.mu.Lock()
	if s.phase != Running {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	ready := s.sch.Drain(now)
	for _, r := range ready {
		s.deliverReady(r)
	}
	s.runToQuiescence()
	s.startPendingInvokes()
	s.checkTermination()
}

func (s *Session) deliverReady(r scheduler.Ready) {
	switch r.Target.Kind {
	case scheduler.TargetInternal:
		s.qp.Internal.Enqueue(r.Event)
	case scheduler.TargetExternalSelf:
		s.qp.External.Enqueue(r.Event)
	case scheduler.TargetParent:
		if s.parent != nil {
			ev := r.Event
			ev.Origin = s.id
			ev.InvokeID = s.invokeID
			s.parent.SendExternal(ev)
		}
	case scheduler.TargetInvokedChild:
		s.childSender(r.Target.InvokeID, r.Event)
	case scheduler.TargetHTTP:
		if s.http != nil {
			if err := s.http.Post(r.Target.URL, r.Event); err != nil {
				s.qp.Internal.Enqueue(ir.EventObject{Name: "error.communication", Type: ir.EventInternal, Data: map[string]any{"message": err.Error()}})
			}
		}
	}
}

func (s *Session) checkTermination() {
	if s.IsInFinalState() {
		s.Stop()
		if s.onDone != nil {
			s.onDone(s)
		}
	}
}
