// Package invoke implements the Invoke Manager (C8): starting/terminating
// child sessions, autoforwarding, finalize handlers, and done.invoke
// notification (spec.md §4.7).
package invoke

import (
	"fmt"
	"sync"

	"github.com/comalice/scxmlcore/ir"
)

// ChildSession is the minimal surface the invoke manager needs from a child
// session, satisfied by *session.Session (package session depends on
// package invoke, not vice versa, so this stays an interface to avoid an
// import cycle — the same pattern as the teacher's core.ActionRunner/
// core.GuardEvaluator pluggable interfaces).
type ChildSession interface {
	ID() string
	// Start runs the child to quiescence, synchronously from the caller's
	// point of view (spec.md §4.8 macrostep loop applies recursively; the
	// child may run on its own goroutine/executor per spec.md §5, but
	// Start blocks until the child reaches its own quiescence or a
	// top-level final).
	Start() error
	Stop()
	SendExternal(ev ir.EventObject)
	IsInFinalState() bool
	DoneData() *ir.DoneData
	// EvalDoneDataExpr evaluates a <donedata> content/param expression in
	// the CHILD's own data model — the expression's free variables are the
	// child's, since <donedata> is a child of the child chart's <final>
	// state, not anything the parent's scope defines (W3C 6.4/6.4.1).
	EvalDoneDataExpr(expr string) (any, error)
}

// ParentHost is what the invoke manager needs from the owning session to
// deliver done.invoke/platform notifications and run finalize scripts.
type ParentHost interface {
	EnqueueExternal(ev ir.EventObject)
	RunFinalize(block ir.ActionBlock, triggeringEvent ir.EventObject)
	SpawnChild(inv *ir.InvokeNode, id string, namelistValues map[string]any, paramValues map[string]any) (ChildSession, error)
	EvalExpr(src string) (any, error)
	SetDataModel(location string, value any) error
}

// record tracks one live invocation.
type record struct {
	invoke  *ir.InvokeNode
	id      string
	child   ChildSession
	stateID ir.StateID
}

// Manager owns the parent-session-scoped invoke map (invokeid -> child
// session) and mediates every invoke lifecycle operation (spec.md §3
// Session.invokeMap, §4.7).
type Manager struct {
	mu      sync.RWMutex
	host    ParentHost
	records map[string]*record // keyed by invoke id
	nextSeq int
}

// New returns a Manager bound to host.
func New(host ParentHost) *Manager {
	return &Manager{host: host, records: make(map[string]*record)}
}

// HasInvoke reports whether invokeID names a currently live child, used by
// package actions to validate #_<invokeid> send targets.
func (m *Manager) HasInvoke(invokeID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[invokeID]
	return ok
}

// ChildSessionID resolves an invoke id to its child session id, for send
// routing.
func (m *Manager) ChildSessionID(invokeID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[invokeID]
	if !ok {
		return "", false
	}
	return r.child.ID(), true
}

// Child resolves an invoke id to the live ChildSession itself, for the
// session driver to deliver a #_<invokeid> scheduled send directly.
func (m *Manager) Child(invokeID string) (ChildSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[invokeID]
	if !ok {
		return nil, false
	}
	return r.child, true
}

// Start launches inv, which lives on state stateID, per spec.md §4.7: assign
// the id, build child data-model inputs from namelist/params, construct and
// start the child, register finalize, and on child completion enqueue
// done.invoke.<id> with any doneData.
func (m *Manager) Start(inv *ir.InvokeNode, stateID ir.StateID) error {
	id := inv.ID
	if id == "" {
		m.nextSeq++
		id = fmt.Sprintf("%s.invoke%d", stateID, m.nextSeq)
	}
	if inv.IDLocation != "" {
		if err := m.host.SetDataModel(inv.IDLocation, id); err != nil {
			return err
		}
	}

	m.mu.Lock()
	if _, exists := m.records[id]; exists {
		m.mu.Unlock()
		return fmt.Errorf("invoke: duplicate invoke id %q on state %q", id, stateID)
	}
	m.mu.Unlock()

	namelistValues := make(map[string]any)
	for _, name := range inv.Namelist {
		v, err := m.host.EvalExpr(name)
		if err == nil {
			namelistValues[name] = v
		}
	}
	paramValues := make(map[string]any)
	for _, p := range inv.Params {
		v, err := m.host.EvalExpr(p.Expr)
		if err == nil {
			paramValues[p.Name] = v
		}
	}

	child, err := m.host.SpawnChild(inv, id, namelistValues, paramValues)
	if err != nil {
		return err
	}

	rec := &record{invoke: inv, id: id, child: child, stateID: stateID}
	m.mu.Lock()
	m.records[id] = rec
	m.mu.Unlock()

	go func() {
		if err := child.Start(); err != nil {
			return
		}
		if child.IsInFinalState() {
			m.host.EnqueueExternal(ir.EventObject{
				Name:     "done.invoke." + id,
				Type:     ir.EventExternal,
				InvokeID: id,
				Origin:   child.ID(),
				Data:     evalDoneDataPayload(child, child.DoneData()),
			})
		}
	}()

	return nil
}

// evalDoneDataPayload evaluates dd's content/param expressions against the
// CHILD's own data model: <donedata> is declared on the child chart's
// <final> state, so its free variables are the child's, not anything the
// parent's scope defines (W3C 6.4/6.4.1).
func evalDoneDataPayload(child ChildSession, dd *ir.DoneData) any {
	if dd == nil {
		return nil
	}
	if dd.ContentExpr != "" {
		v, err := child.EvalDoneDataExpr(dd.ContentExpr)
		if err != nil {
			return nil
		}
		return v
	}
	if len(dd.Params) == 0 {
		return nil
	}
	out := make(map[string]any, len(dd.Params))
	for _, p := range dd.Params {
		v, err := child.EvalDoneDataExpr(p.Expr)
		if err != nil {
			continue
		}
		out[p.Name] = v
	}
	return out
}

// Stop terminates the invoke registered under id: stops the child,
// cancels its pending scheduled events (the child's own Stop does this),
// and removes the mapping (spec.md §4.7 "on exit of S").
func (m *Manager) Stop(id string) {
	m.mu.Lock()
	rec, ok := m.records[id]
	if ok {
		delete(m.records, id)
	}
	m.mu.Unlock()
	if ok {
		rec.child.Stop()
	}
}

// StopAll terminates every live invoke on stateID, called when that state is
// exited.
func (m *Manager) StopAll(stateID ir.StateID) {
	m.mu.Lock()
	var toStop []string
	for id, rec := range m.records {
		if rec.stateID == stateID {
			toStop = append(toStop, id)
		}
	}
	m.mu.Unlock()
	for _, id := range toStop {
		m.Stop(id)
	}
}

// Autoforward duplicates ev into every live, autoforwarding child's external
// queue, except platform events (spec.md §4.7: "Platform events (#_* prefix)
// are never autoforwarded").
func (m *Manager) Autoforward(ev ir.EventObject) {
	if len(ev.Name) >= 2 && ev.Name[:2] == "#_" {
		return
	}
	if ev.Type == ir.EventPlatform {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.records {
		if rec.invoke.Autoforward {
			rec.child.SendExternal(ev)
		}
	}
}

// RunFinalizeIfOrigin runs the registered finalize handler for whichever
// invoke originated ev, immediately before transition selection consumes it
// (W3C 6.5, spec.md §4.7). No-op if ev didn't originate from a live invoke.
func (m *Manager) RunFinalizeIfOrigin(ev ir.EventObject) {
	m.mu.RLock()
	var finalize ir.ActionBlock
	for _, rec := range m.records {
		if rec.child.ID() == ev.Origin && len(rec.invoke.Finalize) > 0 {
			finalize = rec.invoke.Finalize
			break
		}
	}
	m.mu.RUnlock()
	if finalize != nil {
		m.host.RunFinalize(finalize, ev)
	}
}
