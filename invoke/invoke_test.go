package invoke

import (
	"testing"
	"time"

	"github.com/comalice/scxmlcore/ir"
)

type stubChild struct {
	id       string
	started  bool
	stopped  bool
	final    bool
	doneData *ir.DoneData
	sent     []ir.EventObject
	vars     map[string]any
}

func (c *stubChild) ID() string                   { return c.id }
func (c *stubChild) Start() error                  { c.started = true; return nil }
func (c *stubChild) Stop()                         { c.stopped = true }
func (c *stubChild) SendExternal(ev ir.EventObject) { c.sent = append(c.sent, ev) }
func (c *stubChild) IsInFinalState() bool           { return c.final }
func (c *stubChild) DoneData() *ir.DoneData         { return c.doneData }

// EvalDoneDataExpr looks expr up in the CHILD's own vars map, distinct from
// stubHost's dataModel — proving done.invoke payload evaluation happens in
// the child's scope, not the parent's.
func (c *stubChild) EvalDoneDataExpr(expr string) (any, error) {
	return c.vars[expr], nil
}

type stubHost struct {
	children     map[string]*stubChild
	enqueued     []ir.EventObject
	enqueuedCh   chan ir.EventObject
	finalizeRuns int
	dataModel    map[string]any

	// presetFinal/presetDoneData/presetVars configure the stubChild a
	// SpawnChild call for a given invoke id produces, so a test can arrange
	// a child that completes immediately (SpawnChild runs inside Start,
	// before the test could otherwise reach the child to configure it).
	presetFinal    map[string]bool
	presetDoneData map[string]*ir.DoneData
	presetVars     map[string]map[string]any
}

func newStubHost() *stubHost {
	return &stubHost{
		children:       make(map[string]*stubChild),
		dataModel:      make(map[string]any),
		enqueuedCh:     make(chan ir.EventObject, 8),
		presetFinal:    make(map[string]bool),
		presetDoneData: make(map[string]*ir.DoneData),
		presetVars:     make(map[string]map[string]any),
	}
}

func (h *stubHost) EnqueueExternal(ev ir.EventObject) {
	h.enqueued = append(h.enqueued, ev)
	h.enqueuedCh <- ev
}
func (h *stubHost) RunFinalize(ir.ActionBlock, ir.EventObject) { h.finalizeRuns++ }
func (h *stubHost) SpawnChild(inv *ir.InvokeNode, id string, namelist, params map[string]any) (ChildSession, error) {
	vars := h.presetVars[inv.ID]
	if vars == nil {
		vars = make(map[string]any)
	}
	c := &stubChild{
		id:       "child_" + inv.ID,
		final:    h.presetFinal[inv.ID],
		doneData: h.presetDoneData[inv.ID],
		vars:     vars,
	}
	h.children[inv.ID] = c
	return c, nil
}
func (h *stubHost) EvalExpr(src string) (any, error) { return h.dataModel[src], nil }
func (h *stubHost) SetDataModel(loc string, v any) error {
	h.dataModel[loc] = v
	return nil
}

func TestStartAssignsIDAndRegisters(t *testing.T) {
	host := newStubHost()
	m := New(host)

	inv := &ir.InvokeNode{ID: "worker"}
	if err := m.Start(inv, "stateA"); err != nil {
		t.Fatal(err)
	}
	if !m.HasInvoke("worker") {
		t.Fatal("expected invoke to be registered")
	}
}

func TestStartRejectsDuplicateID(t *testing.T) {
	host := newStubHost()
	m := New(host)
	inv := &ir.InvokeNode{ID: "worker"}
	if err := m.Start(inv, "stateA"); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(inv, "stateA"); err == nil {
		t.Fatal("expected duplicate invoke id error")
	}
}

func TestAutoforwardSkipsPlatformAndNonAutoforwarding(t *testing.T) {
	host := newStubHost()
	m := New(host)

	forwarding := &ir.InvokeNode{ID: "fwd", Autoforward: true}
	notForwarding := &ir.InvokeNode{ID: "nofwd"}
	if err := m.Start(forwarding, "s"); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(notForwarding, "s"); err != nil {
		t.Fatal(err)
	}

	m.Autoforward(ir.EventObject{Name: "tick"})
	m.Autoforward(ir.EventObject{Name: "#_internal_only"})

	fwdChild := host.children["fwd"]
	noFwdChild := host.children["nofwd"]
	if len(fwdChild.sent) != 1 || fwdChild.sent[0].Name != "tick" {
		t.Fatalf("expected autoforwarding child to receive tick, got %v", fwdChild.sent)
	}
	if len(noFwdChild.sent) != 0 {
		t.Fatalf("expected non-autoforwarding child to receive nothing, got %v", noFwdChild.sent)
	}
}

func TestStopRemovesRegistrationAndStopsChild(t *testing.T) {
	host := newStubHost()
	m := New(host)
	inv := &ir.InvokeNode{ID: "worker"}
	if err := m.Start(inv, "s"); err != nil {
		t.Fatal(err)
	}
	m.Stop("worker")
	if m.HasInvoke("worker") {
		t.Fatal("expected invoke to be unregistered after Stop")
	}
	if !host.children["worker"].stopped {
		t.Fatal("expected child.Stop() to have been called")
	}
}

func TestStopAllTargetsOnlyGivenState(t *testing.T) {
	host := newStubHost()
	m := New(host)
	a := &ir.InvokeNode{ID: "a"}
	b := &ir.InvokeNode{ID: "b"}
	if err := m.Start(a, "stateA"); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(b, "stateB"); err != nil {
		t.Fatal(err)
	}
	m.StopAll("stateA")
	if m.HasInvoke("a") {
		t.Fatal("expected invoke a to be stopped")
	}
	if !m.HasInvoke("b") {
		t.Fatal("expected invoke b to remain")
	}
}

func TestRunFinalizeIfOriginMatchesChildID(t *testing.T) {
	host := newStubHost()
	m := New(host)
	inv := &ir.InvokeNode{ID: "worker", Finalize: ir.ActionBlock{{Kind: ir.ActionLog}}}
	if err := m.Start(inv, "s"); err != nil {
		t.Fatal(err)
	}

	m.RunFinalizeIfOrigin(ir.EventObject{Origin: "child_worker"})
	if host.finalizeRuns != 1 {
		t.Fatalf("expected finalize to run once, got %d", host.finalizeRuns)
	}

	m.RunFinalizeIfOrigin(ir.EventObject{Origin: "someone_else"})
	if host.finalizeRuns != 1 {
		t.Fatalf("expected finalize to not run for unrelated origin, got %d", host.finalizeRuns)
	}
}

// TestDoneInvokePayloadEvaluatesInChildScope arranges a child that completes
// immediately with a <donedata> carrying both a content expression and
// params, and asserts done.invoke.<id>'s Data reflects EVALUATED values from
// the CHILD's own scope — not the raw expression strings, and not anything
// looked up in the parent's (stubHost's) data model, which holds different
// values under the same expression names.
func TestDoneInvokePayloadEvaluatesInChildScope(t *testing.T) {
	host := newStubHost()
	host.dataModel["x"] = "parent-value"
	host.presetFinal["worker"] = true
	host.presetVars["worker"] = map[string]any{"x": "child-value", "2+2": 4}
	host.presetDoneData["worker"] = &ir.DoneData{
		Params: []ir.Param{{Name: "echoed", Expr: "x"}, {Name: "sum", Expr: "2+2"}},
	}

	m := New(host)
	if err := m.Start(&ir.InvokeNode{ID: "worker"}, "s"); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-host.enqueuedCh:
		if ev.Name != "done.invoke.worker" {
			t.Fatalf("expected done.invoke.worker, got %q", ev.Name)
		}
		data, ok := ev.Data.(map[string]any)
		if !ok {
			t.Fatalf("expected map payload, got %#v", ev.Data)
		}
		if data["echoed"] != "child-value" {
			t.Fatalf("expected echoed param evaluated in child scope (child-value), got %v", data["echoed"])
		}
		if data["sum"] != 4 {
			t.Fatalf("expected sum param evaluated (not the raw string \"2+2\"), got %v (%T)", data["sum"], data["sum"])
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for done.invoke event")
	}
}

// TestDoneInvokePayloadContentExprEvaluatesInChildScope covers the
// ContentExpr branch of <donedata> (vs. Params) separately, since the two
// take different code paths in evalDoneDataPayload.
func TestDoneInvokePayloadContentExprEvaluatesInChildScope(t *testing.T) {
	host := newStubHost()
	host.presetFinal["worker"] = true
	host.presetVars["worker"] = map[string]any{"2+2": 4}
	host.presetDoneData["worker"] = &ir.DoneData{ContentExpr: "2+2"}

	m := New(host)
	if err := m.Start(&ir.InvokeNode{ID: "worker"}, "s"); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-host.enqueuedCh:
		if ev.Data != 4 {
			t.Fatalf("expected evaluated content expr (4), got %v (%T)", ev.Data, ev.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for done.invoke event")
	}
}
