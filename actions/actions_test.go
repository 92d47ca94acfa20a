package actions

import (
	"testing"
	"time"

	"github.com/comalice/scxmlcore/datamodel"
	"github.com/comalice/scxmlcore/equeue"
	"github.com/comalice/scxmlcore/ir"
	"github.com/comalice/scxmlcore/scheduler"
)

type stubHost struct {
	dm       *datamodel.Context
	qp       *equeue.Pair
	sch      *scheduler.Scheduler
	baseDir  string
	invokes  map[string]bool
	logLines []string
}

func newStubHost() *stubHost {
	return &stubHost{
		dm:      datamodel.NewSession(nil),
		qp:      equeue.NewPair(),
		sch:     scheduler.New("sess1"),
		invokes: make(map[string]bool),
	}
}

func (h *stubHost) DataModel() *datamodel.Context  { return h.dm }
func (h *stubHost) Queues() *equeue.Pair            { return h.qp }
func (h *stubHost) Scheduler() *scheduler.Scheduler { return h.sch }
func (h *stubHost) BaseDir() string                 { return h.baseDir }
func (h *stubHost) HasInvoke(id string) bool        { return h.invokes[id] }
func (h *stubHost) Log(label, message string)       { h.logLines = append(h.logLines, label+":"+message) }

func TestRunBlockAssignAndLog(t *testing.T) {
	host := newStubHost()
	ex := New(host)
	if err := host.dm.Set("x", 1); err != nil {
		t.Fatal(err)
	}

	block := ir.ActionBlock{
		{Kind: ir.ActionAssign, AssignLocation: "x", AssignExpr: "x + 1"},
		{Kind: ir.ActionLog, LogLabel: "lbl", LogExpr: "x"},
	}
	ex.RunBlock(block)

	v, err := host.dm.Get("x")
	if err != nil || v != int64(2) {
		if f, ok := v.(float64); !ok || f != 2 {
			t.Fatalf("expected x=2, got %v err=%v", v, err)
		}
	}
	if len(host.logLines) != 1 || host.logLines[0] != "lbl:2" {
		t.Fatalf("expected one log line, got %v", host.logLines)
	}
}

func TestRunAssignPreservesObjectIdentityForBareSystemVarRHS(t *testing.T) {
	host := newStubHost()
	ex := New(host)
	if err := host.dm.SetEvent(map[string]any{"name": "foo", "data": map[string]any{"x": 1}}); err != nil {
		t.Fatal(err)
	}

	block := ir.ActionBlock{
		{Kind: ir.ActionAssign, AssignLocation: "savedEvent", AssignExpr: "_event"},
		{Kind: ir.ActionAssign, AssignLocation: "_event.data.x", AssignExpr: "99"},
	}
	ex.RunBlock(block)

	v, err := host.dm.EvalExpr("savedEvent.data.x")
	if err != nil {
		t.Fatal(err)
	}
	if n, ok := v.(int64); !ok || n != 99 {
		if f, ok := v.(float64); !ok || f != 99 {
			t.Fatalf("expected savedEvent to alias _event so the later mutation is visible (x=99), got %v (%T)", v, v)
		}
	}
}

func TestRunBlockStopsOnError(t *testing.T) {
	host := newStubHost()
	ex := New(host)

	block := ir.ActionBlock{
		{Kind: ir.ActionAssign, AssignLocation: "_sessionid", AssignExpr: "'hacked'"},
		{Kind: ir.ActionLog, LogLabel: "", LogExpr: "'unreachable'"},
	}
	ex.RunBlock(block)

	if len(host.logLines) != 0 {
		t.Fatalf("expected second action to not run after the first errored, got %v", host.logLines)
	}
	if !host.qp.Internal.HasAny() {
		t.Fatal("expected error.execution to be raised internally")
	}
}

func TestRunIfElseif(t *testing.T) {
	host := newStubHost()
	ex := New(host)
	if err := host.dm.Set("x", 5); err != nil {
		t.Fatal(err)
	}

	block := ir.ActionBlock{
		{Kind: ir.ActionIf, Branches: []ir.IfBranch{
			{Cond: "x > 10", Body: ir.ActionBlock{{Kind: ir.ActionLog, LogExpr: "'big'"}}},
			{Cond: "x > 0", Body: ir.ActionBlock{{Kind: ir.ActionLog, LogExpr: "'small'"}}},
			{Cond: "", Body: ir.ActionBlock{{Kind: ir.ActionLog, LogExpr: "'neg'"}}},
		}},
	}
	ex.RunBlock(block)
	if len(host.logLines) != 1 || host.logLines[0] != ":small" {
		t.Fatalf("expected 'small' branch taken, got %v", host.logLines)
	}
}

func TestRunForeach(t *testing.T) {
	host := newStubHost()
	ex := New(host)

	block := ir.ActionBlock{
		{Kind: ir.ActionForeach, ForeachArray: "[1,2,3]", ForeachItem: "it", ForeachIndex: "idx",
			ForeachBody: ir.ActionBlock{{Kind: ir.ActionLog, LogExpr: "it + ':' + idx"}}},
	}
	ex.RunBlock(block)
	want := []string{":1:0", ":2:1", ":3:2"}
	if len(host.logLines) != len(want) {
		t.Fatalf("expected %d log lines, got %v", len(want), host.logLines)
	}
	for i, w := range want {
		if host.logLines[i] != w {
			t.Errorf("logLines[%d] = %q, want %q", i, host.logLines[i], w)
		}
	}
}

func TestRunSendInternalImmediate(t *testing.T) {
	host := newStubHost()
	ex := New(host)

	block := ir.ActionBlock{
		{Kind: ir.ActionSend, Send: &ir.SendAction{Event: "ping", Target: "#_internal"}},
	}
	ex.RunBlock(block)

	ev, ok := host.qp.Internal.TryDequeue()
	if !ok || ev.Name != "ping" {
		t.Fatalf("expected internal ping event, got %+v ok=%v", ev, ok)
	}
}

func TestRunSendExternalScheduled(t *testing.T) {
	host := newStubHost()
	ex := New(host)

	block := ir.ActionBlock{
		{Kind: ir.ActionSend, Send: &ir.SendAction{Event: "notify"}},
	}
	ex.RunBlock(block)

	if host.qp.External.HasAny() {
		t.Fatal("expected send with no target to go through the scheduler, not land immediately")
	}
}

func TestRunCancel(t *testing.T) {
	host := newStubHost()
	ex := New(host)

	sendID := host.sch.Schedule(0, ir.EventObject{Name: "later"}, "mysend", scheduler.Target{Kind: scheduler.TargetExternalSelf})

	block := ir.ActionBlock{
		{Kind: ir.ActionCancel, CancelSendID: sendID},
	}
	ex.RunBlock(block)

	ready := host.sch.Drain(time.Now().Add(time.Second))
	if len(ready) != 0 {
		t.Fatalf("expected cancelled send to be dropped, got %v", ready)
	}
}
