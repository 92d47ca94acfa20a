package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comalice/scxmlcore/ir"
)

func hasState(active []ir.StateID, id ir.StateID) bool {
	for _, a := range active {
		if a == id {
			return true
		}
	}
	return false
}

func buildTwoStateChart() *ir.Chart {
	a := ir.NewState("a", ir.Atomic)
	b := ir.NewState("b", ir.Atomic)
	a.WithTransition(ir.NewTransition("go", "", "b"))
	root := ir.NewState("root", ir.Compound).WithChildren(a, b).WithInitialChild("a")

	builder := ir.NewBuilder("two-state")
	builder.AddState(root)
	return builder.Build(root)
}

func TestStartEntersInitialConfiguration(t *testing.T) {
	chart := buildTwoStateChart()
	s := New("sess1", chart)
	require.NoError(t, s.Start())

	active := s.GetActiveStates()
	require.True(t, hasState(active, "root"), "expected root active, got %v", active)
	require.True(t, hasState(active, "a"), "expected a active, got %v", active)
	require.False(t, hasState(active, "b"), "expected b not active, got %v", active)
}

func TestProcessEventDrivesTransition(t *testing.T) {
	chart := buildTwoStateChart()
	s := New("sess1", chart)
	require.NoError(t, s.Start())
	require.NoError(t, s.ProcessEvent(ir.EventObject{Name: "go", Type: ir.EventExternal}))

	active := s.GetActiveStates()
	require.True(t, hasState(active, "b"), "expected b active after 'go', got %v", active)
	require.False(t, hasState(active, "a"), "expected a exited after 'go', got %v", active)
}

func buildFinalChart() *ir.Chart {
	a := ir.NewState("a", ir.Atomic)
	f := ir.NewState("f", ir.Final)
	a.WithTransition(ir.NewTransition("finish", "", "f"))
	root := ir.NewState("root", ir.Compound).WithChildren(a, f).WithInitialChild("a")

	builder := ir.NewBuilder("final-test")
	builder.AddState(root)
	return builder.Build(root)
}

func TestReachingTopLevelFinalTerminatesSession(t *testing.T) {
	chart := buildFinalChart()
	var completed *Session
	s := New("sess1", chart, WithCompletionCallback(func(done *Session) { completed = done }))
	require.NoError(t, s.Start())
	require.NoError(t, s.ProcessEvent(ir.EventObject{Name: "finish", Type: ir.EventExternal}))

	require.False(t, s.IsRunning(), "expected session to have terminated on reaching top-level final")
	require.Same(t, s, completed, "expected completion callback to fire with this session")
}

func TestProcessEventBeforeStartErrors(t *testing.T) {
	chart := buildTwoStateChart()
	s := New("sess1", chart)
	require.Error(t, s.ProcessEvent(ir.EventObject{Name: "go"}))
}

func TestTickDeliversScheduledSend(t *testing.T) {
	a := ir.NewState("a", ir.Atomic)
	b := ir.NewState("b", ir.Atomic)
	a.WithTransition(ir.NewTransition("go", "", "b"))
	a.OnEntry = []ir.ActionBlock{{
		{Kind: ir.ActionSend, Send: &ir.SendAction{Event: "go", Delay: "10ms"}},
	}}
	root := ir.NewState("root", ir.Compound).WithChildren(a, b).WithInitialChild("a")

	builder := ir.NewBuilder("tick-test")
	builder.AddState(root)
	chart := builder.Build(root)

	s := New("sess1", chart)
	require.NoError(t, s.Start())

	active := s.GetActiveStates()
	require.True(t, hasState(active, "a"), "expected a active before the delayed send fires, got %v", active)

	s.Tick(time.Now().Add(time.Second))
	active = s.GetActiveStates()
	require.True(t, hasState(active, "b"), "expected b active after Tick delivers the delayed 'go' send, got %v", active)
}
