package selector

import (
	"testing"

	"github.com/comalice/scxmlcore/fsm"
	"github.com/comalice/scxmlcore/ir"
)

func TestMatchesDescriptor(t *testing.T) {
	cases := []struct {
		descriptor, event string
		want              bool
	}{
		{"foo.bar", "foo.bar", true},
		{"foo.bar", "foo.bar.baz", true},
		{"foo.bar", "foo.barbaz", false},
		{"foo.*", "foo.bar", true},
		{"foo", "foo.bar", true},
		{"foo", "foobar", false},
		{"*", "anything.at.all", true},
	}
	for _, c := range cases {
		if got := MatchesDescriptor(c.descriptor, c.event); got != c.want {
			t.Errorf("MatchesDescriptor(%q, %q) = %v, want %v", c.descriptor, c.event, got, c.want)
		}
	}
}

type alwaysTrueGuard struct{}

func (alwaysTrueGuard) Eval(string) (bool, error) { return true, nil }

type alwaysFalseGuard struct{}

func (alwaysFalseGuard) Eval(string) (bool, error) { return false, nil }

func buildTwoStateChart() (*ir.Chart, *fsm.Configuration) {
	a := ir.NewState("a", ir.Atomic)
	b := ir.NewState("b", ir.Atomic)
	a.WithTransition(ir.NewTransition("go", "cond", "b"))
	root := ir.NewState("root", ir.Compound).WithChildren(a, b).WithInitialChild("a")

	builder := ir.NewBuilder("test")
	builder.AddState(root)
	chart := builder.Build(root)

	cfg := fsm.New()
	cfg.Add(root)
	cfg.Add(a)
	return chart, cfg
}

func TestSelectMatchesEventAndGuard(t *testing.T) {
	chart, cfg := buildTwoStateChart()

	trans, errs := Select(chart, cfg, "go", false, alwaysTrueGuard{})
	if len(errs) != 0 {
		t.Fatalf("unexpected guard errors: %v", errs)
	}
	if len(trans) != 1 || trans[0].Targets[0] != "b" {
		t.Fatalf("expected transition to b, got %v", trans)
	}
}

func TestSelectSkipsOnGuardFalse(t *testing.T) {
	chart, cfg := buildTwoStateChart()
	trans, _ := Select(chart, cfg, "go", false, alwaysFalseGuard{})
	if len(trans) != 0 {
		t.Fatalf("expected no transitions, got %v", trans)
	}
}

func TestSelectIgnoresNonMatchingEvent(t *testing.T) {
	chart, cfg := buildTwoStateChart()
	trans, _ := Select(chart, cfg, "other", false, alwaysTrueGuard{})
	if len(trans) != 0 {
		t.Fatalf("expected no transitions for unrelated event, got %v", trans)
	}
}

func TestSelectEventlessPass(t *testing.T) {
	a := ir.NewState("a", ir.Atomic)
	b := ir.NewState("b", ir.Atomic)
	a.WithTransition(ir.NewTransition("", "", "b")) // eventless
	root := ir.NewState("root", ir.Compound).WithChildren(a, b).WithInitialChild("a")

	builder := ir.NewBuilder("test")
	builder.AddState(root)
	chart := builder.Build(root)

	cfg := fsm.New()
	cfg.Add(root)
	cfg.Add(a)

	trans, _ := Select(chart, cfg, "", true, alwaysTrueGuard{})
	if len(trans) != 1 {
		t.Fatalf("expected one eventless transition, got %v", trans)
	}

	// The eventless pass must never fire on a normal event-matching pass.
	trans, _ = Select(chart, cfg, "go", false, alwaysTrueGuard{})
	if len(trans) != 0 {
		t.Fatalf("expected eventless transition to not match named-event pass, got %v", trans)
	}
}

// TestSelectResolvesExitSetConflictAcrossParallelRegions builds:
//
//	root (compound, initial par)
//	  par (parallel)
//	    region1 (compound, initial x1)
//	      x1 --evt--> out        // target outside par: domain is root,
//	                              // exit set spans the whole parallel
//	    region2 (compound, initial y1)
//	      y1 --evt--> y2         // purely local to region2
//	  out (atomic)
//
// x1's transition and y1's transition do not share a source and neither is
// the other's ancestor, so the old ancestor-only conflicts() wrongly let
// both fire. Their real exit sets intersect (x1's exit set, spanning all of
// par, includes y1), so only one may be selected (spec.md §8 atomicity).
// x1's transition has the earlier document order and is not preempted by
// y1's (y1 is not a descendant of x1), so it wins and y1's is dropped.
func TestSelectResolvesExitSetConflictAcrossParallelRegions(t *testing.T) {
	x1 := ir.NewState("x1", ir.Atomic)
	x1.WithTransition(ir.NewTransition("evt", "", "out"))
	region1 := ir.NewState("region1", ir.Compound).WithChildren(x1).WithInitialChild("x1")

	y1 := ir.NewState("y1", ir.Atomic)
	y2 := ir.NewState("y2", ir.Atomic)
	y1.WithTransition(ir.NewTransition("evt", "", "y2"))
	region2 := ir.NewState("region2", ir.Compound).WithChildren(y1, y2).WithInitialChild("y1")

	par := ir.NewState("par", ir.Parallel).WithChildren(region1, region2)
	out := ir.NewState("out", ir.Atomic)
	root := ir.NewState("root", ir.Compound).WithChildren(par, out).WithInitialChild("par")

	builder := ir.NewBuilder("parallel-conflict-test")
	builder.AddState(root)
	chart := builder.Build(root)

	cfg := fsm.New()
	cfg.Add(root)
	cfg.Add(par)
	cfg.Add(region1)
	cfg.Add(x1)
	cfg.Add(region2)
	cfg.Add(y1)

	trans, errs := Select(chart, cfg, "evt", false, alwaysTrueGuard{})
	if len(errs) != 0 {
		t.Fatalf("unexpected guard errors: %v", errs)
	}
	if len(trans) != 1 {
		t.Fatalf("expected exactly one transition to survive conflict resolution, got %d: %v", len(trans), trans)
	}
	if trans[0].Source != x1 {
		t.Fatalf("expected x1's whole-parallel-exiting transition to win, got source %v", trans[0].Source.ID)
	}
}
