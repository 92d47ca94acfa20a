package equeue

import (
	"testing"

	"github.com/comalice/scxmlcore/ir"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := New()
	q.Enqueue(ir.EventObject{Name: "a"})
	q.Enqueue(ir.EventObject{Name: "b"})

	ev, ok := q.TryDequeue()
	if !ok || ev.Name != "a" {
		t.Fatalf("expected a first, got %+v ok=%v", ev, ok)
	}
	ev, ok = q.TryDequeue()
	if !ok || ev.Name != "b" {
		t.Fatalf("expected b second, got %+v ok=%v", ev, ok)
	}
	if _, ok := q.TryDequeue(); ok {
		t.Fatal("expected empty queue")
	}
}

func TestQueueHasAnyAndLen(t *testing.T) {
	q := New()
	if q.HasAny() {
		t.Fatal("new queue should be empty")
	}
	q.Enqueue(ir.EventObject{Name: "x"})
	if !q.HasAny() || q.Len() != 1 {
		t.Fatalf("expected one item, got HasAny=%v Len=%d", q.HasAny(), q.Len())
	}
}

func TestPairInternalPrecedesExternal(t *testing.T) {
	p := NewPair()
	p.External.Enqueue(ir.EventObject{Name: "ext"})
	p.Internal.Enqueue(ir.EventObject{Name: "int"})

	if ev, ok := p.NextInternal(); !ok || ev.Name != "int" {
		t.Fatalf("expected internal event, got %+v ok=%v", ev, ok)
	}
	if _, ok := p.NextInternal(); ok {
		t.Fatal("internal queue should now be empty")
	}
	if ev, ok := p.NextExternal(); !ok || ev.Name != "ext" {
		t.Fatalf("expected external event, got %+v ok=%v", ev, ok)
	}
}
