// Package equeue implements the per-session internal/external FIFO event
// queues (C3) and their strict-priority draining discipline: internal before
// external, both within a macrostep (W3C Appendix D, spec.md §4.2).
package equeue

import (
	"sync"

	"github.com/comalice/scxmlcore/ir"
)

// Queue is a thread-safe FIFO of events. A session owns two: Internal and
// External. Cross-session sends append to another session's External queue
// under that queue's own lock, so no shared mutable state is exposed beyond
// this type's lock (spec.md §5).
type Queue struct {
	mu    sync.Mutex
	items []ir.EventObject
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends ev to the tail.
func (q *Queue) Enqueue(ev ir.EventObject) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
}

// TryDequeue pops the head event, if any.
func (q *Queue) TryDequeue() (ir.EventObject, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return ir.EventObject{}, false
	}
	ev := q.items[0]
	q.items = q.items[1:]
	return ev, true
}

// HasAny reports whether the queue is non-empty.
func (q *Queue) HasAny() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) > 0
}

// Len returns the current queue length, mainly for diagnostics/tests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pair bundles a session's internal and external queues with the draining
// discipline the macrostep driver (package session) relies on: internal is
// always checked, and drained, before external.
type Pair struct {
	Internal *Queue
	External *Queue
}

// NewPair returns a Pair of two empty queues.
func NewPair() *Pair {
	return &Pair{Internal: New(), External: New()}
}

// NextInternal pops the next internal event if the internal queue is
// non-empty; this is the driver's first priority every loop iteration.
func (p *Pair) NextInternal() (ir.EventObject, bool) {
	return p.Internal.TryDequeue()
}

// NextExternal pops the next external event; only called once the internal
// queue and all eventless transitions are exhausted (quiescence).
func (p *Pair) NextExternal() (ir.EventObject, bool) {
	return p.External.TryDequeue()
}
