// Package scheduler implements the delayed-send scheduler (C4): a min-heap
// of (fireTime, event, sendID) entries with tombstone cancellation, bound to
// one session's lifetime (spec.md §4.3).
package scheduler

import (
	"container/heap"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/comalice/scxmlcore/ir"
)

// Target describes where a scheduled event should be delivered once it
// fires; the scheduler itself is delivery-mechanism agnostic — it just hands
// the ready event back to the caller's Drain loop, which routes it (package
// actions/session own the actual internal/external/HTTP dispatch).
type Target struct {
	// Kind mirrors the send-target taxonomy of spec.md §4.6 so Drain
	// callers don't need to re-parse anything.
	Kind       TargetKind
	InvokeID   string // set for #_<invokeid>
	URL        string // set for http(s)://…
	SessionRef string // the literal #_scxml_<id> target, informational
}

type TargetKind int

const (
	TargetInternal TargetKind = iota
	TargetExternalSelf
	TargetParent
	TargetInvokedChild
	TargetHTTP
)

// entry is one scheduled send.
type entry struct {
	fireTime time.Time
	seq      uint64 // tiebreaker for stable ordering at equal fireTime
	event    ir.EventObject
	sendID   string
	target   Target
	index    int // heap.Interface bookkeeping
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].fireTime.Equal(h[j].fireTime) {
		return h[i].seq < h[j].seq
	}
	return h[i].fireTime.Before(h[j].fireTime)
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Ready is one event popped by Drain, along with where it should be sent.
type Ready struct {
	Event  ir.EventObject
	Target Target
}

// Scheduler is a session-scoped min-heap of pending delayed sends.
type Scheduler struct {
	mu        sync.Mutex
	heap      entryHeap
	tombstone map[string]struct{}
	seq       uint64
	sendCtr   atomic.Uint64
	sessionID string
}

// New creates a Scheduler for sessionID. Generated sendids do not include
// the session id; they are send_<n> (spec.md §6: "sendids are send_<n> or
// user-supplied").
func New(sessionID string) *Scheduler {
	return &Scheduler{
		tombstone: make(map[string]struct{}),
		sessionID: sessionID,
	}
}

// NextSendID generates a fresh sendid of the form send_<n>.
func (s *Scheduler) NextSendID() string {
	n := s.sendCtr.Add(1)
	return fmt.Sprintf("send_%d", n)
}

// Schedule enqueues ev to fire after delay, returning the sendID used (the
// one passed in, if non-empty, else a generated one).
func (s *Scheduler) Schedule(delay time.Duration, ev ir.EventObject, sendID string, target Target) string {
	if sendID == "" {
		sendID = s.NextSendID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	heap.Push(&s.heap, &entry{
		fireTime: time.Now().Add(delay),
		seq:      s.seq,
		event:    ev,
		sendID:   sendID,
		target:   target,
	})
	return sendID
}

// Cancel tombstones a pending sendID. A not-yet-fired event with this
// sendID will be discarded when popped by Drain; already-fired or unknown
// sendIDs are a no-op (W3C 6.2.5, spec.md §8 laws).
func (s *Scheduler) Cancel(sendID string) {
	if sendID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.heap {
		if e.sendID == sendID {
			s.tombstone[sendID] = struct{}{}
			return
		}
	}
}

// Drain pops every entry whose fireTime is <= now, discarding tombstoned
// ones, and returns the events that should actually be delivered. Called by
// a `tick()` entry point or an external timer (spec.md §5: the core assumes
// no background thread of its own).
func (s *Scheduler) Drain(now time.Time) []Ready {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ready []Ready
	for len(s.heap) > 0 && !s.heap[0].fireTime.After(now) {
		e := heap.Pop(&s.heap).(*entry)
		if _, tombstoned := s.tombstone[e.sendID]; tombstoned {
			delete(s.tombstone, e.sendID)
			continue
		}
		ready = append(ready, Ready{Event: e.event, Target: e.target})
	}
	return ready
}

// NextFireTime returns the earliest pending fire time, if any, so a caller
// can size its next poll/sleep.
func (s *Scheduler) NextFireTime() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 {
		return time.Time{}, false
	}
	return s.heap[0].fireTime, true
}

// Shutdown cancels every pending entry (session destruction, spec.md §4.3:
// "session destruction cancels all pending events").
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heap = nil
	s.tombstone = make(map[string]struct{})
}

// NewSessionID formats counter as a session_<n>-style id for hosts that
// don't supply one (spec.md §6). Uniqueness depends on the caller's
// counter; no uuid is involved.
func NewSessionID(counter uint64) string {
	return fmt.Sprintf("session_%d", counter)
}

// NewOpaqueID returns a UUID-based identifier, used for child invoke session
// ids when no deterministic counter is available to the invoke manager.
func NewOpaqueID() string {
	return uuid.NewString()
}

// ParseDelay parses the SCXML delay grammar: <number>(s|ms|min|h)?,
// fractional values allowed, default unit seconds, empty/unparseable/
// negative yields 0 (spec.md §4.3).
func ParseDelay(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}

	unit := time.Second
	numPart := raw
	switch {
	case strings.HasSuffix(raw, "ms"):
		unit = time.Millisecond
		numPart = strings.TrimSuffix(raw, "ms")
	case strings.HasSuffix(raw, "min"):
		unit = time.Minute
		numPart = strings.TrimSuffix(raw, "min")
	case strings.HasSuffix(raw, "h"):
		unit = time.Hour
		numPart = strings.TrimSuffix(raw, "h")
	case strings.HasSuffix(raw, "s"):
		unit = time.Second
		numPart = strings.TrimSuffix(raw, "s")
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(numPart), 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f * float64(unit))
}
