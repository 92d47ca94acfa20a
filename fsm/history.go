package fsm

import (
	"sync"

	"github.com/comalice/scxmlcore/ir"
)

// HistoryStore records, per history-pseudo-state id, the configuration to
// restore on re-entry (spec.md §3 HistoryStore, §4.4). Recorded at exit of
// the history node's parent; read on re-entry of that parent. Adapted from
// the teacher's HistoryManager (comalice/statechartx
// internal/core/historymanager.go), generalized from a single
// shallow-child-id to full StateID slices so deep history's "every active
// leaf descendant" snapshot doesn't need the shallow map's separate
// storage shape.
type HistoryStore struct {
	mu       sync.RWMutex
	snapshot map[ir.StateID][]ir.StateID
}

// NewHistoryStore returns an empty HistoryStore.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{snapshot: make(map[ir.StateID][]ir.StateID)}
}

// Record stores the configuration for historyStateID's parent at exit time:
// for shallow history, the direct active children of the parent; for deep
// history, all active leaf descendants of the parent.
func (h *HistoryStore) Record(historyStateID ir.StateID, states []ir.StateID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := make([]ir.StateID, len(states))
	copy(cp, states)
	h.snapshot[historyStateID] = cp
}

// Restore returns the previously recorded configuration, if any.
func (h *HistoryStore) Restore(historyStateID ir.StateID) ([]ir.StateID, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.snapshot[historyStateID]
	if !ok || len(s) == 0 {
		return nil, false
	}
	cp := make([]ir.StateID, len(s))
	copy(cp, s)
	return cp, true
}

// Clear removes any recorded configuration for historyStateID.
func (h *HistoryStore) Clear(historyStateID ir.StateID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.snapshot, historyStateID)
}

// RecordOnExit computes and stores the right snapshot for every history
// child of parent, given the configuration active just before parent's
// children are exited. Called by the exit-set executor (package session)
// whenever a compound/parallel state with a history child is exited.
func (h *HistoryStore) RecordOnExit(parent *ir.StateNode, cfg *Configuration) {
	for _, child := range parent.Children {
		if !child.IsHistory() {
			continue
		}
		if child.Kind == ir.HistoryShallow {
			var direct []ir.StateID
			for _, sib := range parent.Children {
				if sib.IsHistory() {
					continue
				}
				if cfg.Has(sib.ID) {
					direct = append(direct, sib.ID)
				}
			}
			h.Record(child.ID, direct)
		} else {
			var leaves []ir.StateID
			var walk func(*ir.StateNode)
			walk = func(n *ir.StateNode) {
				if !cfg.Has(n.ID) {
					return
				}
				if n.IsAtomicLike() {
					leaves = append(leaves, n.ID)
					return
				}
				for _, ch := range n.Children {
					walk(ch)
				}
			}
			for _, sib := range parent.Children {
				if sib.IsHistory() {
					continue
				}
				walk(sib)
			}
			h.Record(child.ID, leaves)
		}
	}
}
