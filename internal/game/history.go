package game

import (
	"context"
	"sync"
)

// Archive receives every finished round. Implementations are called off the round timeline.
// UpdateFlags rewrites the flags of an archived round once its retried settlements landed.
type Archive interface {
	SaveRound(ctx context.Context, s Summary) error
	UpdateFlags(ctx context.Context, s Summary) error
}

// History keeps the most recent summaries of one game, newest last.
type History struct {
	mu      sync.RWMutex
	limit   int
	items   []Summary
	pending map[string]map[string]bool
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 50
	}
	return &History{
		limit:   limit,
		pending: make(map[string]map[string]bool),
	}
}

func (h *History) Add(s Summary, pendingParticipants []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(pendingParticipants) > 0 {
		set := make(map[string]bool, len(pendingParticipants))
		for _, p := range pendingParticipants {
			set[p] = true
		}
		h.pending[s.RoundID] = set
		s.Flags.SettlementPending = true
	}

	h.items = append(h.items, s)
	if len(h.items) > h.limit {
		dropped := h.items[0]
		h.items = h.items[1:]
		delete(h.pending, dropped.RoundID)
	}
}

// Restore loads previously archived rounds, given newest first, behind anything
// already recorded.
func (h *History) Restore(summaries []Summary) {
	h.mu.Lock()
	defer h.mu.Unlock()

	known := make(map[string]bool, len(h.items))
	for _, s := range h.items {
		known[s.RoundID] = true
	}
	restored := make([]Summary, 0, len(summaries))
	for i := len(summaries) - 1; i >= 0; i-- {
		if !known[summaries[i].RoundID] {
			restored = append(restored, summaries[i])
		}
	}
	h.items = append(restored, h.items...)
	if len(h.items) > h.limit {
		h.items = h.items[len(h.items)-h.limit:]
	}
}

// List returns up to limit summaries, newest first.
func (h *History) List(limit int) []Summary {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > len(h.items) {
		limit = len(h.items)
	}
	out := make([]Summary, 0, limit)
	for i := len(h.items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.items[i])
	}
	return out
}

func (h *History) Get(roundID string) (Summary, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for i := len(h.items) - 1; i >= 0; i-- {
		if h.items[i].RoundID == roundID {
			return h.items[i], true
		}
	}
	return Summary{}, false
}

// ResolveSettlement records the final outcome of a retried settlement. It returns the
// updated summary and whether the round belongs to this history.
func (h *History) ResolveSettlement(roundID, participantID string, failed bool) (Summary, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.pending[roundID]
	if !ok {
		return Summary{}, false
	}
	delete(set, participantID)

	var updated Summary
	for i := range h.items {
		if h.items[i].RoundID != roundID {
			continue
		}
		if failed {
			h.items[i].Flags.SettlementFailed = true
		}
		if len(set) == 0 {
			h.items[i].Flags.SettlementPending = false
		}
		updated = h.items[i]
	}
	if len(set) == 0 {
		delete(h.pending, roundID)
	}
	return updated, true
}
