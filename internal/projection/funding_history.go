package projection

import (
	"sync"

	"PerpAMM/internal/event"
	fpmath "PerpAMM/internal/math"
)

// FundingHistoryEntry is one advance of the funding state.
type FundingHistoryEntry struct {
	Sequence           int64      `json:"sequence"`
	Timestamp          int64      `json:"timestamp"`
	IndexPrice         fpmath.Int `json:"indexPrice"`
	IndexTimestamp     int64      `json:"indexTimestamp"`
	EMAPremium         fpmath.Int `json:"emaPremium"`
	AccumulatedFunding fpmath.Int `json:"accumulatedFundingPerContract"`
}

// FundingEntryFrom converts a FundingUpdated event.
func FundingEntryFrom(sequence int64, e *event.FundingUpdated) FundingHistoryEntry {
	return FundingHistoryEntry{
		Sequence:           sequence,
		Timestamp:          e.Timestamp,
		IndexPrice:         e.IndexPrice,
		IndexTimestamp:     e.IndexTimestamp,
		EMAPremium:         e.EMAPremium,
		AccumulatedFunding: e.AccumulatedFunding,
	}
}

// FundingHistory keeps the most recent funding updates in memory for the
// query API. Older entries live in projection.funding_history.
type FundingHistory struct {
	mu       sync.RWMutex
	entries  []FundingHistoryEntry
	capacity int
}

func NewFundingHistory(capacity int) *FundingHistory {
	if capacity <= 0 {
		capacity = 1024
	}
	return &FundingHistory{capacity: capacity}
}

// Add appends an entry, evicting the oldest when full. Entries that do not
// advance the timestamp are ignored.
func (h *FundingHistory) Add(e FundingHistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.entries); n > 0 && h.entries[n-1].Timestamp >= e.Timestamp {
		return
	}
	if len(h.entries) == h.capacity {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:len(h.entries)-1]
	}
	h.entries = append(h.entries, e)
}

// Range returns entries with from <= Timestamp < to, oldest first, at most
// limit of them.
func (h *FundingHistory) Range(from, to int64, limit int) []FundingHistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]FundingHistoryEntry, 0)
	for _, e := range h.entries {
		if len(result) >= limit {
			break
		}
		if e.Timestamp >= from && e.Timestamp < to {
			result = append(result, e)
		}
	}
	return result
}

// Latest returns the newest entry.
func (h *FundingHistory) Latest() (FundingHistoryEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.entries) == 0 {
		return FundingHistoryEntry{}, false
	}
	return h.entries[len(h.entries)-1], true
}
