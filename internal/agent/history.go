package agent

import "sync"

// History keeps a bounded list of recent task results.
type History struct {
	mu       sync.RWMutex
	capacity int
	entries  []TaskResult
}

// NewHistory constructs a history with the provided capacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 100
	}
	return &History{capacity: capacity}
}

// Add records a result, evicting the oldest beyond capacity.
func (h *History) Add(result TaskResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, result)
	if len(h.entries) > h.capacity {
		h.entries = h.entries[len(h.entries)-h.capacity:]
	}
}

// Recent returns the stored results in chronological order.
func (h *History) Recent() []TaskResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	snapshot := make([]TaskResult, len(h.entries))
	copy(snapshot, h.entries)
	return snapshot
}
