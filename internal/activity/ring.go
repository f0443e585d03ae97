package activity

import "sync"

// RingSink keeps the most recent entries in memory.
type RingSink struct {
	mu       sync.RWMutex
	capacity int
	entries  []Entry
}

// NewRingSink constructs a sink with bounded capacity.
func NewRingSink(capacity int) *RingSink {
	if capacity <= 0 {
		capacity = 100
	}
	return &RingSink{capacity: capacity}
}

// Consume stores the entry, evicting the oldest when capacity is exceeded.
func (r *RingSink) Consume(entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	if len(r.entries) > r.capacity {
		r.entries = r.entries[len(r.entries)-r.capacity:]
	}
	return nil
}

// Recent returns up to limit of the newest entries in chronological order.
// A non-positive limit returns everything buffered.
func (r *RingSink) Recent(limit int) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	start := 0
	if limit > 0 && limit < len(r.entries) {
		start = len(r.entries) - limit
	}
	snapshot := make([]Entry, len(r.entries)-start)
	copy(snapshot, r.entries[start:])
	return snapshot
}
