package broadcast

import (
	"encoding/json"
	"sync"
	"sync/atomic"
)

// MemoryObserver records delivered payloads in memory for inspection/testing.
type MemoryObserver struct {
	id       string
	notReady atomic.Bool

	mu       sync.Mutex
	payloads [][]byte
}

// NewMemoryObserver constructs a ready observer with the given id.
func NewMemoryObserver(id string) *MemoryObserver {
	return &MemoryObserver{id: id}
}

func (m *MemoryObserver) ID() string { return m.id }

func (m *MemoryObserver) Ready() bool { return !m.notReady.Load() }

// SetReady toggles whether the hub should deliver to this observer.
func (m *MemoryObserver) SetReady(ready bool) { m.notReady.Store(!ready) }

// Deliver records the payload.
func (m *MemoryObserver) Deliver(payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, append([]byte(nil), payload...))
	return nil
}

// Envelopes decodes the payloads seen so far.
func (m *MemoryObserver) Envelopes() []map[string]json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]json.RawMessage, 0, len(m.payloads))
	for _, p := range m.payloads {
		var env map[string]json.RawMessage
		if err := json.Unmarshal(p, &env); err == nil {
			out = append(out, env)
		}
	}
	return out
}

// Types returns the type discriminator of each delivered event, in order.
func (m *MemoryObserver) Types() []string {
	envs := m.Envelopes()
	out := make([]string, 0, len(envs))
	for _, env := range envs {
		var t string
		_ = json.Unmarshal(env["type"], &t)
		out = append(out, t)
	}
	return out
}
