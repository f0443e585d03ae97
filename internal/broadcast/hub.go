package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"
)

// Hub fans events out to the currently connected observers. Delivery is
// best-effort: observers that are not ready are skipped, full queues drop
// the event, and nothing is retained for observers that connect later.
type Hub struct {
	observers cmap.ConcurrentMap[string, Observer]
	upgrader  websocket.Upgrader
	queueSize int
	logger    *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// NewHub constructs a hub. queueSize bounds each WebSocket observer's
// outbound buffer.
func NewHub(queueSize int, logger *zap.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		observers: cmap.New[Observer](),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		queueSize: queueSize,
		logger:    logger,
		closed:    make(chan struct{}),
	}
}

// Subscribe adds an observer to the connected set.
func (h *Hub) Subscribe(o Observer) {
	h.observers.Set(o.ID(), o)
	h.logger.Debug("observer subscribed", zap.String("observer", o.ID()), zap.Int("observers", h.observers.Count()))
}

// Unsubscribe removes an observer. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.observers.Remove(id)
	h.logger.Debug("observer unsubscribed", zap.String("observer", id), zap.Int("observers", h.observers.Count()))
}

// Count returns the number of connected observers.
func (h *Hub) Count() int {
	return h.observers.Count()
}

// Publish encodes the event once and hands it to every ready observer.
// It returns the number of observers that accepted the event.
func (h *Hub) Publish(event Event) int {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("encode event", zap.String("type", event.Type), zap.Error(err))
		return 0
	}
	delivered := 0
	for id, o := range h.observers.Items() {
		if !o.Ready() {
			continue
		}
		if err := o.Deliver(payload); err != nil {
			h.logger.Warn("dropping event for observer", zap.String("observer", id), zap.String("type", event.Type), zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

// Close disconnects every WebSocket observer. Subsequent upgrades are refused.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.closed)
		for _, o := range h.observers.Items() {
			if ws, ok := o.(*wsObserver); ok {
				ws.close()
			}
		}
	})
}
