package broadcast

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// wsObserver pumps events to a single WebSocket connection.
type wsObserver struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
	logger *zap.Logger
}

func newWSObserver(conn *websocket.Conn, queueSize int, logger *zap.Logger) *wsObserver {
	id := "ws-" + uuid.NewString()
	return &wsObserver{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, queueSize),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("observer", id)),
	}
}

func (o *wsObserver) ID() string { return o.id }

func (o *wsObserver) Ready() bool { return !o.closed.Load() }

func (o *wsObserver) Deliver(payload []byte) error {
	select {
	case o.send <- payload:
		return nil
	default:
		return ErrBackpressure
	}
}

func (o *wsObserver) close() {
	o.once.Do(func() {
		o.closed.Store(true)
		close(o.done)
		_ = o.conn.Close()
	})
}

// readPump discards inbound frames; it exists to process control frames
// and notice when the peer goes away.
func (o *wsObserver) readPump() {
	defer o.close()
	o.conn.SetReadLimit(maxMessageSize)
	_ = o.conn.SetReadDeadline(time.Now().Add(pongWait))
	o.conn.SetPongHandler(func(string) error {
		return o.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := o.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				o.logger.Debug("observer read failed", zap.Error(err))
			}
			return
		}
	}
}

func (o *wsObserver) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		o.close()
	}()
	for {
		select {
		case payload := <-o.send:
			_ = o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				o.logger.Debug("observer write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-o.done:
			return
		}
	}
}

// ServeWS upgrades the request to a WebSocket and keeps the connection
// subscribed until either side closes it.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.closed:
		http.Error(w, "broadcaster closed", http.StatusServiceUnavailable)
		return
	default:
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	obs := newWSObserver(conn, h.queueSize, h.logger)
	h.Subscribe(obs)
	defer h.Unsubscribe(obs.id)

	go obs.writePump()
	obs.readPump()
}
