package broadcast

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stuckObserver struct{ id string }

func (s stuckObserver) ID() string           { return s.id }
func (s stuckObserver) Ready() bool          { return true }
func (s stuckObserver) Deliver([]byte) error { return ErrBackpressure }

func TestEventEnvelopeIsFlat(t *testing.T) {
	raw, err := json.Marshal(NewEvent("job_created", "job", map[string]string{"id": "job-1"}))
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Equal(t, "job_created", env["type"])
	require.Equal(t, map[string]any{"id": "job-1"}, env["job"])
}

func TestPublishSkipsObserversThatAreNotReady(t *testing.T) {
	hub := NewHub(4, zaptest.NewLogger(t))
	ready := NewMemoryObserver("ready")
	idle := NewMemoryObserver("idle")
	idle.SetReady(false)
	hub.Subscribe(ready)
	hub.Subscribe(idle)

	require.Equal(t, 1, hub.Publish(NewEvent("transaction")))
	require.Equal(t, []string{"transaction"}, ready.Types())
	require.Empty(t, idle.Types())
}

func TestPublishToleratesFailingObserver(t *testing.T) {
	hub := NewHub(4, zaptest.NewLogger(t))
	good := NewMemoryObserver("good")
	hub.Subscribe(stuckObserver{id: "stuck"})
	hub.Subscribe(good)

	require.Equal(t, 1, hub.Publish(NewEvent("agent_registered")))
	require.Len(t, good.Types(), 1)
}

func TestEventsWithoutObserversAreLost(t *testing.T) {
	hub := NewHub(4, zaptest.NewLogger(t))
	require.Zero(t, hub.Publish(NewEvent("job_completed")))

	late := NewMemoryObserver("late")
	hub.Subscribe(late)
	require.Empty(t, late.Types())

	hub.Unsubscribe("late")
	require.Zero(t, hub.Count())
}

func TestWebSocketObserverReceivesEvents(t *testing.T) {
	hub := NewHub(8, zaptest.NewLogger(t))
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(server.Close)
	t.Cleanup(hub.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, 1, hub.Publish(NewEvent("job_created", "job", map[string]string{"id": "job-9"})))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"job_created","job":{"id":"job-9"}}`, string(msg))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestWebSocketObserverDropsWhenQueueFull(t *testing.T) {
	obs := &wsObserver{id: "ws-test", send: make(chan []byte, 1), done: make(chan struct{})}
	require.NoError(t, obs.Deliver([]byte("a")))
	require.ErrorIs(t, obs.Deliver([]byte("b")), ErrBackpressure)
}
