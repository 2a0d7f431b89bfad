package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"session-service/internal/models"
)

func TestHubAddRemoveClient(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())
	conn := &websocket.Conn{}

	h.AddClient("u1", conn, ConnInfo{ConnID: "c1", UserID: "u1"})
	require.Len(t, h.rooms["u1"], 1)
	info, ok := h.getConnInfo("u1", conn)
	require.True(t, ok)
	assert.Equal(t, "c1", info.ConnID)

	h.RemoveClient("u1", conn)
	assert.Empty(t, h.rooms)
	assert.Empty(t, h.connInfo)
}

func TestHubRemoveUnknownClientIsNoOp(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())
	h.RemoveClient("ghost", &websocket.Conn{})
	assert.Empty(t, h.rooms)
}

func dialTestConn(t *testing.T, h *Hub, userID string) (*websocket.Conn, func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	registered := make(chan struct{})
	done := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		h.AddClient(userID, conn, ConnInfo{ConnID: newConnID(), UserID: userID, ConnectedAt: time.Now()})
		close(registered)
		// Hold the server side open until the test tears down.
		<-done
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	<-registered

	return client, func() {
		close(done)
		client.Close()
		srv.Close()
	}
}

func TestHubSessionStartedReachesBothParticipants(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())
	seekerConn, cleanupSeeker := dialTestConn(t, h, "seeker")
	defer cleanupSeeker()
	pswConn, cleanupPSW := dialTestConn(t, h, "psw")
	defer cleanupPSW()

	session := models.Session{ID: "s1", SenderID: "seeker", ReceiverID: "psw"}
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	h.SessionStarted(session, start)

	for _, conn := range []*websocket.Conn{seekerConn, pswConn} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev models.Event
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, models.EventSessionStarted, ev.Event)

		var payload models.SessionStartedPayload
		require.NoError(t, json.Unmarshal(ev.Data, &payload))
		assert.Equal(t, "s1", payload.SessionID)
		assert.True(t, payload.ActualStartTime.Equal(start))
	}
}

func wsEventCount(t *testing.T, event string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "session_ws_events_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "event" && label.GetValue() == event {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestHubCountsDeliveredEventsOnly(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())
	const eventName = "session:metricsCheck"
	ev := models.Event{Event: eventName, Data: json.RawMessage(`{}`)}

	h.SendToUser("nobody", ev)
	assert.Equal(t, 0.0, wsEventCount(t, eventName), "push to a user with no connections must not count")

	_, cleanup := dialTestConn(t, h, "seeker")
	defer cleanup()

	h.SendToUser("seeker", ev)
	assert.Equal(t, 1.0, wsEventCount(t, eventName))
}

func TestHubSessionUpdateOnlyTargetsOneUser(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())
	seekerConn, cleanupSeeker := dialTestConn(t, h, "seeker")
	defer cleanupSeeker()
	pswConn, cleanupPSW := dialTestConn(t, h, "psw")
	defer cleanupPSW()

	h.SessionUpdate("seeker", []models.Session{{ID: "s1"}})

	seekerConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev models.Event
	require.NoError(t, seekerConn.ReadJSON(&ev))
	assert.Equal(t, models.EventSessionUpdate, ev.Event)

	pswConn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var other models.Event
	err := pswConn.ReadJSON(&other)
	assert.Error(t, err, "non-recipient must not receive the snapshot")
}
