package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"session-service/internal/models"
	"session-service/internal/observability"
)

// Hub maintains the active realtime connections, one room per user.
type Hub struct {
	rooms    map[string]map[*websocket.Conn]bool
	connInfo map[string]map[*websocket.Conn]ConnInfo
	mu       sync.RWMutex
	log      *zap.SugaredLogger
}

// NewHub creates an empty hub.
func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		rooms:    make(map[string]map[*websocket.Conn]bool),
		connInfo: make(map[string]map[*websocket.Conn]ConnInfo),
		log:      log,
	}
}

// AddClient registers a websocket connection for a user.
func (h *Hub) AddClient(userID string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[userID]; !ok {
		h.rooms[userID] = make(map[*websocket.Conn]bool)
	}
	h.rooms[userID][conn] = true
	if _, ok := h.connInfo[userID]; !ok {
		h.connInfo[userID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.connInfo[userID][conn] = info
}

// RemoveClient removes a user's websocket connection.
func (h *Hub) RemoveClient(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, userID)
		}
	}
	if infos, ok := h.connInfo[userID]; ok {
		delete(infos, conn)
		if len(infos) == 0 {
			delete(h.connInfo, userID)
		}
	}
}

// SendToUser pushes an event to every connection the user has open.
func (h *Hub) SendToUser(userID string, event models.Event) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.rooms[userID]))
	for conn := range h.rooms[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(event); err != nil {
			h.log.Warnw("websocket write error", "userId", userID, "event", event.Event, "error", err)
			conn.Close()
			h.RemoveClient(userID, conn)
			h.publishWSError(userID, conn, err)
			continue
		}
		// Counted per delivered connection, not per attempted push.
		observability.IncWSEvent(event.Event)
	}
}

// SendToParticipants pushes an event to each participant of a session.
func (h *Hub) SendToParticipants(s models.Session, event models.Event) {
	for _, userID := range s.Participants() {
		h.SendToUser(userID, event)
	}
}

// SessionUpdate pushes a full session snapshot to one user.
func (h *Hub) SessionUpdate(userID string, sessions []models.Session) {
	event, err := models.NewEvent(models.EventSessionUpdate, sessions)
	if err != nil {
		h.log.Warnw("marshal session:update failed", "error", err)
		return
	}
	h.SendToUser(userID, event)
}

// SessionStarted announces a live start to both participants.
func (h *Hub) SessionStarted(s models.Session, actualStart time.Time) {
	event, err := models.NewEvent(models.EventSessionStarted, models.SessionStartedPayload{
		SessionID:       s.ID,
		ActualStartTime: actualStart,
	})
	if err != nil {
		h.log.Warnw("marshal session:started failed", "error", err)
		return
	}
	h.SendToParticipants(s, event)
}

// SessionCompleted announces completion to both participants.
func (h *Hub) SessionCompleted(s models.Session, actualEnd time.Time) {
	event, err := models.NewEvent(models.EventSessionCompleted, models.SessionCompletedPayload{
		SessionID:     s.ID,
		ActualEndTime: actualEnd,
	})
	if err != nil {
		h.log.Warnw("marshal session:completed failed", "error", err)
		return
	}
	h.SendToParticipants(s, event)
}

// NewMessages pushes freshly created chat messages to both participants.
func (h *Hub) NewMessages(s models.Session, msgs []models.Message) {
	event, err := models.NewEvent(models.EventChatNewMessage, msgs)
	if err != nil {
		h.log.Warnw("marshal chat:newMessage failed", "error", err)
		return
	}
	h.SendToParticipants(s, event)
}

// LiveStatusChanged announces a sweep-driven live status change.
func (h *Hub) LiveStatusChanged(s models.Session, ls models.LiveStatus) {
	event, err := models.NewEvent(models.EventLiveStatusUpdate, models.LiveStatusPayload{
		SessionID:  s.ID,
		LiveStatus: ls,
	})
	if err != nil {
		h.log.Warnw("marshal liveStatusUpdate failed", "error", err)
		return
	}
	h.SendToParticipants(s, event)
}

func (h *Hub) publishWSError(userID string, conn *websocket.Conn, err error) {
	info, ok := h.getConnInfo(userID, conn)
	if !ok {
		return
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.sessions", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("ws_error")
}

func (h *Hub) getConnInfo(userID string, conn *websocket.Conn) (ConnInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if infos, ok := h.connInfo[userID]; ok {
		info, exists := infos[conn]
		return info, exists
	}
	return ConnInfo{}, false
}
