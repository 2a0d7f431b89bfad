package models

import (
	"encoding/json"
	"time"
)

// Realtime event names pushed over the websocket channel. Names not
// listed here are forward-compatible no-ops for clients.
const (
	EventSessionUpdate    = "session:update"
	EventSessionStarted   = "session:started"
	EventSessionCompleted = "session:completed"
	EventChatNewMessage   = "chat:newMessage"
	EventLiveStatusUpdate = "session:liveStatusUpdate"
)

// Event is the envelope for every websocket push.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewEvent marshals data into an Event envelope.
func NewEvent(name string, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Event: name, Data: raw}, nil
}

// SessionStartedPayload is the scoped push sent when a session goes live.
type SessionStartedPayload struct {
	SessionID       string    `json:"sessionId"`
	ActualStartTime time.Time `json:"actualStartTime"`
}

// SessionCompletedPayload is the scoped push sent when a session finishes.
type SessionCompletedPayload struct {
	SessionID     string    `json:"sessionId"`
	ActualEndTime time.Time `json:"actualEndTime"`
}

// LiveStatusPayload announces a server-driven live status change.
type LiveStatusPayload struct {
	SessionID  string     `json:"sessionId"`
	LiveStatus LiveStatus `json:"liveStatus"`
}
