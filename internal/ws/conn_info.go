package ws

import "time"

// ConnInfo captures identity and request metadata for a connection, used
// when publishing lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
