package models

import "time"

// Message represents a chat message inside a session. Messages are
// immutable once created.
type Message struct {
	ID        string    `db:"id" json:"id"`
	SessionID string    `db:"session_id" json:"sessionId"`
	UserID    string    `db:"user_id" json:"userId"`
	Body      string    `db:"body" json:"message"`
	CreatedAt time.Time `db:"created_at" json:"timestamp"`
}

// ReadReceipt records the last time a user viewed a session's chat.
type ReadReceipt struct {
	SessionID  string    `db:"session_id" json:"sessionId"`
	UserID     string    `db:"user_id" json:"userId"`
	LastReadAt time.Time `db:"last_read_at" json:"lastReadAt"`
}
