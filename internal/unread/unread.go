package unread

import (
	"context"
	"time"

	"go.uber.org/zap"

	"session-service/internal/models"
)

// Unread reports whether userID has unseen chat activity on the session:
// the last message exists, was sent by someone else, and no read receipt
// for userID is at or after it.
func Unread(s models.Session, userID string) bool {
	if s.LastMessageAt == nil || s.LastMessageBy == "" {
		return false
	}
	if s.LastMessageBy == userID {
		return false
	}
	readAt, ok := s.ReadReceipts[userID]
	if !ok {
		return true
	}
	return readAt.Before(*s.LastMessageAt)
}

// ReceiptWriter persists a read receipt.
type ReceiptWriter interface {
	MarkRead(ctx context.Context, sessionID, userID string, at time.Time) error
}

// Invalidator drops cached derived state so unread flags recompute.
type Invalidator interface {
	Invalidate(key string)
}

// Marker records read receipts. Persistence is fire-and-forget: a failed
// mark-read is not user-visible-critical and must never block navigation,
// so errors are logged and swallowed.
type Marker struct {
	receipts ReceiptWriter
	cache    Invalidator
	now      func() time.Time
	log      *zap.SugaredLogger
}

// NewMarker builds a Marker. cache may be nil when no query cache is in
// play.
func NewMarker(receipts ReceiptWriter, cache Invalidator, log *zap.SugaredLogger) *Marker {
	return &Marker{receipts: receipts, cache: cache, now: time.Now, log: log}
}

// MarkRead records the current time as userID's receipt for the session
// and invalidates the cached session list.
func (m *Marker) MarkRead(ctx context.Context, sessionID, userID string) {
	at := m.now()
	if err := m.receipts.MarkRead(ctx, sessionID, userID, at); err != nil {
		m.log.Warnw("mark read failed", "sessionId", sessionID, "userId", userID, "error", err)
		return
	}
	if m.cache != nil {
		m.cache.Invalidate("sessions:" + userID)
	}
}
