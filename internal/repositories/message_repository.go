package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"session-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for session chat messages and
// read receipts.
type MessageRepository interface {
	Create(ctx context.Context, sessionID, userID, body string) (models.Message, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.Message, error)
	MarkRead(ctx context.Context, sessionID, userID string, at time.Time) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create stores a message in a session chat.
func (r *MessageRepo) Create(ctx context.Context, sessionID, userID, body string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (id, session_id, user_id, body) VALUES ($1, $2, $3, $4)
         RETURNING id, session_id, user_id, body, created_at`,
		uuid.NewString(), sessionID, userID, body).
		Scan(&msg.ID, &msg.SessionID, &msg.UserID, &msg.Body, &msg.CreatedAt)
	return msg, err
}

// ListBySession returns the session's messages in send order.
func (r *MessageRepo) ListBySession(ctx context.Context, sessionID string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT id, session_id, user_id, body, created_at FROM messages
         WHERE session_id=$1 ORDER BY created_at ASC`, sessionID)
	return msgs, err
}

// MarkRead upserts the user's read receipt for the session.
func (r *MessageRepo) MarkRead(ctx context.Context, sessionID, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO read_receipts (session_id, user_id, last_read_at) VALUES ($1, $2, $3)
         ON CONFLICT (session_id, user_id) DO UPDATE SET last_read_at = EXCLUDED.last_read_at`,
		sessionID, userID, at)
	return err
}
