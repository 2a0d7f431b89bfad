package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"session-service/internal/models"
	"session-service/internal/repositories"
	"session-service/internal/ws"
)

// ChatHandler manages session chat endpoints.
type ChatHandler struct {
	sessions repositories.SessionRepository
	messages repositories.MessageRepository
	hub      *ws.Hub
	log      *zap.SugaredLogger
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(sessions repositories.SessionRepository, messages repositories.MessageRepository, hub *ws.Hub, log *zap.SugaredLogger) *ChatHandler {
	return &ChatHandler{sessions: sessions, messages: messages, hub: hub, log: log}
}

// GetMessages returns the session's chat history.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	session, ok := h.participantSession(c)
	if !ok {
		return
	}

	msgs, err := h.messages.ListBySession(c.Request.Context(), session.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// SendMessage stores a chat message, updates the session's last-message
// fields and pushes the message to both participants.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	session, ok := h.participantSession(c)
	if !ok {
		return
	}
	userID := c.GetString("userID")

	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messages.Create(c.Request.Context(), session.ID, userID, req.Message)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	if err := h.sessions.SetLastMessage(c.Request.Context(), session.ID, msg.CreatedAt, userID); err != nil {
		h.log.Warnw("update last message failed", "sessionId", session.ID, "error", err)
	}

	h.hub.NewMessages(session, []models.Message{msg})
	c.JSON(http.StatusCreated, msg)
}

// MarkRead records the caller's read receipt for the session chat.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	session, ok := h.participantSession(c)
	if !ok {
		return
	}
	userID := c.GetString("userID")

	now := time.Now().UTC()
	if err := h.messages.MarkRead(c.Request.Context(), session.ID, userID, now); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark messages read"})
		return
	}

	c.JSON(http.StatusOK, models.ReadReceipt{
		SessionID:  session.ID,
		UserID:     userID,
		LastReadAt: now,
	})
}

func (h *ChatHandler) participantSession(c *gin.Context) (models.Session, bool) {
	sessionID := c.Param("session_id")
	userID := c.GetString("userID")

	session, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "session not found"})
		return models.Session{}, false
	}
	if !session.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a session participant"})
		return models.Session{}, false
	}
	return session, true
}
