package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"session-service/internal/models"
	"session-service/internal/repositories"
	"session-service/internal/unread"
	"session-service/internal/ws"
)

// SessionHandler manages the session booking lifecycle.
type SessionHandler struct {
	sessions repositories.SessionRepository
	hub      *ws.Hub
	log      *zap.SugaredLogger
}

// NewSessionHandler builds a SessionHandler.
func NewSessionHandler(sessions repositories.SessionRepository, hub *ws.Hub, log *zap.SugaredLogger) *SessionHandler {
	return &SessionHandler{sessions: sessions, hub: hub, log: log}
}

// ListSessions returns the caller's sessions enriched with the unread
// flag.
func (h *SessionHandler) ListSessions(c *gin.Context) {
	userID := c.GetString("userID")

	sessions, err := h.sessions.ListByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sessions"})
		return
	}
	for i := range sessions {
		sessions[i].Unread = unread.Unread(sessions[i], userID)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// RequestSession creates a new session request addressed to a receiver.
func (h *SessionHandler) RequestSession(c *gin.Context) {
	var req struct {
		ReceiverID string                 `json:"receiverId" binding:"required"`
		StartTime  time.Time              `json:"startTime" binding:"required"`
		EndTime    time.Time              `json:"endTime" binding:"required"`
		Note       string                 `json:"note"`
		HourlyRate float64                `json:"hourlyRate"`
		Checklist  []models.ChecklistItem `json:"checklist"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	if req.ReceiverID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot request a session with yourself"})
		return
	}
	if !req.EndTime.After(req.StartTime) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endTime must be after startTime"})
		return
	}

	checklist := make(models.Checklist, 0, len(req.Checklist))
	for _, item := range req.Checklist {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		checklist = append(checklist, item)
	}

	session := models.Session{
		ID:         uuid.NewString(),
		SenderID:   userID,
		ReceiverID: req.ReceiverID,
		Status:     models.StatusNewRequest,
		LiveStatus: models.LiveUpcoming,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Note:       req.Note,
		Billing:    Quote(req.HourlyRate, req.EndTime.Sub(req.StartTime)),
		Checklist:  checklist,
	}

	created, err := h.sessions.Create(c.Request.Context(), session)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
		return
	}

	h.refreshParticipants(c, created)
	c.JSON(http.StatusCreated, created)
}

// AcceptSession moves a request to confirmed; receiver only.
func (h *SessionHandler) AcceptSession(c *gin.Context) {
	h.transition(c, models.StatusConfirmed, func(s models.Session, userID string) error {
		if s.ReceiverID != userID {
			return repositories.ErrNotParticipant
		}
		if s.Status != models.StatusNewRequest && s.Status != models.StatusPending {
			return repositories.ErrInvalidTransition
		}
		return nil
	})
}

// RejectSession declines a request outright; receiver only.
func (h *SessionHandler) RejectSession(c *gin.Context) {
	h.transition(c, models.StatusRejected, func(s models.Session, userID string) error {
		if s.ReceiverID != userID {
			return repositories.ErrNotParticipant
		}
		if s.Status != models.StatusNewRequest && s.Status != models.StatusPending {
			return repositories.ErrInvalidTransition
		}
		return nil
	})
}

// DeclineSession withdraws from a pending session; either side.
func (h *SessionHandler) DeclineSession(c *gin.Context) {
	h.transition(c, models.StatusDeclined, func(s models.Session, userID string) error {
		if s.Status != models.StatusNewRequest && s.Status != models.StatusPending {
			return repositories.ErrInvalidTransition
		}
		return nil
	})
}

// CancelSession cancels a booking before it completes; either side.
func (h *SessionHandler) CancelSession(c *gin.Context) {
	h.transition(c, models.StatusCancelled, func(s models.Session, userID string) error {
		switch s.Status {
		case models.StatusCompleted, models.StatusCancelled, models.StatusRejected,
			models.StatusDeclined, models.StatusFailed:
			return repositories.ErrInvalidTransition
		}
		return nil
	})
}

func (h *SessionHandler) transition(c *gin.Context, to models.Status, check func(models.Session, string) error) {
	sessionID := c.Param("session_id")
	userID := c.GetString("userID")

	session, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "session not found"})
		return
	}
	if !session.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a session participant"})
		return
	}
	if err := check(session, userID); err != nil {
		status := http.StatusConflict
		if errors.Is(err, repositories.ErrNotParticipant) {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	if err := h.sessions.UpdateStatus(c.Request.Context(), sessionID, to); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update session"})
		return
	}

	session.Status = to
	h.refreshParticipants(c, session)
	c.JSON(http.StatusOK, session)
}

// ConfirmStart records the caller's ready-to-start confirmation. When
// both sides have confirmed, the session goes live and the started event
// is pushed.
func (h *SessionHandler) ConfirmStart(c *gin.Context) {
	sessionID := c.Param("session_id")
	userID := c.GetString("userID")
	now := time.Now().UTC()

	session, both, err := h.sessions.ConfirmStart(c.Request.Context(), sessionID, userID, now)
	if err != nil {
		h.confirmError(c, err)
		return
	}
	if both {
		h.hub.SessionStarted(session, *session.ActualStartTime)
		h.refreshParticipants(c, session)
	}
	c.JSON(http.StatusOK, session)
}

// ConfirmEnd records the caller's end confirmation; both confirmations
// complete the session and push the completed event.
func (h *SessionHandler) ConfirmEnd(c *gin.Context) {
	sessionID := c.Param("session_id")
	userID := c.GetString("userID")
	now := time.Now().UTC()

	session, both, err := h.sessions.ConfirmEnd(c.Request.Context(), sessionID, userID, now)
	if err != nil {
		h.confirmError(c, err)
		return
	}
	if both {
		h.hub.SessionCompleted(session, *session.ActualEndTime)
		h.refreshParticipants(c, session)
	}
	c.JSON(http.StatusOK, session)
}

// UpdateChecklist replaces the live checklist both users share.
func (h *SessionHandler) UpdateChecklist(c *gin.Context) {
	sessionID := c.Param("session_id")
	userID := c.GetString("userID")

	var req struct {
		Checklist models.Checklist `json:"checklist" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "session not found"})
		return
	}
	if !session.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a session participant"})
		return
	}

	if err := h.sessions.SetChecklist(c.Request.Context(), sessionID, req.Checklist); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update checklist"})
		return
	}

	session.Checklist = req.Checklist
	h.refreshParticipants(c, session)
	c.JSON(http.StatusOK, session)
}

// AddComment appends a timestamped comment to a live session.
func (h *SessionHandler) AddComment(c *gin.Context) {
	sessionID := c.Param("session_id")
	userID := c.GetString("userID")

	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "session not found"})
		return
	}
	if !session.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a session participant"})
		return
	}

	comment := models.Comment{Text: req.Text, By: userID, At: time.Now().UTC()}
	if err := h.sessions.AddComment(c.Request.Context(), sessionID, comment); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add comment"})
		return
	}

	session.Comments = append(session.Comments, comment)
	h.refreshParticipants(c, session)
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) confirmError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repositories.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, repositories.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a session participant"})
	case errors.Is(err, repositories.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update session"})
	}
}

// refreshParticipants pushes a fresh session snapshot to both sides so
// every open client re-derives its groupings from the same data.
func (h *SessionHandler) refreshParticipants(c *gin.Context, session models.Session) {
	for _, userID := range session.Participants() {
		sessions, err := h.sessions.ListByUser(c.Request.Context(), userID)
		if err != nil {
			h.log.Warnw("session snapshot push failed", "userId", userID, "error", err)
			continue
		}
		for i := range sessions {
			sessions[i].Unread = unread.Unread(sessions[i], userID)
		}
		h.hub.SessionUpdate(userID, sessions)
	}
}
