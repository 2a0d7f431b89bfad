package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"session-service/internal/mocks"
	"session-service/internal/models"
	"session-service/internal/repositories"
	"session-service/internal/ws"
)

func setupSessionRouter(repo *mocks.SessionRepositoryMock, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop().Sugar()
	h := NewSessionHandler(repo, ws.NewHub(logger), logger)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	})
	router.GET("/sessions", h.ListSessions)
	router.POST("/sessions", h.RequestSession)
	router.POST("/sessions/:session_id/accept", h.AcceptSession)
	router.POST("/sessions/:session_id/reject", h.RejectSession)
	router.POST("/sessions/:session_id/decline", h.DeclineSession)
	router.POST("/sessions/:session_id/cancel", h.CancelSession)
	router.POST("/sessions/:session_id/confirm-start", h.ConfirmStart)
	router.POST("/sessions/:session_id/confirm-end", h.ConfirmEnd)
	router.PUT("/sessions/:session_id/checklist", h.UpdateChecklist)
	router.POST("/sessions/:session_id/comments", h.AddComment)
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListSessionsMarksUnread(t *testing.T) {
	repo := new(mocks.SessionRepositoryMock)
	lastMsg := time.Now().Add(-time.Minute)
	repo.On("ListByUser", mock.Anything, "psw").Return([]models.Session{
		{
			ID:            "s1",
			SenderID:      "seeker",
			ReceiverID:    "psw",
			LastMessageAt: &lastMsg,
			LastMessageBy: "seeker",
		},
		{ID: "s2", SenderID: "seeker", ReceiverID: "psw"},
	}, nil)

	router := setupSessionRouter(repo, "psw")
	w := doJSON(router, http.MethodGet, "/sessions", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Sessions []models.Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 2)
	assert.True(t, resp.Sessions[0].Unread)
	assert.False(t, resp.Sessions[1].Unread)
	repo.AssertExpectations(t)
}

func TestListSessionsRepoError(t *testing.T) {
	repo := new(mocks.SessionRepositoryMock)
	repo.On("ListByUser", mock.Anything, "psw").Return(nil, assert.AnError)

	router := setupSessionRouter(repo, "psw")
	w := doJSON(router, http.MethodGet, "/sessions", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequestSessionCreatesNewRequest(t *testing.T) {
	repo := new(mocks.SessionRepositoryMock)
	start := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	end := start.Add(2 * time.Hour)

	repo.On("Create", mock.Anything, mock.MatchedBy(func(s models.Session) bool {
		return s.SenderID == "seeker" &&
			s.ReceiverID == "psw" &&
			s.Status == models.StatusNewRequest &&
			s.LiveStatus == models.LiveUpcoming &&
			s.ID != ""
	})).Return(models.Session{ID: "s1", SenderID: "seeker", ReceiverID: "psw", Status: models.StatusNewRequest}, nil)
	repo.On("ListByUser", mock.Anything, mock.AnythingOfType("string")).Return([]models.Session{}, nil)

	router := setupSessionRouter(repo, "seeker")
	w := doJSON(router, http.MethodPost, "/sessions", gin.H{
		"receiverId": "psw",
		"startTime":  start.Format(time.RFC3339),
		"endTime":    end.Format(time.RFC3339),
		"note":       "Morning care",
		"hourlyRate": 30,
	})

	require.Equal(t, http.StatusCreated, w.Code)
	repo.AssertExpectations(t)
}

func TestRequestSessionComputesBilling(t *testing.T) {
	repo := new(mocks.SessionRepositoryMock)
	start := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	end := start.Add(2 * time.Hour)

	repo.On("Create", mock.Anything, mock.MatchedBy(func(s models.Session) bool {
		return s.Billing.BasePrice == 60 &&
			s.Billing.Taxes == 7.8 &&
			s.Billing.ServiceFee == 6 &&
			s.Billing.Total == 73.8
	})).Return(models.Session{ID: "s1", SenderID: "seeker", ReceiverID: "psw"}, nil)
	repo.On("ListByUser", mock.Anything, mock.AnythingOfType("string")).Return([]models.Session{}, nil)

	router := setupSessionRouter(repo, "seeker")
	w := doJSON(router, http.MethodPost, "/sessions", gin.H{
		"receiverId": "psw",
		"startTime":  start.Format(time.RFC3339),
		"endTime":    end.Format(time.RFC3339),
		"hourlyRate": 30,
	})

	require.Equal(t, http.StatusCreated, w.Code)
	repo.AssertExpectations(t)
}

func TestRequestSessionRejectsSelf(t *testing.T) {
	repo := new(mocks.SessionRepositoryMock)
	router := setupSessionRouter(repo, "seeker")

	w := doJSON(router, http.MethodPost, "/sessions", gin.H{
		"receiverId": "seeker",
		"startTime":  time.Now().Add(time.Hour).Format(time.RFC3339),
		"endTime":    time.Now().Add(2 * time.Hour).Format(time.RFC3339),
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	repo.AssertNotCalled(t, "Create")
}

func TestRequestSessionRejectsBackwardsWindow(t *testing.T) {
	repo := new(mocks.SessionRepositoryMock)
	router := setupSessionRouter(repo, "seeker")

	start := time.Now().Add(2 * time.Hour)
	w := doJSON(router, http.MethodPost, "/sessions", gin.H{
		"receiverId": "psw",
		"startTime":  start.Format(time.RFC3339),
		"endTime":    start.Add(-time.Hour).Format(time.RFC3339),
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	repo.AssertNotCalled(t, "Create")
}

func TestAcceptSession(t *testing.T) {
	repo := new(mocks.SessionRepositoryMock)
	repo.On("Get", mock.Anything, "s1").Return(models.Session{
		ID: "s1", SenderID: "seeker", ReceiverID: "psw", Status: models.StatusNewRequest,
	}, nil)
	repo.On("UpdateStatus", mock.Anything, "s1", models.StatusConfirmed).Return(nil)
	repo.On("ListByUser", mock.Anything, mock.AnythingOfType("string")).Return([]models.Session{}, nil)

	router := setupSessionRouter(repo, "psw")
	w := doJSON(router, http.MethodPost, "/sessions/s1/accept", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var got models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, models.StatusConfirmed, got.Status)
	repo.AssertExpectations(t)
}

func TestAcceptSessionSenderForbidden(t *testing.T) {
	repo := new(mocks.SessionRepositoryMock)
	repo.On("Get", mock.Anything, "s1").Return(models.Session{
		ID: "s1", SenderID: "seeker", ReceiverID: "psw", Status: models.StatusNewRequest,
	}, nil)

	router := setupSessionRouter(repo, "seeker")
	w := doJSON(router, http.MethodPost, "/sessions/s1/accept", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	repo.AssertNotCalled(t, "UpdateStatus")
}

func TestAcceptSessionInvalidState(t *testing.T) {
	repo := new(mocks.SessionRepositoryMock)
	repo.On("Get", mock.Anything, "s1").Return(models.Session{
		ID: "s1", SenderID: "seeker", ReceiverID: "psw", Status: models.StatusCompleted,
	}, nil)

	router := setupSessionRouter(repo, "psw")
	w := doJSON(router, http.MethodPost, "/sessions/s1/accept", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTransitionOutsiderForbidden(t *testing.T) {
	repo := new(mocks.SessionRepositoryMock)
	repo.On("Get", mock.Anything, "s1").Return(models.Session{
		ID: "s1", SenderID: "seeker", ReceiverID: "psw", Status: models.StatusPending,
	}, nil)

	router := setupSessionRouter(repo, "stranger")
	w := doJSON(router, http.MethodPost, "/sessions/s1/cancel", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTransitionSessionNotFound(t *testing.T) {
	repo := new(mocks.SessionRepositoryMock)
	repo.On("Get", mock.Anything, "missing").Return(models.Session{}, repositories.ErrSessionNotFound)

	router := setupSessionRouter(repo, "psw")
	w := doJSON(router, http.MethodPost, "/sessions/missing/cancel", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelSessionTerminalStateConflict(t *testing.T) {
	repo := new(mocks.SessionRepositoryMock)
	repo.On("Get", mock.Anything, "s1").Return(models.Session{
		ID: "s1", SenderID: "seeker", ReceiverID: "psw", Status: models.StatusCancelled,
	}, nil)

	router := setupSessionRouter(repo, "psw")
	w := doJSON(router, http.MethodPost, "/sessions/s1/cancel", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestConfirmStartFirstConfirmation(t *testing.T) {
	repo := new(mocks.SessionRepositoryMock)
	repo.On("ConfirmStart", mock.Anything, "s1", "seeker", mock.AnythingOfType("time.Time")).
		Return(models.Session{
			ID: "s1", SenderID: "seeker", ReceiverID: "psw",
			Status:         models.StatusConfirmed,
			StartConfirmed: models.StringSet{"seeker"},
		}, false, nil)

	router := setupSessionRouter(repo, "seeker")
	w := doJSON(router, http.MethodPost, "/sessions/s1/confirm-start", nil)

	require.Equal(t, http.StatusOK, w.Code)
	repo.AssertNotCalled(t, "ListByUser")
}

func TestConfirmStartBothSidesGoLive(t *testing.T) {
	repo := new(mocks.SessionRepositoryMock)
	started := time.Now().UTC()
	repo.On("ConfirmStart", mock.Anything, "s1", "psw", mock.AnythingOfType("time.Time")).
		Return(models.Session{
			ID: "s1", SenderID: "seeker", ReceiverID: "psw",
			Status:          models.StatusInProgress,
			LiveStatus:      models.LiveStarted,
			ActualStartTime: &started,
			StartConfirmed:  models.StringSet{"seeker", "psw"},
		}, true, nil)
	repo.On("ListByUser", mock.Anything, mock.AnythingOfType("string")).Return([]models.Session{}, nil)

	router := setupSessionRouter(repo, "psw")
	w := doJSON(router, http.MethodPost, "/sessions/s1/confirm-start", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var got models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, models.LiveStarted, got.LiveStatus)
	repo.AssertExpectations(t)
}

func TestConfirmStartBeforeAcceptConflict(t *testing.T) {
	repo := new(mocks.SessionRepositoryMock)
	repo.On("ConfirmStart", mock.Anything, "s1", "psw", mock.AnythingOfType("time.Time")).
		Return(models.Session{}, false, repositories.ErrInvalidTransition)

	router := setupSessionRouter(repo, "psw")
	w := doJSON(router, http.MethodPost, "/sessions/s1/confirm-start", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestConfirmEndBothSidesComplete(t *testing.T) {
	repo := new(mocks.SessionRepositoryMock)
	ended := time.Now().UTC()
	repo.On("ConfirmEnd", mock.Anything, "s1", "psw", mock.AnythingOfType("time.Time")).
		Return(models.Session{
			ID: "s1", SenderID: "seeker", ReceiverID: "psw",
			Status:        models.StatusCompleted,
			LiveStatus:    models.LiveCompleted,
			ActualEndTime: &ended,
			EndConfirmed:  models.StringSet{"seeker", "psw"},
		}, true, nil)
	repo.On("ListByUser", mock.Anything, mock.AnythingOfType("string")).Return([]models.Session{}, nil)

	router := setupSessionRouter(repo, "psw")
	w := doJSON(router, http.MethodPost, "/sessions/s1/confirm-end", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var got models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, models.StatusCompleted, got.Status)
	repo.AssertExpectations(t)
}

func TestUpdateChecklist(t *testing.T) {
	repo := new(mocks.SessionRepositoryMock)
	repo.On("Get", mock.Anything, "s1").Return(models.Session{
		ID: "s1", SenderID: "seeker", ReceiverID: "psw", Status: models.StatusInProgress,
	}, nil)
	repo.On("SetChecklist", mock.Anything, "s1", mock.AnythingOfType("models.Checklist")).Return(nil)
	repo.On("ListByUser", mock.Anything, mock.AnythingOfType("string")).Return([]models.Session{}, nil)

	router := setupSessionRouter(repo, "psw")
	w := doJSON(router, http.MethodPut, "/sessions/s1/checklist", gin.H{
		"checklist": []gin.H{{"id": "c1", "task": "Medication", "checked": true}},
	})

	require.Equal(t, http.StatusOK, w.Code)
	var got models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Checklist, 1)
	assert.True(t, got.Checklist[0].Checked)
	repo.AssertExpectations(t)
}

func TestAddComment(t *testing.T) {
	repo := new(mocks.SessionRepositoryMock)
	repo.On("Get", mock.Anything, "s1").Return(models.Session{
		ID: "s1", SenderID: "seeker", ReceiverID: "psw", Status: models.StatusInProgress,
	}, nil)
	repo.On("AddComment", mock.Anything, "s1", mock.MatchedBy(func(cm models.Comment) bool {
		return cm.Text == "All good" && cm.By == "psw"
	})).Return(nil)
	repo.On("ListByUser", mock.Anything, mock.AnythingOfType("string")).Return([]models.Session{}, nil)

	router := setupSessionRouter(repo, "psw")
	w := doJSON(router, http.MethodPost, "/sessions/s1/comments", gin.H{"text": "All good"})

	require.Equal(t, http.StatusOK, w.Code)
	repo.AssertExpectations(t)
}
