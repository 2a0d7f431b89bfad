package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"session-service/internal/models"
)

func newTestStore() *Store {
	return New(zap.NewNop().Sugar())
}

func makeSession(id string, status models.Status, start time.Time) models.Session {
	return models.Session{
		ID:         id,
		SenderID:   "seeker-1",
		ReceiverID: "psw-1",
		Status:     status,
		LiveStatus: models.LiveUpcoming,
		StartTime:  start,
		EndTime:    start.Add(2 * time.Hour),
	}
}

func TestSetIsIdempotent(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	snapshot := []models.Session{
		makeSession("a", models.StatusConfirmed, now),
		makeSession("b", models.StatusPending, now.Add(time.Hour)),
		makeSession("c", models.StatusNewRequest, now.Add(2*time.Hour)),
	}

	s.Set(snapshot)
	first := s.All()
	firstConfirmed := s.Confirmed()

	s.Set(snapshot)
	assert.Equal(t, first, s.All())
	assert.Equal(t, firstConfirmed, s.Confirmed())
}

func TestSetDropsSessionsWithoutID(t *testing.T) {
	s := newTestStore()
	s.Set([]models.Session{
		makeSession("a", models.StatusConfirmed, time.Now()),
		{SenderID: "seeker-1", ReceiverID: "psw-1", Status: models.StatusPending},
	})

	assert.Equal(t, 1, s.Len())
	_, ok := s.Get("a")
	assert.True(t, ok)
}

func TestApplyUnknownIDIsNoOp(t *testing.T) {
	s := newTestStore()
	s.Set([]models.Session{makeSession("a", models.StatusConfirmed, time.Now())})
	before := s.All()

	started := models.LiveStarted
	s.Apply("missing", Patch{LiveStatus: &started})

	assert.Equal(t, before, s.All())
}

func TestApplySessionStarted(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	s.Set([]models.Session{
		makeSession("abc", models.StatusConfirmed, now),
		makeSession("other", models.StatusConfirmed, now.Add(time.Hour)),
	})

	actualStart, err := time.Parse(time.RFC3339, "2024-01-01T10:00:00Z")
	require.NoError(t, err)
	started := models.LiveStarted
	s.Apply("abc", Patch{LiveStatus: &started, ActualStartTime: &actualStart})

	patched, ok := s.Get("abc")
	require.True(t, ok)
	assert.Equal(t, models.LiveStarted, patched.LiveStatus)
	require.NotNil(t, patched.ActualStartTime)
	assert.True(t, patched.ActualStartTime.Equal(actualStart))

	other, ok := s.Get("other")
	require.True(t, ok)
	assert.Equal(t, models.LiveUpcoming, other.LiveStatus)
	assert.Nil(t, other.ActualStartTime)
}

func TestApplyLeavesLastMessageFieldsToSnapshots(t *testing.T) {
	s := newTestStore()
	lastMsg := time.Now().Add(-time.Minute)
	sess := makeSession("a", models.StatusInProgress, time.Now())
	sess.LastMessageAt = &lastMsg
	sess.LastMessageBy = "psw-1"
	s.Set([]models.Session{sess})

	started := models.LiveStarted
	s.Apply("a", Patch{LiveStatus: &started})

	got, ok := s.Get("a")
	require.True(t, ok)
	require.NotNil(t, got.LastMessageAt)
	assert.True(t, got.LastMessageAt.Equal(lastMsg))
	assert.Equal(t, "psw-1", got.LastMessageBy)
}

func TestDerivedGroupings(t *testing.T) {
	s := newTestStore()
	now := time.Now()

	req := makeSession("req", models.StatusNewRequest, now)
	req.ReceiverID = "me"
	outbound := makeSession("outbound", models.StatusNewRequest, now)
	outbound.SenderID = "me"
	outbound.ReceiverID = "someone-else"

	s.Set([]models.Session{
		req,
		outbound,
		makeSession("pending", models.StatusPending, now),
		makeSession("confirmed", models.StatusConfirmed, now),
		makeSession("done", models.StatusCompleted, now),
		makeSession("gone", models.StatusCancelled, now),
	})

	newRequests := s.NewRequests("me")
	require.Len(t, newRequests, 1)
	assert.Equal(t, "req", newRequests[0].ID)

	require.Len(t, s.Pending(), 1)
	require.Len(t, s.Confirmed(), 1)
	assert.Len(t, s.History(), 2)
}

func TestAllOrderedByStartTime(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	s.Set([]models.Session{
		makeSession("later", models.StatusConfirmed, now.Add(time.Hour)),
		makeSession("sooner", models.StatusConfirmed, now),
	})

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, "sooner", all[0].ID)
	assert.Equal(t, "later", all[1].ID)
}
