package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"session-service/internal/models"
)

type SessionRepositoryMock struct {
	mock.Mock
}

func (m *SessionRepositoryMock) Create(ctx context.Context, s models.Session) (models.Session, error) {
	args := m.Called(ctx, s)
	return sessionArg(args, 0), args.Error(1)
}

func (m *SessionRepositoryMock) Get(ctx context.Context, id string) (models.Session, error) {
	args := m.Called(ctx, id)
	return sessionArg(args, 0), args.Error(1)
}

func (m *SessionRepositoryMock) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	args := m.Called(ctx, userID)
	var list []models.Session
	if val := args.Get(0); val != nil {
		list = val.([]models.Session)
	}
	return list, args.Error(1)
}

func (m *SessionRepositoryMock) ListLive(ctx context.Context) ([]models.Session, error) {
	args := m.Called(ctx)
	var list []models.Session
	if val := args.Get(0); val != nil {
		list = val.([]models.Session)
	}
	return list, args.Error(1)
}

func (m *SessionRepositoryMock) UpdateStatus(ctx context.Context, id string, status models.Status) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *SessionRepositoryMock) SetLiveStatus(ctx context.Context, id string, ls models.LiveStatus) error {
	args := m.Called(ctx, id, ls)
	return args.Error(0)
}

func (m *SessionRepositoryMock) ConfirmStart(ctx context.Context, id, userID string, at time.Time) (models.Session, bool, error) {
	args := m.Called(ctx, id, userID, at)
	return sessionArg(args, 0), args.Bool(1), args.Error(2)
}

func (m *SessionRepositoryMock) ConfirmEnd(ctx context.Context, id, userID string, at time.Time) (models.Session, bool, error) {
	args := m.Called(ctx, id, userID, at)
	return sessionArg(args, 0), args.Bool(1), args.Error(2)
}

func (m *SessionRepositoryMock) SetChecklist(ctx context.Context, id string, items models.Checklist) error {
	args := m.Called(ctx, id, items)
	return args.Error(0)
}

func (m *SessionRepositoryMock) AddComment(ctx context.Context, id string, comment models.Comment) error {
	args := m.Called(ctx, id, comment)
	return args.Error(0)
}

func (m *SessionRepositoryMock) SetLastMessage(ctx context.Context, id string, at time.Time, by string) error {
	args := m.Called(ctx, id, at, by)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, sessionID, userID, body string) (models.Message, error) {
	args := m.Called(ctx, sessionID, userID, body)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListBySession(ctx context.Context, sessionID string) ([]models.Message, error) {
	args := m.Called(ctx, sessionID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, sessionID, userID string, at time.Time) error {
	args := m.Called(ctx, sessionID, userID, at)
	return args.Error(0)
}

func sessionArg(args mock.Arguments, index int) models.Session {
	var s models.Session
	if val := args.Get(index); val != nil {
		s = val.(models.Session)
	}
	return s
}
