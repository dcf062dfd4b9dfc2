package chathub_test

import (
	"context"
	"time"

	"randomchat/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockStorage is a testify/mock implementation of storage.Storage.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) EnsureUser(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockStorage) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) PairOrQueue(ctx context.Context, userID int64, now time.Time) (int64, bool, error) {
	args := m.Called(ctx, userID, now)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockStorage) Disconnect(ctx context.Context, userID int64) (int64, bool, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockStorage) ExpireSearching(ctx context.Context, queuedBefore time.Time) ([]int64, error) {
	args := m.Called(ctx, queuedBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockStorage) SetMuted(ctx context.Context, userID int64, muted bool) error {
	args := m.Called(ctx, userID, muted)
	return args.Error(0)
}

func (m *MockStorage) SetGender(ctx context.Context, userID int64, gender models.Gender) error {
	args := m.Called(ctx, userID, gender)
	return args.Error(0)
}

func (m *MockStorage) CountByStatus(ctx context.Context) (models.StatusCounts, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.StatusCounts), args.Error(1)
}

func (m *MockStorage) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
