// Package mocks provides testify mocks for the service's interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/openshelf/openshelf/internal/db"
	"github.com/stretchr/testify/mock"
)

// MockTaskQueue is a mock implementation of the backfill.TaskQueue interface
type MockTaskQueue struct {
	mock.Mock
}

func (m *MockTaskQueue) InsertTask(ctx context.Context, task *db.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskQueue) FetchQueuedTasks(ctx context.Context, limit int) ([]*db.Task, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*db.Task), args.Error(1)
}

func (m *MockTaskQueue) MarkCompleted(ctx context.Context, taskID string) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

func (m *MockTaskQueue) RecordFailure(ctx context.Context, taskID, errMsg string) (bool, error) {
	args := m.Called(ctx, taskID, errMsg)
	return args.Bool(0), args.Error(1)
}

func (m *MockTaskQueue) Requeue(ctx context.Context, taskID string) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

func (m *MockTaskQueue) GetQueueStats(ctx context.Context, window time.Duration) (*db.QueueStats, error) {
	args := m.Called(ctx, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.QueueStats), args.Error(1)
}

func (m *MockTaskQueue) RetryFailedTasks(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTaskQueue) ReclaimStaleTasks(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}
