package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/vitovidale/autosplit-service/domain"
)

// Mock PendingStore
type PendingStore struct {
	mock.Mock
}

func (m *PendingStore) Put(ctx context.Context, action *domain.PendingAction) (*domain.PendingAction, error) {
	args := m.Called(ctx, action)
	replaced, _ := args.Get(0).(*domain.PendingAction)
	return replaced, args.Error(1)
}
func (m *PendingStore) Delete(ctx context.Context, senderID string, ref domain.VideoReference, taskID string) (bool, error) {
	args := m.Called(ctx, senderID, ref, taskID)
	return args.Bool(0), args.Error(1)
}
func (m *PendingStore) ListBySender(ctx context.Context, senderID string) ([]domain.PendingAction, error) {
	args := m.Called(ctx, senderID)
	actions, _ := args.Get(0).([]domain.PendingAction)
	return actions, args.Error(1)
}

// Mock ClaimStore
type ClaimStore struct {
	mock.Mock
}

func (m *ClaimStore) Claim(ctx context.Context, key, owner string, takeover bool) (bool, error) {
	args := m.Called(ctx, key, owner, takeover)
	return args.Bool(0), args.Error(1)
}

func (m *ClaimStore) Finish(ctx context.Context, key, owner string) (bool, error) {
	args := m.Called(ctx, key, owner)
	return args.Bool(0), args.Error(1)
}

// Mock TaskQueue
type TaskQueue struct {
	mock.Mock
}

func (m *TaskQueue) Enqueue(ctx context.Context, task domain.Task, delay time.Duration) (domain.TaskHandle, error) {
	args := m.Called(ctx, task, delay)
	handle, _ := args.Get(0).(domain.TaskHandle)
	return handle, args.Error(1)
}
func (m *TaskQueue) Revoke(ctx context.Context, taskID string) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

// Mock FileStore
type FileStore struct {
	mock.Mock
}

func (m *FileStore) DownloadPath(jobID string) string {
	return m.Called(jobID).String(0)
}
func (m *FileStore) GameplayPath(gameplayID string) string {
	return m.Called(gameplayID).String(0)
}
func (m *FileStore) OutputPath(jobID string) string {
	return m.Called(jobID).String(0)
}
func (m *FileStore) CopyToOutput(src, jobID string) (string, error) {
	args := m.Called(src, jobID)
	return args.String(0), args.Error(1)
}
func (m *FileStore) Remove(path string) error {
	return m.Called(path).Error(0)
}
