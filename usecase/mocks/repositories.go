package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/vitovidale/autosplit-service/domain"
)

// Mock JobRepository
type JobRepository struct {
	mock.Mock
}

func (m *JobRepository) Create(ctx context.Context, job *domain.VideoJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}
func (m *JobRepository) UpdateStatus(ctx context.Context, jobID string, status domain.VideoStatus, errorMessage string) error {
	args := m.Called(ctx, jobID, status, errorMessage)
	return args.Error(0)
}
func (m *JobRepository) UpdateCaption(ctx context.Context, jobID, caption string) error {
	args := m.Called(ctx, jobID, caption)
	return args.Error(0)
}
func (m *JobRepository) AssignGameplay(ctx context.Context, jobID, gameplayID string) error {
	args := m.Called(ctx, jobID, gameplayID)
	return args.Error(0)
}
func (m *JobRepository) FindByID(ctx context.Context, jobID string) (*domain.VideoJob, error) {
	args := m.Called(ctx, jobID)
	job, _ := args.Get(0).(*domain.VideoJob)
	return job, args.Error(1)
}
func (m *JobRepository) FindByUserID(ctx context.Context, userID string) ([]domain.VideoJob, error) {
	args := m.Called(ctx, userID)
	jobs, _ := args.Get(0).([]domain.VideoJob)
	return jobs, args.Error(1)
}

// Mock AccountRepository
type AccountRepository struct {
	mock.Mock
}

func (m *AccountRepository) FindByID(ctx context.Context, userID string) (*domain.Account, error) {
	args := m.Called(ctx, userID)
	acc, _ := args.Get(0).(*domain.Account)
	return acc, args.Error(1)
}
func (m *AccountRepository) FindBySenderID(ctx context.Context, senderID string) (*domain.Account, error) {
	args := m.Called(ctx, senderID)
	acc, _ := args.Get(0).(*domain.Account)
	return acc, args.Error(1)
}
func (m *AccountRepository) LinkSender(ctx context.Context, username, senderID string) (bool, error) {
	args := m.Called(ctx, username, senderID)
	return args.Bool(0), args.Error(1)
}

// Mock ConfigurationRepository
type ConfigurationRepository struct {
	mock.Mock
}

func (m *ConfigurationRepository) FindByID(ctx context.Context, configID string) (*domain.Configuration, error) {
	args := m.Called(ctx, configID)
	cfg, _ := args.Get(0).(*domain.Configuration)
	return cfg, args.Error(1)
}
func (m *ConfigurationRepository) ListByUser(ctx context.Context, userID string) ([]domain.Configuration, error) {
	args := m.Called(ctx, userID)
	configs, _ := args.Get(0).([]domain.Configuration)
	return configs, args.Error(1)
}
func (m *ConfigurationRepository) ListGameplays(ctx context.Context, configID string) ([]domain.Gameplay, error) {
	args := m.Called(ctx, configID)
	gameplays, _ := args.Get(0).([]domain.Gameplay)
	return gameplays, args.Error(1)
}
