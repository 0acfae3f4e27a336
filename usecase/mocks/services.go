package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/vitovidale/autosplit-service/domain"
	"github.com/vitovidale/autosplit-service/layout"
	"github.com/vitovidale/autosplit-service/usecase"
)

// Mock Messenger
type Messenger struct {
	mock.Mock
}

func (m *Messenger) Send(ctx context.Context, recipient string, msg domain.ReplyMessage) error {
	args := m.Called(ctx, recipient, msg)
	return args.Error(0)
}

// Mock ProfileService
type ProfileService struct {
	mock.Mock
}

func (m *ProfileService) Username(ctx context.Context, senderID string) (string, error) {
	args := m.Called(ctx, senderID)
	return args.String(0), args.Error(1)
}

// Mock LinkResolver
type LinkResolver struct {
	mock.Mock
}

func (m *LinkResolver) Resolve(ctx context.Context, url string) (domain.ResolvedMedia, error) {
	args := m.Called(ctx, url)
	media, _ := args.Get(0).(domain.ResolvedMedia)
	return media, args.Error(1)
}

// Mock Downloader
type Downloader struct {
	mock.Mock
}

func (m *Downloader) Download(ctx context.Context, url, dest string, started func() error) error {
	args := m.Called(ctx, url, dest, started)
	return args.Error(0)
}

// Mock Scheduler
type Scheduler struct {
	mock.Mock
}

func (m *Scheduler) Schedule(ctx context.Context, account domain.Account, senderID string, ref domain.VideoReference, timestamp int64) (*domain.PendingAction, error) {
	args := m.Called(ctx, account, senderID, ref, timestamp)
	action, _ := args.Get(0).(*domain.PendingAction)
	return action, args.Error(1)
}
func (m *Scheduler) CancelAndRedirect(ctx context.Context, account domain.Account, senderID string, cfg domain.Configuration) (*domain.PendingAction, error) {
	args := m.Called(ctx, account, senderID, cfg)
	action, _ := args.Get(0).(*domain.PendingAction)
	return action, args.Error(1)
}

// Mock Replier
type Replier struct {
	mock.Mock
}

func (m *Replier) Reply(ctx context.Context, recipient string, messages ...domain.ReplyMessage) error {
	args := m.Called(ctx, recipient, messages)
	return args.Error(0)
}

// Mock Acquirer
type Acquirer struct {
	mock.Mock
}

func (m *Acquirer) Acquire(ctx context.Context, ref domain.VideoReference, dest string, started func() error) (usecase.Acquired, error) {
	args := m.Called(ctx, ref, dest, started)
	acquired, _ := args.Get(0).(usecase.Acquired)
	return acquired, args.Error(1)
}

// Mock Composer
type Composer struct {
	mock.Mock
}

func (m *Composer) Compose(ctx context.Context, primaryPath, gameplayPath string, l domain.Layout, outPath string) (layout.Plan, error) {
	args := m.Called(ctx, primaryPath, gameplayPath, l, outPath)
	plan, _ := args.Get(0).(layout.Plan)
	return plan, args.Error(1)
}

// Mock VideoProcessor
type VideoProcessor struct {
	mock.Mock
}

func (m *VideoProcessor) Execute(ctx context.Context, input usecase.ProcessVideoInput) (*domain.VideoJob, error) {
	args := m.Called(ctx, input)
	job, _ := args.Get(0).(*domain.VideoJob)
	return job, args.Error(1)
}

// Mock Publisher
type Publisher struct {
	mock.Mock
}

func (m *Publisher) Publish(ctx context.Context, account domain.Account, job *domain.VideoJob) (string, error) {
	args := m.Called(ctx, account, job)
	return args.String(0), args.Error(1)
}

// Mock ReelAPI
type ReelAPI struct {
	mock.Mock
}

func (m *ReelAPI) CreateReelContainer(ctx context.Context, accessToken, videoURL, caption string) (string, error) {
	args := m.Called(ctx, accessToken, videoURL, caption)
	return args.String(0), args.Error(1)
}
func (m *ReelAPI) ContainerStatus(ctx context.Context, accessToken, containerID string) (string, error) {
	args := m.Called(ctx, accessToken, containerID)
	return args.String(0), args.Error(1)
}
func (m *ReelAPI) PublishContainer(ctx context.Context, accessToken, containerID string) (string, error) {
	args := m.Called(ctx, accessToken, containerID)
	return args.String(0), args.Error(1)
}

// Mock MediaTool
type MediaTool struct {
	mock.Mock
}

func (m *MediaTool) Open(ctx context.Context, path string) (usecase.Clip, error) {
	args := m.Called(ctx, path)
	clip, _ := args.Get(0).(usecase.Clip)
	return clip, args.Error(1)
}
func (m *MediaTool) Render(ctx context.Context, plan layout.Plan, primary, gameplay usecase.Clip, outPath string) error {
	args := m.Called(ctx, plan, primary, gameplay, outPath)
	return args.Error(0)
}

// Mock Clip
type Clip struct {
	mock.Mock
	ClipPath     string
	ClipSize     layout.Size
	ClipDuration time.Duration
}

func (m *Clip) Path() string { return m.ClipPath }
func (m *Clip) Size() layout.Size { return m.ClipSize }
func (m *Clip) Duration() time.Duration { return m.ClipDuration }
func (m *Clip) Close() error { return m.Called().Error(0) }
