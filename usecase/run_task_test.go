package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/domain"
	"github.com/vitovidale/autosplit-service/usecase"
	"github.com/vitovidale/autosplit-service/usecase/mocks"
)

type runnerFixture struct {
	accounts  *mocks.AccountRepository
	configs   *mocks.ConfigurationRepository
	pending   *mocks.PendingStore
	processor *mocks.VideoProcessor
	messenger *mocks.Messenger
	replies   *mocks.Replier
	publisher *mocks.Publisher
	runner    *usecase.TaskRunner
	finished  []*domain.VideoJob
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	f := &runnerFixture{
		accounts:  new(mocks.AccountRepository),
		configs:   new(mocks.ConfigurationRepository),
		pending:   new(mocks.PendingStore),
		processor: new(mocks.VideoProcessor),
		messenger: new(mocks.Messenger),
		replies:   new(mocks.Replier),
		publisher: new(mocks.Publisher),
	}
	f.runner = usecase.NewTaskRunner(f.accounts, f.configs, f.pending, f.processor, f.messenger, f.replies, f.publisher, zap.NewNop())
	f.runner.OnJobFinished = func(job *domain.VideoJob) { f.finished = append(f.finished, job) }
	t.Cleanup(func() {
		f.accounts.AssertExpectations(t)
		f.configs.AssertExpectations(t)
		f.pending.AssertExpectations(t)
		f.processor.AssertExpectations(t)
		f.messenger.AssertExpectations(t)
		f.replies.AssertExpectations(t)
		f.publisher.AssertExpectations(t)
	})
	return f
}

var testOrigin = domain.Origin{SenderID: "s1", Reference: domain.VideoReference{Kind: domain.ReferenceAttachment, ID: "r1", URL: "https://cdn.example/r1"}, Timestamp: 100}

func defaultTask() domain.Task {
	return domain.Task{ID: "task-default", Kind: domain.TaskDefault, UserID: "user-1", Origin: testOrigin}
}

func TestRunDefault_RemovesOwnPendingAndUsesDefaultConfig(t *testing.T) {
	f := newRunnerFixture(t)
	account := &domain.Account{ID: "user-1", DefaultConfigID: "cfg-A"}
	cfg := &domain.Configuration{ID: "cfg-A", Name: "A"}
	job := &domain.VideoJob{ID: "job-1", Status: domain.VideoStatusCompleted}

	f.pending.On("Delete", mock.Anything, "s1", testOrigin.Reference, "task-default").Return(true, nil).Once()
	f.accounts.On("FindByID", mock.Anything, "user-1").Return(account, nil).Once()
	f.configs.On("FindByID", mock.Anything, "cfg-A").Return(cfg, nil).Once()
	f.processor.On("Execute", mock.Anything, usecase.ProcessVideoInput{Account: *account, Config: *cfg, Origin: testOrigin, TaskID: "task-default"}).
		Return(job, nil).Once()

	require.NoError(t, f.runner.Run(context.Background(), defaultTask()))
	assert.Equal(t, []*domain.VideoJob{job}, f.finished)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunDefault_NoDefaultConfigurationReplies(t *testing.T) {
	f := newRunnerFixture(t)
	f.pending.On("Delete", mock.Anything, "s1", testOrigin.Reference, "task-default").Return(true, nil).Once()
	f.accounts.On("FindByID", mock.Anything, "user-1").Return(&domain.Account{ID: "user-1"}, nil).Once()
	f.replies.On("Reply", mock.Anything, "s1", []domain.ReplyMessage{domain.TextReply(usecase.ReplyNoDefault)}).
		Return(nil).Once()

	require.NoError(t, f.runner.Run(context.Background(), defaultTask()))
	f.processor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestRunDefault_LostClaimIsDropped(t *testing.T) {
	f := newRunnerFixture(t)
	f.pending.On("Delete", mock.Anything, "s1", testOrigin.Reference, "task-default").Return(false, nil).Once()
	f.accounts.On("FindByID", mock.Anything, "user-1").Return(&domain.Account{ID: "user-1", DefaultConfigID: "cfg-A"}, nil).Once()
	f.configs.On("FindByID", mock.Anything, "cfg-A").Return(&domain.Configuration{ID: "cfg-A"}, nil).Once()
	f.processor.On("Execute", mock.Anything, mock.Anything).Return(nil, domain.ErrAlreadyClaimed).Once()

	require.NoError(t, f.runner.Run(context.Background(), defaultTask()))
	assert.Empty(t, f.finished)
}

func TestRunWithConfig_PublishesCompletedJob(t *testing.T) {
	f := newRunnerFixture(t)
	account := &domain.Account{ID: "user-1", AccessToken: "ig-token"}
	cfg := &domain.Configuration{ID: "cfg-B"}
	job := &domain.VideoJob{ID: "job-1", Status: domain.VideoStatusCompleted}

	f.accounts.On("FindByID", mock.Anything, "user-1").Return(account, nil).Once()
	f.configs.On("FindByID", mock.Anything, "cfg-B").Return(cfg, nil).Once()
	f.processor.On("Execute", mock.Anything, mock.Anything).Return(job, nil).Once()
	f.publisher.On("Publish", mock.Anything, *account, job).Return("", errors.New("container expired")).Once()

	task := domain.Task{ID: "task-b", Kind: domain.TaskProcess, UserID: "user-1", ConfigID: "cfg-B", Origin: testOrigin}
	require.NoError(t, f.runner.Run(context.Background(), task))
	f.pending.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunWithConfig_FailedJobIsNotPublished(t *testing.T) {
	f := newRunnerFixture(t)
	f.accounts.On("FindByID", mock.Anything, "user-1").Return(&domain.Account{ID: "user-1", AccessToken: "ig-token"}, nil).Once()
	f.configs.On("FindByID", mock.Anything, "cfg-B").Return(&domain.Configuration{ID: "cfg-B"}, nil).Once()
	f.processor.On("Execute", mock.Anything, mock.Anything).
		Return(&domain.VideoJob{ID: "job-1", Status: domain.VideoStatusFailed}, nil).Once()

	task := domain.Task{ID: "task-b", Kind: domain.TaskProcess, UserID: "user-1", ConfigID: "cfg-B", Origin: testOrigin}
	require.NoError(t, f.runner.Run(context.Background(), task))
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_ReplyTaskSendsMessage(t *testing.T) {
	f := newRunnerFixture(t)
	msg := domain.TextReply("hi")
	f.messenger.On("Send", mock.Anything, "s1", msg).Return(nil).Once()

	require.NoError(t, f.runner.Run(context.Background(), domain.Task{ID: "r", Kind: domain.TaskReply, Recipient: "s1", Message: &msg}))
}

func TestRun_UnknownKind(t *testing.T) {
	f := newRunnerFixture(t)
	assert.Error(t, f.runner.Run(context.Background(), domain.Task{ID: "x", Kind: "mystery"}))
}

// memoryJobs is a JobRepository that keeps every row it was given.
type memoryJobs struct {
	mu   sync.Mutex
	rows map[string]*domain.VideoJob
}

func newMemoryJobs() *memoryJobs {
	return &memoryJobs{rows: map[string]*domain.VideoJob{}}
}

func (m *memoryJobs) Create(_ context.Context, job *domain.VideoJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := *job
	m.rows[job.ID] = &row
	return nil
}

func (m *memoryJobs) update(ctx context.Context, jobID string, apply func(*domain.VideoJob)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[jobID]
	if !ok {
		return fmt.Errorf("%w: video job %s", domain.ErrNotFound, jobID)
	}
	apply(row)
	return nil
}

func (m *memoryJobs) UpdateStatus(ctx context.Context, jobID string, status domain.VideoStatus, errorMessage string) error {
	return m.update(ctx, jobID, func(j *domain.VideoJob) { j.Status, j.ErrorMessage = status, errorMessage })
}

func (m *memoryJobs) UpdateCaption(ctx context.Context, jobID, caption string) error {
	return m.update(ctx, jobID, func(j *domain.VideoJob) { j.Caption = caption })
}

func (m *memoryJobs) AssignGameplay(ctx context.Context, jobID, gameplayID string) error {
	return m.update(ctx, jobID, func(j *domain.VideoJob) { j.GameplayID = gameplayID })
}

func (m *memoryJobs) FindByID(_ context.Context, jobID string) (*domain.VideoJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	job := *row
	return &job, nil
}

func (m *memoryJobs) FindByUserID(_ context.Context, userID string) ([]domain.VideoJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []domain.VideoJob
	for _, row := range m.rows {
		if row.UserID == userID {
			jobs = append(jobs, *row)
		}
	}
	return jobs, nil
}

// memoryClaims mirrors the redis claim semantics, including takeover of
// claims held by revoked tasks.
type memoryClaims struct {
	mu      sync.Mutex
	owners  map[string]string
	done    map[string]bool
	revoked map[string]bool
}

func newMemoryClaims() *memoryClaims {
	return &memoryClaims{owners: map[string]string{}, done: map[string]bool{}, revoked: map[string]bool{}}
}

func (m *memoryClaims) revoke(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[taskID] = true
}

func (m *memoryClaims) Claim(_ context.Context, key, owner string, takeover bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	holder, held := m.owners[key]
	switch {
	case !held:
	case m.done[key]:
		return false, nil
	case holder == owner:
		return true, nil
	case takeover && m.revoked[holder]:
	default:
		return false, nil
	}
	m.owners[key] = owner
	return true, nil
}

func (m *memoryClaims) Finish(_ context.Context, key, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owners[key] != owner {
		return false, nil
	}
	m.done[key] = true
	return true, nil
}

func TestRun_RedirectTakesOverRevokedDefault(t *testing.T) {
	f := newRunnerFixture(t)
	jobs := newMemoryJobs()
	claims := newMemoryClaims()
	acquirer := new(mocks.Acquirer)
	files := new(mocks.FileStore)
	ids := []string{"job-default", "job-redirect"}
	processor := usecase.NewProcessVideoUseCase(jobs, f.configs, claims, acquirer, new(mocks.Composer), files,
		func() string { id := ids[0]; ids = ids[1:]; return id }, zap.NewNop())
	f.runner.Processor = processor

	account := &domain.Account{ID: "user-1", DefaultConfigID: "cfg-A"}
	f.accounts.On("FindByID", mock.Anything, "user-1").Return(account, nil).Twice()
	f.configs.On("FindByID", mock.Anything, "cfg-A").Return(&domain.Configuration{ID: "cfg-A"}, nil).Once()
	f.configs.On("FindByID", mock.Anything, "cfg-B").Return(&domain.Configuration{ID: "cfg-B"}, nil).Once()
	f.pending.On("Delete", mock.Anything, "s1", testOrigin.Reference, "task-default").Return(true, nil).Once()
	files.On("DownloadPath", mock.Anything).Return("/reels/src.mp4")
	files.On("Remove", mock.Anything).Return(nil)
	files.On("CopyToOutput", "/reels/src.mp4", "job-redirect").Return("/outputs/job-redirect.mp4", nil).Once()

	defaultCtx, cancelDefault := context.WithCancel(context.Background())
	defer cancelDefault()
	// The sender names a configuration while the default is streaming: the
	// default is revoked and its context cancelled mid-acquisition.
	acquirer.On("Acquire", mock.Anything, testOrigin.Reference, "/reels/src.mp4", mock.Anything).
		Run(func(args mock.Arguments) {
			require.NoError(t, args.Get(3).(func() error)())
			claims.revoke("task-default")
			cancelDefault()
		}).
		Return(usecase.Acquired{}, fmt.Errorf("%w: %w", domain.ErrDownloadFailed, context.Canceled)).Once()
	acquirer.On("Acquire", mock.Anything, testOrigin.Reference, "/reels/src.mp4", mock.Anything).
		Run(func(args mock.Arguments) {
			require.NoError(t, args.Get(3).(func() error)())
		}).
		Return(usecase.Acquired{Path: "/reels/src.mp4"}, nil).Once()

	err := f.runner.Run(defaultCtx, defaultTask())
	assert.ErrorIs(t, err, context.Canceled)

	redirect := domain.Task{ID: "task-redirect", Kind: domain.TaskProcess, UserID: "user-1", ConfigID: "cfg-B", Origin: testOrigin}
	require.NoError(t, f.runner.Run(context.Background(), redirect))

	completed := 0
	for id, row := range jobs.rows {
		assert.True(t, row.Status.IsTerminal(), "job %s left in %s", id, row.Status)
		if row.Status == domain.VideoStatusCompleted {
			completed++
			assert.Equal(t, "cfg-B", row.ConfigID)
		}
	}
	assert.Equal(t, 1, completed)
	assert.Equal(t, domain.VideoStatusFailed, jobs.rows["job-default"].Status)
	assert.Equal(t, domain.FailureAborted, jobs.rows["job-default"].ErrorMessage)
	require.Len(t, f.finished, 2)

	// A late redelivery of either task finds the origin finished.
	_, err = processor.Execute(context.Background(), usecase.ProcessVideoInput{Origin: testOrigin, TaskID: "task-default"})
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	acquirer.AssertExpectations(t)
	files.AssertExpectations(t)
}

func TestRun_RequeuedDefaultReclaimsItsOrigin(t *testing.T) {
	f := newRunnerFixture(t)
	jobs := newMemoryJobs()
	claims := newMemoryClaims()
	acquirer := new(mocks.Acquirer)
	files := new(mocks.FileStore)
	ids := []string{"job-1", "job-2"}
	f.runner.Processor = usecase.NewProcessVideoUseCase(jobs, f.configs, claims, acquirer, new(mocks.Composer), files,
		func() string { id := ids[0]; ids = ids[1:]; return id }, zap.NewNop())

	f.accounts.On("FindByID", mock.Anything, "user-1").Return(&domain.Account{ID: "user-1", DefaultConfigID: "cfg-A"}, nil).Twice()
	f.configs.On("FindByID", mock.Anything, "cfg-A").Return(&domain.Configuration{ID: "cfg-A"}, nil).Twice()
	f.pending.On("Delete", mock.Anything, "s1", testOrigin.Reference, "task-default").Return(true, nil).Once()
	f.pending.On("Delete", mock.Anything, "s1", testOrigin.Reference, "task-default").Return(false, nil).Once()
	files.On("DownloadPath", mock.Anything).Return("/reels/src.mp4")
	files.On("Remove", mock.Anything).Return(nil)
	files.On("CopyToOutput", "/reels/src.mp4", "job-2").Return("/outputs/job-2.mp4", nil).Once()

	shutdownCtx, shutdown := context.WithCancel(context.Background())
	acquirer.On("Acquire", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { shutdown() }).
		Return(usecase.Acquired{}, context.Canceled).Once()
	acquirer.On("Acquire", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(usecase.Acquired{Path: "/reels/src.mp4"}, nil).Once()

	assert.ErrorIs(t, f.runner.Run(shutdownCtx, defaultTask()), context.Canceled)
	require.NoError(t, f.runner.Run(context.Background(), defaultTask()))

	assert.Equal(t, domain.VideoStatusFailed, jobs.rows["job-1"].Status)
	assert.Equal(t, domain.VideoStatusCompleted, jobs.rows["job-2"].Status)
	acquirer.AssertExpectations(t)
}
