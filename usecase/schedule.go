// usecase/schedule.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/domain"
)

type Scheduler interface {
	Schedule(ctx context.Context, account domain.Account, senderID string, ref domain.VideoReference, timestamp int64) (*domain.PendingAction, error)
	CancelAndRedirect(ctx context.Context, account domain.Account, senderID string, cfg domain.Configuration) (*domain.PendingAction, error)
}

// DebounceScheduler defers the default job of every received video for a
// short window, during which the sender may name a configuration instead.
type DebounceScheduler struct {
	Queue   domain.TaskQueue
	Pending domain.PendingStore
	Window  time.Duration
	NewID   func() string
	Now     func() time.Time
	Logger  *zap.Logger
}

func NewDebounceScheduler(queue domain.TaskQueue, pending domain.PendingStore, window time.Duration, newID func() string, logger *zap.Logger) *DebounceScheduler {
	return &DebounceScheduler{
		Queue:   queue,
		Pending: pending,
		Window:  window,
		NewID:   newID,
		Now:     time.Now,
		Logger:  logger.Named("DebounceScheduler"),
	}
}

// Defer enqueues task to run after delay and returns its cancellable handle.
func (s *DebounceScheduler) Defer(ctx context.Context, task domain.Task, delay time.Duration) (domain.TaskHandle, error) {
	if task.ID == "" {
		task.ID = s.NewID()
	}
	task.EnqueuedAt = s.Now()
	handle, err := s.Queue.Enqueue(ctx, task, delay)
	if err != nil {
		return domain.TaskHandle{}, fmt.Errorf("enqueue %s task: %w", task.Kind, err)
	}
	return handle, nil
}

// RegisterPending records action under its (sender, reference key). A
// replaced action has its deferred task revoked.
func (s *DebounceScheduler) RegisterPending(ctx context.Context, action *domain.PendingAction) error {
	replaced, err := s.Pending.Put(ctx, action)
	if err != nil {
		return fmt.Errorf("register pending action: %w", err)
	}
	if replaced != nil && replaced.TaskID != action.TaskID {
		s.revoke(ctx, replaced.TaskID)
	}
	return nil
}

// Schedule defers the default job for ref and registers it as pending.
func (s *DebounceScheduler) Schedule(ctx context.Context, account domain.Account, senderID string, ref domain.VideoReference, timestamp int64) (*domain.PendingAction, error) {
	origin := domain.Origin{SenderID: senderID, Reference: ref, Timestamp: timestamp}
	handle, err := s.Defer(ctx, domain.Task{
		Kind:   domain.TaskDefault,
		UserID: account.ID,
		Origin: origin,
	}, s.Window)
	if err != nil {
		return nil, err
	}

	action := &domain.PendingAction{
		SenderID:  senderID,
		UserID:    account.ID,
		Reference: ref,
		TaskID:    handle.TaskID,
		Timestamp: timestamp,
		CreatedAt: s.Now(),
	}
	if err := s.RegisterPending(ctx, action); err != nil {
		s.revoke(ctx, handle.TaskID)
		return nil, err
	}

	s.Logger.Info("Default job deferred",
		zap.String("senderID", senderID),
		zap.String("reference", ref.Key()),
		zap.String("taskID", handle.TaskID),
		zap.Duration("window", s.Window),
	)
	return action, nil
}

// CancelAndRedirect replaces the sender's most recent pending action with an
// immediate job using cfg. It returns nil when nothing is pending.
func (s *DebounceScheduler) CancelAndRedirect(ctx context.Context, account domain.Account, senderID string, cfg domain.Configuration) (*domain.PendingAction, error) {
	actions, err := s.Pending.ListBySender(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("list pending actions: %w", err)
	}
	latest, ok := domain.Latest(actions)
	if !ok {
		s.Logger.Debug("Configuration named with nothing pending",
			zap.String("senderID", senderID),
			zap.String("configID", cfg.ID),
		)
		return nil, nil
	}

	s.revoke(ctx, latest.TaskID)
	if _, err := s.Pending.Delete(ctx, senderID, latest.Reference, latest.TaskID); err != nil {
		return nil, fmt.Errorf("remove pending action: %w", err)
	}

	handle, err := s.Defer(ctx, domain.Task{
		Kind:     domain.TaskProcess,
		UserID:   account.ID,
		ConfigID: cfg.ID,
		Origin:   latest.Origin(),
	}, 0)
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Pending action redirected",
		zap.String("senderID", senderID),
		zap.String("reference", latest.Reference.Key()),
		zap.String("revokedTaskID", latest.TaskID),
		zap.String("taskID", handle.TaskID),
		zap.String("configID", cfg.ID),
	)
	return &latest, nil
}

func (s *DebounceScheduler) revoke(ctx context.Context, taskID string) {
	if err := s.Queue.Revoke(ctx, taskID); err != nil {
		s.Logger.Warn("Failed to revoke task", zap.String("taskID", taskID), zap.Error(err))
	}
}
