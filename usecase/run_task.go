// usecase/run_task.go
package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/domain"
)

type VideoProcessor interface {
	Execute(ctx context.Context, input ProcessVideoInput) (*domain.VideoJob, error)
}

// TaskRunner executes tasks delivered by the queue.
type TaskRunner struct {
	Accounts  domain.AccountRepository
	Configs   domain.ConfigurationRepository
	Pending   domain.PendingStore
	Processor VideoProcessor
	Messenger domain.Messenger
	Replies   Replier
	// Publisher is nil when reel publishing is disabled.
	Publisher Publisher
	Logger    *zap.Logger

	// OnJobFinished, when set, observes every job that reached a terminal status.
	OnJobFinished func(job *domain.VideoJob)
}

func NewTaskRunner(
	accounts domain.AccountRepository,
	configs domain.ConfigurationRepository,
	pending domain.PendingStore,
	processor VideoProcessor,
	messenger domain.Messenger,
	replies Replier,
	publisher Publisher,
	logger *zap.Logger,
) *TaskRunner {
	return &TaskRunner{
		Accounts:  accounts,
		Configs:   configs,
		Pending:   pending,
		Processor: processor,
		Messenger: messenger,
		Replies:   replies,
		Publisher: publisher,
		Logger:    logger.Named("TaskRunner"),
	}
}

func (r *TaskRunner) Run(ctx context.Context, task domain.Task) error {
	switch task.Kind {
	case domain.TaskDefault:
		return r.runDefault(ctx, task)
	case domain.TaskProcess:
		return r.runWithConfig(ctx, task)
	case domain.TaskReply:
		if task.Message == nil {
			return fmt.Errorf("reply task %s has no message", task.ID)
		}
		return r.Messenger.Send(ctx, task.Recipient, *task.Message)
	}
	return fmt.Errorf("unknown task kind %q", task.Kind)
}

// runDefault fires when the debounce window closed without the sender naming
// a configuration.
func (r *TaskRunner) runDefault(ctx context.Context, task domain.Task) error {
	origin := task.Origin
	removed, err := r.Pending.Delete(ctx, origin.SenderID, origin.Reference, task.ID)
	if err != nil {
		r.Logger.Warn("Failed to remove own pending action", zap.String("taskID", task.ID), zap.Error(err))
	} else if !removed {
		r.Logger.Debug("Pending action already gone", zap.String("taskID", task.ID))
	}

	account, err := r.Accounts.FindByID(ctx, task.UserID)
	if err != nil {
		return fmt.Errorf("find account %s: %w", task.UserID, err)
	}
	if account.DefaultConfigID == "" {
		return r.Replies.Reply(ctx, origin.SenderID, domain.TextReply(ReplyNoDefault))
	}
	cfg, err := r.Configs.FindByID(ctx, account.DefaultConfigID)
	if errors.Is(err, domain.ErrNotFound) {
		return r.Replies.Reply(ctx, origin.SenderID, domain.TextReply(ReplyNoDefault))
	}
	if err != nil {
		return fmt.Errorf("find default configuration: %w", err)
	}
	return r.process(ctx, task, *account, *cfg)
}

func (r *TaskRunner) runWithConfig(ctx context.Context, task domain.Task) error {
	account, err := r.Accounts.FindByID(ctx, task.UserID)
	if err != nil {
		return fmt.Errorf("find account %s: %w", task.UserID, err)
	}
	cfg, err := r.Configs.FindByID(ctx, task.ConfigID)
	if err != nil {
		return fmt.Errorf("find configuration %s: %w", task.ConfigID, err)
	}
	return r.process(ctx, task, *account, *cfg)
}

// process runs the job for task's origin. A redirect may take the origin
// over from the default task it revoked.
func (r *TaskRunner) process(ctx context.Context, task domain.Task, account domain.Account, cfg domain.Configuration) error {
	job, err := r.Processor.Execute(ctx, ProcessVideoInput{
		Account:  account,
		Config:   cfg,
		Origin:   task.Origin,
		TaskID:   task.ID,
		Takeover: task.Kind == domain.TaskProcess,
	})
	if errors.Is(err, domain.ErrAlreadyClaimed) {
		r.Logger.Info("Origin already claimed, dropping task",
			zap.String("taskID", task.ID),
			zap.String("claimKey", task.Origin.ClaimKey()),
			zap.String("configID", cfg.ID),
		)
		return nil
	}
	if job != nil && job.Status.IsTerminal() && r.OnJobFinished != nil {
		r.OnJobFinished(job)
	}
	if err != nil {
		return err
	}

	if job.Status != domain.VideoStatusCompleted || r.Publisher == nil || account.AccessToken == "" {
		return nil
	}
	if _, err := r.Publisher.Publish(ctx, account, job); err != nil {
		r.Logger.Warn("Reel publishing failed", zap.String("jobID", job.ID), zap.Error(err))
	}
	return nil
}
