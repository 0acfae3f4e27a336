// usecase/process_video.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/domain"
)

type Acquirer interface {
	Acquire(ctx context.Context, ref domain.VideoReference, dest string, started func() error) (Acquired, error)
}

type ProcessVideoInput struct {
	Account domain.Account
	Config  domain.Configuration
	Origin  domain.Origin
	// TaskID owns the origin claim. A redelivered task re-claims its own key.
	TaskID string
	// Takeover lets a redirect claim an origin held by a revoked task.
	Takeover bool
}

// ledgerError marks a failed write to the job ledger. Such failures abort
// the run without recording FAILED, since the ledger itself is unreachable.
type ledgerError struct{ err error }

func (e *ledgerError) Error() string { return "job ledger: " + e.err.Error() }
func (e *ledgerError) Unwrap() error { return e.err }

type ProcessVideoUseCase struct {
	Jobs        domain.JobRepository
	Configs     domain.ConfigurationRepository
	Claims      domain.ClaimStore
	Acquisition Acquirer
	Composer    Composer
	Files       domain.FileStore
	Logger      *zap.Logger

	// PickGameplay returns an index in [0, n).
	PickGameplay func(n int) int
	NewID        func() string
	Now          func() time.Time
}

func NewProcessVideoUseCase(
	jobs domain.JobRepository,
	configs domain.ConfigurationRepository,
	claims domain.ClaimStore,
	acquisition Acquirer,
	composer Composer,
	files domain.FileStore,
	newID func() string,
	logger *zap.Logger,
) *ProcessVideoUseCase {
	return &ProcessVideoUseCase{
		Jobs:         jobs,
		Configs:      configs,
		Claims:       claims,
		Acquisition:  acquisition,
		Composer:     composer,
		Files:        files,
		Logger:       logger.Named("ProcessVideoUseCase"),
		PickGameplay: rand.IntN,
		NewID:        newID,
		Now:          time.Now,
	}
}

// Execute claims the origin, creates the job and drives it to a terminal
// status. Failures of acquisition or composition are recorded on the job and
// do not surface as errors; ErrAlreadyClaimed, ledger errors and
// cancellation do. A job that cannot finish is still recorded as FAILED.
func (uc *ProcessVideoUseCase) Execute(ctx context.Context, input ProcessVideoInput) (*domain.VideoJob, error) {
	key := input.Origin.ClaimKey()
	claimed, err := uc.Claims.Claim(ctx, key, input.TaskID, input.Takeover)
	if err != nil {
		return nil, fmt.Errorf("claim origin: %w", err)
	}
	if !claimed {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyClaimed, key)
	}

	now := uc.Now()
	job := &domain.VideoJob{
		ID:        uc.NewID(),
		UserID:    input.Account.ID,
		ConfigID:  input.Config.ID,
		Caption:   input.Origin.Reference.Title,
		Reference: input.Origin.Reference,
		Status:    domain.VideoStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.Jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	logger := uc.Logger.With(
		zap.String("jobID", job.ID),
		zap.String("userID", job.UserID),
		zap.String("configID", job.ConfigID),
		zap.String("taskID", input.TaskID),
	)
	logger.Info("Job created", zap.String("reference", job.Reference.Key()))

	if err := uc.run(ctx, job, input, logger); err != nil {
		uc.abort(ctx, job, logger)
		logger.Error("Job aborted", zap.String("status", string(job.Status)), zap.Error(err))
		return job, err
	}
	logger.Info("Job finished", zap.String("status", string(job.Status)), zap.String("error", job.ErrorMessage))
	return job, nil
}

// abort records FAILED on a job left non-terminal, even when ctx is already
// cancelled.
func (uc *ProcessVideoUseCase) abort(ctx context.Context, job *domain.VideoJob, logger *zap.Logger) {
	if job.Status.IsTerminal() {
		return
	}
	if err := uc.fail(context.WithoutCancel(ctx), job, domain.FailureAborted); err != nil {
		logger.Error("Failed to record aborted job", zap.Error(err))
	}
}

// complete finishes the origin claim and records COMPLETED. A task whose
// claim was taken over records FAILED instead.
func (uc *ProcessVideoUseCase) complete(ctx context.Context, job *domain.VideoJob, input ProcessVideoInput, logger *zap.Logger) error {
	finished, err := uc.Claims.Finish(ctx, input.Origin.ClaimKey(), input.TaskID)
	if err != nil {
		return fmt.Errorf("finish claim: %w", err)
	}
	if !finished {
		logger.Warn("Origin claim taken over, discarding output")
		if err := uc.Files.Remove(uc.Files.OutputPath(job.ID)); err != nil {
			logger.Warn("Failed to remove discarded output", zap.Error(err))
		}
		return uc.fail(ctx, job, domain.FailureSuperseded)
	}
	return uc.transition(ctx, job, domain.VideoStatusCompleted, "")
}

// interrupted wraps a failed step when the run itself was cancelled, so the
// job is aborted rather than blamed on the media.
func interrupted(ctx context.Context, step string, err error) error {
	if ctx.Err() == nil {
		return nil
	}
	return fmt.Errorf("%s interrupted: %w", step, errors.Join(ctx.Err(), err))
}

func (uc *ProcessVideoUseCase) run(ctx context.Context, job *domain.VideoJob, input ProcessVideoInput, logger *zap.Logger) error {
	cfg := input.Config
	dest := uc.Files.DownloadPath(job.ID)
	defer uc.removeSource(dest, logger)

	acquired, err := uc.Acquisition.Acquire(ctx, job.Reference, dest, func() error {
		return uc.transition(ctx, job, domain.VideoStatusDownloading, "")
	})
	if err != nil {
		var le *ledgerError
		if errors.As(err, &le) {
			return err
		}
		if ierr := interrupted(ctx, "acquisition", err); ierr != nil {
			return ierr
		}
		logger.Warn("Acquisition failed", zap.Error(err))
		return uc.fail(ctx, job, domain.FailureDownload)
	}

	if acquired.Caption != "" && acquired.Caption != job.Caption {
		if err := uc.Jobs.UpdateCaption(ctx, job.ID, acquired.Caption); err != nil {
			return &ledgerError{err: err}
		}
		job.Caption = acquired.Caption
	}

	if job.Status == domain.VideoStatusQueued {
		if err := uc.transition(ctx, job, domain.VideoStatusDownloading, ""); err != nil {
			return err
		}
	}
	if err := uc.transition(ctx, job, domain.VideoStatusDownloaded, ""); err != nil {
		return err
	}

	if cfg.Layout == nil {
		if _, err := uc.Files.CopyToOutput(acquired.Path, job.ID); err != nil {
			logger.Warn("Pass-through copy failed", zap.Error(err))
			return uc.fail(ctx, job, domain.FailureCopy)
		}
		return uc.complete(ctx, job, input, logger)
	}

	gameplays, err := uc.Configs.ListGameplays(ctx, cfg.ID)
	if err != nil {
		return &ledgerError{err: fmt.Errorf("list gameplays: %w", err)}
	}
	if len(gameplays) == 0 {
		logger.Warn("Configuration has no gameplay videos")
		return uc.fail(ctx, job, domain.FailureNoGameplay)
	}
	gameplay := gameplays[uc.PickGameplay(len(gameplays))]
	if err := uc.Jobs.AssignGameplay(ctx, job.ID, gameplay.ID); err != nil {
		return &ledgerError{err: err}
	}
	job.GameplayID = gameplay.ID

	if err := uc.transition(ctx, job, domain.VideoStatusProcessing, ""); err != nil {
		return err
	}

	started := time.Now()
	if _, err := uc.Composer.Compose(ctx, acquired.Path, uc.Files.GameplayPath(gameplay.ID), *cfg.Layout, uc.Files.OutputPath(job.ID)); err != nil {
		if ierr := interrupted(ctx, "composition", err); ierr != nil {
			return ierr
		}
		logger.Warn("Composition failed", zap.String("gameplayID", gameplay.ID), zap.Error(err))
		return uc.fail(ctx, job, domain.FailureProcessing(err))
	}
	logger.Debug("Composition done", zap.Duration("elapsed", time.Since(started)))

	return uc.complete(ctx, job, input, logger)
}

func (uc *ProcessVideoUseCase) fail(ctx context.Context, job *domain.VideoJob, message string) error {
	return uc.transition(ctx, job, domain.VideoStatusFailed, message)
}

// transition applies next in memory only once the ledger accepted it.
func (uc *ProcessVideoUseCase) transition(ctx context.Context, job *domain.VideoJob, next domain.VideoStatus, message string) error {
	prev := *job
	if err := job.Transition(next, message); err != nil {
		return err
	}
	job.UpdatedAt = uc.Now()
	if err := uc.Jobs.UpdateStatus(ctx, job.ID, job.Status, job.ErrorMessage); err != nil {
		*job = prev
		return &ledgerError{err: err}
	}
	return nil
}

func (uc *ProcessVideoUseCase) removeSource(path string, logger *zap.Logger) {
	if err := uc.Files.Remove(path); err != nil {
		logger.Warn("Failed to remove downloaded source", zap.String("path", path), zap.Error(err))
	}
}
