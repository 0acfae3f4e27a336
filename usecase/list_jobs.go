// usecase/list_jobs.go
package usecase

import (
	"context"
	"fmt"

	"github.com/vitovidale/autosplit-service/domain"
)

type ListJobsUseCase struct {
	Jobs domain.JobRepository
}

// Execute lists the user's jobs, newest first.
func (uc *ListJobsUseCase) Execute(ctx context.Context, userID string) ([]domain.VideoJob, error) {
	jobs, err := uc.Jobs.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Get returns the job only when userID owns it.
func (uc *ListJobsUseCase) Get(ctx context.Context, userID, jobID string) (*domain.VideoJob, error) {
	job, err := uc.Jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
	}
	return job, nil
}
