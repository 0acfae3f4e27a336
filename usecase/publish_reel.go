// usecase/publish_reel.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/domain"
)

const (
	ContainerFinished   = "FINISHED"
	ContainerInProgress = "IN_PROGRESS"
	ContainerError      = "ERROR"
	ContainerExpired    = "EXPIRED"
)

// ReelAPI is the content publishing surface of the messaging platform.
type ReelAPI interface {
	CreateReelContainer(ctx context.Context, accessToken, videoURL, caption string) (string, error)
	ContainerStatus(ctx context.Context, accessToken, containerID string) (string, error)
	PublishContainer(ctx context.Context, accessToken, containerID string) (string, error)
}

type Publisher interface {
	Publish(ctx context.Context, account domain.Account, job *domain.VideoJob) (string, error)
}

type ReelPublisher struct {
	API            ReelAPI
	PublicBaseURL  string
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         *zap.Logger

	Sleep func(ctx context.Context, d time.Duration) error
}

func NewReelPublisher(api ReelAPI, publicBaseURL string, maxAttempts int, initialBackoff time.Duration, logger *zap.Logger) *ReelPublisher {
	return &ReelPublisher{
		API:            api,
		PublicBaseURL:  strings.TrimRight(publicBaseURL, "/"),
		MaxAttempts:    maxAttempts,
		InitialBackoff: initialBackoff,
		MaxBackoff:     time.Minute,
		Logger:         logger.Named("ReelPublisher"),
		Sleep:          sleepContext,
	}
}

// Publish uploads the job's output as a reel on the account and returns the
// published media id.
func (p *ReelPublisher) Publish(ctx context.Context, account domain.Account, job *domain.VideoJob) (string, error) {
	videoURL := fmt.Sprintf("%s/outputs/%s", p.PublicBaseURL, job.ID)

	containerID, err := p.API.CreateReelContainer(ctx, account.AccessToken, videoURL, job.Caption)
	if err != nil {
		return "", fmt.Errorf("create reel container: %w", err)
	}
	if err := p.waitReady(ctx, account.AccessToken, containerID); err != nil {
		return "", err
	}

	mediaID, err := p.API.PublishContainer(ctx, account.AccessToken, containerID)
	if err != nil {
		return "", fmt.Errorf("publish container %s: %w", containerID, err)
	}
	p.Logger.Info("Reel published",
		zap.String("jobID", job.ID),
		zap.String("containerID", containerID),
		zap.String("mediaID", mediaID),
	)
	return mediaID, nil
}

func (p *ReelPublisher) waitReady(ctx context.Context, token, containerID string) error {
	backoff := p.InitialBackoff
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		status, err := p.API.ContainerStatus(ctx, token, containerID)
		if err != nil {
			return fmt.Errorf("container %s status: %w", containerID, err)
		}
		switch status {
		case ContainerFinished:
			return nil
		case ContainerError, ContainerExpired:
			return fmt.Errorf("container %s ended with status %s", containerID, status)
		}

		if attempt == p.MaxAttempts {
			break
		}
		p.Logger.Debug("Container not ready",
			zap.String("containerID", containerID),
			zap.String("status", status),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
		)
		if err := p.Sleep(ctx, backoff); err != nil {
			return err
		}
		backoff = min(backoff*2, p.MaxBackoff)
	}
	return fmt.Errorf("%w: container %s after %d attempts", domain.ErrPublishTimeout, containerID, p.MaxAttempts)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
