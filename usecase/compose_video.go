// usecase/compose_video.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/domain"
	"github.com/vitovidale/autosplit-service/layout"
)

// Clip is an opened media file. It must be closed once the composition is
// done with it.
type Clip interface {
	Path() string
	Size() layout.Size
	Duration() time.Duration
	Close() error
}

type MediaTool interface {
	Open(ctx context.Context, path string) (Clip, error)
	Render(ctx context.Context, plan layout.Plan, primary, gameplay Clip, outPath string) error
}

type Composer interface {
	Compose(ctx context.Context, primaryPath, gameplayPath string, l domain.Layout, outPath string) (layout.Plan, error)
}

type ComposeVideoUseCase struct {
	Media  MediaTool
	Logger *zap.Logger
}

func NewComposeVideoUseCase(media MediaTool, logger *zap.Logger) *ComposeVideoUseCase {
	return &ComposeVideoUseCase{Media: media, Logger: logger.Named("ComposeVideoUseCase")}
}

// Compose renders the primary clip stacked with the gameplay clip following
// l. Both clips are released on every path.
func (uc *ComposeVideoUseCase) Compose(ctx context.Context, primaryPath, gameplayPath string, l domain.Layout, outPath string) (layout.Plan, error) {
	primary, err := uc.Media.Open(ctx, primaryPath)
	if err != nil {
		return layout.Plan{}, fmt.Errorf("open primary clip: %w", err)
	}
	defer uc.release(primary)

	gameplay, err := uc.Media.Open(ctx, gameplayPath)
	if err != nil {
		return layout.Plan{}, fmt.Errorf("open gameplay clip: %w", err)
	}
	defer uc.release(gameplay)

	plan, err := layout.BuildPlan(l, layout.Input{
		Primary:          primary.Size(),
		PrimaryDuration:  primary.Duration(),
		Gameplay:         gameplay.Size(),
		GameplayDuration: gameplay.Duration(),
	})
	if err != nil {
		return layout.Plan{}, err
	}

	uc.Logger.Debug("Composition planned",
		zap.String("stack", string(plan.Stack)),
		zap.Int("frameWidth", plan.Frame.W),
		zap.Int("frameHeight", plan.Frame.H),
		zap.Duration("duration", plan.Duration),
		zap.Bool("loopGameplay", plan.LoopGameplay),
	)

	if err := uc.Media.Render(ctx, plan, primary, gameplay, outPath); err != nil {
		return plan, fmt.Errorf("render: %w", err)
	}
	return plan, nil
}

func (uc *ComposeVideoUseCase) release(c Clip) {
	if err := c.Close(); err != nil {
		uc.Logger.Warn("Failed to release clip", zap.String("path", c.Path()), zap.Error(err))
	}
}
