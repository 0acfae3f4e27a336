// infrastructure/token_refresher.go
package infrastructure

import (
	"context"
	"fmt"
	"time"

	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type tokenRefreshAPI interface {
	RefreshToken(ctx context.Context) (RefreshedToken, error)
}

type tokenSink interface {
	SetToken(ctx context.Context, token string, ttl time.Duration) error
}

// TokenRefresher periodically exchanges the long-lived access token for a
// fresh one and caches it for the messaging client.
type TokenRefresher struct {
	api     tokenRefreshAPI
	sink    tokenSink
	timeout time.Duration
	logger  *zap.Logger
	cron    *rcron.Cron
}

func NewTokenRefresher(api tokenRefreshAPI, sink tokenSink, logger *zap.Logger) *TokenRefresher {
	return &TokenRefresher{
		api:     api,
		sink:    sink,
		timeout: 30 * time.Second,
		logger:  logger.Named("TokenRefresher"),
	}
}

func (t *TokenRefresher) Start(spec string) error {
	t.cron = rcron.New()
	if _, err := t.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if err := t.RefreshOnce(ctx); err != nil {
			t.logger.Error("Access token refresh failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule token refresh %q: %w", spec, err)
	}
	t.cron.Start()
	t.logger.Info("Token refresh scheduled", zap.String("spec", spec))
	return nil
}

func (t *TokenRefresher) Stop() {
	if t.cron == nil {
		return
	}
	<-t.cron.Stop().Done()
}

func (t *TokenRefresher) RefreshOnce(ctx context.Context) error {
	refreshed, err := t.api.RefreshToken(ctx)
	if err != nil {
		return err
	}
	if err := t.sink.SetToken(ctx, refreshed.AccessToken, refreshed.ExpiresIn); err != nil {
		return err
	}
	t.logger.Info("Access token refreshed", zap.Duration("expiresIn", refreshed.ExpiresIn))
	return nil
}
