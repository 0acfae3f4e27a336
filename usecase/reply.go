// usecase/reply.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/domain"
)

const (
	ReplySignup          = "Signup to autosplit!"
	ReplyNoConfigs       = "No video configurations found. Set up a new one now to customize your video edits"
	ReplyNoDefault       = "No default configuration found. Reply with a configuration name or set a default on the dashboard."
	ReplyNotUnderstood   = "Sorry, I didn't understand that. Send a reel, a video link, or one of your configuration names."
	replyDashboardButton = "Open dashboard"
)

type Replier interface {
	Reply(ctx context.Context, recipient string, messages ...domain.ReplyMessage) error
}

// ReplyDispatcher queues outbound messages as tasks, spacing consecutive
// messages of one reply so the platform delivers them in order.
type ReplyDispatcher struct {
	Queue   domain.TaskQueue
	Spacing time.Duration
	NewID   func() string
	Logger  *zap.Logger
}

func NewReplyDispatcher(queue domain.TaskQueue, spacing time.Duration, newID func() string, logger *zap.Logger) *ReplyDispatcher {
	return &ReplyDispatcher{Queue: queue, Spacing: spacing, NewID: newID, Logger: logger.Named("ReplyDispatcher")}
}

func (d *ReplyDispatcher) Reply(ctx context.Context, recipient string, messages ...domain.ReplyMessage) error {
	for i := range messages {
		msg := messages[i]
		delay := time.Duration(i) * d.Spacing
		task := domain.Task{
			ID:         d.NewID(),
			Kind:       domain.TaskReply,
			Recipient:  recipient,
			Message:    &msg,
			EnqueuedAt: time.Now(),
		}
		if _, err := d.Queue.Enqueue(ctx, task, delay); err != nil {
			return fmt.Errorf("enqueue reply %d/%d: %w", i+1, len(messages), err)
		}
	}
	d.Logger.Debug("Reply queued", zap.String("recipient", recipient), zap.Int("messages", len(messages)))
	return nil
}

// NotUnderstoodReply points the sender at the dashboard.
func NotUnderstoodReply(dashboardURL string) domain.ReplyMessage {
	return domain.ButtonReply(ReplyNotUnderstood, dashboardURL, replyDashboardButton)
}
