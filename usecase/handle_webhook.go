// usecase/handle_webhook.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/domain"
)

// Outcome describes what the normalizer did with one inbound event.
type Outcome string

const (
	OutcomeScheduled    Outcome = "scheduled"
	OutcomeRedirected   Outcome = "redirected"
	OutcomeNoPending    Outcome = "no_pending"
	OutcomeUnrecognized Outcome = "unrecognized"
	OutcomeUnlinked     Outcome = "unlinked"
	OutcomeNoConfigs    Outcome = "no_configs"
	OutcomeError        Outcome = "error"
)

type EventResult struct {
	Event   domain.IncomingEvent
	Outcome Outcome
}

type HandleWebhookUseCase struct {
	Accounts     domain.AccountRepository
	Configs      domain.ConfigurationRepository
	Profiles     domain.ProfileService
	Scheduler    Scheduler
	Replies      Replier
	DashboardURL string
	Logger       *zap.Logger
}

func NewHandleWebhookUseCase(
	accounts domain.AccountRepository,
	configs domain.ConfigurationRepository,
	profiles domain.ProfileService,
	scheduler Scheduler,
	replies Replier,
	dashboardURL string,
	logger *zap.Logger,
) *HandleWebhookUseCase {
	return &HandleWebhookUseCase{
		Accounts:     accounts,
		Configs:      configs,
		Profiles:     profiles,
		Scheduler:    scheduler,
		Replies:      replies,
		DashboardURL: dashboardURL,
		Logger:       logger.Named("HandleWebhookUseCase"),
	}
}

// Execute handles every messaging event in the envelope. A failing event is
// logged and does not stop the others; the joined error is returned.
func (uc *HandleWebhookUseCase) Execute(ctx context.Context, envelope domain.WebhookEnvelope) ([]EventResult, error) {
	events := envelope.Events()
	results := make([]EventResult, 0, len(events))
	var errs []error

	for _, ev := range events {
		outcome, err := uc.HandleEvent(ctx, ev)
		if err != nil {
			uc.Logger.Error("Failed to handle event",
				zap.String("senderID", ev.SenderID),
				zap.String("kind", string(ev.Kind)),
				zap.Error(err),
			)
			errs = append(errs, err)
			outcome = OutcomeError
		}
		results = append(results, EventResult{Event: ev, Outcome: outcome})
	}
	return results, errors.Join(errs...)
}

func (uc *HandleWebhookUseCase) HandleEvent(ctx context.Context, ev domain.IncomingEvent) (Outcome, error) {
	account, err := uc.resolveAccount(ctx, ev.SenderID)
	if err != nil {
		return "", err
	}
	if account == nil {
		return OutcomeUnlinked, uc.Replies.Reply(ctx, ev.SenderID, domain.TextReply(ReplySignup))
	}

	configs, err := uc.Configs.ListByUser(ctx, account.ID)
	if err != nil {
		return "", fmt.Errorf("list configurations: %w", err)
	}
	if len(configs) == 0 {
		return OutcomeNoConfigs, uc.Replies.Reply(ctx, ev.SenderID, domain.TextReply(ReplyNoConfigs))
	}

	switch ev.Kind {
	case domain.EventAttachment:
		if _, err := uc.Scheduler.Schedule(ctx, *account, ev.SenderID, ev.Reference, ev.Timestamp); err != nil {
			return "", err
		}
		return OutcomeScheduled, nil

	case domain.EventText:
		if cfg, ok := domain.FindConfiguration(configs, ev.Text); ok {
			pending, err := uc.Scheduler.CancelAndRedirect(ctx, *account, ev.SenderID, cfg)
			if err != nil {
				return "", err
			}
			if pending == nil {
				return OutcomeNoPending, nil
			}
			return OutcomeRedirected, nil
		}

		if _, url, ok := ParseVideoLink(ev.Text); ok {
			ref := domain.VideoReference{Kind: domain.ReferenceLink, URL: url}
			if _, err := uc.Scheduler.Schedule(ctx, *account, ev.SenderID, ref, ev.Timestamp); err != nil {
				return "", err
			}
			return OutcomeScheduled, nil
		}
	}

	return OutcomeUnrecognized, uc.Replies.Reply(ctx, ev.SenderID, NotUnderstoodReply(uc.DashboardURL))
}

// resolveAccount returns nil when the sender cannot be linked to any account.
func (uc *HandleWebhookUseCase) resolveAccount(ctx context.Context, senderID string) (*domain.Account, error) {
	account, err := uc.Accounts.FindBySenderID(ctx, senderID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("find account by sender: %w", err)
	}

	username, err := uc.Profiles.Username(ctx, senderID)
	if err != nil {
		uc.Logger.Warn("Profile lookup failed", zap.String("senderID", senderID), zap.Error(err))
		return nil, nil
	}
	if username == "" {
		return nil, nil
	}

	linked, err := uc.Accounts.LinkSender(ctx, strings.ToLower(username), senderID)
	if err != nil {
		return nil, fmt.Errorf("link sender: %w", err)
	}
	if !linked {
		uc.Logger.Info("No account for sender", zap.String("senderID", senderID), zap.String("username", username))
		return nil, nil
	}

	account, err = uc.Accounts.FindBySenderID(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("find linked account: %w", err)
	}
	uc.Logger.Info("Sender linked", zap.String("senderID", senderID), zap.String("userID", account.ID))
	return account, nil
}
