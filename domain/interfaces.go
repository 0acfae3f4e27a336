// domain/interfaces.go
package domain

import (
	"context"
	"time"
)

type JobRepository interface {
	Create(ctx context.Context, job *VideoJob) error
	UpdateStatus(ctx context.Context, jobID string, status VideoStatus, errorMessage string) error
	UpdateCaption(ctx context.Context, jobID, caption string) error
	AssignGameplay(ctx context.Context, jobID, gameplayID string) error
	FindByID(ctx context.Context, jobID string) (*VideoJob, error)
	FindByUserID(ctx context.Context, userID string) ([]VideoJob, error)
}

type AccountRepository interface {
	FindByID(ctx context.Context, userID string) (*Account, error)
	FindBySenderID(ctx context.Context, senderID string) (*Account, error)
	// LinkSender attaches senderID to the account registered under username.
	// It reports false when no such account exists.
	LinkSender(ctx context.Context, username, senderID string) (bool, error)
}

type ConfigurationRepository interface {
	FindByID(ctx context.Context, configID string) (*Configuration, error)
	ListByUser(ctx context.Context, userID string) ([]Configuration, error)
	ListGameplays(ctx context.Context, configID string) ([]Gameplay, error)
}

// PendingStore keeps at most one PendingAction per (sender, reference key).
type PendingStore interface {
	// Put stores action, assigning its Seq. A previous action under the same
	// key is returned so its task can be revoked.
	Put(ctx context.Context, action *PendingAction) (*PendingAction, error)
	// Delete removes the action only while it is still owned by taskID.
	Delete(ctx context.Context, senderID string, ref VideoReference, taskID string) (bool, error)
	ListBySender(ctx context.Context, senderID string) ([]PendingAction, error)
}

// ClaimStore grants an origin to one task at a time. A finished claim is
// never granted again until it expires.
type ClaimStore interface {
	// Claim grants key to owner when it is free or already held by owner
	// and unfinished. With takeover it also grants an unfinished claim whose
	// holder has been revoked.
	Claim(ctx context.Context, key, owner string, takeover bool) (bool, error)
	// Finish marks the claim finished. It reports false when owner no longer
	// holds it.
	Finish(ctx context.Context, key, owner string) (bool, error)
}

type TaskQueue interface {
	Enqueue(ctx context.Context, task Task, delay time.Duration) (TaskHandle, error)
	// Revoke is best effort: a task already running may still finish.
	Revoke(ctx context.Context, taskID string) error
}

type Messenger interface {
	Send(ctx context.Context, recipient string, msg ReplyMessage) error
}

type ProfileService interface {
	Username(ctx context.Context, senderID string) (string, error)
}

// ResolvedMedia is what a platform resolver learns about a link.
type ResolvedMedia struct {
	MediaURL string
	Caption  string
}

type LinkResolver interface {
	Resolve(ctx context.Context, url string) (ResolvedMedia, error)
}

type Downloader interface {
	// Download streams url into dest. started is invoked once the response
	// is accepted, before the first byte is written.
	Download(ctx context.Context, url, dest string, started func() error) error
}

type FileStore interface {
	DownloadPath(jobID string) string
	GameplayPath(gameplayID string) string
	OutputPath(jobID string) string
	CopyToOutput(src, jobID string) (string, error)
	Remove(path string) error
}
