// domain/reference.go
package domain

import (
	"fmt"
	"time"
)

type ReferenceKind string

const (
	ReferenceAttachment ReferenceKind = "attachment"
	ReferenceLink       ReferenceKind = "link"
)

// VideoReference points at the source video: either an uploaded attachment
// (opaque platform id plus CDN url) or a pasted link.
type VideoReference struct {
	Kind  ReferenceKind `json:"kind"`
	ID    string        `json:"id,omitempty"`
	URL   string        `json:"url"`
	Title string        `json:"title,omitempty"`
}

// Key identifies the reference inside a sender's pending set.
func (r VideoReference) Key() string {
	if r.Kind == ReferenceAttachment {
		return fmt.Sprintf("attachment:%s", r.ID)
	}
	return fmt.Sprintf("link:%s", r.URL)
}

type EventKind string

const (
	EventAttachment EventKind = "attachment"
	EventText       EventKind = "text"
)

// IncomingEvent is a normalized direct-message event. Reference is set for
// attachments, Text for text messages.
type IncomingEvent struct {
	SenderID  string
	Kind      EventKind
	Reference VideoReference
	Text      string
	Timestamp int64
}

// PendingAction is a deferred default job waiting for the sender to name a
// configuration. At most one exists per (sender, reference key).
type PendingAction struct {
	SenderID  string         `json:"sender_id"`
	UserID    string         `json:"user_id"`
	Reference VideoReference `json:"reference"`
	TaskID    string         `json:"task_id"`
	Timestamp int64          `json:"timestamp"`
	Seq       int64          `json:"seq"`
	CreatedAt time.Time      `json:"created_at"`
}

// Origin is the identity shared by every task that may start a job for this
// pending action.
func (p PendingAction) Origin() Origin {
	return Origin{SenderID: p.SenderID, Reference: p.Reference, Timestamp: p.Timestamp}
}

// Origin ties a job-starting task back to the event that created it.
type Origin struct {
	SenderID  string         `json:"sender_id"`
	Reference VideoReference `json:"reference"`
	Timestamp int64          `json:"timestamp"`
}

// ClaimKey is used to guarantee a single job per origin.
func (o Origin) ClaimKey() string {
	return fmt.Sprintf("%s:%s:%d", o.SenderID, o.Reference.Key(), o.Timestamp)
}

// Latest picks the pending action with the maximum timestamp. Equal
// timestamps resolve to the earliest registered (lowest Seq).
func Latest(actions []PendingAction) (PendingAction, bool) {
	if len(actions) == 0 {
		return PendingAction{}, false
	}
	best := actions[0]
	for _, a := range actions[1:] {
		if a.Timestamp > best.Timestamp || (a.Timestamp == best.Timestamp && a.Seq < best.Seq) {
			best = a
		}
	}
	return best, true
}
