// domain/task.go
package domain

import "time"

type TaskKind string

const (
	// TaskDefault is the deferred fallback registered for a pending action.
	TaskDefault TaskKind = "process_default"
	// TaskProcess starts a job with an explicitly chosen configuration.
	TaskProcess TaskKind = "process_with_config"
	TaskReply   TaskKind = "send_reply"
)

// Task is the message carried by the task queue. Job-starting tasks carry
// the Origin of the pending action that produced them.
type Task struct {
	ID         string        `json:"id"`
	Kind       TaskKind      `json:"kind"`
	UserID     string        `json:"user_id,omitempty"`
	ConfigID   string        `json:"config_id,omitempty"`
	Origin     Origin        `json:"origin"`
	Recipient  string        `json:"recipient,omitempty"`
	Message    *ReplyMessage `json:"message,omitempty"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

// TaskHandle is the cancellable reference returned when a task is scheduled.
type TaskHandle struct {
	TaskID string
	Delay  time.Duration
}

// ReplyMessage is an outbound chat message: plain text or a button template.
type ReplyMessage struct {
	Text    string        `json:"text,omitempty"`
	Buttons []ReplyButton `json:"buttons,omitempty"`
}

type ReplyButton struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

func TextReply(text string) ReplyMessage {
	return ReplyMessage{Text: text}
}

func ButtonReply(text, url, title string) ReplyMessage {
	return ReplyMessage{Text: text, Buttons: []ReplyButton{{URL: url, Title: title}}}
}
