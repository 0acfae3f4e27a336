// domain/webhook.go
package domain

import "strings"

const WebhookObjectInstagram = "instagram"

// WebhookEnvelope is the JSON body delivered by the messaging platform.
type WebhookEnvelope struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging"`
}

type MessagingEvent struct {
	Sender    Participant       `json:"sender"`
	Recipient Participant       `json:"recipient"`
	Timestamp int64             `json:"timestamp"`
	Message   *MessagingMessage `json:"message,omitempty"`
}

type Participant struct {
	ID string `json:"id"`
}

type MessagingMessage struct {
	MID         string       `json:"mid"`
	Text        string       `json:"text,omitempty"`
	IsEcho      bool         `json:"is_echo,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Attachment struct {
	Type    string            `json:"type"`
	Payload AttachmentPayload `json:"payload"`
}

type AttachmentPayload struct {
	URL         string `json:"url"`
	ReelVideoID string `json:"reel_video_id,omitempty"`
	Title       string `json:"title,omitempty"`
}

var videoAttachmentTypes = map[string]bool{
	"ig_reel": true,
	"reel":    true,
	"video":   true,
}

// Events flattens the envelope into normalized events. Entries without a
// messaging field (connectivity tests), echoes of our own messages and
// events that carry neither a video attachment nor text are dropped.
func (e WebhookEnvelope) Events() []IncomingEvent {
	var events []IncomingEvent
	for _, entry := range e.Entry {
		for _, ev := range entry.Messaging {
			if normalized, ok := ev.normalize(); ok {
				events = append(events, normalized)
			}
		}
	}
	return events
}

func (ev MessagingEvent) normalize() (IncomingEvent, bool) {
	msg := ev.Message
	if msg == nil || msg.IsEcho || ev.Sender.ID == "" {
		return IncomingEvent{}, false
	}

	for _, att := range msg.Attachments {
		if !videoAttachmentTypes[att.Type] || att.Payload.URL == "" {
			continue
		}
		id := att.Payload.ReelVideoID
		if id == "" {
			id = att.Payload.URL
		}
		return IncomingEvent{
			SenderID: ev.Sender.ID,
			Kind:     EventAttachment,
			Reference: VideoReference{
				Kind:  ReferenceAttachment,
				ID:    id,
				URL:   att.Payload.URL,
				Title: att.Payload.Title,
			},
			Timestamp: ev.Timestamp,
		}, true
	}

	if strings.TrimSpace(msg.Text) != "" {
		return IncomingEvent{
			SenderID:  ev.Sender.ID,
			Kind:      EventText,
			Text:      msg.Text,
			Timestamp: ev.Timestamp,
		}, true
	}
	return IncomingEvent{}, false
}
