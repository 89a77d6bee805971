package domain

import "time"

// Notification is a user-visible message. MessageID selects a catalog entry
// and Message, when set, overrides it.
type Notification struct {
	Title     string        `json:"title,omitempty"`
	Message   string        `json:"message,omitempty"`
	MessageID string        `json:"messageId,omitempty"`
	Type      string        `json:"type,omitempty"`
	Timeout   time.Duration `json:"-"`
}

// NotificationPayload is the wire form; timeout is in milliseconds.
type NotificationPayload struct {
	Title     string `json:"title,omitempty"`
	Message   string `json:"message,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Type      string `json:"type,omitempty"`
	Timeout   int    `json:"timeout,omitempty"`
}

func (p NotificationPayload) Notification() Notification {
	return Notification{
		Title:     p.Title,
		Message:   p.Message,
		MessageID: p.MessageID,
		Type:      p.Type,
		Timeout:   time.Duration(p.Timeout) * time.Millisecond,
	}
}
