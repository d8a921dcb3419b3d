package domain

import (
	"slices"
	"time"
)

// ContentType classifies a direct message body
type ContentType string

const (
	ContentTypeText          ContentType = "text"
	ContentTypeImage         ContentType = "image"
	ContentTypeVideo         ContentType = "video"
	ContentTypeEmoji         ContentType = "emoji"
	ContentTypeSystem        ContentType = "system"
	ContentTypeBattleRequest ContentType = "battleRequest"
)

// Valid reports whether c is a known content type
func (c ContentType) Valid() bool {
	switch c {
	case ContentTypeText, ContentTypeImage, ContentTypeVideo, ContentTypeEmoji,
		ContentTypeSystem, ContentTypeBattleRequest:
		return true
	}
	return false
}

// Message is a direct message within a thread
type Message struct {
	ID            string             `json:"id"`
	ThreadID      string             `json:"thread_id"`
	SenderID      string             `json:"sender_id"`
	ReceiverID    string             `json:"receiver_id"`
	SenderProfile ParticipantProfile `json:"sender_profile"`
	Content       string             `json:"content"`
	ContentType   ContentType        `json:"content_type"`
	BattleID      string             `json:"battle_id,omitempty"`
	BattleMode    BattleMode         `json:"battle_mode,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
	ReadBy        []string           `json:"read_by"`
}

// IsReadBy reports whether userID has read the message
func (m *Message) IsReadBy(userID string) bool {
	return m.SenderID == userID || slices.Contains(m.ReadBy, userID)
}

// Version is the ordering stamp used by client caches
func (m *Message) Version() time.Time {
	return m.Timestamp
}

// SendMessageRequest is the payload for sending a direct message
type SendMessageRequest struct {
	Content     string      `json:"content"`
	ContentType ContentType `json:"content_type,omitempty"`
	BattleID    string      `json:"battle_id,omitempty"`
	BattleMode  BattleMode  `json:"battle_mode,omitempty"`
}

// MessageCursor marks the oldest message a client holds. The next page
// continues strictly before it in (timestamp, id) order.
type MessageCursor struct {
	Before   time.Time
	BeforeID string
}

// Precedes reports whether m sorts before the cursor
func (c MessageCursor) Precedes(m Message) bool {
	if m.Timestamp.Equal(c.Before) {
		return m.ID < c.BeforeID
	}
	return m.Timestamp.Before(c.Before)
}

// MessagePage is a page of messages in chronological order
type MessagePage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}
