package domain

import (
	"strings"
	"time"
	"unicode"
)

// Channel is a community chat room
type Channel struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChatMessage is a message posted to a community channel
type ChatMessage struct {
	ID              string    `json:"id"`
	ChannelID       string    `json:"channel_id"`
	SenderID        string    `json:"sender_id"`
	SenderName      string    `json:"sender_name"`
	SenderAvatarURL string    `json:"sender_avatar_url,omitempty"`
	Text            string    `json:"text"`
	BattleID        string    `json:"battle_id,omitempty"`
	Kind            string    `json:"kind,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Chat message kinds
const (
	ChatKindMessage       = "message"
	ChatKindBattleRequest = "battle_request"
)

// CreateChannelRequest is the payload for creating a channel
type CreateChannelRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// SlugifyChannelName trims and lowercases a channel name and joins runs of
// whitespace with a single dash.
func SlugifyChannelName(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(name)), unicode.IsSpace)
	return strings.Join(fields, "-")
}
