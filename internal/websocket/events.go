package websocket

import (
	"strings"
	"time"

	"github.com/clashsync/internal/domain"
)

// Message types
const (
	MessageTypeThreadUpdate      = "thread_update"
	MessageTypeMessage           = "message"
	MessageTypeTyping            = "typing"
	MessageTypeBattleUpdate      = "battle_update"
	MessageTypeChatMessage       = "chat_message"
	MessageTypeLeaderboardUpdate = "leaderboard_update"
	MessageTypeUserUpdate        = "user_update"
	MessageTypeSubscribe         = "subscribe"
	MessageTypeUnsubscribe       = "unsubscribe"
	MessageTypeSubscribed        = "subscribed"
	MessageTypeUnsubscribed      = "unsubscribed"
	MessageTypePing              = "ping"
	MessageTypePong              = "pong"
	MessageTypeError             = "error"
)

// Topic prefixes and fixed topics
const (
	threadTopicPrefix  = "thread:"
	channelTopicPrefix = "channel:"
	userTopicPrefix    = "user:"

	TopicLeaderboard = "leaderboard"
	TopicBattles     = "battles"
)

// Message represents a WebSocket message
type Message struct {
	Type      string    `json:"type"`
	Topic     string    `json:"topic,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
}

// TypingUpdate lists who is typing in a thread
type TypingUpdate struct {
	ThreadID string                   `json:"thread_id"`
	Typing   []domain.TypingIndicator `json:"typing"`
}

// LeaderboardUpdate contains leaderboard data for broadcast
type LeaderboardUpdate struct {
	Entries []domain.LeaderboardEntry `json:"entries"`
}

// ThreadTopic is the topic carrying a thread's messages and typing state
func ThreadTopic(threadID string) string {
	return threadTopicPrefix + threadID
}

// ChannelTopic is the topic carrying a community channel's messages
func ChannelTopic(channelID string) string {
	return channelTopicPrefix + channelID
}

// UserTopic is the topic carrying a user's private updates
func UserTopic(userID string) string {
	return userTopicPrefix + userID
}

// authorizeTopic reports whether a connection for userID may subscribe to
// topic. Thread and user topics are private to their participants; admins may
// watch any thread.
func authorizeTopic(userID string, isAdmin bool, topic string) error {
	switch {
	case topic == TopicLeaderboard, topic == TopicBattles:
		return nil
	case strings.HasPrefix(topic, channelTopicPrefix):
		if strings.TrimPrefix(topic, channelTopicPrefix) == "" {
			return domain.ErrInvalidRequest
		}
		return nil
	case strings.HasPrefix(topic, userTopicPrefix):
		if strings.TrimPrefix(topic, userTopicPrefix) != userID {
			return domain.ErrForbidden
		}
		return nil
	case strings.HasPrefix(topic, threadTopicPrefix):
		key, err := domain.ParseThreadID(strings.TrimPrefix(topic, threadTopicPrefix))
		if err != nil {
			return err
		}
		if !key.Has(userID) && !isAdmin {
			return domain.ErrNotParticipant
		}
		return nil
	}
	return domain.ErrInvalidRequest
}
