package domain

import (
	"strings"
	"time"
)

// ThreadIDSeparator joins the two participant IDs of a thread key
const ThreadIDSeparator = "_"

// ThreadKey is the canonical identity of a two-party conversation.
// First is always the lexically smaller participant ID.
type ThreadKey struct {
	ID     string
	First  string
	Second string
}

// NewThreadKey derives the canonical key for a pair of users. The result is
// the same regardless of argument order.
func NewThreadKey(a, b string) (ThreadKey, error) {
	if !validParticipantID(a) || !validParticipantID(b) {
		return ThreadKey{}, ErrInvalidUserID
	}
	if a == b {
		return ThreadKey{}, ErrSelfThread
	}
	if b < a {
		a, b = b, a
	}
	return ThreadKey{ID: a + ThreadIDSeparator + b, First: a, Second: b}, nil
}

// ThreadID returns the canonical thread ID for a pair of users, or an empty
// string when the pair cannot form a thread.
func ThreadID(a, b string) string {
	key, err := NewThreadKey(a, b)
	if err != nil {
		return ""
	}
	return key.ID
}

// ParseThreadID splits a thread ID back into its participants and verifies it
// is in canonical order.
func ParseThreadID(id string) (ThreadKey, error) {
	first, second, ok := strings.Cut(id, ThreadIDSeparator)
	if !ok {
		return ThreadKey{}, ErrInvalidThreadID
	}
	key, err := NewThreadKey(first, second)
	if err != nil || key.ID != id {
		return ThreadKey{}, ErrInvalidThreadID
	}
	return key, nil
}

// Participants returns the ordered participant IDs
func (k ThreadKey) Participants() []string {
	return []string{k.First, k.Second}
}

// Other returns the participant that is not userID
func (k ThreadKey) Other(userID string) (string, bool) {
	switch userID {
	case k.First:
		return k.Second, true
	case k.Second:
		return k.First, true
	}
	return "", false
}

// Has reports whether userID participates in the thread
func (k ThreadKey) Has(userID string) bool {
	return userID == k.First || userID == k.Second
}

func validParticipantID(id string) bool {
	return id != "" && !strings.Contains(id, ThreadIDSeparator)
}

// ParticipantProfile is the denormalized user summary stored with a thread
type ParticipantProfile struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
	Email     string `json:"email"`
}

// LastMessage summarizes the most recent message in a thread
type LastMessage struct {
	ID          string      `json:"id"`
	SenderID    string      `json:"sender_id"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"content_type"`
	Timestamp   time.Time   `json:"timestamp"`
}

// TypingIndicator marks a participant as currently typing
type TypingIndicator struct {
	UserID       string    `json:"user_id"`
	FullName     string    `json:"full_name"`
	IsTyping     bool      `json:"is_typing"`
	LastTypingAt time.Time `json:"last_typing_at"`
}

// Thread is a direct message conversation between two users
type Thread struct {
	ID                  string                        `json:"id"`
	ParticipantIDs      []string                      `json:"participant_ids"`
	ParticipantProfiles map[string]ParticipantProfile `json:"participant_profiles"`
	LastMessage         *LastMessage                  `json:"last_message"`
	UnreadCounts        map[string]int                `json:"unread_counts"`
	TypingUsers         []TypingIndicator             `json:"typing_users"`
	IsFlagged           bool                          `json:"is_flagged"`
	FlaggedBy           string                        `json:"flagged_by,omitempty"`
	FlagReason          string                        `json:"flag_reason,omitempty"`
	CreatedAt           time.Time                     `json:"created_at"`
	UpdatedAt           time.Time                     `json:"updated_at"`
}

// NewThread builds a fresh thread record for key with zeroed unread counters
func NewThread(key ThreadKey, first, second ParticipantProfile, now time.Time) *Thread {
	return &Thread{
		ID:             key.ID,
		ParticipantIDs: key.Participants(),
		ParticipantProfiles: map[string]ParticipantProfile{
			key.First:  first,
			key.Second: second,
		},
		UnreadCounts: map[string]int{
			key.First:  0,
			key.Second: 0,
		},
		TypingUsers: []TypingIndicator{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Key returns the thread's canonical key
func (t *Thread) Key() (ThreadKey, error) {
	key, err := ParseThreadID(t.ID)
	if err != nil {
		return ThreadKey{}, err
	}
	if len(t.ParticipantIDs) != 2 || t.ParticipantIDs[0] != key.First || t.ParticipantIDs[1] != key.Second {
		return ThreadKey{}, ErrInvalidThreadID
	}
	return key, nil
}

// Version is the ordering stamp used by client caches
func (t *Thread) Version() time.Time {
	return t.UpdatedAt
}

// FlagRequest is an admin's flag on a thread
type FlagRequest struct {
	Flagged bool   `json:"flagged"`
	Reason  string `json:"reason"`
}
