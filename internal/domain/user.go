package domain

import (
	"slices"
	"time"
)

// Role is a user's permission level
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCreator Role = "creator"
	RoleCoach   Role = "coach"
	RoleUser    Role = "user"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCreator, RoleCoach, RoleUser:
		return true
	}
	return false
}

// User represents a ClashSync member
type User struct {
	ID             string    `json:"id"`
	FullName       string    `json:"full_name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone,omitempty"`
	TikTokUsername string    `json:"tiktok_username,omitempty"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	Role           Role      `json:"role"`
	Diamonds       int64     `json:"diamonds"`
	BlockedUsers   []string  `json:"blocked_users"`
	MutedThreads   []string  `json:"muted_threads"`
	CreatedAt      time.Time `json:"created_at"`
	LastSeen       time.Time `json:"last_seen"`
	IsOnline       bool      `json:"is_online"`
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasBlocked reports whether u has blocked otherID
func (u *User) HasBlocked(otherID string) bool {
	return slices.Contains(u.BlockedUsers, otherID)
}

// DisplayName returns the full name or a fallback derived from the ID
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	short := u.ID
	if len(short) > 5 {
		short = short[:5]
	}
	return "User " + short
}

// Summary returns the denormalized profile stored on threads and messages
func (u *User) Summary() ParticipantProfile {
	return ParticipantProfile{
		ID:        u.ID,
		FullName:  u.DisplayName(),
		AvatarURL: u.AvatarURL,
		Email:     u.Email,
	}
}

// Identity carries the claims of a verified bearer token
type Identity struct {
	UserID   string
	Email    string
	FullName string
	Picture  string
}

// ProfileUpdate holds the user-editable profile fields. Nil means unchanged.
type ProfileUpdate struct {
	FullName       *string `json:"full_name,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	TikTokUsername *string `json:"tiktok_username,omitempty"`
	AvatarURL      *string `json:"avatar_url,omitempty"`
}

// AdminUserUpdate holds the fields an admin may change on any user
type AdminUserUpdate struct {
	Role     Role  `json:"role"`
	Diamonds int64 `json:"diamonds"`
}
