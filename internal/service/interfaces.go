package service

import (
	"context"
	"time"

	"github.com/clashsync/internal/domain"
)

// UserStore persists user profiles
type UserStore interface {
	UpsertUser(ctx context.Context, user *domain.User) (*domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateProfile(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.User, error)
	SearchUsers(ctx context.Context, viewerID, prefix string, limit int) ([]domain.User, error)
	SetBlocked(ctx context.Context, userID, otherID string, blocked bool) error
	SetMuted(ctx context.Context, userID, threadID string, muted bool) error
	AdminUpdateUser(ctx context.Context, id string, update domain.AdminUserUpdate) (*domain.User, error)
	GetUserProfiles(ctx context.Context, ids []string) (map[string]domain.ParticipantProfile, error)
}

// DiamondStore persists diamond balances and their audit trail
type DiamondStore interface {
	AddDiamonds(ctx context.Context, award domain.DiamondAward) (int64, error)
	GetAllDiamonds(ctx context.Context) (map[string]int64, error)
}

// BattleStore persists battles, their inbox records and modification requests
type BattleStore interface {
	CreateBattle(ctx context.Context, battle *domain.Battle, request *domain.BattleRequestRecord) error
	GetBattle(ctx context.Context, id string) (*domain.Battle, error)
	ListBattles(ctx context.Context, filter domain.BattleFilter) ([]domain.Battle, error)
	// UpdateBattleStatus writes status and opponent fields only if the stored
	// status still equals from.
	UpdateBattleStatus(ctx context.Context, battle *domain.Battle, from domain.BattleStatus) error
	UpdateBattle(ctx context.Context, battle *domain.Battle) error
	DeleteBattle(ctx context.Context, id string) error

	CreateModification(ctx context.Context, req *domain.ModificationRequest) error
	GetModification(ctx context.Context, id string) (*domain.ModificationRequest, error)
	ListModifications(ctx context.Context, status domain.ModificationStatus) ([]domain.ModificationRequest, error)
	// ReviewModification records the review only if the request is still pending.
	ReviewModification(ctx context.Context, req *domain.ModificationRequest) error
	// ApproveModification records the approval and writes battle atomically,
	// only if the request is still pending.
	ApproveModification(ctx context.Context, req *domain.ModificationRequest, battle *domain.Battle) error
}

// ThreadStore persists direct message threads and their messages
type ThreadStore interface {
	// CreateThreadIfAbsent inserts the thread unless one with the same ID
	// exists, and reports whether it inserted.
	CreateThreadIfAbsent(ctx context.Context, thread *domain.Thread) (bool, error)
	GetThread(ctx context.Context, id string) (*domain.Thread, error)
	ListThreads(ctx context.Context, userID string) ([]domain.Thread, error)
	// AppendMessage stores the message, updates the last-message summary,
	// zeroes the sender's unread count and increments the receiver's.
	AppendMessage(ctx context.Context, msg *domain.Message) (*domain.Thread, error)
	ListMessages(ctx context.Context, threadID string, cursor *domain.MessageCursor, limit int) ([]domain.Message, error)
	MarkRead(ctx context.Context, threadID, userID string) (int64, error)
	SetFlag(ctx context.Context, threadID, adminID string, flag domain.FlagRequest) (*domain.Thread, error)
}

// ChannelStore persists community channels and their messages
type ChannelStore interface {
	CreateChannel(ctx context.Context, channel *domain.Channel) error
	GetChannel(ctx context.Context, id string) (*domain.Channel, error)
	GetChannelByName(ctx context.Context, name string) (*domain.Channel, error)
	ListChannels(ctx context.Context) ([]domain.Channel, error)
	CreateChatMessage(ctx context.Context, msg *domain.ChatMessage) error
	ListChatMessages(ctx context.Context, channelID string, limit int) ([]domain.ChatMessage, error)
}

// Ranking is the realtime diamonds leaderboard
type Ranking interface {
	SetDiamonds(ctx context.Context, userID string, diamonds int64) error
	GetTopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)
	GetUserRank(ctx context.Context, userID string) (*domain.LeaderboardEntry, error)
	GetAroundUser(ctx context.Context, userID string, count int) ([]domain.LeaderboardEntry, error)
	GetCount(ctx context.Context) (int64, error)
}

// TypingTracker holds ephemeral typing indicators
type TypingTracker interface {
	SetTyping(ctx context.Context, threadID string, indicator domain.TypingIndicator, ttl time.Duration) error
	ClearTyping(ctx context.Context, threadID, userID string) error
	TypingUsers(ctx context.Context, threadID string) ([]domain.TypingIndicator, error)
}

// PresenceTracker reports which users are connected
type PresenceTracker interface {
	OnlineUsers(ctx context.Context, userIDs []string) (map[string]bool, error)
}

// Notifier pushes changes to realtime subscribers
type Notifier interface {
	NotifyThread(thread *domain.Thread)
	NotifyMessage(msg *domain.Message)
	NotifyTyping(threadID string, typing []domain.TypingIndicator)
	NotifyBattle(battle *domain.Battle)
	NotifyChatMessage(msg *domain.ChatMessage)
	NotifyLeaderboard(entries []domain.LeaderboardEntry)
	NotifyUser(user *domain.User)
}

// nopNotifier discards notifications when no hub is attached
type nopNotifier struct{}

func (nopNotifier) NotifyThread(*domain.Thread) {}
func (nopNotifier) NotifyMessage(*domain.Message) {}
func (nopNotifier) NotifyTyping(string, []domain.TypingIndicator) {}
func (nopNotifier) NotifyBattle(*domain.Battle) {}
func (nopNotifier) NotifyChatMessage(*domain.ChatMessage) {}
func (nopNotifier) NotifyLeaderboard([]domain.LeaderboardEntry) {}
func (nopNotifier) NotifyUser(*domain.User) {}
