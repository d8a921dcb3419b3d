package handler

import (
	"context"
	"time"

	"github.com/clashsync/internal/domain"
)

// UserAPI is the profile and moderation surface of the user service
type UserAPI interface {
	GetProfile(ctx context.Context, id string) (*domain.User, error)
	UpdateProfile(ctx context.Context, actor *domain.User, update domain.ProfileUpdate) (*domain.User, error)
	Search(ctx context.Context, actor *domain.User, query string) ([]domain.User, error)
	SetBlocked(ctx context.Context, actor *domain.User, otherID string, blocked bool) error
	SetMuted(ctx context.Context, actor *domain.User, threadID string, muted bool) error
	ListUsers(ctx context.Context, actor *domain.User) ([]domain.User, error)
	AdminUpdate(ctx context.Context, actor *domain.User, id string, update domain.AdminUserUpdate) (*domain.User, error)
}

// BattleAPI covers battle scheduling and modification requests
type BattleAPI interface {
	RequestBattle(ctx context.Context, actor *domain.User, req domain.CreateBattleRequest) (*domain.Battle, error)
	GetBattle(ctx context.Context, id string) (*domain.Battle, error)
	ListIncomingRequests(ctx context.Context, actor *domain.User, before *time.Time) ([]domain.Battle, error)
	ListOpenBattles(ctx context.Context) ([]domain.Battle, error)
	ListUpcoming(ctx context.Context) ([]domain.Battle, error)
	ListMine(ctx context.Context, actor *domain.User) ([]domain.Battle, error)
	ListAll(ctx context.Context, actor *domain.User, filter domain.BattleFilter) ([]domain.Battle, error)
	Accept(ctx context.Context, actor *domain.User, id string) (*domain.Battle, error)
	Decline(ctx context.Context, actor *domain.User, id string) (*domain.Battle, error)
	Start(ctx context.Context, actor *domain.User, id string) (*domain.Battle, error)
	Complete(ctx context.Context, actor *domain.User, id string) (*domain.Battle, error)
	AdminUpdate(ctx context.Context, actor *domain.User, id string, patch domain.BattlePatch) (*domain.Battle, error)
	AdminDelete(ctx context.Context, actor *domain.User, id string) error

	SubmitModification(ctx context.Context, actor *domain.User, battleID string, req domain.SubmitModificationRequest) (*domain.ModificationRequest, error)
	ListModifications(ctx context.Context, actor *domain.User, status domain.ModificationStatus) ([]domain.ModificationRequest, error)
	ApproveModification(ctx context.Context, actor *domain.User, id string, edited *domain.BattlePatch) (*domain.Battle, error)
	DenyModification(ctx context.Context, actor *domain.User, id string) (*domain.ModificationRequest, error)
}

// ThreadAPI covers direct message threads
type ThreadAPI interface {
	FindOrCreate(ctx context.Context, actor *domain.User, otherID string) (*domain.Thread, error)
	GetThread(ctx context.Context, actor *domain.User, threadID string) (*domain.Thread, error)
	ListThreads(ctx context.Context, actor *domain.User) ([]domain.Thread, error)
	SendMessage(ctx context.Context, actor *domain.User, threadID string, req domain.SendMessageRequest) (*domain.Message, error)
	ListMessages(ctx context.Context, actor *domain.User, threadID string, cursor *domain.MessageCursor, limit int) (*domain.MessagePage, error)
	SetTyping(ctx context.Context, actor *domain.User, threadID string, isTyping bool) ([]domain.TypingIndicator, error)
	TypingUsers(ctx context.Context, actor *domain.User, threadID string) ([]domain.TypingIndicator, error)
	MarkRead(ctx context.Context, actor *domain.User, threadID string) (int64, error)
	Flag(ctx context.Context, actor *domain.User, threadID string, flag domain.FlagRequest) (*domain.Thread, error)
}

// ChannelAPI covers community chat
type ChannelAPI interface {
	CreateChannel(ctx context.Context, actor *domain.User, req domain.CreateChannelRequest) (*domain.Channel, error)
	ListChannels(ctx context.Context) ([]domain.Channel, error)
	PostMessage(ctx context.Context, actor *domain.User, channelID, text string) (*domain.ChatMessage, error)
	ListMessages(ctx context.Context, channelID string, limit int) ([]domain.ChatMessage, error)
}

// LeaderboardAPI covers the diamonds ranking
type LeaderboardAPI interface {
	AwardDiamonds(ctx context.Context, award domain.DiamondAward) (int64, error)
	AwardDiamondsBatch(ctx context.Context, batch domain.BatchDiamondAward) (int, error)
	GetTopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)
	GetUserRank(ctx context.Context, userID string) (*domain.LeaderboardEntry, error)
	GetAroundUser(ctx context.Context, userID string, count int) ([]domain.LeaderboardEntry, error)
	GetStats(ctx context.Context) (*domain.LeaderboardStats, error)
}
