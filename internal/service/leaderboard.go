package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clashsync/internal/config"
	"github.com/clashsync/internal/domain"
)

// LeaderboardService provides business logic for the diamonds leaderboard
type LeaderboardService struct {
	ranking  Ranking
	diamonds DiamondStore
	users    UserStore
	notifier Notifier
	config   *config.LeaderboardConfig
	logger   *slog.Logger
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(
	ranking Ranking,
	diamonds DiamondStore,
	users UserStore,
	notifier Notifier,
	cfg *config.LeaderboardConfig,
	logger *slog.Logger,
) *LeaderboardService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &LeaderboardService{
		ranking:  ranking,
		diamonds: diamonds,
		users:    users,
		notifier: notifier,
		config:   cfg,
		logger:   logger,
	}
}

// AwardDiamonds applies a diamond award. The database balance is the source
// of truth and the ranking is set to it afterwards.
func (s *LeaderboardService) AwardDiamonds(ctx context.Context, award domain.DiamondAward) (int64, error) {
	balance, err := s.award(ctx, award)
	if err != nil {
		return 0, err
	}
	s.broadcastTop(ctx)
	return balance, nil
}

func (s *LeaderboardService) award(ctx context.Context, award domain.DiamondAward) (int64, error) {
	if award.UserID == "" || award.Delta == 0 {
		return 0, fmt.Errorf("%w: user_id and non-zero delta required", domain.ErrInvalidRequest)
	}

	balance, err := s.diamonds.AddDiamonds(ctx, award)
	if err != nil {
		return 0, fmt.Errorf("adding diamonds: %w", err)
	}

	if err := s.ranking.SetDiamonds(ctx, award.UserID, balance); err != nil {
		// Don't fail the award; the sync worker repairs the ranking
		s.logger.Warn("failed to update ranking", "user_id", award.UserID, "error", err)
	}
	return balance, nil
}

// AwardDiamondsBatch applies multiple awards, skipping ones that fail
func (s *LeaderboardService) AwardDiamondsBatch(ctx context.Context, batch domain.BatchDiamondAward) (int, error) {
	applied := 0
	for _, award := range batch.Awards {
		if _, err := s.award(ctx, award); err != nil {
			s.logger.Error("failed to apply award in batch",
				"user_id", award.UserID,
				"delta", award.Delta,
				"error", err,
			)
			// Continue processing other awards
			continue
		}
		applied++
	}
	if applied > 0 {
		s.broadcastTop(ctx)
	}
	return applied, nil
}

// GetTopN returns the N users with the most diamonds
func (s *LeaderboardService) GetTopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	// Validate limit
	if n <= 0 {
		n = s.config.DefaultLimit
	}
	if n > s.config.MaxLimit {
		n = s.config.MaxLimit
	}

	entries, err := s.ranking.GetTopN(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("getting top n from redis: %w", err)
	}
	return s.withProfiles(ctx, entries), nil
}

// GetUserRank returns a user's rank and balance
func (s *LeaderboardService) GetUserRank(ctx context.Context, userID string) (*domain.LeaderboardEntry, error) {
	entry, err := s.ranking.GetUserRank(ctx, userID)
	if err != nil {
		return nil, err
	}
	enriched := s.withProfiles(ctx, []domain.LeaderboardEntry{*entry})
	return &enriched[0], nil
}

// GetAroundUser returns users ranked near userID
func (s *LeaderboardService) GetAroundUser(ctx context.Context, userID string, count int) ([]domain.LeaderboardEntry, error) {
	if count <= 0 {
		count = 5
	}
	if count > 50 {
		count = 50
	}

	entries, err := s.ranking.GetAroundUser(ctx, userID, count)
	if err != nil {
		return nil, err
	}
	return s.withProfiles(ctx, entries), nil
}

// GetStats returns summary figures for the leaderboard
func (s *LeaderboardService) GetStats(ctx context.Context) (*domain.LeaderboardStats, error) {
	count, err := s.ranking.GetCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting count: %w", err)
	}

	stats := &domain.LeaderboardStats{TotalUsers: count}

	top, err := s.ranking.GetTopN(ctx, 1)
	if err == nil && len(top) > 0 {
		stats.TopDiamonds = top[0].Diamonds
	}
	return stats, nil
}

// withProfiles fills display names and avatars from the user store. Lookup
// failures leave entries without profile data.
func (s *LeaderboardService) withProfiles(ctx context.Context, entries []domain.LeaderboardEntry) []domain.LeaderboardEntry {
	if len(entries) == 0 {
		return []domain.LeaderboardEntry{}
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}

	profiles, err := s.users.GetUserProfiles(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to load leaderboard profiles", "error", err)
		return entries
	}
	for i := range entries {
		if p, ok := profiles[entries[i].UserID]; ok {
			entries[i].FullName = p.FullName
			entries[i].AvatarURL = p.AvatarURL
		}
	}
	return entries
}

func (s *LeaderboardService) broadcastTop(ctx context.Context) {
	top, err := s.GetTopN(ctx, s.config.DefaultLimit)
	if err != nil {
		s.logger.Warn("failed to load leaderboard for broadcast", "error", err)
		return
	}
	s.notifier.NotifyLeaderboard(top)
}
