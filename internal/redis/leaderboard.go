package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/clashsync/internal/config"
	"github.com/clashsync/internal/domain"
)

// diamondsKey is the sorted set holding every user's diamond balance
const diamondsKey = "leaderboard:diamonds"

// NewClient connects to Redis and verifies the connection
func NewClient(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return client, nil
}

// Leaderboard provides the realtime diamonds ranking backed by a sorted set
type Leaderboard struct {
	client *redis.Client
	logger *slog.Logger
}

// NewLeaderboard creates a Redis leaderboard on an existing client
func NewLeaderboard(client *redis.Client, logger *slog.Logger) *Leaderboard {
	return &Leaderboard{
		client: client,
		logger: logger,
	}
}

// SetDiamonds sets a user's balance in the ranking
func (l *Leaderboard) SetDiamonds(ctx context.Context, userID string, diamonds int64) error {
	err := l.client.ZAdd(ctx, diamondsKey, redis.Z{
		Score:  float64(diamonds),
		Member: userID,
	}).Err()
	if err != nil {
		return fmt.Errorf("setting diamonds: %w", err)
	}
	return nil
}

// Members returns every ranked user id
func (l *Leaderboard) Members(ctx context.Context) ([]string, error) {
	members, err := l.client.ZRange(ctx, diamondsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	return members, nil
}

// RemoveUsers drops users from the ranking
func (l *Leaderboard) RemoveUsers(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	members := make([]any, len(userIDs))
	for i, id := range userIDs {
		members[i] = id
	}
	if err := l.client.ZRem(ctx, diamondsKey, members...).Err(); err != nil {
		return fmt.Errorf("removing users: %w", err)
	}
	return nil
}

// GetTopN returns the N richest users, highest first
func (l *Leaderboard) GetTopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	return l.GetRange(ctx, 0, n-1)
}

// GetUserRank returns a user's 1-based rank and balance
func (l *Leaderboard) GetUserRank(ctx context.Context, userID string) (*domain.LeaderboardEntry, error) {
	// Use pipeline to get both rank and score
	pipe := l.client.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, diamondsKey, userID)
	scoreCmd := pipe.ZScore(ctx, diamondsKey, userID)
	_, err := pipe.Exec(ctx)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user rank: %w", err)
	}

	rank, err := rankCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("getting rank result: %w", err)
	}
	score, err := scoreCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("getting score result: %w", err)
	}

	return &domain.LeaderboardEntry{
		Rank:     rank + 1, // Convert 0-indexed to 1-indexed
		UserID:   userID,
		Diamonds: int64(score),
	}, nil
}

// GetAroundUser returns up to count users on either side of userID
func (l *Leaderboard) GetAroundUser(ctx context.Context, userID string, count int) ([]domain.LeaderboardEntry, error) {
	entry, err := l.GetUserRank(ctx, userID)
	if err != nil {
		return nil, err
	}

	start := max(entry.Rank-int64(count)-1, 0)
	end := entry.Rank + int64(count) - 1

	return l.GetRange(ctx, int(start), int(end))
}

// GetRange returns users within a 0-indexed rank range
func (l *Leaderboard) GetRange(ctx context.Context, start, end int) ([]domain.LeaderboardEntry, error) {
	if end < start {
		return []domain.LeaderboardEntry{}, nil
	}
	results, err := l.client.ZRevRangeWithScores(ctx, diamondsKey, int64(start), int64(end)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting range: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, len(results))
	for i, result := range results {
		entries[i] = domain.LeaderboardEntry{
			Rank:     int64(start + i + 1),
			UserID:   result.Member.(string),
			Diamonds: int64(result.Score),
		}
	}
	return entries, nil
}

// GetCount returns the number of ranked users
func (l *Leaderboard) GetCount(ctx context.Context) (int64, error) {
	count, err := l.client.ZCard(ctx, diamondsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("getting count: %w", err)
	}
	return count, nil
}

// BatchSetDiamonds replaces balances for many users using pipelining
func (l *Leaderboard) BatchSetDiamonds(ctx context.Context, balances map[string]int64) error {
	if len(balances) == 0 {
		return nil
	}
	pipe := l.client.Pipeline()
	for userID, diamonds := range balances {
		pipe.ZAdd(ctx, diamondsKey, redis.Z{
			Score:  float64(diamonds),
			Member: userID,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("batch setting diamonds: %w", err)
	}
	return nil
}
