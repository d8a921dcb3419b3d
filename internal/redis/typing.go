package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clashsync/internal/domain"
)

// TypingStore keeps per-thread typing indicators. Each thread has a sorted
// set of user IDs scored by the indicator's expiry in unix milliseconds, and
// a hash holding the indicator payloads.
type TypingStore struct {
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewTypingStore creates a typing store on an existing client
func NewTypingStore(client *redis.Client, logger *slog.Logger) *TypingStore {
	return &TypingStore{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

func typingKey(threadID string) string {
	return fmt.Sprintf("typing:%s", threadID)
}

func typingDataKey(threadID string) string {
	return fmt.Sprintf("typing:%s:data", threadID)
}

// SetTyping records that a user is typing until now+ttl
func (s *TypingStore) SetTyping(ctx context.Context, threadID string, indicator domain.TypingIndicator, ttl time.Duration) error {
	now := s.now()
	indicator.IsTyping = true
	indicator.LastTypingAt = now

	payload, err := json.Marshal(indicator)
	if err != nil {
		return fmt.Errorf("encoding typing indicator: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, typingKey(threadID), redis.Z{
		Score:  float64(now.Add(ttl).UnixMilli()),
		Member: indicator.UserID,
	})
	pipe.HSet(ctx, typingDataKey(threadID), indicator.UserID, payload)
	// Keys outlive the newest indicator briefly so idle threads clean up.
	pipe.Expire(ctx, typingKey(threadID), 2*ttl)
	pipe.Expire(ctx, typingDataKey(threadID), 2*ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting typing: %w", err)
	}
	return nil
}

// ClearTyping removes a user's indicator
func (s *TypingStore) ClearTyping(ctx context.Context, threadID, userID string) error {
	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, typingKey(threadID), userID)
	pipe.HDel(ctx, typingDataKey(threadID), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clearing typing: %w", err)
	}
	return nil
}

// TypingUsers returns the unexpired indicators for a thread, dropping
// expired ones as a side effect.
func (s *TypingStore) TypingUsers(ctx context.Context, threadID string) ([]domain.TypingIndicator, error) {
	key := typingKey(threadID)
	cutoff := strconv.FormatInt(s.now().UnixMilli(), 10)

	expired, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
	if err != nil {
		return nil, fmt.Errorf("reading expired typing: %w", err)
	}
	if len(expired) > 0 {
		pipe := s.client.TxPipeline()
		pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
		pipe.HDel(ctx, typingDataKey(threadID), expired...)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("pruning typing: %w", err)
		}
	}

	userIDs, err := s.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading typing: %w", err)
	}
	if len(userIDs) == 0 {
		return []domain.TypingIndicator{}, nil
	}

	payloads, err := s.client.HMGet(ctx, typingDataKey(threadID), userIDs...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading typing data: %w", err)
	}

	indicators := make([]domain.TypingIndicator, 0, len(userIDs))
	for i, raw := range payloads {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var indicator domain.TypingIndicator
		if err := json.Unmarshal([]byte(str), &indicator); err != nil {
			s.logger.Warn("dropping malformed typing indicator", "thread_id", threadID, "user_id", userIDs[i], "error", err)
			continue
		}
		indicators = append(indicators, indicator)
	}
	return indicators, nil
}
