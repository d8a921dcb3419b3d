package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceStore marks connected users with short-lived keys that the
// websocket layer refreshes while a connection stays open.
type PresenceStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewPresenceStore creates a presence store on an existing client
func NewPresenceStore(client *redis.Client, logger *slog.Logger) *PresenceStore {
	return &PresenceStore{
		client: client,
		logger: logger,
	}
}

func presenceKey(userID string) string {
	return fmt.Sprintf("presence:%s", userID)
}

// Touch marks a user online for ttl
func (s *PresenceStore) Touch(ctx context.Context, userID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, presenceKey(userID), time.Now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("touching presence: %w", err)
	}
	return nil
}

// Remove marks a user offline
func (s *PresenceStore) Remove(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, presenceKey(userID)).Err(); err != nil {
		return fmt.Errorf("removing presence: %w", err)
	}
	return nil
}

// OnlineUsers reports which of userIDs currently hold a presence key
func (s *PresenceStore) OnlineUsers(ctx context.Context, userIDs []string) (map[string]bool, error) {
	online := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return online, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.Exists(ctx, presenceKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("checking presence: %w", err)
	}

	for i, id := range userIDs {
		online[id] = cmds[i].Val() > 0
	}
	return online, nil
}
