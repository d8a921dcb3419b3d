package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clashsync/internal/domain"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLeaderboardRanking(t *testing.T) {
	client, _ := newTestClient(t)
	lb := NewLeaderboard(client, discardLogger())
	ctx := context.Background()

	require.NoError(t, lb.BatchSetDiamonds(ctx, map[string]int64{
		"alice": 500,
		"bob":   1200,
		"carol": 50,
		"dave":  800,
	}))

	top, err := lb.GetTopN(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "bob", top[0].UserID)
	assert.Equal(t, int64(1), top[0].Rank)
	assert.Equal(t, "dave", top[1].UserID)

	require.NoError(t, lb.SetDiamonds(ctx, "carol", 1050))

	entry, err := lb.GetUserRank(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, int64(2), entry.Rank)
	assert.Equal(t, int64(1050), entry.Diamonds)

	count, err := lb.GetCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	require.NoError(t, lb.RemoveUsers(ctx, "alice", "dave"))
	require.NoError(t, lb.RemoveUsers(ctx))
	members, err := lb.Members(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bob", "carol"}, members)
}

func TestLeaderboardAroundUser(t *testing.T) {
	client, _ := newTestClient(t)
	lb := NewLeaderboard(client, discardLogger())
	ctx := context.Background()

	for i, id := range []string{"u1", "u2", "u3", "u4", "u5"} {
		require.NoError(t, lb.SetDiamonds(ctx, id, int64(100-i*10)))
	}

	around, err := lb.GetAroundUser(ctx, "u3", 1)
	require.NoError(t, err)
	require.Len(t, around, 3)
	assert.Equal(t, "u2", around[0].UserID)
	assert.Equal(t, int64(2), around[0].Rank)
	assert.Equal(t, "u4", around[2].UserID)

	around, err = lb.GetAroundUser(ctx, "u1", 2)
	require.NoError(t, err)
	assert.Len(t, around, 3)
	assert.Equal(t, int64(1), around[0].Rank)
}

func TestLeaderboardUnknownUser(t *testing.T) {
	client, _ := newTestClient(t)
	lb := NewLeaderboard(client, discardLogger())

	_, err := lb.GetUserRank(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestLeaderboardEmptyTop(t *testing.T) {
	client, _ := newTestClient(t)
	lb := NewLeaderboard(client, discardLogger())

	top, err := lb.GetTopN(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestTypingExpires(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewTypingStore(client, discardLogger())
	ctx := context.Background()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.SetTyping(ctx, "a_b", domain.TypingIndicator{UserID: "a", FullName: "Alice"}, 3*time.Second))

	typing, err := store.TypingUsers(ctx, "a_b")
	require.NoError(t, err)
	require.Len(t, typing, 1)
	assert.Equal(t, "Alice", typing[0].FullName)
	assert.True(t, typing[0].IsTyping)
	assert.True(t, typing[0].LastTypingAt.Equal(now))

	now = now.Add(3 * time.Second)
	typing, err = store.TypingUsers(ctx, "a_b")
	require.NoError(t, err)
	assert.Empty(t, typing)
}

func TestTypingClear(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewTypingStore(client, discardLogger())
	ctx := context.Background()

	require.NoError(t, store.SetTyping(ctx, "a_b", domain.TypingIndicator{UserID: "a"}, time.Minute))
	require.NoError(t, store.SetTyping(ctx, "a_b", domain.TypingIndicator{UserID: "b"}, time.Minute))
	require.NoError(t, store.ClearTyping(ctx, "a_b", "a"))

	typing, err := store.TypingUsers(ctx, "a_b")
	require.NoError(t, err)
	require.Len(t, typing, 1)
	assert.Equal(t, "b", typing[0].UserID)
}

func TestPresence(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewPresenceStore(client, discardLogger())
	ctx := context.Background()

	require.NoError(t, store.Touch(ctx, "alice", 30*time.Second))
	require.NoError(t, store.Touch(ctx, "bob", 30*time.Second))
	require.NoError(t, store.Remove(ctx, "bob"))

	online, err := store.OnlineUsers(ctx, []string{"alice", "bob", "carol"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"alice": true, "bob": false, "carol": false}, online)

	mr.FastForward(31 * time.Second)
	online, err = store.OnlineUsers(ctx, []string{"alice"})
	require.NoError(t, err)
	assert.False(t, online["alice"])
}
