package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clashsync/internal/domain"
)

func TestEnsureUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	user, err := f.users.EnsureUser(ctx, domain.Identity{UserID: "alice", Email: "a@example.com", FullName: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.Equal(t, "Alice", user.FullName)

	again, err := f.users.EnsureUser(ctx, domain.Identity{UserID: "alice", FullName: "Changed"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", again.FullName)

	_, err = f.users.EnsureUser(ctx, domain.Identity{UserID: "bad_id"})
	assert.ErrorIs(t, err, domain.ErrInvalidUserID)
}

func TestEnsureUserPromotesConfiguredAdmin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.addUser("root", "Root", domain.RoleUser)

	user, err := f.users.EnsureUser(ctx, domain.Identity{UserID: "root"})
	require.NoError(t, err)
	assert.True(t, user.IsAdmin())
}

func TestSearchExcludesSelfAndBlocked(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.addUser("alex", "Alex", domain.RoleUser)
	f.store.addUser("alfie", "Alfie", domain.RoleUser)
	f.store.addUser("alma", "Alma", domain.RoleUser)
	f.store.addUser("bob", "Bob", domain.RoleUser)
	require.NoError(t, f.store.SetBlocked(ctx, "alex", "alma", true))

	results, err := f.users.Search(ctx, f.store.user("alex"), "al")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alfie", results[0].ID)

	results, err = f.users.Search(ctx, f.store.user("alex"), "   ")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchMatchesTikTokHandle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	me := f.store.addUser("me", "Me", domain.RoleUser)
	f.store.addUser("zed", "Zed", domain.RoleUser)
	handle := "clashqueen"
	_, err := f.store.UpdateProfile(ctx, "zed", domain.ProfileUpdate{TikTokUsername: &handle})
	require.NoError(t, err)

	results, err := f.users.Search(ctx, me, "@Clash")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "zed", results[0].ID)
}

func TestSearchLimit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	me := f.store.addUser("me", "Me", domain.RoleUser)
	for i := 0; i < 15; i++ {
		f.store.addUser(fmt.Sprintf("user%02d", i), fmt.Sprintf("Sam %02d", i), domain.RoleUser)
	}

	results, err := f.users.Search(ctx, me, "sam")
	require.NoError(t, err)
	assert.Len(t, results, searchLimit)
}

func TestSearchFullPageWhenManyBlockedMe(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	me := f.store.addUser("me", "Me", domain.RoleUser)
	// every blocker sorts ahead of the visible users
	for i := 0; i < 2*searchLimit; i++ {
		id := fmt.Sprintf("blocker%02d", i)
		f.store.addUser(id, fmt.Sprintf("Sam A%02d", i), domain.RoleUser)
		require.NoError(t, f.store.SetBlocked(ctx, id, "me", true))
	}
	for i := 0; i < searchLimit; i++ {
		f.store.addUser(fmt.Sprintf("user%02d", i), fmt.Sprintf("Sam B%02d", i), domain.RoleUser)
	}

	results, err := f.users.Search(ctx, me, "sam")
	require.NoError(t, err)
	require.Len(t, results, searchLimit)
	for _, u := range results {
		assert.False(t, u.HasBlocked("me"), u.ID)
	}
}

func TestBlockAndMute(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice := f.store.addUser("alice", "Alice", domain.RoleUser)
	f.store.addUser("bob", "Bob", domain.RoleUser)

	assert.ErrorIs(t, f.users.SetBlocked(ctx, alice, "alice", true), domain.ErrInvalidRequest)
	assert.ErrorIs(t, f.users.SetBlocked(ctx, alice, "ghost", true), domain.ErrUserNotFound)
	require.NoError(t, f.users.SetBlocked(ctx, alice, "bob", true))
	assert.True(t, f.store.user("alice").HasBlocked("bob"))
	require.NoError(t, f.users.SetBlocked(ctx, alice, "bob", false))
	assert.False(t, f.store.user("alice").HasBlocked("bob"))

	require.NoError(t, f.users.SetMuted(ctx, alice, "alice_bob", true))
	assert.Equal(t, []string{"alice_bob"}, f.store.user("alice").MutedThreads)
	assert.ErrorIs(t, f.users.SetMuted(ctx, alice, "bob_carol", true), domain.ErrNotParticipant)
	assert.ErrorIs(t, f.users.SetMuted(ctx, alice, "bob_alice", true), domain.ErrInvalidThreadID)
}

func TestAdminUpdateUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	admin := f.store.addUser("root", "Root", domain.RoleAdmin)
	alice := f.store.addUser("alice", "Alice", domain.RoleUser)

	_, err := f.users.AdminUpdate(ctx, alice, "alice", domain.AdminUserUpdate{Role: domain.RoleAdmin})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.users.AdminUpdate(ctx, admin, "alice", domain.AdminUserUpdate{Role: "overlord"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	updated, err := f.users.AdminUpdate(ctx, admin, "alice", domain.AdminUserUpdate{Role: domain.RoleCreator, Diamonds: 900})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCreator, updated.Role)
	assert.Equal(t, int64(900), f.ranking.scores["alice"])
	assert.Len(t, f.notifier.users, 1)

	users, err := f.users.ListUsers(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}
