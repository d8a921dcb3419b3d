package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clashsync/internal/domain"
)

// searchLimit caps user search results
const searchLimit = 10

// UserService provides profile, search and block-list operations
type UserService struct {
	users    UserStore
	ranking  Ranking
	presence PresenceTracker
	notifier Notifier
	adminIDs map[string]bool
	logger   *slog.Logger
}

// NewUserService creates a new user service. adminIDs are promoted to the
// admin role when they sign in.
func NewUserService(
	users UserStore,
	ranking Ranking,
	presence PresenceTracker,
	notifier Notifier,
	adminIDs []string,
	logger *slog.Logger,
) *UserService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	admins := make(map[string]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &UserService{
		users:    users,
		ranking:  ranking,
		presence: presence,
		notifier: notifier,
		adminIDs: admins,
		logger:   logger,
	}
}

// EnsureUser returns the user for a verified identity, creating the record
// on first sign-in.
func (s *UserService) EnsureUser(ctx context.Context, identity domain.Identity) (*domain.User, error) {
	if identity.UserID == "" || strings.Contains(identity.UserID, domain.ThreadIDSeparator) {
		return nil, domain.ErrInvalidUserID
	}

	role := domain.RoleUser
	if s.adminIDs[identity.UserID] {
		role = domain.RoleAdmin
	}

	user, err := s.users.UpsertUser(ctx, &domain.User{
		ID:        identity.UserID,
		FullName:  identity.FullName,
		Email:     identity.Email,
		AvatarURL: identity.Picture,
		Role:      role,
	})
	if err != nil {
		return nil, fmt.Errorf("ensuring user: %w", err)
	}

	if role == domain.RoleAdmin && !user.IsAdmin() {
		user, err = s.users.AdminUpdateUser(ctx, user.ID, domain.AdminUserUpdate{
			Role:     domain.RoleAdmin,
			Diamonds: user.Diamonds,
		})
		if err != nil {
			return nil, fmt.Errorf("promoting admin: %w", err)
		}
		s.logger.Info("promoted configured admin", "user_id", user.ID)
	}

	return user, nil
}

// GetProfile returns a user with their online status
func (s *UserService) GetProfile(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	s.markOnline(ctx, []*domain.User{user})
	return user, nil
}

// UpdateProfile applies the caller's profile edits
func (s *UserService) UpdateProfile(ctx context.Context, actor *domain.User, update domain.ProfileUpdate) (*domain.User, error) {
	if update.FullName != nil {
		name := strings.TrimSpace(*update.FullName)
		if name == "" {
			return nil, fmt.Errorf("%w: full_name cannot be empty", domain.ErrInvalidRequest)
		}
		update.FullName = &name
	}
	if update.TikTokUsername != nil {
		handle := strings.TrimPrefix(strings.TrimSpace(*update.TikTokUsername), "@")
		update.TikTokUsername = &handle
	}

	user, err := s.users.UpdateProfile(ctx, actor.ID, update)
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyUser(user)
	return user, nil
}

// Search finds users whose name or TikTok handle starts with query. The
// caller and anyone on either side of a block with them are excluded.
func (s *UserService) Search(ctx context.Context, actor *domain.User, query string) ([]domain.User, error) {
	query = strings.TrimPrefix(strings.TrimSpace(query), "@")
	if query == "" {
		return []domain.User{}, nil
	}

	results, err := s.users.SearchUsers(ctx, actor.ID, query, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}
	if results == nil {
		results = []domain.User{}
	}
	return results, nil
}

// SetBlocked blocks or unblocks another user
func (s *UserService) SetBlocked(ctx context.Context, actor *domain.User, otherID string, blocked bool) error {
	if otherID == "" || otherID == actor.ID {
		return fmt.Errorf("%w: cannot block yourself", domain.ErrInvalidRequest)
	}
	if blocked {
		if _, err := s.users.GetUser(ctx, otherID); err != nil {
			return err
		}
	}
	return s.users.SetBlocked(ctx, actor.ID, otherID, blocked)
}

// SetMuted mutes or unmutes one of the caller's threads
func (s *UserService) SetMuted(ctx context.Context, actor *domain.User, threadID string, muted bool) error {
	key, err := domain.ParseThreadID(threadID)
	if err != nil {
		return err
	}
	if !key.Has(actor.ID) {
		return domain.ErrNotParticipant
	}
	return s.users.SetMuted(ctx, actor.ID, key.ID, muted)
}

// ListUsers returns every user for the admin panel
func (s *UserService) ListUsers(ctx context.Context, actor *domain.User) ([]domain.User, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	ptrs := make([]*domain.User, len(users))
	for i := range users {
		ptrs[i] = &users[i]
	}
	s.markOnline(ctx, ptrs)
	return users, nil
}

// AdminUpdate sets another user's role and diamond balance
func (s *UserService) AdminUpdate(ctx context.Context, actor *domain.User, id string, update domain.AdminUserUpdate) (*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if !update.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidRequest, update.Role)
	}
	if update.Diamonds < 0 {
		return nil, fmt.Errorf("%w: diamonds cannot be negative", domain.ErrInvalidRequest)
	}

	user, err := s.users.AdminUpdateUser(ctx, id, update)
	if err != nil {
		return nil, err
	}

	if s.ranking != nil {
		if err := s.ranking.SetDiamonds(ctx, user.ID, user.Diamonds); err != nil {
			// The sync worker reconciles the ranking from the database.
			s.logger.Warn("failed to update ranking after admin edit", "user_id", user.ID, "error", err)
		}
	}

	s.logger.Info("admin updated user",
		"admin_id", actor.ID,
		"user_id", user.ID,
		"role", user.Role,
		"diamonds", user.Diamonds,
	)
	s.notifier.NotifyUser(user)
	return user, nil
}

func (s *UserService) markOnline(ctx context.Context, users []*domain.User) {
	if s.presence == nil || len(users) == 0 {
		return
	}
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	online, err := s.presence.OnlineUsers(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to read presence", "error", err)
		return
	}
	for _, u := range users {
		u.IsOnline = online[u.ID]
	}
}
