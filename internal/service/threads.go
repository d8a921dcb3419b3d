package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/clashsync/internal/config"
	"github.com/clashsync/internal/domain"
)

// ThreadService manages direct message threads
type ThreadService struct {
	threads  ThreadStore
	users    UserStore
	typing   TypingTracker
	notifier Notifier
	config   *config.MessagingConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewThreadService creates a new thread service
func NewThreadService(
	threads ThreadStore,
	users UserStore,
	typing TypingTracker,
	notifier Notifier,
	cfg *config.MessagingConfig,
	logger *slog.Logger,
) *ThreadService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ThreadService{
		threads:  threads,
		users:    users,
		typing:   typing,
		notifier: notifier,
		config:   cfg,
		now:      time.Now,
		logger:   logger,
	}
}

// authorize resolves threadID and checks the actor may use it. Admins may
// read threads they do not participate in when allowAdmin is set.
func authorize(actor *domain.User, threadID string, allowAdmin bool) (domain.ThreadKey, error) {
	key, err := domain.ParseThreadID(threadID)
	if err != nil {
		return domain.ThreadKey{}, err
	}
	if key.Has(actor.ID) || (allowAdmin && actor.IsAdmin()) {
		return key, nil
	}
	return domain.ThreadKey{}, domain.ErrNotParticipant
}

// FindOrCreate returns the thread between the caller and otherID, creating it
// if this pair has never talked. Calling it from either side yields the same
// thread.
func (s *ThreadService) FindOrCreate(ctx context.Context, actor *domain.User, otherID string) (*domain.Thread, error) {
	key, err := domain.NewThreadKey(actor.ID, otherID)
	if err != nil {
		return nil, err
	}

	thread, err := s.threads.GetThread(ctx, key.ID)
	if err == nil {
		return thread, nil
	}
	if !errors.Is(err, domain.ErrThreadNotFound) {
		return nil, err
	}

	other, err := s.users.GetUser(ctx, otherID)
	if err != nil {
		return nil, err
	}
	if actor.HasBlocked(other.ID) || other.HasBlocked(actor.ID) {
		return nil, domain.ErrBlocked
	}

	profiles := map[string]domain.ParticipantProfile{
		actor.ID: actor.Summary(),
		other.ID: other.Summary(),
	}
	created, err := s.threads.CreateThreadIfAbsent(ctx,
		domain.NewThread(key, profiles[key.First], profiles[key.Second], s.now()))
	if err != nil {
		return nil, err
	}

	// Re-read so a concurrent creator's record wins.
	thread, err = s.threads.GetThread(ctx, key.ID)
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("thread created", "thread_id", thread.ID)
		s.notifier.NotifyThread(thread)
	}
	return thread, nil
}

// GetThread returns a thread the caller participates in
func (s *ThreadService) GetThread(ctx context.Context, actor *domain.User, threadID string) (*domain.Thread, error) {
	key, err := authorize(actor, threadID, true)
	if err != nil {
		return nil, err
	}
	thread, err := s.threads.GetThread(ctx, key.ID)
	if err != nil {
		return nil, err
	}
	s.attachTyping(ctx, thread)
	return thread, nil
}

// ListThreads returns the caller's threads, most recently active first.
// Threads with users the caller blocked are hidden.
func (s *ThreadService) ListThreads(ctx context.Context, actor *domain.User) ([]domain.Thread, error) {
	threads, err := s.threads.ListThreads(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}

	visible := make([]domain.Thread, 0, len(threads))
	for _, t := range threads {
		key, err := t.Key()
		if err != nil {
			s.logger.Warn("skipping thread with inconsistent key", "thread_id", t.ID, "error", err)
			continue
		}
		other, _ := key.Other(actor.ID)
		if actor.HasBlocked(other) {
			continue
		}
		visible = append(visible, t)
	}
	return visible, nil
}

// SendMessage appends a message from the caller. The receiver's unread count
// goes up, the caller's drops to zero and the caller stops typing.
func (s *ThreadService) SendMessage(ctx context.Context, actor *domain.User, threadID string, req domain.SendMessageRequest) (*domain.Message, error) {
	key, err := authorize(actor, threadID, false)
	if err != nil {
		return nil, err
	}
	if err := s.validateMessage(&req); err != nil {
		return nil, err
	}

	otherID, _ := key.Other(actor.ID)
	if actor.HasBlocked(otherID) {
		return nil, domain.ErrBlocked
	}
	other, err := s.users.GetUser(ctx, otherID)
	if err != nil {
		return nil, err
	}
	if other.HasBlocked(actor.ID) {
		return nil, domain.ErrBlocked
	}

	msg := &domain.Message{
		ID:            uuid.NewString(),
		ThreadID:      key.ID,
		SenderID:      actor.ID,
		ReceiverID:    otherID,
		SenderProfile: actor.Summary(),
		Content:       req.Content,
		ContentType:   req.ContentType,
		BattleID:      req.BattleID,
		BattleMode:    req.BattleMode,
		Timestamp:     s.now(),
		ReadBy:        []string{},
	}

	thread, err := s.threads.AppendMessage(ctx, msg)
	if errors.Is(err, domain.ErrThreadNotFound) {
		if _, err = s.FindOrCreate(ctx, actor, otherID); err != nil {
			return nil, err
		}
		thread, err = s.threads.AppendMessage(ctx, msg)
	}
	if err != nil {
		return nil, err
	}

	if err := s.typing.ClearTyping(ctx, key.ID, actor.ID); err != nil {
		s.logger.Warn("failed to clear typing", "thread_id", key.ID, "user_id", actor.ID, "error", err)
	}

	s.notifier.NotifyMessage(msg)
	s.attachTyping(ctx, thread)
	s.notifier.NotifyThread(thread)
	return msg, nil
}

func (s *ThreadService) validateMessage(req *domain.SendMessageRequest) error {
	if req.ContentType == "" {
		req.ContentType = domain.ContentTypeText
	}
	if !req.ContentType.Valid() || req.ContentType == domain.ContentTypeSystem {
		return fmt.Errorf("%w: unsupported content type %q", domain.ErrInvalidRequest, req.ContentType)
	}
	if req.ContentType == domain.ContentTypeBattleRequest && req.BattleID == "" {
		return fmt.Errorf("%w: battle_id required for battle requests", domain.ErrInvalidRequest)
	}

	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		return fmt.Errorf("%w: message cannot be empty", domain.ErrInvalidRequest)
	}
	if utf8.RuneCountInString(req.Content) > s.config.MaxMessageLength {
		return fmt.Errorf("%w: message exceeds %d characters", domain.ErrInvalidRequest, s.config.MaxMessageLength)
	}
	return nil
}

// SendBattleInvite posts a battle request message from the requester to the
// opponent of a direct battle.
func (s *ThreadService) SendBattleInvite(ctx context.Context, battle *domain.Battle) error {
	requester, err := s.users.GetUser(ctx, battle.CreatorAID)
	if err != nil {
		return err
	}
	thread, err := s.FindOrCreate(ctx, requester, battle.CreatorBID)
	if err != nil {
		return err
	}

	_, err = s.SendMessage(ctx, requester, thread.ID, domain.SendMessageRequest{
		Content: fmt.Sprintf("%s challenged you to a %s battle on %s",
			battle.CreatorAName, battle.Mode, battle.DateTime.UTC().Format(time.RFC1123)),
		ContentType: domain.ContentTypeBattleRequest,
		BattleID:    battle.ID,
		BattleMode:  battle.Mode,
	})
	return err
}

// ListMessages returns a page of messages before the cursor, oldest first
func (s *ThreadService) ListMessages(ctx context.Context, actor *domain.User, threadID string, cursor *domain.MessageCursor, limit int) (*domain.MessagePage, error) {
	key, err := authorize(actor, threadID, true)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.config.MessagePageSize {
		limit = s.config.MessagePageSize
	}

	messages, err := s.threads.ListMessages(ctx, key.ID, cursor, limit+1)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	page := &domain.MessagePage{Messages: messages}
	if len(messages) > limit {
		// Results are chronological, so the extra row is the oldest.
		page.Messages = messages[1:]
		page.HasMore = true
	}
	if page.Messages == nil {
		page.Messages = []domain.Message{}
	}
	return page, nil
}

// SetTyping starts or stops the caller's typing indicator and broadcasts the
// thread's current typists.
func (s *ThreadService) SetTyping(ctx context.Context, actor *domain.User, threadID string, isTyping bool) ([]domain.TypingIndicator, error) {
	key, err := authorize(actor, threadID, false)
	if err != nil {
		return nil, err
	}

	if isTyping {
		err = s.typing.SetTyping(ctx, key.ID, domain.TypingIndicator{
			UserID:   actor.ID,
			FullName: actor.DisplayName(),
		}, s.config.TypingTTL)
	} else {
		err = s.typing.ClearTyping(ctx, key.ID, actor.ID)
	}
	if err != nil {
		return nil, err
	}

	typing, err := s.typing.TypingUsers(ctx, key.ID)
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyTyping(key.ID, typing)
	return typing, nil
}

// TypingUsers returns who is typing in a thread
func (s *ThreadService) TypingUsers(ctx context.Context, actor *domain.User, threadID string) ([]domain.TypingIndicator, error) {
	key, err := authorize(actor, threadID, false)
	if err != nil {
		return nil, err
	}
	return s.typing.TypingUsers(ctx, key.ID)
}

// MarkRead clears the caller's unread count and marks the other
// participant's messages read. It returns the number of messages marked.
func (s *ThreadService) MarkRead(ctx context.Context, actor *domain.User, threadID string) (int64, error) {
	key, err := authorize(actor, threadID, false)
	if err != nil {
		return 0, err
	}

	marked, err := s.threads.MarkRead(ctx, key.ID, actor.ID)
	if err != nil {
		return 0, err
	}

	thread, err := s.threads.GetThread(ctx, key.ID)
	if err != nil {
		s.logger.Warn("failed to reload thread after read", "thread_id", key.ID, "error", err)
		return marked, nil
	}
	s.notifier.NotifyThread(thread)
	return marked, nil
}

// Flag sets or clears a moderation flag on a thread
func (s *ThreadService) Flag(ctx context.Context, actor *domain.User, threadID string, flag domain.FlagRequest) (*domain.Thread, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	key, err := domain.ParseThreadID(threadID)
	if err != nil {
		return nil, err
	}

	thread, err := s.threads.SetFlag(ctx, key.ID, actor.ID, flag)
	if err != nil {
		return nil, err
	}
	s.logger.Info("thread flag changed", "thread_id", key.ID, "flagged", flag.Flagged, "admin_id", actor.ID)
	s.notifier.NotifyThread(thread)
	return thread, nil
}

func (s *ThreadService) attachTyping(ctx context.Context, thread *domain.Thread) {
	typing, err := s.typing.TypingUsers(ctx, thread.ID)
	if err != nil {
		s.logger.Warn("failed to read typing", "thread_id", thread.ID, "error", err)
		return
	}
	thread.TypingUsers = typing
}
