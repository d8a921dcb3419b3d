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

// systemUserID authors channels and posts created by the server itself
const systemUserID = "system"

// ChannelService manages community channels
type ChannelService struct {
	channels ChannelStore
	notifier Notifier
	config   *config.MessagingConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewChannelService creates a new channel service
func NewChannelService(
	channels ChannelStore,
	notifier Notifier,
	cfg *config.MessagingConfig,
	logger *slog.Logger,
) *ChannelService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ChannelService{
		channels: channels,
		notifier: notifier,
		config:   cfg,
		now:      time.Now,
		logger:   logger,
	}
}

// canCreateChannel lists the roles allowed to open new channels
func canCreateChannel(u *domain.User) bool {
	switch u.Role {
	case domain.RoleAdmin, domain.RoleCreator, domain.RoleCoach:
		return true
	}
	return false
}

// CreateChannel opens a new channel under the slugged name
func (s *ChannelService) CreateChannel(ctx context.Context, actor *domain.User, req domain.CreateChannelRequest) (*domain.Channel, error) {
	if !canCreateChannel(actor) {
		return nil, domain.ErrForbidden
	}
	return s.create(ctx, actor.ID, req)
}

func (s *ChannelService) create(ctx context.Context, createdBy string, req domain.CreateChannelRequest) (*domain.Channel, error) {
	name := domain.SlugifyChannelName(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: channel name required", domain.ErrInvalidRequest)
	}

	channel := &domain.Channel{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		CreatedBy:   createdBy,
		CreatedAt:   s.now(),
	}
	if err := s.channels.CreateChannel(ctx, channel); err != nil {
		return nil, err
	}

	s.logger.Info("channel created", "channel_id", channel.ID, "name", channel.Name, "created_by", createdBy)
	return channel, nil
}

// ListChannels returns every channel
func (s *ChannelService) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	channels, err := s.channels.ListChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}
	if channels == nil {
		channels = []domain.Channel{}
	}
	return channels, nil
}

// PostMessage posts the caller's text to a channel
func (s *ChannelService) PostMessage(ctx context.Context, actor *domain.User, channelID, text string) (*domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message cannot be empty", domain.ErrInvalidRequest)
	}
	if utf8.RuneCountInString(text) > s.config.MaxMessageLength {
		return nil, fmt.Errorf("%w: message exceeds %d characters", domain.ErrInvalidRequest, s.config.MaxMessageLength)
	}

	channel, err := s.channels.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}

	return s.post(ctx, &domain.ChatMessage{
		ChannelID:       channel.ID,
		SenderID:        actor.ID,
		SenderName:      actor.DisplayName(),
		SenderAvatarURL: actor.AvatarURL,
		Text:            text,
		Kind:            domain.ChatKindMessage,
	})
}

func (s *ChannelService) post(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error) {
	msg.ID = uuid.NewString()
	msg.Timestamp = s.now()
	if err := s.channels.CreateChatMessage(ctx, msg); err != nil {
		return nil, err
	}
	s.notifier.NotifyChatMessage(msg)
	return msg, nil
}

// ListMessages returns the latest messages of a channel, oldest first
func (s *ChannelService) ListMessages(ctx context.Context, channelID string, limit int) ([]domain.ChatMessage, error) {
	if _, err := s.channels.GetChannel(ctx, channelID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.config.MessagePageSize {
		limit = s.config.MessagePageSize
	}

	messages, err := s.channels.ListChatMessages(ctx, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing chat messages: %w", err)
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	return messages, nil
}

// AnnounceOpenBattle posts an open battle to the announcement channel,
// creating the channel on first use.
func (s *ChannelService) AnnounceOpenBattle(ctx context.Context, battle *domain.Battle) error {
	channel, err := s.announceChannel(ctx)
	if err != nil {
		return err
	}

	_, err = s.post(ctx, &domain.ChatMessage{
		ChannelID:       channel.ID,
		SenderID:        battle.CreatorAID,
		SenderName:      battle.CreatorAName,
		SenderAvatarURL: battle.CreatorAAvatar,
		Text: fmt.Sprintf("%s is looking for a %s battle on %s",
			battle.CreatorAName, battle.Mode, battle.DateTime.UTC().Format(time.RFC1123)),
		BattleID: battle.ID,
		Kind:     domain.ChatKindBattleRequest,
	})
	return err
}

func (s *ChannelService) announceChannel(ctx context.Context) (*domain.Channel, error) {
	name := domain.SlugifyChannelName(s.config.AnnounceChannel)
	channel, err := s.channels.GetChannelByName(ctx, name)
	if err == nil {
		return channel, nil
	}
	if !errors.Is(err, domain.ErrChannelNotFound) {
		return nil, err
	}

	channel, err = s.create(ctx, systemUserID, domain.CreateChannelRequest{
		Name:        name,
		Description: "Open battle requests",
	})
	if errors.Is(err, domain.ErrChannelExists) {
		return s.channels.GetChannelByName(ctx, name)
	}
	return channel, err
}
