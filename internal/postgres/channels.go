package postgres

import (
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"

	"github.com/clashsync/internal/domain"
)

const channelColumns = `id, name, description, created_by, created_at`

func scanChannel(row pgx.Row) (*domain.Channel, error) {
	var c domain.Channel
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedBy, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateChannel stores a new channel. Names are unique.
func (r *Repository) CreateChannel(ctx context.Context, channel *domain.Channel) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO channels (`+channelColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		channel.ID, channel.Name, channel.Description, channel.CreatedBy, channel.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrChannelExists
	}
	if err != nil {
		return fmt.Errorf("creating channel: %w", err)
	}
	return nil
}

// GetChannel retrieves a channel by ID
func (r *Repository) GetChannel(ctx context.Context, id string) (*domain.Channel, error) {
	c, err := scanChannel(r.pool.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("getting channel: %w", notFound(err, domain.ErrChannelNotFound))
	}
	return c, nil
}

// GetChannelByName retrieves a channel by its slug
func (r *Repository) GetChannelByName(ctx context.Context, name string) (*domain.Channel, error) {
	c, err := scanChannel(r.pool.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE name = $1`, name))
	if err != nil {
		return nil, fmt.Errorf("getting channel by name: %w", notFound(err, domain.ErrChannelNotFound))
	}
	return c, nil
}

// ListChannels returns all channels ordered by name
func (r *Repository) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+channelColumns+` FROM channels ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying channels: %w", err)
	}
	defer rows.Close()

	var channels []domain.Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning channel: %w", err)
		}
		channels = append(channels, *c)
	}
	return channels, rows.Err()
}

// CreateChatMessage stores a message posted to a channel
func (r *Repository) CreateChatMessage(ctx context.Context, msg *domain.ChatMessage) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, channel_id, sender_id, sender_name, sender_avatar_url, text, battle_id, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		msg.ID,
		msg.ChannelID,
		msg.SenderID,
		msg.SenderName,
		msg.SenderAvatarURL,
		msg.Text,
		msg.BattleID,
		msg.Kind,
		msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("creating chat message: %w", err)
	}
	return nil
}

// ListChatMessages returns the latest limit messages in chronological order
func (r *Repository) ListChatMessages(ctx context.Context, channelID string, limit int) ([]domain.ChatMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, channel_id, sender_id, sender_name, sender_avatar_url, text, battle_id, kind, created_at
		FROM chat_messages
		WHERE channel_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying chat messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		err := rows.Scan(
			&m.ID,
			&m.ChannelID,
			&m.SenderID,
			&m.SenderName,
			&m.SenderAvatarURL,
			&m.Text,
			&m.BattleID,
			&m.Kind,
			&m.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning chat message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chat messages: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}
