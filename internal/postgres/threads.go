package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clashsync/internal/domain"
)

const threadColumns = `t.id, t.first_id, t.second_id,
	t.last_message_id, t.last_message_sender_id, t.last_message_content, t.last_message_type, t.last_message_at,
	t.is_flagged, t.flagged_by, t.flag_reason, t.created_at, t.updated_at`

// querier is satisfied by both the pool and a transaction
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanThread(row pgx.Row) (*domain.Thread, error) {
	var (
		t                 domain.Thread
		first, second     string
		lastID, lastFrom  *string
		lastBody, lastTyp *string
		lastAt            *time.Time
	)
	err := row.Scan(
		&t.ID,
		&first,
		&second,
		&lastID,
		&lastFrom,
		&lastBody,
		&lastTyp,
		&lastAt,
		&t.IsFlagged,
		&t.FlaggedBy,
		&t.FlagReason,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.ParticipantIDs = []string{first, second}
	t.ParticipantProfiles = make(map[string]domain.ParticipantProfile, 2)
	t.UnreadCounts = make(map[string]int, 2)
	t.TypingUsers = []domain.TypingIndicator{}
	if lastID != nil && lastAt != nil {
		t.LastMessage = &domain.LastMessage{
			ID:          *lastID,
			SenderID:    deref(lastFrom),
			Content:     deref(lastBody),
			ContentType: domain.ContentType(deref(lastTyp)),
			Timestamp:   *lastAt,
		}
	}
	return &t, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// loadParticipants fills profiles and unread counters for the given threads
func loadParticipants(ctx context.Context, q querier, threads []*domain.Thread) error {
	if len(threads) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Thread, len(threads))
	ids := make([]string, 0, len(threads))
	for _, t := range threads {
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}

	rows, err := q.Query(ctx, `
		SELECT thread_id, user_id, full_name, avatar_url, email, unread_count
		FROM dm_thread_participants
		WHERE thread_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			threadID string
			p        domain.ParticipantProfile
			unread   int
		)
		if err := rows.Scan(&threadID, &p.ID, &p.FullName, &p.AvatarURL, &p.Email, &unread); err != nil {
			return fmt.Errorf("scanning participant: %w", err)
		}
		if t, ok := byID[threadID]; ok {
			t.ParticipantProfiles[p.ID] = p
			t.UnreadCounts[p.ID] = unread
		}
	}
	return rows.Err()
}

func getThread(ctx context.Context, q querier, id string) (*domain.Thread, error) {
	t, err := scanThread(q.QueryRow(ctx, `SELECT `+threadColumns+` FROM dm_threads t WHERE t.id = $1`, id))
	if err != nil {
		return nil, notFound(err, domain.ErrThreadNotFound)
	}
	if err := loadParticipants(ctx, q, []*domain.Thread{t}); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateThreadIfAbsent inserts a thread and its participant rows. Concurrent
// creators of the same pair race on the primary key and only one inserts.
func (r *Repository) CreateThreadIfAbsent(ctx context.Context, thread *domain.Thread) (bool, error) {
	key, err := thread.Key()
	if err != nil {
		return false, err
	}

	var inserted bool
	err = r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO dm_threads (id, first_id, second_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING`,
			key.ID, key.First, key.Second, thread.CreatedAt, thread.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		inserted = true

		for _, id := range key.Participants() {
			p := thread.ParticipantProfiles[id]
			_, err := tx.Exec(ctx, `
				INSERT INTO dm_thread_participants (thread_id, user_id, full_name, avatar_url, email, unread_count)
				VALUES ($1, $2, $3, $4, $5, 0)`,
				key.ID, id, p.FullName, p.AvatarURL, p.Email,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("creating thread: %w", err)
	}
	return inserted, nil
}

// GetThread retrieves a thread with its participants
func (r *Repository) GetThread(ctx context.Context, id string) (*domain.Thread, error) {
	t, err := getThread(ctx, r.pool, id)
	if err != nil {
		return nil, fmt.Errorf("getting thread: %w", err)
	}
	return t, nil
}

// ListThreads returns the user's threads, most recently active first
func (r *Repository) ListThreads(ctx context.Context, userID string) ([]domain.Thread, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+threadColumns+`
		FROM dm_threads t
		JOIN dm_thread_participants p ON p.thread_id = t.id
		WHERE p.user_id = $1
		ORDER BY t.updated_at DESC, t.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying threads: %w", err)
	}

	var threads []*domain.Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning thread: %w", err)
		}
		threads = append(threads, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating threads: %w", err)
	}

	if err := loadParticipants(ctx, r.pool, threads); err != nil {
		return nil, err
	}

	result := make([]domain.Thread, 0, len(threads))
	for _, t := range threads {
		result = append(result, *t)
	}
	return result, nil
}

// AppendMessage stores a message and updates the thread summary and unread
// counters in one transaction.
func (r *Repository) AppendMessage(ctx context.Context, msg *domain.Message) (*domain.Thread, error) {
	var thread *domain.Thread
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE dm_threads SET
				last_message_id = $2,
				last_message_sender_id = $3,
				last_message_content = $4,
				last_message_type = $5,
				last_message_at = $6,
				updated_at = $6
			WHERE id = $1`,
			msg.ThreadID,
			msg.ID,
			msg.SenderID,
			msg.Content,
			string(msg.ContentType),
			msg.Timestamp,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrThreadNotFound
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO dm_messages (id, thread_id, sender_id, receiver_id, sender_name, sender_avatar,
				sender_email, content, content_type, battle_id, battle_mode, read_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			msg.ID,
			msg.ThreadID,
			msg.SenderID,
			msg.ReceiverID,
			msg.SenderProfile.FullName,
			msg.SenderProfile.AvatarURL,
			msg.SenderProfile.Email,
			msg.Content,
			string(msg.ContentType),
			msg.BattleID,
			string(msg.BattleMode),
			msg.ReadBy,
			msg.Timestamp,
		)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE dm_thread_participants SET unread_count =
				CASE WHEN user_id = $2 THEN 0 ELSE unread_count + 1 END
			WHERE thread_id = $1`,
			msg.ThreadID, msg.SenderID,
		)
		if err != nil {
			return err
		}

		thread, err = getThread(ctx, tx, msg.ThreadID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}
	return thread, nil
}

// ListMessages returns up to limit messages before the cursor, in
// chronological order.
func (r *Repository) ListMessages(ctx context.Context, threadID string, cursor *domain.MessageCursor, limit int) ([]domain.Message, error) {
	query := `
		SELECT id, thread_id, sender_id, receiver_id, sender_name, sender_avatar, sender_email,
			content, content_type, battle_id, battle_mode, read_by, created_at
		FROM dm_messages
		WHERE thread_id = $1`
	args := []any{threadID}
	if cursor != nil {
		args = append(args, cursor.Before, cursor.BeforeID)
		query += ` AND (created_at, id) < ($2, $3)`
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		err := rows.Scan(
			&m.ID,
			&m.ThreadID,
			&m.SenderID,
			&m.ReceiverID,
			&m.SenderProfile.FullName,
			&m.SenderProfile.AvatarURL,
			&m.SenderProfile.Email,
			&m.Content,
			&m.ContentType,
			&m.BattleID,
			&m.BattleMode,
			&m.ReadBy,
			&m.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.SenderProfile.ID = m.SenderID
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}

// MarkRead zeroes the reader's unread counter and adds the reader to every
// message they did not send. It returns the number of messages marked.
func (r *Repository) MarkRead(ctx context.Context, threadID, userID string) (int64, error) {
	var marked int64
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE dm_thread_participants SET unread_count = 0 WHERE thread_id = $1 AND user_id = $2`,
			threadID, userID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM dm_threads WHERE id = $1)`, threadID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return domain.ErrThreadNotFound
			}
			return domain.ErrNotParticipant
		}

		tag, err = tx.Exec(ctx, `
			UPDATE dm_messages SET read_by = array_append(read_by, $2)
			WHERE thread_id = $1 AND sender_id <> $2 AND NOT ($2 = ANY(read_by))`,
			threadID, userID,
		)
		if err != nil {
			return err
		}
		marked = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("marking thread read: %w", err)
	}
	return marked, nil
}

// SetFlag sets or clears an admin flag on a thread
func (r *Repository) SetFlag(ctx context.Context, threadID, adminID string, flag domain.FlagRequest) (*domain.Thread, error) {
	flaggedBy, reason := adminID, flag.Reason
	if !flag.Flagged {
		flaggedBy, reason = "", ""
	}

	var thread *domain.Thread
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE dm_threads SET is_flagged = $2, flagged_by = $3, flag_reason = $4 WHERE id = $1`,
			threadID, flag.Flagged, flaggedBy, reason,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrThreadNotFound
		}
		thread, err = getThread(ctx, tx, threadID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("flagging thread: %w", err)
	}
	return thread, nil
}
