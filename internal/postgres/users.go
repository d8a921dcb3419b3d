package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/clashsync/internal/domain"
)

const userColumns = `id, full_name, email, phone, tiktok_username, avatar_url, role,
	diamonds, blocked_users, muted_threads, created_at, last_seen`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.FullName,
		&u.Email,
		&u.Phone,
		&u.TikTokUsername,
		&u.AvatarURL,
		&u.Role,
		&u.Diamonds,
		&u.BlockedUsers,
		&u.MutedThreads,
		&u.CreatedAt,
		&u.LastSeen,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUser creates the user on first sign-in, otherwise refreshes last_seen
// and fills profile fields that are still empty.
func (r *Repository) UpsertUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (id, full_name, email, avatar_url, role, created_at, last_seen)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			last_seen = NOW(),
			full_name = CASE WHEN users.full_name = '' THEN EXCLUDED.full_name ELSE users.full_name END,
			email = CASE WHEN users.email = '' THEN EXCLUDED.email ELSE users.email END,
			avatar_url = CASE WHEN users.avatar_url = '' THEN EXCLUDED.avatar_url ELSE users.avatar_url END
		RETURNING ` + userColumns

	stored, err := scanUser(r.pool.QueryRow(ctx, query,
		user.ID,
		user.FullName,
		user.Email,
		user.AvatarURL,
		string(user.Role),
	))
	if err != nil {
		return nil, fmt.Errorf("upserting user: %w", err)
	}
	return stored, nil
}

// GetUser retrieves a user by ID
func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", notFound(err, domain.ErrUserNotFound))
	}
	return u, nil
}

// ListUsers returns every user ordered by name
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY full_name, id`
	return r.queryUsers(ctx, query)
}

// SearchUsers matches a case-insensitive prefix of full name or TikTok
// handle. The viewer and users on either side of a block with them are
// left out.
func (r *Repository) SearchUsers(ctx context.Context, viewerID, prefix string, limit int) ([]domain.User, error) {
	pattern := escapeLike(strings.ToLower(prefix)) + "%"
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE (LOWER(full_name) LIKE $1 OR LOWER(tiktok_username) LIKE $1)
			AND id <> $2
			AND NOT ($2 = ANY(blocked_users))
			AND id NOT IN (SELECT UNNEST(blocked_users) FROM users WHERE id = $2)
		ORDER BY full_name, id
		LIMIT $3`
	return r.queryUsers(ctx, query, pattern, viewerID, limit)
}

func (r *Repository) queryUsers(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateProfile applies the non-nil fields of update
func (r *Repository) UpdateProfile(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.User, error) {
	query := `
		UPDATE users SET
			full_name = COALESCE($2, full_name),
			phone = COALESCE($3, phone),
			tiktok_username = COALESCE($4, tiktok_username),
			avatar_url = COALESCE($5, avatar_url)
		WHERE id = $1
		RETURNING ` + userColumns

	u, err := scanUser(r.pool.QueryRow(ctx, query,
		id,
		update.FullName,
		update.Phone,
		update.TikTokUsername,
		update.AvatarURL,
	))
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", notFound(err, domain.ErrUserNotFound))
	}
	return u, nil
}

// SetBlocked adds or removes otherID from the user's block list
func (r *Repository) SetBlocked(ctx context.Context, userID, otherID string, blocked bool) error {
	return r.setArrayMember(ctx, "blocked_users", userID, otherID, blocked)
}

// SetMuted adds or removes threadID from the user's muted threads
func (r *Repository) SetMuted(ctx context.Context, userID, threadID string, muted bool) error {
	return r.setArrayMember(ctx, "muted_threads", userID, threadID, muted)
}

// setArrayMember performs an idempotent set-add or set-remove on a TEXT[] column
func (r *Repository) setArrayMember(ctx context.Context, column, userID, value string, present bool) error {
	var query string
	if present {
		query = fmt.Sprintf(`
			UPDATE users SET %[1]s = array_append(%[1]s, $2)
			WHERE id = $1 AND NOT ($2 = ANY(%[1]s))`, column)
	} else {
		query = fmt.Sprintf(`UPDATE users SET %[1]s = array_remove(%[1]s, $2) WHERE id = $1`, column)
	}

	if _, err := r.pool.Exec(ctx, query, userID, value); err != nil {
		return fmt.Errorf("updating %s: %w", column, err)
	}

	// array_append skips rows that already hold the value, so existence is
	// checked separately.
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return fmt.Errorf("checking user existence: %w", err)
	}
	if !exists {
		return domain.ErrUserNotFound
	}
	return nil
}

// AdminUpdateUser sets role and diamond balance, recording the diamond change
func (r *Repository) AdminUpdateUser(ctx context.Context, id string, update domain.AdminUserUpdate) (*domain.User, error) {
	var updated *domain.User
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var previous int64
		err := tx.QueryRow(ctx, `SELECT diamonds FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&previous)
		if err != nil {
			return notFound(err, domain.ErrUserNotFound)
		}

		query := `UPDATE users SET role = $2, diamonds = $3 WHERE id = $1 RETURNING ` + userColumns
		updated, err = scanUser(tx.QueryRow(ctx, query, id, string(update.Role), update.Diamonds))
		if err != nil {
			return err
		}

		if delta := update.Diamonds - previous; delta != 0 {
			_, err = tx.Exec(ctx,
				`INSERT INTO diamond_events (user_id, delta, reason) VALUES ($1, $2, 'admin_adjustment')`,
				id, delta,
			)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("admin updating user: %w", err)
	}
	return updated, nil
}

// escapeLike escapes LIKE wildcards in user input
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
