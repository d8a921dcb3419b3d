package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/clashsync/internal/domain"
)

// AddDiamonds applies an award to the user's balance and records the event
func (r *Repository) AddDiamonds(ctx context.Context, award domain.DiamondAward) (int64, error) {
	var balance int64
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE users SET diamonds = diamonds + $2
			WHERE id = $1 AND diamonds + $2 >= 0
			RETURNING diamonds`,
			award.UserID, award.Delta,
		).Scan(&balance)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, award.UserID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return domain.ErrUserNotFound
			}
			return domain.ErrInsufficientDiamonds
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO diamond_events (user_id, delta, reason) VALUES ($1, $2, $3)`,
			award.UserID, award.Delta, award.Reason,
		)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("adding diamonds: %w", err)
	}
	return balance, nil
}

// GetAllDiamonds retrieves every user's diamond balance for the leaderboard sync
func (r *Repository) GetAllDiamonds(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, diamonds FROM users`)
	if err != nil {
		return nil, fmt.Errorf("querying diamonds: %w", err)
	}
	defer rows.Close()

	balances := make(map[string]int64)
	for rows.Next() {
		var (
			userID   string
			diamonds int64
		)
		if err := rows.Scan(&userID, &diamonds); err != nil {
			return nil, fmt.Errorf("scanning diamonds: %w", err)
		}
		balances[userID] = diamonds
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating diamonds: %w", err)
	}

	return balances, nil
}

// GetUserProfiles returns display names and avatars for the given users
func (r *Repository) GetUserProfiles(ctx context.Context, ids []string) (map[string]domain.ParticipantProfile, error) {
	profiles := make(map[string]domain.ParticipantProfile, len(ids))
	if len(ids) == 0 {
		return profiles, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("querying profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		profiles[u.ID] = u.Summary()
	}
	return profiles, rows.Err()
}
