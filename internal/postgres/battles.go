package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/clashsync/internal/domain"
)

const battleColumns = `id, creator_a_id, creator_a_name, creator_a_avatar,
	creator_b_id, creator_b_name, creator_b_avatar, date_time, mode, status,
	request_type, requested_by, created_at, updated_at`

func scanBattle(row pgx.Row) (*domain.Battle, error) {
	var b domain.Battle
	err := row.Scan(
		&b.ID,
		&b.CreatorAID,
		&b.CreatorAName,
		&b.CreatorAAvatar,
		&b.CreatorBID,
		&b.CreatorBName,
		&b.CreatorBAvatar,
		&b.DateTime,
		&b.Mode,
		&b.Status,
		&b.RequestType,
		&b.RequestedBy,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBattle stores a battle and, for direct requests, its inbox record
func (r *Repository) CreateBattle(ctx context.Context, battle *domain.Battle, request *domain.BattleRequestRecord) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO battles (`+battleColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			battle.ID,
			battle.CreatorAID,
			battle.CreatorAName,
			battle.CreatorAAvatar,
			battle.CreatorBID,
			battle.CreatorBName,
			battle.CreatorBAvatar,
			battle.DateTime,
			string(battle.Mode),
			string(battle.Status),
			string(battle.RequestType),
			battle.RequestedBy,
			battle.CreatedAt,
			battle.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting battle: %w", err)
		}
		if request == nil {
			return nil
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO battle_requests (id, battle_id, sender_id, sender_name, sender_avatar,
				receiver_id, receiver_name, mode, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			request.ID,
			request.BattleID,
			request.SenderID,
			request.SenderName,
			request.SenderAvatar,
			request.ReceiverID,
			request.ReceiverName,
			string(request.Mode),
			string(request.Status),
			request.CreatedAt,
			request.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting battle request: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("creating battle: %w", err)
	}
	return nil
}

// GetBattle retrieves a battle by ID
func (r *Repository) GetBattle(ctx context.Context, id string) (*domain.Battle, error) {
	b, err := scanBattle(r.pool.QueryRow(ctx, `SELECT `+battleColumns+` FROM battles WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("getting battle: %w", notFound(err, domain.ErrBattleNotFound))
	}
	return b, nil
}

// ListBattles returns battles matching filter, newest scheduled first
func (r *Repository) ListBattles(ctx context.Context, filter domain.BattleFilter) ([]domain.Battle, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.RequestType != "" {
		add("request_type = $%d", string(filter.RequestType))
	}
	if filter.ReceiverID != "" {
		add("creator_b_id = $%d", filter.ReceiverID)
	}
	if filter.ParticipantID != "" {
		args = append(args, filter.ParticipantID)
		where = append(where, fmt.Sprintf("(creator_a_id = $%[1]d OR creator_b_id = $%[1]d)", len(args)))
	}
	if filter.Before != nil {
		add("date_time < $%d", *filter.Before)
	}

	query := `SELECT ` + battleColumns + ` FROM battles`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date_time DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying battles: %w", err)
	}
	defer rows.Close()

	var battles []domain.Battle
	for rows.Next() {
		b, err := scanBattle(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning battle: %w", err)
		}
		battles = append(battles, *b)
	}
	return battles, rows.Err()
}

// UpdateBattleStatus moves a battle out of status from. The row is only
// written when the stored status still matches, so concurrent accepts of an
// open battle resolve to a single winner.
func (r *Repository) UpdateBattleStatus(ctx context.Context, battle *domain.Battle, from domain.BattleStatus) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE battles SET
				status = $3,
				creator_b_id = $4,
				creator_b_name = $5,
				creator_b_avatar = $6,
				updated_at = $7
			WHERE id = $1 AND status = $2`,
			battle.ID,
			string(from),
			string(battle.Status),
			battle.CreatorBID,
			battle.CreatorBName,
			battle.CreatorBAvatar,
			battle.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return r.missingOrStale(ctx, tx, battle.ID)
		}

		_, err = tx.Exec(ctx,
			`UPDATE battle_requests SET status = $2, updated_at = $3 WHERE battle_id = $1`,
			battle.ID, string(battle.Status), battle.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("updating battle status: %w", err)
	}
	return nil
}

// missingOrStale explains a zero-row conditional update
func (r *Repository) missingOrStale(ctx context.Context, tx pgx.Tx, id string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM battles WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrBattleNotFound
	}
	return domain.ErrInvalidTransition
}

// UpdateBattle overwrites the editable fields of a battle
func (r *Repository) UpdateBattle(ctx context.Context, battle *domain.Battle) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		return updateBattle(ctx, tx, battle)
	})
	if err != nil {
		return fmt.Errorf("updating battle: %w", err)
	}
	return nil
}

func updateBattle(ctx context.Context, tx pgx.Tx, battle *domain.Battle) error {
	tag, err := tx.Exec(ctx, `
		UPDATE battles SET
			date_time = $2,
			mode = $3,
			status = $4,
			creator_b_id = $5,
			creator_b_name = $6,
			creator_b_avatar = $7,
			updated_at = $8
		WHERE id = $1`,
		battle.ID,
		battle.DateTime,
		string(battle.Mode),
		string(battle.Status),
		battle.CreatorBID,
		battle.CreatorBName,
		battle.CreatorBAvatar,
		battle.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBattleNotFound
	}

	_, err = tx.Exec(ctx,
		`UPDATE battle_requests SET status = $2, mode = $3, updated_at = $4 WHERE battle_id = $1`,
		battle.ID, string(battle.Status), string(battle.Mode), battle.UpdatedAt,
	)
	return err
}

// DeleteBattle removes a battle and, by cascade, its requests
func (r *Repository) DeleteBattle(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM battles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting battle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBattleNotFound
	}
	return nil
}

const modificationColumns = `id, battle_id, requesting_user_id, proposed_changes, patch,
	status, reviewed_by, reviewed_at, created_at`

func scanModification(row pgx.Row) (*domain.ModificationRequest, error) {
	var (
		m     domain.ModificationRequest
		patch []byte
	)
	err := row.Scan(
		&m.ID,
		&m.BattleID,
		&m.RequestingUserID,
		&m.ProposedChanges,
		&patch,
		&m.Status,
		&m.ReviewedBy,
		&m.ReviewedAt,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(patch) > 0 {
		if err := json.Unmarshal(patch, &m.Patch); err != nil {
			return nil, fmt.Errorf("decoding patch: %w", err)
		}
	}
	return &m, nil
}

// CreateModification stores a pending modification request
func (r *Repository) CreateModification(ctx context.Context, req *domain.ModificationRequest) error {
	patch, err := json.Marshal(req.Patch)
	if err != nil {
		return fmt.Errorf("encoding patch: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO modification_requests (id, battle_id, requesting_user_id, proposed_changes, patch, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		req.ID,
		req.BattleID,
		req.RequestingUserID,
		req.ProposedChanges,
		patch,
		string(req.Status),
		req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating modification request: %w", err)
	}
	return nil
}

// GetModification retrieves a modification request by ID
func (r *Repository) GetModification(ctx context.Context, id string) (*domain.ModificationRequest, error) {
	m, err := scanModification(r.pool.QueryRow(ctx,
		`SELECT `+modificationColumns+` FROM modification_requests WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("getting modification request: %w", notFound(err, domain.ErrModificationNotFound))
	}
	return m, nil
}

// ListModifications returns requests with the given status, oldest first.
// An empty status lists all requests.
func (r *Repository) ListModifications(ctx context.Context, status domain.ModificationStatus) ([]domain.ModificationRequest, error) {
	query := `SELECT ` + modificationColumns + ` FROM modification_requests`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying modification requests: %w", err)
	}
	defer rows.Close()

	var mods []domain.ModificationRequest
	for rows.Next() {
		m, err := scanModification(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning modification request: %w", err)
		}
		mods = append(mods, *m)
	}
	return mods, rows.Err()
}

// ReviewModification records an approval or denial of a pending request
func (r *Repository) ReviewModification(ctx context.Context, req *domain.ModificationRequest) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return reviewModification(ctx, tx, req)
	})
}

// ApproveModification claims a pending request and writes the patched
// battle in one transaction. Nothing is written if the request was
// already reviewed.
func (r *Repository) ApproveModification(ctx context.Context, req *domain.ModificationRequest, battle *domain.Battle) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := reviewModification(ctx, tx, req); err != nil {
			return err
		}
		return updateBattle(ctx, tx, battle)
	})
	if err != nil {
		return fmt.Errorf("approving modification request: %w", err)
	}
	return nil
}

func reviewModification(ctx context.Context, tx pgx.Tx, req *domain.ModificationRequest) error {
	patch, err := json.Marshal(req.Patch)
	if err != nil {
		return fmt.Errorf("encoding patch: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE modification_requests SET
			status = $2,
			reviewed_by = $3,
			reviewed_at = $4,
			patch = $5
		WHERE id = $1 AND status = 'pending'`,
		req.ID,
		string(req.Status),
		req.ReviewedBy,
		req.ReviewedAt,
		patch,
	)
	if err != nil {
		return fmt.Errorf("reviewing modification request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM modification_requests WHERE id = $1)`, req.ID).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrModificationNotFound
		}
		return domain.ErrAlreadyReviewed
	}
	return nil
}
