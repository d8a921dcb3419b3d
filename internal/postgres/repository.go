package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clashsync/internal/config"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks database connectivity
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// migrations create the schema. Thread keys are compared with the C collation
// so the database orders participant IDs byte-wise, the same way Go does.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(128) PRIMARY KEY,
		full_name VARCHAR(255) NOT NULL DEFAULT '',
		email VARCHAR(255) NOT NULL DEFAULT '',
		phone VARCHAR(64) NOT NULL DEFAULT '',
		tiktok_username VARCHAR(128) NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		role VARCHAR(16) NOT NULL DEFAULT 'user',
		diamonds BIGINT NOT NULL DEFAULT 0 CHECK (diamonds >= 0),
		blocked_users TEXT[] NOT NULL DEFAULT '{}',
		muted_threads TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS diamond_events (
		id BIGSERIAL PRIMARY KEY,
		user_id VARCHAR(128) NOT NULL,
		delta BIGINT NOT NULL,
		reason VARCHAR(255) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS battles (
		id VARCHAR(64) PRIMARY KEY,
		creator_a_id VARCHAR(128) NOT NULL,
		creator_a_name VARCHAR(255) NOT NULL DEFAULT '',
		creator_a_avatar TEXT NOT NULL DEFAULT '',
		creator_b_id VARCHAR(128) NOT NULL DEFAULT '',
		creator_b_name VARCHAR(255) NOT NULL DEFAULT '',
		creator_b_avatar TEXT NOT NULL DEFAULT '',
		date_time TIMESTAMPTZ NOT NULL,
		mode VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL,
		request_type VARCHAR(16) NOT NULL,
		requested_by VARCHAR(128) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS battle_requests (
		id VARCHAR(64) PRIMARY KEY,
		battle_id VARCHAR(64) NOT NULL REFERENCES battles(id) ON DELETE CASCADE,
		sender_id VARCHAR(128) NOT NULL,
		sender_name VARCHAR(255) NOT NULL DEFAULT '',
		sender_avatar TEXT NOT NULL DEFAULT '',
		receiver_id VARCHAR(128) NOT NULL,
		receiver_name VARCHAR(255) NOT NULL DEFAULT '',
		mode VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS modification_requests (
		id VARCHAR(64) PRIMARY KEY,
		battle_id VARCHAR(64) NOT NULL REFERENCES battles(id) ON DELETE CASCADE,
		requesting_user_id VARCHAR(128) NOT NULL,
		proposed_changes TEXT NOT NULL DEFAULT '',
		patch JSONB,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		reviewed_by VARCHAR(128) NOT NULL DEFAULT '',
		reviewed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS dm_threads (
		id VARCHAR(260) PRIMARY KEY,
		first_id VARCHAR(128) NOT NULL,
		second_id VARCHAR(128) NOT NULL,
		last_message_id VARCHAR(64),
		last_message_sender_id VARCHAR(128),
		last_message_content TEXT,
		last_message_type VARCHAR(32),
		last_message_at TIMESTAMPTZ,
		is_flagged BOOLEAN NOT NULL DEFAULT FALSE,
		flagged_by VARCHAR(128) NOT NULL DEFAULT '',
		flag_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (first_id, second_id),
		CHECK (first_id COLLATE "C" < second_id COLLATE "C"),
		CHECK (id = first_id || '_' || second_id)
	)`,
	`CREATE TABLE IF NOT EXISTS dm_thread_participants (
		thread_id VARCHAR(260) NOT NULL REFERENCES dm_threads(id) ON DELETE CASCADE,
		user_id VARCHAR(128) NOT NULL,
		full_name VARCHAR(255) NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		email VARCHAR(255) NOT NULL DEFAULT '',
		unread_count INT NOT NULL DEFAULT 0,
		PRIMARY KEY (thread_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS dm_messages (
		id VARCHAR(64) PRIMARY KEY,
		thread_id VARCHAR(260) NOT NULL REFERENCES dm_threads(id) ON DELETE CASCADE,
		sender_id VARCHAR(128) NOT NULL,
		receiver_id VARCHAR(128) NOT NULL,
		sender_name VARCHAR(255) NOT NULL DEFAULT '',
		sender_avatar TEXT NOT NULL DEFAULT '',
		sender_email VARCHAR(255) NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		content_type VARCHAR(32) NOT NULL DEFAULT 'text',
		battle_id VARCHAR(64) NOT NULL DEFAULT '',
		battle_mode VARCHAR(16) NOT NULL DEFAULT '',
		read_by TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS channels (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(128) NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		created_by VARCHAR(128) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id VARCHAR(64) PRIMARY KEY,
		channel_id VARCHAR(64) NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
		sender_id VARCHAR(128) NOT NULL,
		sender_name VARCHAR(255) NOT NULL DEFAULT '',
		sender_avatar_url TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		battle_id VARCHAR(64) NOT NULL DEFAULT '',
		kind VARCHAR(32) NOT NULL DEFAULT 'message',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_full_name ON users(full_name text_pattern_ops)`,
	`CREATE INDEX IF NOT EXISTS idx_users_tiktok ON users(tiktok_username text_pattern_ops)`,
	`CREATE INDEX IF NOT EXISTS idx_users_diamonds ON users(diamonds DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_diamond_events_user ON diamond_events(user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_battles_status ON battles(status, date_time DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_battles_creator_b ON battles(creator_b_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_modifications_status ON modification_requests(status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_dm_participants_user ON dm_thread_participants(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_dm_messages_thread ON dm_messages(thread_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_channel ON chat_messages(channel_id, created_at DESC)`,
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// inTx runs fn inside a transaction, committing on success
func (r *Repository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique constraint failure
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// notFound maps pgx.ErrNoRows to the given domain error
func notFound(err error, domainErr error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domainErr
	}
	return err
}
