package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  port: 9000\n"))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 3*time.Second, cfg.Messaging.TypingTTL)
	assert.Equal(t, 10, cfg.Leaderboard.DefaultLimit)
	assert.Equal(t, "battle_requests", cfg.Messaging.AnnounceChannel)
	assert.False(t, cfg.Sync.Enabled)
}

func TestParseExpandsEnvironment(t *testing.T) {
	t.Setenv("CLASHSYNC_TEST_SECRET", "s3cret")

	cfg, err := Parse([]byte("auth:\n  jwt_secret: ${CLASHSYNC_TEST_SECRET}\n  admin_ids: [alice]\n"))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"alice"}, cfg.Auth.AdminIDs)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate())
	assert.True(t, cfg.Sync.Enabled)
}

func TestDefaultConfigReadsSecretFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	cfg := DefaultConfig()
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.NoError(t, cfg.Validate())
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("server: [unterminated"))
	assert.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LogConfig{Level: "DEBUG"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, LogConfig{Level: "warning"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{}.SlogLevel())
}
