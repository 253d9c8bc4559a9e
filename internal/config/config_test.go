package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservecore/internal/config"
)

func TestLoad_AppliesDefaultsWhenUnset(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 20, cfg.PageLimitDefault)
	assert.Equal(t, 500, cfg.SnapshotEveryDefault)
	assert.Equal(t, 1, cfg.VersionConflictMaxRetries)
	assert.False(t, cfg.EmitConcurrencyConflictUnresolvedEvent)
	assert.Equal(t, map[string]int{"resource": 500, "user": 0}, cfg.SnapshotByStreamType)
	assert.Equal(t, "users_projection", cfg.UsersTable)
}

func TestLoad_ReadsOverridesFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("VERSION_CONFLICT_MAX_RETRIES", "3")
	t.Setenv("EMIT_CONCURRENCY_CONFLICT_UNRESOLVED_EVENT", "true")
	t.Setenv("SNAPSHOT_BY_STREAM_TYPE", `{"resource":10,"user":5}`)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 3, cfg.VersionConflictMaxRetries)
	assert.True(t, cfg.EmitConcurrencyConflictUnresolvedEvent)
	assert.Equal(t, map[string]int{"resource": 10, "user": 5}, cfg.SnapshotByStreamType)
}

func TestLoad_NegativeVersionConflictMaxRetriesFallsBackToOne(t *testing.T) {
	t.Setenv("VERSION_CONFLICT_MAX_RETRIES", "-5")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.VersionConflictMaxRetries)
}

func TestLoad_MalformedIntEnvVarReturnsError(t *testing.T) {
	t.Setenv("PAGE_LIMIT_DEFAULT", "not-a-number")

	_, err := config.Load()
	assert.Error(t, err)
}
