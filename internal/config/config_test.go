package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/scrypster/lorewiki/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultHostIsLocalhost(t *testing.T) {
	_ = os.Unsetenv("LOREWIKI_HOST")
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host,
		"Default host must be 127.0.0.1 for security")
}

func TestLoadConfig_CanOverrideHost(t *testing.T) {
	t.Setenv("LOREWIKI_HOST", "0.0.0.0")
	t.Setenv("LOREWIKI_PORT", "8080")
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, "./worlds", cfg.Storage.WorldsPath)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 90*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 2, cfg.Engine.MaxValidations)
	assert.Equal(t, 3, cfg.Engine.SimilarityTopK)
	assert.Equal(t, 1, cfg.Engine.NeighborhoodHops)
	assert.True(t, cfg.Engine.SkipValidationDefault)
	assert.Equal(t, 2, cfg.Image.Workers)
	assert.Equal(t, 5*time.Minute, cfg.Server.ShutdownTimeout)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoadConfig_DurationAndNumbers(t *testing.T) {
	t.Setenv("LOREWIKI_LLM_TIMEOUT", "15s")
	t.Setenv("LOREWIKI_IMAGE_WORKERS", "4")
	t.Setenv("LOREWIKI_SKIP_VALIDATION", "false")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 4, cfg.Image.Workers)
	assert.False(t, cfg.Engine.SkipValidationDefault)
}

func TestLoadConfig_InvalidNumber(t *testing.T) {
	t.Setenv("LOREWIKI_PORT", "not-a-port")
	_, err := config.LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_PostgresRequiresDSN(t *testing.T) {
	t.Setenv("LOREWIKI_STORAGE_ENGINE", "postgres")
	_, err := config.LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOREWIKI_POSTGRES_DSN")

	t.Setenv("LOREWIKI_POSTGRES_DSN", "postgres://localhost/lorewiki")
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Engine)
}

func TestLoadConfig_UnknownEngine(t *testing.T) {
	t.Setenv("LOREWIKI_STORAGE_ENGINE", "mongodb")
	_, err := config.LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_UnknownProvider(t *testing.T) {
	t.Setenv("LOREWIKI_LLM_PROVIDER", "unknown")
	_, err := config.LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_ProductionRequiresToken(t *testing.T) {
	t.Setenv("LOREWIKI_SECURITY_MODE", "production")
	_, err := config.LoadConfig()
	require.Error(t, err)

	t.Setenv("LOREWIKI_API_TOKEN", "secret")
	_, err = config.LoadConfig()
	assert.NoError(t, err)
}

func TestValidate_MaxValidations(t *testing.T) {
	t.Setenv("LOREWIKI_MAX_VALIDATIONS", "0")
	_, err := config.LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_Backup(t *testing.T) {
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Empty(t, cfg.Backup.Dir)
	assert.Equal(t, 6*time.Hour, cfg.Backup.Interval)
	assert.Equal(t, 7, cfg.Backup.KeepDaily)

	t.Setenv("LOREWIKI_BACKUP_DIR", "/var/backups/lorewiki")
	t.Setenv("LOREWIKI_STORAGE_ENGINE", "postgres")
	t.Setenv("LOREWIKI_POSTGRES_DSN", "postgres://localhost/lorewiki")
	_, err = config.LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOREWIKI_BACKUP_DIR")
}
