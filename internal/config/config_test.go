package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "./uploads", cfg.Uploads.Dir)
	assert.Equal(t, int64(50), cfg.Uploads.MaxSizeMB)
	assert.Equal(t, []string{".pdf", ".docx"}, cfg.Uploads.AllowedExtensions)
	assert.Equal(t, "https://api.va.landing.ai/v1/ade", cfg.ADE.BaseURL)
	assert.Equal(t, "dpt-2-latest", cfg.ADE.ParseModel)
	assert.Equal(t, "extract-latest", cfg.ADE.ExtractModel)
	assert.Equal(t, 4, cfg.Extract.MaxConcurrentJobs)
	assert.Equal(t, 3, cfg.Extract.PollIntervalSecs)
	assert.Equal(t, 600, cfg.Extract.PollTimeoutSecs)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Advisor.Model)
	assert.False(t, cfg.Advisor.Offline)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: intake.db
server:
  port: 9090
extract:
  max_concurrent_jobs: 2
advisor:
  offline: true
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "intake.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Extract.MaxConcurrentJobs)
	assert.True(t, cfg.Advisor.Offline)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched keys keep their defaults.
	assert.Equal(t, "dpt-2-latest", cfg.ADE.ParseModel)
}

func TestLoadFromEnvironment(t *testing.T) {
	chdirTemp(t)

	t.Setenv("REINK_STORE_DRIVER", "sqlite")
	t.Setenv("REINK_SERVER_PORT", "7070")
	t.Setenv("REINK_ADVISOR_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "sk-test", cfg.Advisor.Key)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	assert.Error(t, InitLogger(LogConfig{Level: "not-a-level", Format: "json"}))
}
