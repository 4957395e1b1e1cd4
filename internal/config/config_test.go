package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"META_VERIFY_TOKEN", "WHATSAPP_VERIFY_TOKEN", "VERIFY_TOKEN",
		"PORT", "APP_PORT", "DB_PATH", "META_GRAPH_URL", "LOG_LEVEL", "WAFLOW_ENV",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "waflow.db", cfg.Database.Path)
	assert.Equal(t, "https://graph.facebook.com", cfg.Meta.GraphBaseURL)
	assert.Equal(t, 15, cfg.Meta.TimeoutSec)
	assert.Equal(t, 30, cfg.RetentionDays)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("META_VERIFY_TOKEN", "primary")
	t.Setenv("PORT", "8081")
	t.Setenv("DB_PATH", "custom.db")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "primary", cfg.Server.VerifyToken)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "custom.db", cfg.Database.Path)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestVerifyTokenAliases(t *testing.T) {
	clearEnv(t)
	t.Setenv("VERIFY_TOKEN", "fallback")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "fallback", cfg.Server.VerifyToken)

	t.Setenv("WHATSAPP_VERIFY_TOKEN", "middle")
	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "middle", cfg.Server.VerifyToken)

	t.Setenv("META_VERIFY_TOKEN", "primary")
	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.Server.VerifyToken)
}

func TestPortAlias(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_PORT", "9090")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadConfigFromFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"logLevel": "info",
		"server": {"port": 4000, "verifyToken": "from-file"},
		"database": {"path": "file.db"},
		"retentionDays": 7
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "from-file", cfg.Server.VerifyToken)
	assert.Equal(t, "file.db", cfg.Database.Path)
	assert.Equal(t, 7, cfg.RetentionDays)

	// Environment still wins over the file
	t.Setenv("PORT", "5000")
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
}

func TestProductionRequiresVerifyToken(t *testing.T) {
	clearEnv(t)
	t.Setenv("WAFLOW_ENV", "production")

	_, err := LoadConfig("")
	assert.Error(t, err)

	t.Setenv("META_VERIFY_TOKEN", "secret")
	_, err = LoadConfig("")
	assert.NoError(t, err)
}

func TestLoadConfigBadFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := LoadConfig(path)
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
