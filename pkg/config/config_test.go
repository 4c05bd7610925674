package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, 5*time.Minute, cfg.Store.CacheTTL)

	assert.Empty(t, cfg.Auth.AdminKey)
	assert.Equal(t, 1024, cfg.Auth.DecisionCacheSize)

	assert.Equal(t, slog.LevelInfo, cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.False(t, cfg.Observability.OTelEnabled)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("FORMAPI_PORT", "3001")
	t.Setenv("FORMAPI_STORE_TYPE", "sqlite")
	t.Setenv("FORMAPI_SQLITE_PATH", "/tmp/formapi-test.db")
	t.Setenv("FORMAPI_ADMIN_KEY", "secret")
	t.Setenv("FORMAPI_LOG_LEVEL", "debug")
	t.Setenv("FORMAPI_READ_TIMEOUT", "5s")
	t.Setenv("FORMAPI_TEMPLATE_PATH", "/etc/formapi/template.json")
	t.Setenv("FORMAPI_TEMPLATE_WATCH", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3001", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.Equal(t, "/tmp/formapi-test.db", cfg.Store.SQLitePath)
	assert.Equal(t, "secret", cfg.Auth.AdminKey)
	assert.Equal(t, slog.LevelDebug, cfg.Observability.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "/etc/formapi/template.json", cfg.Template.Path)
	assert.True(t, cfg.Template.Watch)
}

func TestValidateRejectsUnknownStoreType(t *testing.T) {
	t.Setenv("FORMAPI_STORE_TYPE", "mongodb")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid store type")
}

func TestValidateRequiresPostgresURL(t *testing.T) {
	t.Setenv("FORMAPI_STORE_TYPE", "postgres")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres URL is required")
}

func TestValidateRejectsSamePorts(t *testing.T) {
	t.Setenv("FORMAPI_PORT", "8080")
	t.Setenv("FORMAPI_HEALTH_PORT", "8080")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be different")
}

func TestValidateWatchRequiresPath(t *testing.T) {
	t.Setenv("FORMAPI_TEMPLATE_WATCH", "true")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template path is required")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("unknown"))
}
