package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "America/Sao_Paulo", cfg.Scheduler.Timezone)
	assert.Equal(t, "09:00", cfg.Scheduler.DefaultCheckTime)
	assert.Equal(t, "09:05", cfg.Scheduler.DefaultSendTime)
	assert.Equal(t, "cobranca", cfg.Scheduler.TemplateKind)
	assert.Equal(t, 20*time.Hour, cfg.Scheduler.LockTTL)
	assert.Equal(t, "/send-message", cfg.Bridge.SendPath)
	assert.Equal(t, 15000, cfg.Bridge.TimeoutMs)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_FileMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("scheduler:\n  timezone: UTC\nbridge:\n  timeout_ms: 2500\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "UTC", cfg.Scheduler.Timezone)
	assert.Equal(t, 2500, cfg.Bridge.TimeoutMs)
	// untouched keys keep their defaults
	assert.Equal(t, "09:05", cfg.Scheduler.DefaultSendTime)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DUEBOT_TELEGRAM_TOKEN", "123:abc")
	t.Setenv("DUEBOT_SCHEDULER_DEFAULT_CHECK_TIME", "07:30")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, "07:30", cfg.Scheduler.DefaultCheckTime)
}
