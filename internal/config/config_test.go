package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/variant-goat/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "./vgoat.db", cfg.Database.Path)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "log", cfg.Events.Backend)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Events.Kafka.Brokers)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vgoat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /data/exp.db
events:
  backend: redis
  redis:
    addr: redis:6379
    channel: exp
`), 0o600))
	t.Setenv("VG_SERVER_PORT", "9090")
	t.Setenv("VG_EVENTS_REDIS_PASSWORD", "s3cret")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/exp.db", cfg.Database.Path)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Events.Backend)
	assert.Equal(t, "redis:6379", cfg.Events.Redis.Addr)
	assert.Equal(t, "exp", cfg.Events.Redis.Channel)
	assert.Equal(t, "s3cret", cfg.Events.Redis.Password)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("VG_EVENTS_BACKEND", "carrier-pigeon")

	_, err := config.Load("")
	assert.Error(t, err)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEventsConfig_Backends(t *testing.T) {
	t.Setenv("VG_EVENTS_BACKEND", " redis, kafka ,,")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"redis", "kafka"}, cfg.Events.Backends())

	t.Setenv("VG_EVENTS_BACKEND", "redis,bogus")
	_, err = config.Load("")
	assert.Error(t, err)
}
