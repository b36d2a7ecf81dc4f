package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"STORE_BACKEND", "OPERATION_TIMEOUT", "SERVE_RETRY_LIMIT", "REDIS_KEY_PREFIX"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()

	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, "qt", cfg.RedisKeyPrefix)
	assert.Equal(t, 5*time.Second, cfg.OperationTimeout)
	assert.Equal(t, 16, cfg.ServeRetryLimit)
	assert.Equal(t, 0.6, cfg.BreakerFailureRatio)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("OPERATION_TIMEOUT", "750ms")
	t.Setenv("SERVE_RETRY_LIMIT", "4")
	t.Setenv("BREAKER_FAILURE_RATIO", "0.25")
	t.Setenv("JOIN_RATE_LIMIT", "3")
	t.Setenv("REALTIME_ENABLED", "false")

	cfg := LoadConfig()

	assert.Equal(t, BackendRedis, cfg.StoreBackend)
	assert.Equal(t, 750*time.Millisecond, cfg.OperationTimeout)
	assert.Equal(t, 4, cfg.ServeRetryLimit)
	assert.Equal(t, 0.25, cfg.BreakerFailureRatio)
	assert.Equal(t, 3, cfg.JoinRateLimit)
	assert.False(t, cfg.RealtimeEnabled)
}

func TestLoadConfig_BadValuesFallBack(t *testing.T) {
	t.Setenv("OPERATION_TIMEOUT", "soon")
	t.Setenv("SERVE_RETRY_LIMIT", "many")

	cfg := LoadConfig()

	assert.Equal(t, 5*time.Second, cfg.OperationTimeout)
	assert.Equal(t, 16, cfg.ServeRetryLimit)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.StoreBackend = "mongo" }},
		{"zero timeout", func(c *Config) { c.OperationTimeout = 0 }},
		{"no serve retries", func(c *Config) { c.ServeRetryLimit = 0 }},
		{"failure ratio above one", func(c *Config) { c.BreakerFailureRatio = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadConfig()
			cfg.StoreBackend = BackendSQLite
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPubNubEnabled(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.PubNubEnabled())

	cfg.PubNubPublishKey = "pub-c-1"
	cfg.PubNubSubscribeKey = "sub-c-1"
	assert.True(t, cfg.PubNubEnabled())
}

func TestLoadQueueSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queues.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
queues:
  - name: " Billing "
  - name: Support
    inactive: true
`), 0o600))

	seed, err := LoadQueueSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Queues, 2)
	assert.Equal(t, "Billing", seed.Queues[0].Name)
	assert.False(t, seed.Queues[0].Inactive)
	assert.Equal(t, "Support", seed.Queues[1].Name)
	assert.True(t, seed.Queues[1].Inactive)
}

func TestLoadQueueSeed_EmptyPath(t *testing.T) {
	seed, err := LoadQueueSeed("")
	require.NoError(t, err)
	assert.Empty(t, seed.Queues)
}

func TestLoadQueueSeed_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadQueueSeed(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	unnamed := filepath.Join(dir, "unnamed.yaml")
	require.NoError(t, os.WriteFile(unnamed, []byte("queues:\n  - inactive: true\n"), 0o600))
	_, err = LoadQueueSeed(unnamed)
	assert.ErrorContains(t, err, "has no name")

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("queues: [name: {"), 0o600))
	_, err = LoadQueueSeed(broken)
	assert.Error(t, err)
}
