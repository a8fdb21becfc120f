package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.API.URL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, BackendBolt, cfg.Storage.Backend)
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, time.Second, cfg.Sync.BaseDelay)
	assert.True(t, cfg.Sync.ConflictCheck)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.SettleDelay)
	assert.Equal(t, "auto", cfg.Log.Format)
	assert.Equal(t, ":8080", cfg.Server.Listen)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "custom.yaml")
	content := `
api:
  url: https://tasks.example.com
  timeout: 5s
storage:
  backend: redis
  redis:
    address: redis:6379
    db: 2
sync:
  max_retries: 5
  base_delay: 250ms
  conflict_check: false
log:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("TASKKEEPER_API_TOKEN", "secret-token")
	t.Setenv("TASKKEEPER_SYNC_MAX_RETRIES", "7")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "https://tasks.example.com", cfg.API.URL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, "secret-token", cfg.API.Token)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "redis:6379", cfg.Storage.Redis.Address)
	assert.Equal(t, 2, cfg.Storage.Redis.DB)
	assert.Equal(t, 7, cfg.Sync.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.BaseDelay)
	assert.False(t, cfg.Sync.ConflictCheck)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TASKKEEPER_STORAGE_BACKEND=memory\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("TASKKEEPER_STORAGE_BACKEND") })

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load(viper.New(), "does-not-exist.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			API:     APIConfig{URL: "http://x"},
			Storage: StorageConfig{Backend: BackendBolt, Path: "q.db"},
			Sync:    SyncConfig{MaxRetries: 3},
			Log:     LogConfig{Format: "auto"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "s3" }, wantErr: true},
		{name: "bolt without path", mutate: func(c *Config) { c.Storage.Path = "" }, wantErr: true},
		{name: "redis without address", mutate: func(c *Config) { c.Storage.Backend = BackendRedis }, wantErr: true},
		{name: "zero retries", mutate: func(c *Config) { c.Sync.MaxRetries = 0 }, wantErr: true},
		{name: "negative delay", mutate: func(c *Config) { c.Sync.BaseDelay = -time.Second }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: true},
		{name: "empty url", mutate: func(c *Config) { c.API.URL = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
