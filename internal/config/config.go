// Package config loads client and server settings from taskkeeper.yaml, TASKKEEPER_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. TASKKEEPER_API_URL.
	EnvPrefix = "TASKKEEPER"
	// FileName is the config file name without extension.
	FileName = "taskkeeper"
)

// Storage backends.
const (
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Storage StorageConfig `mapstructure:"storage"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Server  ServerConfig  `mapstructure:"server"`
}

type APIConfig struct {
	URL          string        `mapstructure:"url"`
	Token        string        `mapstructure:"token"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

type StorageConfig struct {
	Backend    string      `mapstructure:"backend"`
	Path       string      `mapstructure:"path"`
	Passphrase string      `mapstructure:"passphrase"`
	Redis      RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	KeyPrefix string `mapstructure:"key_prefix"`
	DB        int    `mapstructure:"db"`
	PoolSize  int    `mapstructure:"pool_size"`
}

type SyncConfig struct {
	OfflineMarker string        `mapstructure:"offline_marker"`
	BaseDelay     time.Duration `mapstructure:"base_delay"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	ProbeCacheTTL time.Duration `mapstructure:"probe_cache_ttl"`
	MaxRetries    int           `mapstructure:"max_retries"`
	ConflictCheck bool          `mapstructure:"conflict_check"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

type ServerConfig struct {
	Listen         string        `mapstructure:"listen"`
	DBPath         string        `mapstructure:"db_path"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	AuthRequired   bool          `mapstructure:"auth_required"`
}

// DefaultDataDir returns ~/.taskkeeper, or the working directory if home is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".taskkeeper")
}

// SetDefaults registers default values on v. Every key gets a default so that
// environment overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	dataDir := DefaultDataDir()

	v.SetDefault("api.url", "http://localhost:8080")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("api.probe_timeout", 3*time.Second)

	v.SetDefault("storage.backend", BackendBolt)
	v.SetDefault("storage.path", filepath.Join(dataDir, "queue.db"))
	v.SetDefault("storage.passphrase", "")
	v.SetDefault("storage.redis.address", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key_prefix", "taskkeeper:")
	v.SetDefault("storage.redis.pool_size", 10)

	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.base_delay", time.Second)
	v.SetDefault("sync.conflict_check", true)
	v.SetDefault("sync.settle_delay", 500*time.Millisecond)
	v.SetDefault("sync.probe_interval", 30*time.Second)
	v.SetDefault("sync.probe_cache_ttl", 5*time.Second)
	v.SetDefault("sync.offline_marker", filepath.Join(dataDir, "offline"))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("metrics.listen", "")

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.auth_required", false)
	v.SetDefault("server.db_path", "taskkeeper.db")
	v.SetDefault("server.token_ttl", 24*time.Hour)
	v.SetDefault("server.rate_limit_rps", 20.0)
	v.SetDefault("server.rate_limit_burst", 40)
}

// Load reads configuration into a Config. An explicit configFile must exist; otherwise
// taskkeeper.yaml is looked up in the working directory and the data directory.
// A .env file in the working directory is loaded first if present.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultDataDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendBolt:
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for the bolt backend")
		}
	case BackendRedis:
		if c.Storage.Redis.Address == "" {
			return errors.New("storage.redis.address is required for the redis backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.API.URL == "" {
		return errors.New("api.url is required")
	}
	if c.Sync.MaxRetries < 1 {
		return errors.New("sync.max_retries must be at least 1")
	}
	if c.Sync.BaseDelay < 0 {
		return errors.New("sync.base_delay must not be negative")
	}

	switch c.Log.Format {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}
