package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// APIConfig configures the HTTP surface
type APIConfig struct {
	ListenAddress string        `mapstructure:"listen_address"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	BasePath      string        `mapstructure:"base_path"`
	EnableCORS    bool          `mapstructure:"enable_cors"`
	LogRequests   bool          `mapstructure:"log_requests"`
	RateLimit     RateLimit     `mapstructure:"rate_limit"`
}

// RateLimit configures the per-client request limiter
type RateLimit struct {
	Enabled bool    `mapstructure:"enabled"`
	Limit   float64 `mapstructure:"limit"`
	Burst   int     `mapstructure:"burst"`
}

// DatabaseConfig configures the Postgres connection. An empty DSN runs the
// service on in-memory repositories.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig configures the lock store and event transport. An empty
// address disables the redis-backed features.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
}

// CollaborationConfig tunes the live-session behavior
type CollaborationConfig struct {
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
	DebounceWindow   time.Duration `mapstructure:"debounce_window"`
	HistoryLimit     int           `mapstructure:"history_limit"`
}

// ValidationConfig tunes the cross-step validator
type ValidationConfig struct {
	DebounceWindow time.Duration `mapstructure:"debounce_window"`
	CacheCapacity  int           `mapstructure:"cache_capacity"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

// Config holds the complete application configuration
type Config struct {
	API           APIConfig           `mapstructure:"api"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Collaboration CollaborationConfig `mapstructure:"collaboration"`
	Validation    ValidationConfig    `mapstructure:"validation"`
	LogLevel      string              `mapstructure:"log_level"`
}

// Load reads configuration from file and ESTIMATE_-prefixed environment
// variables. The config file is optional when the environment is complete.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	configFile := os.Getenv("ESTIMATE_CONFIG_FILE")
	if configFile == "" {
		configFile = "configs/config.yaml"
	}
	v.SetConfigFile(configFile)

	v.SetEnvPrefix("ESTIMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if _, statErr := os.Stat(configFile); statErr == nil {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.listen_address", ":8080")
	v.SetDefault("api.read_timeout", 30*time.Second)
	v.SetDefault("api.write_timeout", 30*time.Second)
	v.SetDefault("api.idle_timeout", 90*time.Second)
	v.SetDefault("api.base_path", "/api/v1")
	v.SetDefault("api.enable_cors", true)
	v.SetDefault("api.log_requests", true)
	v.SetDefault("api.rate_limit.enabled", true)
	v.SetDefault("api.rate_limit.limit", 100)
	v.SetDefault("api.rate_limit.burst", 150)

	// Database defaults
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Redis defaults
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.pool_size", 10)

	// Collaboration defaults
	v.SetDefault("collaboration.heartbeat_timeout", 45*time.Second)
	v.SetDefault("collaboration.debounce_window", 300*time.Millisecond)
	v.SetDefault("collaboration.history_limit", 50)

	// Validation defaults
	v.SetDefault("validation.debounce_window", 300*time.Millisecond)
	v.SetDefault("validation.cache_capacity", 512)
	v.SetDefault("validation.cache_ttl", 10*time.Minute)

	v.SetDefault("log_level", "info")
}
