// Package config provides centralized configuration management for the monitor.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. MONITOR_SERVER_PORT.
const EnvPrefix = "MONITOR"

// Config is the master configuration struct.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Producer  ProducerConfig  `mapstructure:"producer"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	History   HistoryConfig   `mapstructure:"history"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AllowedOrigins lists extra browser origins admitted on /ws.
	// Same-origin connections are always admitted.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// ProducerConfig describes how to launch the external telemetry producer.
type ProducerConfig struct {
	ExecutablePath   string        `mapstructure:"executable_path"`
	ScriptPath       string        `mapstructure:"script_path"`
	WorkingDirectory string        `mapstructure:"working_directory"`
	Args             []string      `mapstructure:"args"` // passed before the script path
	StopTimeout      time.Duration `mapstructure:"stop_timeout"`
}

// Resolved returns a copy with the working directory made absolute.
// An empty working directory resolves to the directory holding the
// running binary, so relative script paths behave the same no matter
// where the monitor was started from. Paths are not checked for existence.
func (p ProducerConfig) Resolved() (ProducerConfig, error) {
	out := p
	out.Args = append([]string(nil), p.Args...)

	if out.WorkingDirectory == "" {
		exe, err := os.Executable()
		if err != nil {
			return ProducerConfig{}, fmt.Errorf("failed to locate executable: %w", err)
		}
		out.WorkingDirectory = filepath.Dir(exe)
	}

	abs, err := filepath.Abs(out.WorkingDirectory)
	if err != nil {
		return ProducerConfig{}, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	out.WorkingDirectory = abs
	return out, nil
}

// BroadcastConfig holds fan-out settings
type BroadcastConfig struct {
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type     string         `mapstructure:"type"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	Enabled    bool   `mapstructure:"enabled"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// RateLimitConfig guards the privileged process kill operation.
type RateLimitConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	KillLimit  int           `mapstructure:"kill_limit"`
	KillWindow time.Duration `mapstructure:"kill_window"`
}

// HistoryConfig bounds anomaly history queries.
type HistoryConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from configPath (if non-empty) or from
// config.yaml in the working directory or /etc/monitor, then applies
// MONITOR_* environment overrides. A missing default config file is
// not an error; a missing explicit one is.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/monitor")
	}
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the monitor cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.Producer.ExecutablePath == "" {
		return errors.New("producer.executable_path is required")
	}
	if c.History.DefaultLimit <= 0 || c.History.MaxLimit < c.History.DefaultLimit {
		return fmt.Errorf("invalid history limits: default=%d max=%d",
			c.History.DefaultLimit, c.History.MaxLimit)
	}
	if c.RateLimit.Enabled && (c.RateLimit.KillLimit <= 0 || c.RateLimit.KillWindow <= 0) {
		return errors.New("ratelimit.kill_limit and ratelimit.kill_window must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("producer.executable_path", "python3")
	v.SetDefault("producer.script_path", "stats_collector.py")
	v.SetDefault("producer.working_directory", "")
	v.SetDefault("producer.args", []string{"-u"})
	v.SetDefault("producer.stop_timeout", "5s")

	v.SetDefault("broadcast.send_timeout", "2s")

	v.SetDefault("database.type", "postgres")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "monitor")
	v.SetDefault("database.postgres.user", "monitor")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.kill_limit", 5)
	v.SetDefault("ratelimit.kill_window", "1m")

	v.SetDefault("history.default_limit", 100)
	v.SetDefault("history.max_limit", 500)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
