// Package config loads service configuration from an optional TOML file,
// an optional .env file and MPOX_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	BaseConfigFile = "config.toml"
	DotEnvFile     = ".env"

	EnvConfigFile = "MPOX_CONFIG_FILE"

	EnvServerAddr      = "MPOX_SERVER_ADDR"
	EnvShutdownTimeout = "MPOX_SHUTDOWN_TIMEOUT"
	EnvMaxUploadBytes  = "MPOX_MAX_UPLOAD_BYTES"
	EnvAllowedOrigins  = "MPOX_ALLOWED_ORIGINS"

	EnvModelBackend     = "MPOX_MODEL_BACKEND"
	EnvModelPath        = "MPOX_MODEL_PATH"
	EnvModelGRPCAddr    = "MPOX_MODEL_GRPC_ADDR"
	EnvModelThreads     = "MPOX_MODEL_THREADS"
	EnvModelDialTimeout = "MPOX_MODEL_DIAL_TIMEOUT"

	EnvSessionSecret = "MPOX_SESSION_SECRET"
	EnvSessionTTL    = "MPOX_SESSION_TTL"
	EnvSessionCookie = "MPOX_SESSION_COOKIE"

	EnvRedisAddr     = "MPOX_REDIS_ADDR"
	EnvRedisCacheTTL = "MPOX_REDIS_CACHE_TTL"
	EnvRedisPrefix   = "MPOX_REDIS_PREFIX"

	EnvDatabaseDSN = "MPOX_DATABASE_DSN"

	EnvLogLevel       = "MPOX_LOG_LEVEL"
	EnvLogDevelopment = "MPOX_LOG_DEVELOPMENT"
)

// DefaultSessionSecret signs session tokens when no secret is configured.
// It is public, so tokens signed with it can be forged.
const DefaultSessionSecret = "dev-secret"

// Model backends.
const (
	BackendTFLite = "tflite"
	BackendGRPC   = "grpc"
)

// Config is the root configuration for the service.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Model    ModelConfig    `toml:"model"`
	Session  SessionConfig  `toml:"session"`
	Redis    RedisConfig    `toml:"redis"`
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
}

type ServerConfig struct {
	Addr            string   `toml:"addr"`
	ShutdownTimeout string   `toml:"shutdown_timeout"`
	MaxUploadBytes  int64    `toml:"max_upload_bytes"`
	AllowedOrigins  []string `toml:"allowed_origins"`
}

// ModelConfig selects and locates the classifier. Backend "tflite" loads
// Path from disk; backend "grpc" dials GRPCAddr.
type ModelConfig struct {
	Backend     string `toml:"backend"`
	Path        string `toml:"path"`
	GRPCAddr    string `toml:"grpc_addr"`
	Threads     int    `toml:"threads"`
	DialTimeout string `toml:"dial_timeout"`
}

type SessionConfig struct {
	Secret     string `toml:"secret"`
	TTL        string `toml:"ttl"`
	CookieName string `toml:"cookie_name"`
}

// RedisConfig enables the prediction cache when Addr is set.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	CacheTTL string `toml:"cache_ttl"`
	Prefix   string `toml:"prefix"`
}

// DatabaseConfig enables the anonymous outcome log when DSN is set.
type DatabaseConfig struct {
	DSN string `toml:"dsn"`
}

type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Load reads .env (if present) into the process environment, then the TOML
// file named by MPOX_CONFIG_FILE or config.toml (if present), and finalizes.
func Load() (*Config, error) {
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", DotEnvFile, err)
	}

	path := BaseConfigFile
	if v := os.Getenv(EnvConfigFile); v != "" {
		path = v
	}

	cfg := &Config{}
	if _, err := os.Stat(path); err == nil {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := cfg.Finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}
	return cfg, nil
}

// LoadFile parses a TOML config file without finalizing it.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Finalize applies defaults, environment overrides and validation.
func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.ShutdownTimeout)
	return d
}

func (c *Config) SessionTTL() time.Duration {
	d, _ := time.ParseDuration(c.Session.TTL)
	return d
}

func (c *Config) CacheTTL() time.Duration {
	d, _ := time.ParseDuration(c.Redis.CacheTTL)
	return d
}

func (c *Config) DialTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Model.DialTimeout)
	return d
}

// UsesDefaultSecret reports whether session tokens are signed with
// DefaultSessionSecret.
func (c *Config) UsesDefaultSecret() bool {
	return c.Session.Secret == DefaultSessionSecret
}

func (c *Config) loadDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "15s"
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 10 << 20
	}
	if c.Model.Backend == "" {
		c.Model.Backend = BackendTFLite
	}
	if c.Model.Path == "" {
		c.Model.Path = "mpox_model.tflite"
	}
	if c.Model.Threads == 0 {
		c.Model.Threads = 2
	}
	if c.Model.DialTimeout == "" {
		c.Model.DialTimeout = "5s"
	}
	if c.Session.TTL == "" {
		c.Session.TTL = "30m"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "mpox_session"
	}
	if c.Session.Secret == "" {
		c.Session.Secret = DefaultSessionSecret
	}
	if c.Redis.CacheTTL == "" {
		c.Redis.CacheTTL = "24h"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "mpox"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) loadEnv() {
	setString(&c.Server.Addr, EnvServerAddr)
	setString(&c.Server.ShutdownTimeout, EnvShutdownTimeout)
	if v := os.Getenv(EnvMaxUploadBytes); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Server.MaxUploadBytes = n
		}
	}
	if v := os.Getenv(EnvAllowedOrigins); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	setString(&c.Model.Backend, EnvModelBackend)
	setString(&c.Model.Path, EnvModelPath)
	setString(&c.Model.GRPCAddr, EnvModelGRPCAddr)
	setString(&c.Model.DialTimeout, EnvModelDialTimeout)
	if v := os.Getenv(EnvModelThreads); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Model.Threads = n
		}
	}

	setString(&c.Session.Secret, EnvSessionSecret)
	setString(&c.Session.TTL, EnvSessionTTL)
	setString(&c.Session.CookieName, EnvSessionCookie)

	setString(&c.Redis.Addr, EnvRedisAddr)
	setString(&c.Redis.CacheTTL, EnvRedisCacheTTL)
	setString(&c.Redis.Prefix, EnvRedisPrefix)

	setString(&c.Database.DSN, EnvDatabaseDSN)

	setString(&c.Log.Level, EnvLogLevel)
	if v := os.Getenv(EnvLogDevelopment); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Log.Development = b
		}
	}
}

func (c *Config) validate() error {
	for name, value := range map[string]string{
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"session.ttl":             c.Session.TTL,
		"redis.cache_ttl":         c.Redis.CacheTTL,
		"model.dial_timeout":      c.Model.DialTimeout,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid %s: must be positive", name)
		}
	}

	switch c.Model.Backend {
	case BackendTFLite:
		if c.Model.Path == "" {
			return fmt.Errorf("model.path required for %s backend", BackendTFLite)
		}
	case BackendGRPC:
		if c.Model.GRPCAddr == "" {
			return fmt.Errorf("model.grpc_addr required for %s backend", BackendGRPC)
		}
	default:
		return fmt.Errorf("unknown model.backend %q", c.Model.Backend)
	}

	if c.Server.MaxUploadBytes < 0 {
		return fmt.Errorf("server.max_upload_bytes must not be negative")
	}
	if strings.TrimSpace(c.Session.Secret) == "" {
		return fmt.Errorf("session.secret required")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
