package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/hms/hms-console/internal/platform/kvstore"
)

type Config struct {
	APIURL               string        `mapstructure:"HMS_API_URL"`
	Env                  string        `mapstructure:"ENV"`
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
	SessionBackend       string        `mapstructure:"SESSION_BACKEND"`
	SessionFile          string        `mapstructure:"SESSION_FILE"`
	RedisURL             string        `mapstructure:"REDIS_URL"`
	SessionKeyPrefix     string        `mapstructure:"SESSION_KEY_PREFIX"`
	SessionTTL           time.Duration `mapstructure:"SESSION_TTL"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	SessionEncryptionKey string        `mapstructure:"SESSION_ENCRYPTION_KEY"`
	SandboxPort          string        `mapstructure:"SANDBOX_PORT"`
	SandboxSigningKey    string        `mapstructure:"SANDBOX_SIGNING_KEY"`
}

// DefaultSessionFile is ~/.hms-console/session.json, or a file in the working
// directory when the home directory is unknown.
func DefaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".hms-session.json"
	}
	return filepath.Join(home, ".hms-console", "session.json")
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("HMS_API_URL", "http://localhost:8080/api")
	v.SetDefault("ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SESSION_BACKEND", kvstore.BackendFile)
	v.SetDefault("SESSION_FILE", DefaultSessionFile())
	v.SetDefault("SESSION_KEY_PREFIX", "hms:session")
	v.SetDefault("SESSION_TTL", "0s")
	v.SetDefault("DB_MAX_CONNS", 4)
	v.SetDefault("DB_MIN_CONNS", 0)
	v.SetDefault("SANDBOX_PORT", "8080")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("HMS_API_URL")
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("SESSION_BACKEND")
	v.BindEnv("SESSION_FILE")
	v.BindEnv("REDIS_URL")
	v.BindEnv("SESSION_KEY_PREFIX")
	v.BindEnv("SESSION_TTL")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("SESSION_ENCRYPTION_KEY")
	v.BindEnv("SANDBOX_PORT")
	v.BindEnv("SANDBOX_SIGNING_KEY")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the selected session backend has what it needs and
// that the API URL and encryption key are well formed.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("HMS_API_URL must be an absolute URL, got %q", c.APIURL)
	}

	switch c.SessionBackend {
	case kvstore.BackendFile:
		if c.SessionFile == "" {
			return fmt.Errorf("SESSION_FILE is required when SESSION_BACKEND is %q", c.SessionBackend)
		}
	case kvstore.BackendMemory:
	case kvstore.BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_BACKEND is %q", c.SessionBackend)
		}
	case kvstore.BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when SESSION_BACKEND is %q", c.SessionBackend)
		}
		if c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
		}
	default:
		return fmt.Errorf("SESSION_BACKEND must be \"file\", \"memory\", \"redis\", or \"postgres\", got %q", c.SessionBackend)
	}

	if c.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL must not be negative, got %s", c.SessionTTL)
	}

	if c.SessionEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(c.SessionEncryptionKey)
		if err != nil {
			return fmt.Errorf("SESSION_ENCRYPTION_KEY is not valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("SESSION_ENCRYPTION_KEY must be 32 bytes (64 hex characters), got %d bytes", len(keyBytes))
		}
	}
	return nil
}

// KVOptions maps the session settings onto kvstore.Open options.
func (c *Config) KVOptions() kvstore.Options {
	return kvstore.Options{
		Backend:       c.SessionBackend,
		FilePath:      c.SessionFile,
		RedisURL:      c.RedisURL,
		KeyPrefix:     c.SessionKeyPrefix,
		TTL:           c.SessionTTL,
		DatabaseURL:   c.DatabaseURL,
		DBMaxConns:    c.DBMaxConns,
		DBMinConns:    c.DBMinConns,
		EncryptionKey: c.SessionEncryptionKey,
	}
}

// SandboxAddr is the listen address for the sandbox backend.
func (c *Config) SandboxAddr() string {
	return ":" + c.SandboxPort
}
