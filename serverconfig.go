// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// serverconfig.go -- configuration for the videostated daemon, layered as
// built-in defaults, then an optional YAML file, then VIDEOSTATE_*
// environment variables, and validated before use.

package videoplayer

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nested keys are joined
// with a double underscore: VIDEOSTATE_REDIS__ADDR sets redis.addr.
const EnvPrefix = "VIDEOSTATE_"

// ConfigPathEnvVar names a config file to load instead of the defaults.
const ConfigPathEnvVar = "VIDEOSTATE_CONFIG"

// DefaultConfigPaths are searched in order when no path is given.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/videostated/config.yaml",
}

// ServerConfig configures the videostated daemon.
type ServerConfig struct {
	HTTP        HTTPConfig        `koanf:"http"`
	Redis       RedisConfig       `koanf:"redis"`
	Postgres    PostgresConfig    `koanf:"postgres"`
	Cache       CacheConfig       `koanf:"cache"`
	WriteBehind WriteBehindConfig `koanf:"write_behind"`
	Log         LogConfig         `koanf:"log"`

	MetricsEnabled     bool `koanf:"metrics_enabled"`
	DefaultAutoAdvance bool `koanf:"default_auto_advance"`
}

type HTTPConfig struct {
	Addr              string        `koanf:"addr" validate:"required,hostname_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout      time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	MaxBodyBytes      int64         `koanf:"max_body_bytes" validate:"gt=0"`
	// IdentityKey is a hex-encoded 32-byte key sealing the anonymous
	// learner cookie. Empty leaves the cookie unsealed.
	IdentityKey string `koanf:"identity_key" validate:"omitempty,len=64,hexadecimal"`
}

type RedisConfig struct {
	Enabled             bool          `koanf:"enabled"`
	Addr                string        `koanf:"addr" validate:"required_if=Enabled true"`
	Password            string        `koanf:"password"`
	DB                  int           `koanf:"db" validate:"gte=0,lte=15"`
	KeyPrefix           string        `koanf:"key_prefix"`
	TTL                 time.Duration `koanf:"ttl" validate:"gte=0"`
	InvalidationChannel string        `koanf:"invalidation_channel"`
}

type PostgresConfig struct {
	Enabled    bool   `koanf:"enabled"`
	DSN        string `koanf:"dsn" validate:"required_if=Enabled true"`
	ReplicaDSN string `koanf:"replica_dsn"`
	Migrate    bool   `koanf:"migrate"`
}

type CacheConfig struct {
	TTL        time.Duration `koanf:"ttl" validate:"gt=0"`
	MaxEntries int           `koanf:"max_entries" validate:"gte=0"`
}

type WriteBehindConfig struct {
	FlushInterval  time.Duration `koanf:"flush_interval" validate:"gt=0"`
	FlushThreshold int           `koanf:"flush_threshold" validate:"gt=0"`
	MaxRetries     int           `koanf:"max_retries" validate:"gt=0"`
}

type LogConfig struct {
	Level   string `koanf:"level" validate:"oneof=debug info warn error"`
	Console bool   `koanf:"console"`
}

// DefaultServerConfig returns the built-in defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,
			MaxBodyBytes:      64 << 10,
		},
		Redis: RedisConfig{
			Addr:      "127.0.0.1:6379",
			KeyPrefix: "videostate",
		},
		Cache: CacheConfig{
			TTL:        5 * time.Minute,
			MaxEntries: 10000,
		},
		WriteBehind: WriteBehindConfig{
			FlushInterval:  500 * time.Millisecond,
			FlushThreshold: 100,
			MaxRetries:     5,
		},
		Log:            LogConfig{Level: "info"},
		MetricsEnabled: true,
	}
}

// LoadServerConfig loads defaults, then the YAML file at path (or the
// first of DefaultConfigPaths found when path is empty), then environment
// overrides, and validates the result.
func LoadServerConfig(path string) (*ServerConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultServerConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &ServerConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c *ServerConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
