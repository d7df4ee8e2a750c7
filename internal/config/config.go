// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

// Package config loads memberauth configuration from defaults, a YAML file,
// the environment and command-line flags, in that order of precedence.
package config

import (
	"slices"
	"time"

	"github.com/samber/oops"

	"github.com/memberauth/memberauth/internal/auth"
)

// Session store backends.
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config is the full server configuration.
type Config struct {
	Auth       AuthConfig       `koanf:"auth" json:"auth,omitempty"`
	RememberMe RememberMeConfig `koanf:"remember_me" json:"remember_me,omitempty"`
	Session    SessionConfig    `koanf:"session" json:"session,omitempty"`
	Database   DatabaseConfig   `koanf:"database" json:"database,omitempty"`
	Redis      RedisConfig      `koanf:"redis" json:"redis,omitempty"`
	HTTP       HTTPConfig       `koanf:"http" json:"http,omitempty"`
	Metrics    MetricsConfig    `koanf:"metrics" json:"metrics,omitempty"`
	Log        LogConfig        `koanf:"log" json:"log,omitempty"`
}

// AuthConfig holds credential and login policy.
type AuthConfig struct {
	Salt           string       `koanf:"salt" json:"salt,omitempty" jsonschema:"description=Site-wide password hashing salt"`
	LoginHashSalt  string       `koanf:"login_hash_salt" json:"login_hash_salt,omitempty" jsonschema:"description=Salt mixed into login hashes"`
	MultipleLogins bool         `koanf:"multiple_logins" json:"multiple_logins,omitempty" jsonschema:"description=Allow concurrent sessions per member"`
	EmailField     string       `koanf:"email_field" json:"email_field,omitempty" jsonschema:"minLength=1,maxLength=64"`
	PasswordField  string       `koanf:"password_field" json:"password_field,omitempty" jsonschema:"minLength=1,maxLength=64"`
	Attributes     []string     `koanf:"attributes" json:"attributes,omitempty" jsonschema:"description=Glob patterns of allowed attribute names"`
	Argon2         Argon2Config `koanf:"argon2" json:"argon2,omitempty"`
}

// Argon2Config holds password hashing cost parameters.
type Argon2Config struct {
	Time      uint32 `koanf:"time" json:"time,omitempty" jsonschema:"minimum=1"`
	MemoryKiB uint32 `koanf:"memory_kib" json:"memory_kib,omitempty" jsonschema:"minimum=8"`
	Threads   uint8  `koanf:"threads" json:"threads,omitempty" jsonschema:"minimum=1"`
}

// RememberMeConfig controls the long-lived remember-me cookie.
type RememberMeConfig struct {
	Enabled    bool          `koanf:"enabled" json:"enabled,omitempty"`
	CookieName string        `koanf:"cookie_name" json:"cookie_name,omitempty" jsonschema:"minLength=1"`
	Expiration time.Duration `koanf:"expiration" json:"expiration,omitempty" jsonschema:"type=string,description=Go duration such as 744h"`
}

// SessionConfig controls the session cookie and its backend.
type SessionConfig struct {
	Store        string        `koanf:"store" json:"store,omitempty" jsonschema:"enum=redis,enum=memory"`
	CookieName   string        `koanf:"cookie_name" json:"cookie_name,omitempty" jsonschema:"minLength=1"`
	Expiration   time.Duration `koanf:"expiration" json:"expiration,omitempty" jsonschema:"type=string,description=Go duration such as 2h"`
	SecureCookie bool          `koanf:"secure_cookie" json:"secure_cookie,omitempty"`
}

// DatabaseConfig points at PostgreSQL.
type DatabaseConfig struct {
	URL string `koanf:"url" json:"url,omitempty"`
}

// RedisConfig points at the session Redis.
type RedisConfig struct {
	Addr     string `koanf:"addr" json:"addr,omitempty"`
	Password string `koanf:"password" json:"password,omitempty"`
	DB       int    `koanf:"db" json:"db,omitempty" jsonschema:"minimum=0"`
}

// HTTPConfig is the public listener.
type HTTPConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty"`
}

// MetricsConfig is the metrics and health listener. Empty disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty"`
}

// LogConfig selects the log output.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Default returns the built-in configuration.
func Default() *Config {
	params := auth.DefaultArgon2Params()
	return &Config{
		Auth: AuthConfig{
			EmailField:    "email",
			PasswordField: "password",
			Attributes:    []string{"*"},
			Argon2: Argon2Config{
				Time:      params.Time,
				MemoryKiB: params.Memory,
				Threads:   params.Threads,
			},
		},
		RememberMe: RememberMeConfig{
			CookieName: "rmcookie",
			Expiration: 31 * 24 * time.Hour,
		},
		Session: SessionConfig{
			Store:      StoreRedis,
			CookieName: "memberauth_session",
			Expiration: 2 * time.Hour,
		},
		Redis:   RedisConfig{Addr: "localhost:6379"},
		HTTP:    HTTPConfig{Addr: "127.0.0.1:8080"},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Auth.Salt == "" {
		return oops.Code("CONFIG_INVALID").With("key", "auth.salt").Errorf("auth.salt is required")
	}
	if c.Auth.LoginHashSalt == "" {
		return oops.Code("CONFIG_INVALID").With("key", "auth.login_hash_salt").Errorf("auth.login_hash_salt is required")
	}
	if c.Auth.EmailField == "" || c.Auth.PasswordField == "" {
		return oops.Code("CONFIG_INVALID").Errorf("auth.email_field and auth.password_field cannot be empty")
	}
	if c.Auth.Argon2.Time == 0 || c.Auth.Argon2.MemoryKiB == 0 || c.Auth.Argon2.Threads == 0 {
		return oops.Code("CONFIG_INVALID").With("key", "auth.argon2").Errorf("argon2 parameters must be positive")
	}
	if _, err := auth.NewAttributeSchema(c.Auth.Attributes...); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "auth.attributes").Errorf("auth.attributes: %v", err)
	}
	if c.RememberMe.Enabled {
		if c.RememberMe.CookieName == "" {
			return oops.Code("CONFIG_INVALID").With("key", "remember_me.cookie_name").Errorf("remember_me.cookie_name is required")
		}
		if c.RememberMe.Expiration <= 0 {
			return oops.Code("CONFIG_INVALID").With("key", "remember_me.expiration").Errorf("remember_me.expiration must be positive")
		}
	}
	if !slices.Contains([]string{StoreRedis, StoreMemory}, c.Session.Store) {
		return oops.Code("CONFIG_INVALID").With("key", "session.store").Errorf("session.store must be %q or %q, got %q", StoreRedis, StoreMemory, c.Session.Store)
	}
	if c.Session.CookieName == "" {
		return oops.Code("CONFIG_INVALID").With("key", "session.cookie_name").Errorf("session.cookie_name is required")
	}
	if c.Session.Expiration <= 0 {
		return oops.Code("CONFIG_INVALID").With("key", "session.expiration").Errorf("session.expiration must be positive")
	}
	if c.RememberMe.Enabled && c.RememberMe.CookieName == c.Session.CookieName {
		return oops.Code("CONFIG_INVALID").Errorf("remember_me.cookie_name must differ from session.cookie_name")
	}
	if c.HTTP.Addr == "" {
		return oops.Code("CONFIG_INVALID").With("key", "http.addr").Errorf("http.addr is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").With("key", "log.format").Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		return oops.Code("CONFIG_INVALID").With("key", "log.level").Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}

// ManagerConfig returns the SessionManager policy.
func (c *Config) ManagerConfig() auth.ManagerConfig {
	return auth.ManagerConfig{
		LoginHashSalt:  c.Auth.LoginHashSalt,
		MultipleLogins: c.Auth.MultipleLogins,
	}
}

// Argon2Params returns the hashing cost parameters.
func (c *Config) Argon2Params() auth.Argon2Params {
	return auth.Argon2Params{
		Time:    c.Auth.Argon2.Time,
		Memory:  c.Auth.Argon2.MemoryKiB,
		Threads: c.Auth.Argon2.Threads,
	}
}

// AttributeSchema compiles the allowed attribute patterns.
func (c *Config) AttributeSchema() (*auth.AttributeSchema, error) {
	return auth.NewAttributeSchema(c.Auth.Attributes...)
}
