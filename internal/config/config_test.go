// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memberauth/memberauth/internal/config"
	"github.com/memberauth/memberauth/pkg/errutil"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memberauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func validConfig() *config.Config {
	cfg := config.Default()
	cfg.Auth.Salt = "salt"
	cfg.Auth.LoginHashSalt = "login-salt"
	return cfg
}

// clearEnv unsets every variable Load reads so the host environment does
// not leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"DATABASE_URL", "REDIS_ADDR", "REDIS_PASSWORD", "MEMBERAUTH_SALT",
		"MEMBERAUTH_LOGIN_HASH_SALT", "MEMBERAUTH_HTTP_ADDR", "MEMBERAUTH_LOG_LEVEL",
	} {
		t.Setenv(name, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, "email", cfg.Auth.EmailField)
	assert.Equal(t, "password", cfg.Auth.PasswordField)
	assert.Equal(t, []string{"*"}, cfg.Auth.Attributes)
	assert.Equal(t, "rmcookie", cfg.RememberMe.CookieName)
	assert.Equal(t, 744*time.Hour, cfg.RememberMe.Expiration)
	assert.False(t, cfg.RememberMe.Enabled)
	assert.False(t, cfg.Auth.MultipleLogins)

	err := cfg.Validate()
	require.Error(t, err, "salts have no default")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*config.Config)
		wantField string
	}{
		{"missing salt", func(c *config.Config) { c.Auth.Salt = "" }, "auth.salt"},
		{"missing login hash salt", func(c *config.Config) { c.Auth.LoginHashSalt = "" }, "auth.login_hash_salt"},
		{"zero argon2 time", func(c *config.Config) { c.Auth.Argon2.Time = 0 }, "auth.argon2"},
		{"bad attribute glob", func(c *config.Config) { c.Auth.Attributes = []string{"profile.["} }, "auth.attributes"},
		{"unknown session store", func(c *config.Config) { c.Session.Store = "disk" }, "session.store"},
		{"zero session expiration", func(c *config.Config) { c.Session.Expiration = 0 }, "session.expiration"},
		{"remember-me without expiration", func(c *config.Config) {
			c.RememberMe.Enabled = true
			c.RememberMe.Expiration = 0
		}, "remember_me.expiration"},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad log level", func(c *config.Config) { c.Log.Level = "trace" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			errutil.AssertErrorContext(t, err, "key", tt.wantField)
		})
	}

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, validConfig().Validate())
	})

	t.Run("cookie names must differ", func(t *testing.T) {
		cfg := validConfig()
		cfg.RememberMe.Enabled = true
		cfg.RememberMe.CookieName = cfg.Session.CookieName
		require.Error(t, cfg.Validate())
	})
}

func TestConfig_Conversions(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.MultipleLogins = true
	cfg.Auth.Attributes = []string{"profile.*"}

	mc := cfg.ManagerConfig()
	assert.Equal(t, "login-salt", mc.LoginHashSalt)
	assert.True(t, mc.MultipleLogins)

	params := cfg.Argon2Params()
	assert.Equal(t, cfg.Auth.Argon2.MemoryKiB, params.Memory)

	schema, err := cfg.AttributeSchema()
	require.NoError(t, err)
	assert.NoError(t, schema.Validate("profile.color"))
	assert.Error(t, schema.Validate("nickname"))
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
auth:
  salt: file-salt
  login_hash_salt: file-login-salt
  multiple_logins: true
  attributes: ["profile.*", "nickname"]
remember_me:
  enabled: true
  expiration: 48h
session:
  store: memory
  expiration: 30m
database:
  url: postgres://localhost/memberauth
log:
  format: text
`)

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "file-salt", cfg.Auth.Salt)
	assert.True(t, cfg.Auth.MultipleLogins)
	assert.Equal(t, []string{"profile.*", "nickname"}, cfg.Auth.Attributes)
	assert.True(t, cfg.RememberMe.Enabled)
	assert.Equal(t, 48*time.Hour, cfg.RememberMe.Expiration)
	assert.Equal(t, "rmcookie", cfg.RememberMe.CookieName, "defaults fill unset keys")
	assert.Equal(t, config.StoreMemory, cfg.Session.Store)
	assert.Equal(t, 30*time.Minute, cfg.Session.Expiration)
	assert.Equal(t, "postgres://localhost/memberauth", cfg.Database.URL)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
auth:
  salt: file-salt
  login_hash_salt: file-login-salt
database:
  url: postgres://file/db
`)
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("MEMBERAUTH_SALT", "env-salt")

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, "env-salt", cfg.Auth.Salt)
	assert.Equal(t, "file-login-salt", cfg.Auth.LoginHashSalt)
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEMBERAUTH_SALT", "env-salt")
	t.Setenv("MEMBERAUTH_LOGIN_HASH_SALT", "env-login-salt")
	t.Setenv("MEMBERAUTH_HTTP_ADDR", "0.0.0.0:1")
	path := writeFile(t, `
log:
  level: warn
`)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	fs.Bool("dev", false, "not a config flag")
	require.NoError(t, fs.Parse([]string{"--http-addr", "127.0.0.1:9999", "--multiple-logins", "--dev"}))

	cfg, err := config.Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.HTTP.Addr, "changed flag beats env")
	assert.True(t, cfg.Auth.MultipleLogins)
	assert.Equal(t, "warn", cfg.Log.Level, "unchanged flag keeps the file value")
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
		errutil.AssertErrorCode(t, err, "CONFIG_READ_FAILED")
	})

	t.Run("unknown key", func(t *testing.T) {
		path := writeFile(t, `
auth:
  salt: s
  login_hash_salt: l
  colour: blue
`)
		_, err := config.Load(path, nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_SCHEMA_VIOLATION")
	})

	t.Run("wrong type", func(t *testing.T) {
		path := writeFile(t, `
session:
  store: disk
`)
		_, err := config.Load(path, nil)
		errutil.AssertErrorCode(t, err, "CONFIG_SCHEMA_VIOLATION")
	})

	t.Run("fails validation", func(t *testing.T) {
		_, err := config.Load("", nil)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MEMBERAUTH_LOGIN_HASH_SALT=from-dotenv\n"), 0o600))

	// t.Setenv to "" counts as set for godotenv; unset it so the file applies
	require.NoError(t, os.Unsetenv("MEMBERAUTH_LOGIN_HASH_SALT"))
	t.Cleanup(func() { _ = os.Unsetenv("MEMBERAUTH_LOGIN_HASH_SALT") })

	require.NoError(t, config.LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path))
	assert.Equal(t, "from-dotenv", os.Getenv("MEMBERAUTH_LOGIN_HASH_SALT"))
}

func TestGenerateSchema(t *testing.T) {
	data, err := config.GenerateSchema()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, config.SchemaID, doc["$id"])

	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"auth", "remember_me", "session", "database", "redis", "http", "metrics", "log"} {
		assert.Contains(t, props, key)
	}
}

func TestValidateYAML(t *testing.T) {
	assert.NoError(t, config.ValidateYAML([]byte("")))
	assert.NoError(t, config.ValidateYAML([]byte("redis:\n  db: 2\n")))

	err := config.ValidateYAML([]byte("redis: [unclosed"))
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID_YAML")

	err = config.ValidateYAML([]byte("redis:\n  db: -1\n"))
	errutil.AssertErrorCode(t, err, "CONFIG_SCHEMA_VIOLATION")
}
