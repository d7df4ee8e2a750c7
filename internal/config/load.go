// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// envKeys maps environment variables onto configuration keys.
var envKeys = map[string]string{
	"DATABASE_URL":               "database.url",
	"REDIS_ADDR":                 "redis.addr",
	"REDIS_PASSWORD":             "redis.password",
	"MEMBERAUTH_SALT":            "auth.salt",
	"MEMBERAUTH_LOGIN_HASH_SALT": "auth.login_hash_salt",
	"MEMBERAUTH_HTTP_ADDR":       "http.addr",
	"MEMBERAUTH_LOG_LEVEL":       "log.level",
}

// flagKeys maps command-line flags onto configuration keys. Flags not listed
// here are ignored by Load.
var flagKeys = map[string]string{
	"http-addr":       "http.addr",
	"metrics-addr":    "metrics.addr",
	"database-url":    "database.url",
	"redis-addr":      "redis.addr",
	"session-store":   "session.store",
	"multiple-logins": "auth.multiple_logins",
	"remember-me":     "remember_me.enabled",
	"log-format":      "log.format",
	"log-level":       "log.level",
}

// RegisterFlags adds the configuration flags to fs with the built-in
// defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http-addr", d.HTTP.Addr, "HTTP listen address")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	fs.String("database-url", d.Database.URL, "PostgreSQL connection URL")
	fs.String("redis-addr", d.Redis.Addr, "Redis address for sessions")
	fs.String("session-store", d.Session.Store, "session backend (redis or memory)")
	fs.Bool("multiple-logins", d.Auth.MultipleLogins, "allow concurrent sessions per member")
	fs.Bool("remember-me", d.RememberMe.Enabled, "enable the remember-me cookie")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
}

// LoadDotEnv reads .env style files into the process environment. Missing
// files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return oops.Code("CONFIG_DOTENV_FAILED").With("path", p).Wrap(err)
		}
	}
	return nil
}

// Load builds the configuration. path may be empty to skip the file; flags
// may be nil. The result is validated.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
		if err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
		if err := ValidateYAML(data); err != nil {
			return nil, oops.Code("CONFIG_SCHEMA_INVALID").With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_PARSE_FAILED").With("path", path).Wrap(err)
		}
	}

	for env, key := range envKeys {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, oops.Code("CONFIG_ENV_FAILED").With("env", env).Wrap(err)
			}
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
