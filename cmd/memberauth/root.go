// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/memberauth/memberauth/internal/config"
	"github.com/memberauth/memberauth/internal/logging"
	"github.com/memberauth/memberauth/internal/xdg"
)

const serviceName = "memberauth"

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the memberauth CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memberauth",
		Short: "memberauth - session-backed member authentication",
		Long: `memberauth registers members, logs them in with email and password,
and keeps them logged in with server-side sessions and an optional
remember-me cookie.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if envFile == "" {
				return nil
			}
			return config.LoadDotEnv(envFile)
		},
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read (empty = none)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewUserCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}

// setupLogging configures the default slog logger from cfg.
func setupLogging(cfg *config.Config) *slog.Logger {
	return logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level)
}

// resolveConfigFile returns --config, or the XDG config file when one exists.
func resolveConfigFile() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	return xdg.DefaultConfigFile() //nolint:wrapcheck // xdg errors carry their own codes
}

// loadConfig resolves the config file and loads it with flags.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	path, err := resolveConfigFile()
	if err != nil {
		return nil, err
	}
	return config.Load(path, flags) //nolint:wrapcheck // config errors carry their own codes
}
