// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/memberauth/memberauth/internal/auth"
	"github.com/memberauth/memberauth/internal/auth/postgres"
	"github.com/memberauth/memberauth/internal/store"
)

// Default timeout for user commands.
const defaultUserTimeout = 30 * time.Second

// openCredentialStore connects the user commands to PostgreSQL. Replaced in
// tests.
var openCredentialStore = func(ctx context.Context, databaseURL string) (auth.CredentialStore, func(), error) {
	pool, err := store.Open(ctx, databaseURL)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // store errors carry their own codes
	}
	return postgres.NewCredentialRepository(pool), pool.Close, nil
}

// NewUserCmd creates the user administration subcommand.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Administer member accounts",
		Long: `Create members, set or reset their passwords and delete them.
Settings come from the config file and environment, like serve.`,
	}

	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserPasswdCmd())
	cmd.AddCommand(newUserResetPasswordCmd())
	cmd.AddCommand(newUserDeleteCmd())

	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var email, password, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a member with an email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCredentialService(cmd, func(ctx context.Context, svc *auth.CredentialService) error {
				id, err := svc.CreateUser(ctx, email, password, name)
				if err != nil {
					return err //nolint:wrapcheck // auth errors carry their own codes
				}
				cmd.Printf("Created member %d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func newUserPasswdCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "passwd MEMBER_ID",
		Short: "Set a member's password without checking the old one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMemberID(args[0])
			if err != nil {
				return err
			}
			return withCredentialService(cmd, func(ctx context.Context, svc *auth.CredentialService) error {
				if err := svc.SetPassword(ctx, id, password); err != nil {
					return err //nolint:wrapcheck // auth errors carry their own codes
				}
				cmd.Printf("Password updated for member %d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "new password")
	return cmd
}

func newUserResetPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password MEMBER_ID",
		Short: "Replace a member's password with a random one and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMemberID(args[0])
			if err != nil {
				return err
			}
			return withCredentialService(cmd, func(ctx context.Context, svc *auth.CredentialService) error {
				password, err := svc.ResetPassword(ctx, id)
				if err != nil {
					return err //nolint:wrapcheck // auth errors carry their own codes
				}
				cmd.Println(password)
				return nil
			})
		},
	}
}

func newUserDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete MEMBER_ID",
		Short: "Delete a member and its credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMemberID(args[0])
			if err != nil {
				return err
			}
			return withCredentialService(cmd, func(ctx context.Context, svc *auth.CredentialService) error {
				if _, err := svc.DeleteUser(ctx, id); err != nil {
					return err //nolint:wrapcheck // auth errors carry their own codes
				}
				cmd.Printf("Deleted member %d\n", id)
				return nil
			})
		},
	}
}

// withCredentialService loads the configuration, connects to the database
// and runs fn with a CredentialService.
func withCredentialService(cmd *cobra.Command, fn func(ctx context.Context, svc *auth.CredentialService) error) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	logger := setupLogging(cfg)
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").With("key", "database.url").Errorf("database.url or DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(commandContext(cmd), defaultUserTimeout)
	defer cancel()

	credentials, closeStore, err := openCredentialStore(ctx, cfg.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer closeStore()

	hasher, err := auth.NewArgon2idHasher(cfg.Auth.Salt, cfg.Argon2Params())
	if err != nil {
		return oops.Code("USER_COMMAND_FAILED").With("operation", "create hasher").Wrap(err)
	}
	schema, err := cfg.AttributeSchema()
	if err != nil {
		return oops.Code("USER_COMMAND_FAILED").With("operation", "compile attribute schema").Wrap(err)
	}
	svc, err := auth.NewCredentialService(credentials, hasher,
		auth.WithAttributeSchema(schema),
		auth.WithServiceLogger(logger),
	)
	if err != nil {
		return oops.Code("USER_COMMAND_FAILED").With("operation", "create credential service").Wrap(err)
	}
	return fn(ctx, svc)
}

// parseMemberID parses a positive member id argument.
func parseMemberID(s string) (int64, error) {
	id := auth.ParseMemberID(s)
	if id <= 0 {
		return 0, oops.Code("INVALID_MEMBER_ID").With("input", s).Errorf("member id must be a positive integer, got %q", s)
	}
	return id, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
