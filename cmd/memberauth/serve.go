// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/memberauth/memberauth/internal/auth"
	"github.com/memberauth/memberauth/internal/auth/authtest"
	"github.com/memberauth/memberauth/internal/auth/postgres"
	"github.com/memberauth/memberauth/internal/config"
	"github.com/memberauth/memberauth/internal/observability"
	"github.com/memberauth/memberauth/internal/session"
	"github.com/memberauth/memberauth/internal/store"
	"github.com/memberauth/memberauth/internal/web"
)

const (
	shutdownTimeout   = 5 * time.Second
	redisDialAttempts = 5
	redisDialBackoff  = 200 * time.Millisecond
	sweepInterval     = time.Minute
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server for registration, login and profile requests,
plus the metrics and health server.

With --dev, members and sessions are kept in memory and no database or
Redis is needed. Everything is lost on exit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, dev, cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())
	cmd.Flags().BoolVar(&dev, "dev", false, "keep members and sessions in memory")

	return cmd
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, dev bool, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.PoolOpener == nil {
		deps.PoolOpener = func(ctx context.Context, url string) (Pool, error) {
			return store.Open(ctx, url)
		}
	}
	if deps.RedisDialer == nil {
		deps.RedisDialer = func(ctx context.Context, opts *redis.Options) (RedisClient, error) {
			return session.Dial(ctx, opts, redisDialAttempts, redisDialBackoff)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, checks observability.Checks, register ...observability.RegisterFunc) ObservabilityServer {
			return observability.NewServer(addr, checks, register...)
		}
	}

	logger := setupLogging(cfg)
	logger.Info("starting memberauth",
		"http_addr", cfg.HTTP.Addr,
		"session_store", cfg.Session.Store,
		"dev", dev,
	)

	hasher, err := auth.NewArgon2idHasher(cfg.Auth.Salt, cfg.Argon2Params())
	if err != nil {
		return oops.Code("SERVE_INIT_FAILED").With("operation", "create hasher").Wrap(err)
	}
	schema, err := cfg.AttributeSchema()
	if err != nil {
		return oops.Code("SERVE_INIT_FAILED").With("operation", "compile attribute schema").Wrap(err)
	}

	checks := observability.Checks{}

	var credentials auth.CredentialStore
	if dev {
		credentials = authtest.NewMemoryStore()
		logger.Warn("development mode: members are kept in memory")
	} else {
		if cfg.Database.URL == "" {
			return oops.Code("CONFIG_INVALID").With("key", "database.url").Errorf("database.url or DATABASE_URL is required")
		}
		pool, err := deps.PoolOpener(ctx, cfg.Database.URL)
		if err != nil {
			return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
		}
		defer pool.Close()
		credentials = postgres.NewCredentialRepository(pool)
		checks["database"] = pool.Ping
		logger.Info("connected to database")
	}

	var sessions, remember session.Store
	if dev || cfg.Session.Store == config.StoreMemory {
		ms, err := session.NewMemoryStore(cfg.Session.Expiration, sweepInterval)
		if err != nil {
			return oops.Code("SERVE_INIT_FAILED").With("operation", "create session store").Wrap(err)
		}
		defer closeQuietly(ms, "session store")
		sessions = ms
		if cfg.RememberMe.Enabled {
			rm, err := session.NewMemoryStore(cfg.RememberMe.Expiration, sweepInterval)
			if err != nil {
				return oops.Code("SERVE_INIT_FAILED").With("operation", "create remember-me store").Wrap(err)
			}
			defer closeQuietly(rm, "remember-me store")
			remember = rm
		}
	} else {
		client, err := deps.RedisDialer(ctx, &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Redis.Addr).Wrap(err)
		}
		defer closeQuietly(client, "redis client")
		if sessions, err = session.NewRedisStore(client, session.PrefixSession, cfg.Session.Expiration); err != nil {
			return oops.Code("SERVE_INIT_FAILED").With("operation", "create session store").Wrap(err)
		}
		if cfg.RememberMe.Enabled {
			if remember, err = session.NewRedisStore(client, session.PrefixRememberMe, cfg.RememberMe.Expiration); err != nil {
				return oops.Code("SERVE_INIT_FAILED").With("operation", "create remember-me store").Wrap(err)
			}
		}
		checks["sessions"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	}

	svc, err := auth.NewCredentialService(credentials, hasher,
		auth.WithAttributeSchema(schema),
		auth.WithServiceLogger(logger),
	)
	if err != nil {
		return oops.Code("SERVE_INIT_FAILED").With("operation", "create credential service").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	obsServer := deps.ObservabilityServerFactory(cfg.Metrics.Addr, checks, auth.RegisterMetrics)
	if cfg.Metrics.Addr != "" {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Metrics.Addr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := obsServer.Stop(shutdownCtx); err != nil {
				slog.Warn("error stopping observability server", "error", err)
			}
		}()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	webServer, err := web.NewServer(web.Options{
		Manager:        cfg.ManagerConfig(),
		SessionCookie:  session.CookieOptions{Name: cfg.Session.CookieName, Secure: cfg.Session.SecureCookie},
		RememberCookie: session.CookieOptions{Name: cfg.RememberMe.CookieName, Secure: cfg.Session.SecureCookie},
		EmailField:     cfg.Auth.EmailField,
		PasswordField:  cfg.Auth.PasswordField,
	}, web.Deps{
		Sessions: sessions,
		Remember: remember,
		Store:    credentials,
		Hasher:   hasher,
		Service:  svc,
		Metrics:  obsServer.Metrics(),
		Logger:   logger,
	})
	if err != nil {
		return oops.Code("SERVE_INIT_FAILED").With("operation", "create web server").Wrap(err)
	}

	listener, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	httpServer := &http.Server{
		Handler:           webServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("memberauth started")
	logger.Info("memberauth ready", "http_addr", listener.Addr().String())
	if deps.OnReady != nil {
		deps.OnReady(listener.Addr().String())
	}

	var serveErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case serveErr = <-errChan:
		serveErr = oops.Code("HTTP_SERVE_FAILED").Wrap(serveErr)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return serveErr
}

type closer interface {
	Close() error
}

func closeQuietly(c closer, what string) {
	if err := c.Close(); err != nil {
		slog.Debug("error closing "+what, "error", err)
	}
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
