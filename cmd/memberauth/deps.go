// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package main

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/memberauth/memberauth/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolOpener connects to PostgreSQL.
	// Default: store.Open
	PoolOpener func(ctx context.Context, url string) (Pool, error)

	// RedisDialer connects to the session Redis.
	// Default: session.Dial
	RedisDialer func(ctx context.Context, opts *redis.Options) (RedisClient, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, checks observability.Checks, register ...observability.RegisterFunc) ObservabilityServer

	// OnReady is called with the bound HTTP address once requests are served.
	OnReady func(httpAddr string)
}

// Pool wraps the methods used from *pgxpool.Pool.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// RedisClient wraps the methods used from *redis.Client.
type RedisClient interface {
	redis.Cmdable
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}
