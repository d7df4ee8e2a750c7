// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

// Package store provides the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connection retry defaults used by Open.
const (
	DefaultConnectAttempts = 5
	DefaultConnectBackoff  = 200 * time.Millisecond
)

// pinger is the part of a pool Open needs to verify connectivity.
type pinger interface {
	Ping(ctx context.Context) error
}

// Open creates a connection pool and waits until the database answers a
// ping, retrying with exponential backoff.
func Open(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitForPing(ctx, pool, DefaultConnectAttempts, DefaultConnectBackoff); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// waitForPing pings p until it succeeds, attempts are exhausted or ctx ends.
func waitForPing(ctx context.Context, p pinger, attempts uint64, base time.Duration) error {
	backoff := retry.WithMaxRetries(attempts, retry.NewExponential(base))

	tries := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		tries++
		if err := p.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "database not ready", "attempt", tries, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", tries).
			Wrap(err)
	}
	return nil
}
