// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Key prefixes of the two session kinds kept in Redis.
const (
	PrefixSession    = "session:"
	PrefixRememberMe = "remember:"
)

// RedisStore keeps sessions as JSON records with a TTL.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore creates a store writing keys under prefix with the given TTL.
func NewRedisStore(client redis.Cmdable, prefix string, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, oops.Code("SESSION_INVALID_DEPENDENCY").Errorf("redis client is required")
	}
	if ttl <= 0 {
		return nil, oops.Code("SESSION_INVALID_TTL").With("ttl", ttl).Errorf("session ttl must be positive")
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, now: time.Now}, nil
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	if !ValidID(id) {
		return nil, notFound(id)
	}
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, oops.Code("SESSION_LOAD_FAILED").With("prefix", r.prefix).Wrap(err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, oops.Code("SESSION_DECODE_FAILED").With("prefix", r.prefix).Wrap(err)
	}
	return rec.session(id), nil
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	if s.Empty() {
		if s.ID == "" {
			return nil
		}
		if err := r.Destroy(ctx, s.ID); err != nil {
			return err
		}
		s.ID = ""
		return nil
	}

	stale, err := s.prepare(r.now(), r.ttl)
	if err != nil {
		return err
	}
	data, err := json.Marshal(s.record())
	if err != nil {
		return oops.Code("SESSION_ENCODE_FAILED").Wrap(err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(s.ID), data, r.ttl)
		if stale != "" {
			pipe.Del(ctx, r.key(stale))
		}
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_SAVE_FAILED").
			With("prefix", r.prefix).
			With("rotated", stale != "").
			Wrap(err)
	}
	return nil
}

// Destroy implements Store.
func (r *RedisStore) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return oops.Code("SESSION_DESTROY_FAILED").With("prefix", r.prefix).Wrap(err)
	}
	return nil
}

// Dial connects to Redis and pings it with exponential backoff until it
// answers or attempts run out.
func Dial(ctx context.Context, opts *redis.Options, attempts uint64, base time.Duration) (*redis.Client, error) {
	client := redis.NewClient(opts)

	b := retry.WithMaxRetries(attempts, retry.NewExponential(base))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, oops.Code("SESSION_REDIS_CONNECT_FAILED").
			With("addr", opts.Addr).
			With("attempts", attempts).
			Wrap(err)
	}
	return client, nil
}

var _ Store = (*RedisStore)(nil)
