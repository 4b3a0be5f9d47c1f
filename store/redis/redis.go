// Package redis provides a Redis-backed Store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/swfrench/redisesh/internal/retry"
	"github.com/swfrench/redisesh/store"
	"golang.org/x/exp/slog"
)

// dialBackoff governs retries of the initial connectivity check in Dial.
var dialBackoff = retry.Backoff{
	Base:   100 * time.Millisecond,
	Growth: 2.0,
	Jitter: 0.2,
}

// Store is a Redis-based implementation of the store.Store interface, mapping
// each command onto the corresponding Redis hash command. It is safe for
// concurrent use.
type Store struct {
	rc *goredis.Client
}

// New returns a new Store using the provided Redis client.
func New(rc *goredis.Client) *Store {
	return &Store{rc: rc}
}

// Dial parses the provided redis:// (or rediss://) URL, creates a client, and
// verifies connectivity with PING, making up to attempts attempts. If Redis
// replies to PING with an error (e.g., NOAUTH), Dial gives up immediately and
// reports store.ErrResponse; all other failures are reported as
// store.ErrConnection.
func Dial(ctx context.Context, url string, attempts int) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL (error: %v): %w", err, store.ErrConnection)
	}
	if attempts < 1 {
		attempts = 1
	}
	rc := goredis.NewClient(opts)
	ping := func(ctx context.Context) error {
		err := rc.Ping(ctx).Err()
		if err == nil {
			return nil
		}
		var rerr goredis.Error
		if errors.As(err, &rerr) {
			slog.Error("Redis rejected connectivity check", "addr", opts.Addr, "error", err)
			return retry.Permanent(err)
		}
		slog.Warn("Failed to reach Redis", "addr", opts.Addr, "error", err)
		return err
	}
	if err := dialBackoff.Do(ctx, ping, attempts); err != nil {
		rc.Close()
		kind := store.ErrConnection
		if errors.Is(err, retry.ErrAborted) {
			kind = store.ErrResponse
		}
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w: %w", opts.Addr, kind, err)
	}
	return &Store{rc: rc}, nil
}

// Close closes the underlying Redis client.
func (rs *Store) Close() error {
	return rs.rc.Close()
}

// wrapError classifies err as store.ErrResponse when Redis replied with an
// error, and store.ErrConnection otherwise. The original error stays in the
// chain.
func wrapError(cmd string, err error) error {
	var rerr goredis.Error
	if errors.As(err, &rerr) {
		return fmt.Errorf("%s failed: %w: %w", cmd, store.ErrResponse, err)
	}
	return fmt.Errorf("%s failed: %w: %w", cmd, store.ErrConnection, err)
}

// SetIfAbsent issues HSETNX.
func (rs *Store) SetIfAbsent(ctx context.Context, key, field, value string) (bool, error) {
	set, err := rs.rc.HSetNX(ctx, key, field, value).Result()
	if err != nil {
		return false, wrapError("HSETNX", err)
	}
	return set, nil
}

// FieldExists issues HEXISTS.
func (rs *Store) FieldExists(ctx context.Context, key, field string) (bool, error) {
	ok, err := rs.rc.HExists(ctx, key, field).Result()
	if err != nil {
		return false, wrapError("HEXISTS", err)
	}
	return ok, nil
}

// GetField issues HGET, returning store.ErrFieldNotFound on a nil reply.
func (rs *Store) GetField(ctx context.Context, key, field string) (string, error) {
	val, err := rs.rc.HGet(ctx, key, field).Result()
	if err == goredis.Nil {
		return "", store.ErrFieldNotFound
	}
	if err != nil {
		return "", wrapError("HGET", err)
	}
	return val, nil
}

// DeleteField issues HDEL.
func (rs *Store) DeleteField(ctx context.Context, key, field string) error {
	if err := rs.rc.HDel(ctx, key, field).Err(); err != nil {
		return wrapError("HDEL", err)
	}
	return nil
}

// Expire issues EXPIRE (or PEXPIRE, for TTLs that are not a whole number of
// seconds).
func (rs *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := rs.rc.Expire(ctx, key, ttl).Err(); err != nil {
		return wrapError("EXPIRE", err)
	}
	return nil
}
