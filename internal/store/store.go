// Package store wraps the Redis-backed shared coordination surface used for
// strategy rotation state, the idempotency ledger, the session-state cache,
// distributed locks, and tenant pub/sub channels.
//
// Every method is a single round trip (or a small atomic pipeline/script) so
// that callers can bound it with the 1s per-call timeout from spec.md §5.
// Failures are wrapped in ErrUnavailable so callers can apply the degraded
// fallback described in spec.md §7 instead of failing the webhook outright.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable indicates the shared store could not be reached within the
// per-call timeout. Callers fall back to the degraded path from spec.md §7
// (random selection, best-effort idempotency) rather than failing the call.
var ErrUnavailable = errors.New("store: unavailable")

// ErrNotFound indicates a requested key does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is a thin, atomic-operations-only wrapper around a Redis client.
type Store struct {
	rdb         *redis.Client
	callTimeout time.Duration
}

// New creates a Store backed by the given Redis client. callTimeout bounds
// every individual store operation (spec.md §5: "1s per-call timeout").
func New(rdb *redis.Client, callTimeout time.Duration) *Store {
	if callTimeout <= 0 {
		callTimeout = time.Second
	}
	return &Store{rdb: rdb, callTimeout: callTimeout}
}

// Ping checks connectivity, used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.callTimeout)
}

// GetString returns the value at key. ok is false on a cache miss.
func (s *Store) GetString(ctx context.Context, key string) (value string, ok bool, err error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	value, err = s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}
	return value, true, nil
}

// SetString writes key=value with the given TTL (0 means no expiry).
func (s *Store) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// SetNX atomically writes key=value only if it does not already exist
// (compare-and-swap against absence). Returns true if the write happened.
func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	set, err := s.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: setnx %s: %v", ErrUnavailable, key, err)
	}
	return set, nil
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: exists %s: %v", ErrUnavailable, key, err)
	}
	return n > 0, nil
}

// Delete removes a key. It is not an error for the key to be absent.
func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: del %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Expire sets (or refreshes) a key's TTL.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("%w: expire %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Incr atomically increments key by 1 and returns the new value. Used for
// the round-robin simple-index pointer (fetch-and-increment, never a
// racy GET-then-SET — see spec.md §9 open question).
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: incr %s: %v", ErrUnavailable, key, err)
	}
	return n, nil
}

// ZAdd adds (or updates) a sorted-set member with the given score.
func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("%w: zadd %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// ZCount counts members scored within [min, max] inclusive.
func (s *Store) ZCount(ctx context.Context, key string, min, max float64) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.rdb.ZCount(ctx, key, fmt.Sprintf("%f", min), fmt.Sprintf("%f", max)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: zcount %s: %v", ErrUnavailable, key, err)
	}
	return n, nil
}

// ZRemRangeByScore removes members scored within [min, max] inclusive. Used
// to trim the load-balanced rolling window of call timestamps.
func (s *Store) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.rdb.ZRemRangeByScore(ctx, key, fmt.Sprintf("%f", min), fmt.Sprintf("%f", max)).Err(); err != nil {
		return fmt.Errorf("%w: zremrangebyscore %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Publish fire-and-forgets a message on channel. Failures are returned
// (not swallowed) so the caller can decide whether to log at warn and
// continue, per spec.md §4.8.
func (s *Store) Publish(ctx context.Context, channel, payload string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: publish %s: %v", ErrUnavailable, channel, err)
	}
	return nil
}

// Subscribe opens a subscription to the given channels. The caller owns the
// returned PubSub and must Close it.
func (s *Store) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return s.rdb.Subscribe(ctx, channels...)
}

// Close releases the underlying Redis client.
func (s *Store) Close() error {
	return s.rdb.Close()
}
