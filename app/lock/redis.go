package lock

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

const extendScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`

type RedisStore struct {
	client    redis.UniversalClient
	connected atomic.Bool
}

// NewRedisStore wraps an existing go-redis client. The client may be shared.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Connect pings the server and marks the store usable.
func (s *RedisStore) Connect(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	s.connected.Store(true)
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if !s.connected.Load() {
		return ErrNotConnected
	}
	return s.client.Ping(ctx).Err()
}

// Close marks the store unusable and closes the underlying client.
func (s *RedisStore) Close() error {
	if !s.connected.Swap(false) {
		return nil
	}
	return s.client.Close()
}

// SetIfAbsent issues SET key value NX PX ttl.
func (s *RedisStore) SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	if !s.connected.Load() {
		return false, ErrNotConnected
	}
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

// CompareAndDelete removes key if it still holds expected.
func (s *RedisStore) CompareAndDelete(ctx context.Context, key string, expected string) (bool, error) {
	if !s.connected.Load() {
		return false, ErrNotConnected
	}
	n, err := s.client.Eval(ctx, releaseScript, []string{key}, expected).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CompareAndExtend resets the expiry of key if it still holds expected.
func (s *RedisStore) CompareAndExtend(ctx context.Context, key string, expected string, ttl time.Duration) (bool, error) {
	if !s.connected.Load() {
		return false, ErrNotConnected
	}
	n, err := s.client.Eval(ctx, extendScript, []string{key}, expected, formatMs(ttl)).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// formatMs rounds positive sub-millisecond durations up to 1ms, as SET PX does
// in go-redis; PEXPIRE with 0 would delete the key.
func formatMs(ttl time.Duration) int64 {
	if ttl > 0 && ttl < time.Millisecond {
		return 1
	}
	return int64(ttl / time.Millisecond)
}
