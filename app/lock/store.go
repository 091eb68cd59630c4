package lock

import (
	"context"
	"errors"
	"time"
)

var ErrNotConnected = errors.New("lock store is not connected")

// Store is the atomic key-value contract the mutex manager is built on.
// Implementations must perform each operation as a single atomic step.
type Store interface {
	// Connect opens (or verifies) the connection to the backend.
	Connect(ctx context.Context) error
	// Close disconnects from the backend.
	Close() error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// SetIfAbsent stores value under key with the given TTL only if key is absent.
	SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	// CompareAndDelete deletes key only if its current value equals expected.
	CompareAndDelete(ctx context.Context, key string, expected string) (bool, error)
	// CompareAndExtend resets the TTL of key only if its current value equals expected.
	CompareAndExtend(ctx context.Context, key string, expected string, ttl time.Duration) (bool, error)
}
