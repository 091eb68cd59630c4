package lock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-process Store. It only coordinates goroutines that
// share the same instance, which makes it suitable for tests and single-host
// embedding.
type MemoryStore struct {
	entries   *xsync.MapOf[string, memoryEntry]
	now       func() time.Time
	connected atomic.Bool
}

// NewMemoryStore constructs an empty in-memory store using the wall clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock constructs an in-memory store with a custom clock.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		entries: xsync.NewMapOf[string, memoryEntry](),
		now:     now,
	}
}

func (s *MemoryStore) Connect(_ context.Context) error {
	s.connected.Store(true)
	return nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	if !s.connected.Load() {
		return ErrNotConnected
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.connected.Store(false)
	s.entries.Clear()
	return nil
}

func (s *MemoryStore) SetIfAbsent(_ context.Context, key string, value string, ttl time.Duration) (bool, error) {
	if !s.connected.Load() {
		return false, ErrNotConnected
	}
	now := s.now()
	acquired := false
	s.entries.Compute(key, func(old memoryEntry, loaded bool) (memoryEntry, bool) {
		if loaded && now.Before(old.expiresAt) {
			return old, false
		}
		acquired = true
		return memoryEntry{value: value, expiresAt: now.Add(ttl)}, false
	})
	return acquired, nil
}

func (s *MemoryStore) CompareAndDelete(_ context.Context, key string, expected string) (bool, error) {
	if !s.connected.Load() {
		return false, ErrNotConnected
	}
	now := s.now()
	deleted := false
	s.entries.Compute(key, func(old memoryEntry, loaded bool) (memoryEntry, bool) {
		if !loaded {
			return old, true
		}
		if !now.Before(old.expiresAt) {
			// expired entries are dropped on sight
			return old, true
		}
		if old.value != expected {
			return old, false
		}
		deleted = true
		return old, true
	})
	return deleted, nil
}

func (s *MemoryStore) CompareAndExtend(_ context.Context, key string, expected string, ttl time.Duration) (bool, error) {
	if !s.connected.Load() {
		return false, ErrNotConnected
	}
	now := s.now()
	extended := false
	s.entries.Compute(key, func(old memoryEntry, loaded bool) (memoryEntry, bool) {
		if !loaded {
			return old, true
		}
		if !now.Before(old.expiresAt) {
			return old, true
		}
		if old.value != expected {
			return old, false
		}
		extended = true
		return memoryEntry{value: old.value, expiresAt: now.Add(ttl)}, false
	})
	return extended, nil
}

// Len reports the number of live entries.
func (s *MemoryStore) Len() int {
	now := s.now()
	n := 0
	s.entries.Range(func(_ string, e memoryEntry) bool {
		if now.Before(e.expiresAt) {
			n++
		}
		return true
	})
	return n
}
