package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newMemoryStore(t *testing.T) (*MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	store := NewMemoryStoreWithClock(clock.Now)
	if err := store.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return store, clock
}

func TestMemoryStoreLifecycle(t *testing.T) {
	t.Parallel()

	store, clock := newMemoryStore(t)
	ctx := context.Background()

	if ok, _ := store.SetIfAbsent(ctx, "k", "a", time.Second); !ok {
		t.Fatalf("expected first set to succeed")
	}
	if ok, _ := store.SetIfAbsent(ctx, "k", "b", time.Second); ok {
		t.Fatalf("expected second set to fail")
	}
	if ok, _ := store.CompareAndExtend(ctx, "k", "b", time.Minute); ok {
		t.Fatalf("extend with wrong token succeeded")
	}
	if ok, _ := store.CompareAndExtend(ctx, "k", "a", 3*time.Second); !ok {
		t.Fatalf("extend with owner token failed")
	}

	clock.Advance(2 * time.Second)
	if ok, _ := store.SetIfAbsent(ctx, "k", "b", time.Second); ok {
		t.Fatalf("extended entry expired too early")
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 live entry, got %d", store.Len())
	}

	if ok, _ := store.CompareAndDelete(ctx, "k", "b"); ok {
		t.Fatalf("delete with wrong token succeeded")
	}
	if ok, _ := store.CompareAndDelete(ctx, "k", "a"); !ok {
		t.Fatalf("delete with owner token failed")
	}
	if ok, _ := store.CompareAndDelete(ctx, "k", "a"); ok {
		t.Fatalf("second delete succeeded")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()

	store, clock := newMemoryStore(t)
	ctx := context.Background()

	if ok, _ := store.SetIfAbsent(ctx, "k", "a", time.Second); !ok {
		t.Fatalf("expected set to succeed")
	}
	clock.Advance(time.Second)

	if ok, _ := store.CompareAndExtend(ctx, "k", "a", time.Second); ok {
		t.Fatalf("expired entry was extended")
	}
	if ok, _ := store.SetIfAbsent(ctx, "k", "b", time.Second); !ok {
		t.Fatalf("expected set after expiry to succeed")
	}
	if ok, _ := store.CompareAndDelete(ctx, "k", "a"); ok {
		t.Fatalf("stale owner removed new holder")
	}
}

func TestMemoryStoreConcurrentSetIfAbsent(t *testing.T) {
	t.Parallel()

	store, _ := newMemoryStore(t)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if ok, _ := store.SetIfAbsent(context.Background(), "k", string(rune('a'+i)), time.Minute); ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestMemoryStoreNotConnected(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	if _, err := store.SetIfAbsent(context.Background(), "k", "a", time.Second); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	_ = store.Connect(context.Background())
	_ = store.Close()
	if _, err := store.CompareAndExtend(context.Background(), "k", "a", time.Second); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after Close, got %v", err)
	}
}
