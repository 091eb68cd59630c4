package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-mutex/app/lock"
	"github.com/vibast-solutions/ms-go-mutex/app/mutex"
)

func newRunner(t *testing.T, store lock.Store, keepAlive bool, opts ...mutex.Option) (*JobRunner, *mutex.Manager) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	manager, err := mutex.New(store, append([]mutex.Option{mutex.WithLogger(logger)}, opts...)...)
	if err != nil {
		t.Fatalf("mutex.New: %v", err)
	}
	return NewJobRunner(manager, logger, keepAlive), manager
}

func newStore(t *testing.T) *lock.MemoryStore {
	t.Helper()
	store := lock.NewMemoryStore()
	if err := store.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return store
}

func TestJobRunnerRunSuccess(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	runner, manager := newRunner(t, store, false)

	ran := false
	err := runner.Run(context.Background(), "cron:daily-stats", 0, func(_ context.Context) error {
		ran = true
		if !manager.IsAcquired("cron:daily-stats") {
			t.Errorf("lock not held inside the job")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !ran {
		t.Fatalf("job did not run")
	}
	if manager.IsAcquired("cron:daily-stats") || store.Len() != 0 {
		t.Fatalf("lock not released after job")
	}
}

func TestJobRunnerSkipsWhenLocked(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	_, managerA := newRunner(t, store, false)
	runnerB, _ := newRunner(t, store, false)

	if ok, err := managerA.Acquire(context.Background(), "job", 0); err != nil || !ok {
		t.Fatalf("Acquire: ok=%v err=%v", ok, err)
	}

	ran := false
	err := runnerB.Run(context.Background(), "job", 20*time.Millisecond, func(_ context.Context) error {
		ran = true
		return nil
	})
	if !errors.Is(err, ErrJobLocked) {
		t.Fatalf("expected ErrJobLocked, got %v", err)
	}
	if ran {
		t.Fatalf("job ran while locked")
	}
}

func TestJobRunnerReleasesOnJobError(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	runner, manager := newRunner(t, store, false)
	boom := errors.New("boom")

	err := runner.Run(context.Background(), "job", 0, func(_ context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if manager.IsAcquired("job") || store.Len() != 0 {
		t.Fatalf("lock not released after failing job")
	}
}

func TestJobRunnerMisconfiguration(t *testing.T) {
	t.Parallel()

	runner, _ := newRunner(t, lock.NewMemoryStore(), false)
	err := runner.Run(context.Background(), "job", 0, func(_ context.Context) error { return nil })
	if !errors.Is(err, lock.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if errors.Is(err, ErrJobLocked) {
		t.Fatalf("misconfiguration reported as a held lock")
	}
}

func TestJobRunnerKeepAlive(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	runner, _ := newRunner(t, store, true, mutex.WithTTL(60*time.Millisecond))
	_, contender := newRunner(t, store, false)

	err := runner.Run(context.Background(), "job", 0, func(_ context.Context) error {
		time.Sleep(150 * time.Millisecond)
		if ok, _ := contender.Acquire(context.Background(), "job", 0); ok {
			t.Errorf("lock expired while the job was still running")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestJobRunnerCancelsJobWhenLockLost(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	store := lock.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err := store.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	runner, manager := newRunner(t, store, true, mutex.WithTTL(90*time.Millisecond))
	_, contender := newRunner(t, store, false)
	key := manager.Options().StorageKey("job")

	var jobErr error
	err := runner.Run(context.Background(), "job", 0, func(ctx context.Context) error {
		mr.Del(key)
		select {
		case <-ctx.Done():
			jobErr = ctx.Err()
		case <-time.After(2 * time.Second):
			t.Errorf("job context not cancelled after the lock was lost")
		}
		return jobErr
	})

	if !errors.Is(err, ErrLockLost) {
		t.Fatalf("expected ErrLockLost, got %v", err)
	}
	if !errors.Is(jobErr, context.Canceled) {
		t.Fatalf("expected job context cancelled, got %v", jobErr)
	}
	if ok, err := contender.Acquire(context.Background(), "job", 0); err != nil || !ok {
		t.Fatalf("contender Acquire after lost lock: ok=%v err=%v", ok, err)
	}
}
