package mutex

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vibast-solutions/ms-go-mutex/app/lock"
)

const defaultRefreshTimeout = 3 * time.Second

// WatchDog keeps a held lock alive by refreshing it periodically. It stops on
// its own once ownership is lost: the store reports a conflict, or store errors
// persist until the lock would expire before the next tick.
type WatchDog struct {
	manager  *Manager
	name     string
	interval time.Duration
	ttl      time.Duration
	onLost   func()

	running  atomic.Bool
	lost     atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

type WatchDogOpt func(*WatchDog)

// WithInterval sets the refresh period. The default is a third of the TTL.
func WithInterval(interval time.Duration) WatchDogOpt {
	return func(w *WatchDog) { w.interval = interval }
}

// WithRefreshTTL sets the TTL used for each refresh. The default keeps the
// TTL the lock was acquired with.
func WithRefreshTTL(ttl time.Duration) WatchDogOpt {
	return func(w *WatchDog) { w.ttl = ttl }
}

// WithOnLost registers fn to run once when the watchdog gives up the lock.
func WithOnLost(fn func()) WatchDogOpt {
	return func(w *WatchDog) { w.onLost = fn }
}

// NewWatchDog creates a watchdog for name. Call Start once the lock is held.
func NewWatchDog(manager *Manager, name string, opts ...WatchDogOpt) *WatchDog {
	w := &WatchDog{
		manager:  manager,
		name:     name,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.interval <= 0 {
		ttl := w.ttl
		if ttl <= 0 {
			ttl = manager.opts.TTL
		}
		w.interval = ttl / 3
	}
	return w
}

// Start launches the refresh loop. Subsequent calls are no-ops.
func (w *WatchDog) Start() {
	if !w.running.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.stopChan:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), defaultRefreshTimeout)
				extended, err := w.manager.extend(ctx, w.name, w.ttl)
				cancel()

				if err != nil && !errors.Is(err, lock.ErrNotConnected) && w.canRetry() {
					w.manager.logger.WithField("lock", w.name).WithError(err).
						Warn("Watchdog refresh failed, retrying")
					continue
				}
				if err != nil || !extended {
					w.manager.logger.WithField("lock", w.name).WithError(err).
						Warn("Watchdog stopped, lock could not be refreshed")
					w.lost.Store(true)
					if w.onLost != nil {
						w.onLost()
					}
					return
				}
			}
		}
	}()
}

// canRetry reports whether the local record outlives the next tick.
func (w *WatchDog) canRetry() bool {
	remaining, ok := w.manager.RemainingLifetime(w.name)
	return ok && remaining > w.interval
}

// Stop ends the refresh loop and waits for it to exit.
func (w *WatchDog) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	if w.running.Load() {
		<-w.done
	}
}

// Done is closed when a started refresh loop exits, whether stopped or lost.
func (w *WatchDog) Done() <-chan struct{} {
	return w.done
}

// Lost reports whether the watchdog gave up because a refresh failed.
func (w *WatchDog) Lost() bool {
	return w.lost.Load()
}
