package mutex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-mutex/app/lock"
)

// record is what the manager believes about a lock it acquired.
type record struct {
	key        string
	token      string
	ttl        time.Duration
	acquiredAt time.Time
	expiresAt  time.Time
}

// Manager acquires and releases named locks against a lock.Store and keeps
// track of the locks it holds. It is safe for concurrent use.
//
// Store transport errors never escape the manager: acquire keeps polling,
// release and refresh report false. Returned errors are reserved for
// misconfiguration (empty name, store not connected) and cancellation.
type Manager struct {
	opts   Options
	logger logrus.FieldLogger

	mu    sync.Mutex
	store lock.Store
	held  map[string]*record
}

// New builds a Manager on top of store.
func New(store lock.Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is nil", ErrInvalidOptions)
	}
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return &Manager{
		opts:   o,
		logger: o.Logger,
		store:  store,
		held:   make(map[string]*record),
	}, nil
}

// Options returns the effective configuration.
func (m *Manager) Options() Options {
	return m.opts
}

// SetStore swaps the backing store, e.g. after a reconnect. Locally tracked
// locks are kept; the store remains the source of truth for them.
func (m *Manager) SetStore(store lock.Store) {
	m.mu.Lock()
	m.store = store
	m.mu.Unlock()
}

func (m *Manager) currentStore() lock.Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store
}

// Acquire tries to take the named lock with the configured TTL, polling for at
// most timeout. A timeout of zero (or less) makes a single attempt.
func (m *Manager) Acquire(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	return m.AcquireWithTTL(ctx, name, timeout, 0)
}

// AcquireWithTTL is Acquire with a per-lock TTL; ttl <= 0 uses the configured TTL.
func (m *Manager) AcquireWithTTL(ctx context.Context, name string, timeout time.Duration, ttl time.Duration) (bool, error) {
	if name == "" {
		return false, ErrEmptyName
	}
	if timeout < 0 {
		timeout = 0
	}
	if ttl <= 0 {
		ttl = m.opts.TTL
	}
	ttl = roundTTL(ttl)

	if held, err := m.checkHeld(ctx, name, ttl); held || err != nil {
		return held, err
	}

	start := time.Now()
	acquired, err := m.poll(ctx, name, timeout, ttl)
	observeAcquire(start, acquired, err)
	return acquired, err
}

// checkHeld applies the reentrancy policy to a name this manager already tracks.
func (m *Manager) checkHeld(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	rec, ok := m.held[name]
	var expiresAt time.Time
	if ok {
		expiresAt = rec.expiresAt
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if !m.opts.Reentrant {
		return false, ErrAlreadyHeld
	}
	if time.Now().Before(expiresAt) {
		return true, nil
	}

	// Stale: try to keep ownership, otherwise forget it and acquire anew.
	extended, err := m.Refresh(ctx, name, ttl)
	if err != nil {
		return false, err
	}
	if extended {
		return true, nil
	}
	m.forget(name)
	return false, nil
}

func (m *Manager) poll(ctx context.Context, name string, timeout time.Duration, ttl time.Duration) (bool, error) {
	key := m.opts.StorageKey(name)
	token := uuid.NewString()
	deadline := time.Now().Add(timeout)
	logger := m.logger.WithFields(logrus.Fields{"lock": name, "key": key})

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		attemptStart := time.Now()
		ok, err := m.currentStore().SetIfAbsent(ctx, key, token, ttl)
		switch {
		case errors.Is(err, lock.ErrNotConnected):
			return false, fmt.Errorf("acquire %q: %w", name, err)
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return false, ctxErr
			}
			logger.WithError(err).WithField("attempt", attempt).Warn("Lock store error while acquiring")
		case ok:
			m.track(name, &record{
				key:        key,
				token:      token,
				ttl:        ttl,
				acquiredAt: attemptStart,
				expiresAt:  attemptStart.Add(ttl),
			})
			logger.WithField("attempt", attempt).Debug("Lock acquired")
			return true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			logger.WithField("attempt", attempt).Debug("Lock not acquired before timeout")
			return false, nil
		}
		wait := m.opts.WaitInterval
		if wait > remaining {
			wait = remaining
		}

		if timer == nil {
			timer = time.NewTimer(wait)
		} else {
			timer.Reset(wait)
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}
}

func (m *Manager) track(name string, rec *record) {
	m.mu.Lock()
	if _, ok := m.held[name]; !ok {
		heldLocks.Add(1)
	}
	m.held[name] = rec
	m.mu.Unlock()
}

func (m *Manager) forget(name string) (*record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.held[name]
	if ok {
		delete(m.held, name)
		heldLocks.Add(-1)
	}
	return rec, ok
}

// roundTTL rounds sub-millisecond TTLs up to the store resolution.
func roundTTL(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < time.Millisecond {
		return time.Millisecond
	}
	return ttl
}

// Release gives up the named lock. The local record is always dropped; the
// result reports whether the store entry was still ours and got deleted.
func (m *Manager) Release(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, ErrEmptyName
	}
	rec, ok := m.forget(name)
	if !ok {
		return false, nil
	}

	released, err := m.currentStore().CompareAndDelete(ctx, rec.key, rec.token)
	if errors.Is(err, lock.ErrNotConnected) {
		return false, fmt.Errorf("release %q: %w", name, err)
	}
	if err != nil {
		m.logger.WithFields(logrus.Fields{"lock": name, "key": rec.key}).
			WithError(err).Warn("Lock store error while releasing")
		released = false
	} else if !released {
		m.logger.WithFields(logrus.Fields{"lock": name, "key": rec.key}).
			Warn("Lock was no longer owned at release")
	}
	observeRelease(released)
	return released, nil
}

// Refresh extends the named lock to ttl (or the TTL it was acquired with when
// ttl <= 0) if this manager still owns it. Losing ownership is not an error.
func (m *Manager) Refresh(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	if name == "" {
		return false, ErrEmptyName
	}
	extended, err := m.extend(ctx, name, ttl)
	if errors.Is(err, lock.ErrNotConnected) {
		return false, fmt.Errorf("refresh %q: %w", name, err)
	}
	if err != nil {
		m.logger.WithField("lock", name).WithError(err).Warn("Lock store error while refreshing")
		return false, nil
	}
	return extended, nil
}

// extend is Refresh with store errors passed through, so callers can tell a
// transport failure from lost ownership.
func (m *Manager) extend(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	rec, ok := m.held[name]
	var key, token string
	if ok {
		key, token = rec.key, rec.token
		if ttl <= 0 {
			ttl = rec.ttl
		}
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	ttl = roundTTL(ttl)

	start := time.Now()
	extended, err := m.currentStore().CompareAndExtend(ctx, key, token, ttl)
	if err != nil {
		return false, err
	}
	observeRefresh(extended)
	if !extended {
		m.logger.WithFields(logrus.Fields{"lock": name, "key": key}).
			Warn("Lock ownership lost before refresh")
		return false, nil
	}

	m.mu.Lock()
	// Only touch the record we extended; it may have been released meanwhile.
	if cur, ok := m.held[name]; ok && cur.token == token {
		cur.ttl = ttl
		cur.expiresAt = start.Add(ttl)
	}
	m.mu.Unlock()
	return true, nil
}

// IsAcquired reports whether this manager tracks the named lock.
func (m *Manager) IsAcquired(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[name]
	return ok
}

// IsExpired reports whether the local record for name has outlived its TTL.
// Untracked names count as expired.
func (m *Manager) IsExpired(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.held[name]
	if !ok {
		return true
	}
	return !time.Now().Before(rec.expiresAt)
}

// RemainingLifetime returns how long the named lock is believed to live on.
// The second result is false when the name is not tracked.
func (m *Manager) RemainingLifetime(name string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.held[name]
	if !ok {
		return 0, false
	}
	remaining := time.Until(rec.expiresAt)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Held lists the names this manager tracks, sorted.
func (m *Manager) Held() []string {
	m.mu.Lock()
	names := make([]string, 0, len(m.held))
	for name := range m.held {
		names = append(names, name)
	}
	m.mu.Unlock()
	sort.Strings(names)
	return names
}

// Close releases every tracked lock when AutoRelease and ShutdownCleanup are
// both enabled. Owners defer it right after New. It does not close the store.
func (m *Manager) Close(ctx context.Context) error {
	if !m.opts.AutoRelease || !m.opts.ShutdownCleanup {
		return nil
	}
	var errs []error
	for _, name := range m.Held() {
		if _, err := m.Release(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("release %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
