package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-mutex/app/mutex"
)

var (
	ErrJobLocked = errors.New("job lock is held elsewhere")
	ErrLockLost  = errors.New("job lock lost while running")
)

// JobFunc is a critical section run under a named lock.
type JobFunc func(ctx context.Context) error

type JobRunner struct {
	manager   *mutex.Manager
	logger    logrus.FieldLogger
	keepAlive bool
}

// NewJobRunner builds a runner that serializes jobs through manager.
// With keepAlive set, a watchdog refreshes the lock while the job runs.
func NewJobRunner(manager *mutex.Manager, logger logrus.FieldLogger, keepAlive bool) *JobRunner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &JobRunner{manager: manager, logger: logger, keepAlive: keepAlive}
}

// Run acquires the lock for name (waiting at most wait), runs fn and releases
// the lock. It returns ErrJobLocked without running fn when the lock stays held.
// With keepAlive, losing the lock cancels the context passed to fn and Run
// returns ErrLockLost.
func (r *JobRunner) Run(ctx context.Context, name string, wait time.Duration, fn JobFunc) error {
	acquired, err := r.manager.Acquire(ctx, name, wait)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		r.logger.WithField("lock", name).Info("Job skipped, lock is held")
		return ErrJobLocked
	}
	defer func() {
		if _, err := r.manager.Release(context.Background(), name); err != nil {
			r.logger.WithField("lock", name).WithError(err).Warn("Failed to release job lock")
		}
	}()

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var dog *mutex.WatchDog
	if r.keepAlive {
		dog = mutex.NewWatchDog(r.manager, name, mutex.WithOnLost(cancel))
		dog.Start()
		defer dog.Stop()
	}

	r.logger.WithField("lock", name).Info("Job started")
	start := time.Now()
	err = fn(jobCtx)
	if dog != nil && dog.Lost() {
		r.logger.WithField("lock", name).Error("Job cancelled, lock lost")
		return fmt.Errorf("job %s: %w", name, ErrLockLost)
	}
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	r.logger.WithFields(logrus.Fields{"lock": name, "duration": time.Since(start)}).Info("Job finished")
	return nil
}
