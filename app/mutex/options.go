package mutex

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultTTL          = 24 * time.Hour
	DefaultWaitInterval = 10 * time.Millisecond
)

// Options configures a Manager.
type Options struct {
	// HashKey hashes prefix+name instead of using it verbatim as the storage key.
	HashKey bool
	// KeyPrefix namespaces storage keys, usually the application instance id.
	KeyPrefix string
	// TTL is the maximum lifetime of an acquired lock.
	TTL time.Duration
	// WaitInterval is the sleep between acquire attempts.
	WaitInterval time.Duration
	// AutoRelease releases every lock still held when the manager is closed.
	AutoRelease bool
	// ShutdownCleanup gates AutoRelease; embedders and tests can switch it off.
	ShutdownCleanup bool
	// Reentrant lets Acquire succeed for a name this manager already holds.
	Reentrant bool

	Logger logrus.FieldLogger
}

// Option mutates Options.
type Option func(*Options)

func WithHashKey(enable bool) Option {
	return func(o *Options) { o.HashKey = enable }
}

func WithKeyPrefix(prefix string) Option {
	return func(o *Options) { o.KeyPrefix = prefix }
}

func WithTTL(ttl time.Duration) Option {
	return func(o *Options) { o.TTL = ttl }
}

func WithWaitInterval(interval time.Duration) Option {
	return func(o *Options) { o.WaitInterval = interval }
}

func WithAutoRelease(enable bool) Option {
	return func(o *Options) { o.AutoRelease = enable }
}

func WithShutdownCleanup(enable bool) Option {
	return func(o *Options) { o.ShutdownCleanup = enable }
}

func WithReentrant(enable bool) Option {
	return func(o *Options) { o.Reentrant = enable }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *Options) { o.Logger = logger }
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		TTL:             DefaultTTL,
		WaitInterval:    DefaultWaitInterval,
		ShutdownCleanup: true,
		Logger:          logrus.StandardLogger(),
	}
}

func (o Options) validate() error {
	if o.TTL < time.Millisecond {
		return fmt.Errorf("%w: ttl must be at least 1ms, got %v", ErrInvalidOptions, o.TTL)
	}
	if o.WaitInterval <= 0 {
		return fmt.Errorf("%w: wait interval must be positive, got %v", ErrInvalidOptions, o.WaitInterval)
	}
	return nil
}
