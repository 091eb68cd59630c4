package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-mutex/app/lock"
	"github.com/vibast-solutions/ms-go-mutex/app/mutex"
	"github.com/vibast-solutions/ms-go-mutex/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
)

const connectTimeout = 5 * time.Second

// buildStore creates and connects the configured lock store.
func buildStore(cfg *config.Config) (lock.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	switch cfg.Store {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			ReadTimeout:  cfg.RedisReadTimeout,
			WriteTimeout: cfg.RedisWriteTimeout,
		})
		store := lock.NewRedisStore(rdb)
		if err := store.Connect(ctx); err != nil {
			_ = rdb.Close()
			return nil, err
		}
		return store, nil
	case "mysql":
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetMaxOpenConns(cfg.MySQLMaxOpen)
		db.SetMaxIdleConns(cfg.MySQLMaxIdle)
		db.SetConnMaxLifetime(cfg.MySQLMaxLife)

		store := lock.NewMySQLStore(db)
		if err := store.Connect(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("ensure mutex_locks table: %w", err)
		}
		return store, nil
	case "memory":
		store := lock.NewMemoryStore()
		if err := store.Connect(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported MUTEX_STORE: %s", cfg.Store)
	}
}

// buildManager maps configuration onto mutex options.
func buildManager(cfg *config.Config, store lock.Store, logger logrus.FieldLogger) (*mutex.Manager, error) {
	return mutex.New(store,
		mutex.WithKeyPrefix(cfg.KeyPrefix),
		mutex.WithHashKey(cfg.HashKey),
		mutex.WithTTL(cfg.TTL),
		mutex.WithWaitInterval(cfg.WaitInterval),
		mutex.WithAutoRelease(cfg.AutoRelease),
		mutex.WithShutdownCleanup(cfg.ShutdownCleanup),
		mutex.WithReentrant(cfg.Reentrant),
		mutex.WithLogger(logger),
	)
}

// bootstrap loads configuration, logging and the lock stack shared by all commands.
func bootstrap() (*config.Config, *logrus.Logger, lock.Store, *mutex.Manager) {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}

	store, err := buildStore(cfg)
	if err != nil {
		logger.Fatalf("Failed to connect to %s lock store: %v", cfg.Store, err)
	}

	manager, err := buildManager(cfg, store, logger)
	if err != nil {
		_ = store.Close()
		logger.Fatalf("Failed to build mutex manager: %v", err)
	}
	return cfg, logger, store, manager
}
