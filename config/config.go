package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppID string

	Store           string
	KeyPrefix       string
	HashKey         bool
	TTL             time.Duration
	WaitInterval    time.Duration
	AutoRelease     bool
	ShutdownCleanup bool
	Reentrant       bool

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisReadTimeout  time.Duration
	RedisWriteTimeout time.Duration

	MySQLDSN     string
	MySQLMaxOpen int
	MySQLMaxIdle int
	MySQLMaxLife time.Duration

	HTTPHost string
	HTTPPort string

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	appID := getEnv("APP_ID", "ms-go-mutex")
	cfg := &Config{
		AppID:         appID,
		Store:         strings.ToLower(getEnv("MUTEX_STORE", "redis")),
		KeyPrefix:     getEnv("MUTEX_KEY_PREFIX", appID+":"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		MySQLDSN:      getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/mutex?parseTime=true"),
		HTTPHost:      getEnv("HTTP_HOST", "0.0.0.0"),
		HTTPPort:      getEnv("HTTP_PORT", "8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.HashKey, err = getBool("MUTEX_HASH_KEY", false); err != nil {
		return nil, err
	}
	if cfg.TTL, err = getDuration("MUTEX_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.WaitInterval, err = getDuration("MUTEX_WAIT_INTERVAL", 10*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.AutoRelease, err = getBool("MUTEX_AUTO_RELEASE", false); err != nil {
		return nil, err
	}
	if cfg.ShutdownCleanup, err = getBool("MUTEX_SHUTDOWN_CLEANUP", true); err != nil {
		return nil, err
	}
	if cfg.Reentrant, err = getBool("MUTEX_REENTRANT", false); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RedisReadTimeout, err = getDuration("REDIS_READ_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.RedisWriteTimeout, err = getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.MySQLMaxOpen, err = getInt("MYSQL_MAX_OPEN", 10); err != nil {
		return nil, err
	}
	if cfg.MySQLMaxIdle, err = getInt("MYSQL_MAX_IDLE", 5); err != nil {
		return nil, err
	}
	if cfg.MySQLMaxLife, err = getDuration("MYSQL_MAX_LIFE", 5*time.Minute); err != nil {
		return nil, err
	}

	switch cfg.Store {
	case "redis", "mysql", "memory":
	default:
		return nil, fmt.Errorf("unsupported MUTEX_STORE: %s", cfg.Store)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// getDuration accepts Go duration strings; bare integers are seconds.
func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
