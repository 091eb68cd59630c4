package lock

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"
)

const createTableQuery = `
	CREATE TABLE IF NOT EXISTS mutex_locks (
		lock_key   VARCHAR(191) NOT NULL PRIMARY KEY,
		token      VARCHAR(64)  NOT NULL,
		expires_at DATETIME(3)  NOT NULL
	)
`

// MySQLStore keeps locks as rows in the mutex_locks table. Expired rows are
// treated as absent and taken over by the next SetIfAbsent.
type MySQLStore struct {
	db        *sql.DB
	connected atomic.Bool
}

// NewMySQLStore constructs a table-backed lock store.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// Connect pings the database.
func (s *MySQLStore) Connect(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("mysql ping: %w", err)
	}
	s.connected.Store(true)
	return nil
}

func (s *MySQLStore) Ping(ctx context.Context) error {
	if !s.connected.Load() {
		return ErrNotConnected
	}
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *MySQLStore) Close() error {
	if !s.connected.Swap(false) {
		return nil
	}
	return s.db.Close()
}

// EnsureSchema creates the lock table if missing.
func (s *MySQLStore) EnsureSchema(ctx context.Context) error {
	if !s.connected.Load() {
		return ErrNotConnected
	}
	_, err := s.db.ExecContext(ctx, createTableQuery)
	return err
}

// SetIfAbsent inserts the row, or takes over an expired one in the same statement.
// MySQL reports 1 affected row for an insert, 2 for an update and 0 when the
// existing row was left untouched.
func (s *MySQLStore) SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	if !s.connected.Load() {
		return false, ErrNotConnected
	}
	const query = `
		INSERT INTO mutex_locks (lock_key, token, expires_at)
		VALUES (?, ?, NOW(3) + INTERVAL ? MICROSECOND)
		ON DUPLICATE KEY UPDATE
			token = IF(expires_at <= NOW(3), VALUES(token), token),
			expires_at = IF(expires_at <= NOW(3), VALUES(expires_at), expires_at)
	`
	res, err := s.db.ExecContext(ctx, query, key, value, ttl.Microseconds())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1 || n == 2, nil
}

// CompareAndDelete removes the row if it is live and still holds expected.
func (s *MySQLStore) CompareAndDelete(ctx context.Context, key string, expected string) (bool, error) {
	if !s.connected.Load() {
		return false, ErrNotConnected
	}
	const query = `
		DELETE FROM mutex_locks
		WHERE lock_key = ? AND token = ? AND expires_at > NOW(3)
	`
	res, err := s.db.ExecContext(ctx, query, key, expected)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CompareAndExtend moves the expiry of a live row that still holds expected.
func (s *MySQLStore) CompareAndExtend(ctx context.Context, key string, expected string, ttl time.Duration) (bool, error) {
	if !s.connected.Load() {
		return false, ErrNotConnected
	}
	const query = `
		UPDATE mutex_locks
		SET expires_at = NOW(3) + INTERVAL ? MICROSECOND
		WHERE lock_key = ? AND token = ? AND expires_at > NOW(3)
	`
	res, err := s.db.ExecContext(ctx, query, ttl.Microseconds(), key, expected)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
