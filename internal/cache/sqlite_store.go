package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS kv_changes (
	seq     INTEGER PRIMARY KEY AUTOINCREMENT,
	key     TEXT NOT NULL,
	value   TEXT NOT NULL DEFAULT '',
	removed INTEGER NOT NULL DEFAULT 0,
	origin  TEXT NOT NULL
);`

// changes older than this many rows behind the head are pruned on write
const changeLogKeep = 500

// SQLiteStore keeps keys in a SQLite file. Processes sharing the file see
// each other's writes through a change log that subscribers poll.
type SQLiteStore struct {
	db       *sql.DB
	origin   string
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	closed bool
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithPollInterval sets how often subscribers check the change log.
func WithPollInterval(d time.Duration) SQLiteOption {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSQLiteLogger sets the logger.
func WithSQLiteLogger(l *zap.Logger) SQLiteOption {
	return func(s *SQLiteStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// OpenSQLite opens or creates the cache file at path.
func OpenSQLite(ctx context.Context, path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite cache: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite cache schema: %w", err)
	}

	s := &SQLiteStore{
		db:       db,
		origin:   uuid.NewString(),
		interval: time.Second,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SQLiteStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Get returns the value for key and whether it was present.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.isClosed() {
		return "", false, ErrClosed
	}
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set writes key and appends to the change log in one transaction.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	return s.write(ctx, key, value, false)
}

// Remove deletes key and appends a removal to the change log.
func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	return s.write(ctx, key, "", true)
}

func (s *SQLiteStore) write(ctx context.Context, key, value string, removed bool) error {
	if s.isClosed() {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache write: %w", err)
	}
	defer tx.Rollback()

	if removed {
		_, err = tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	} else {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO kv (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO kv_changes (key, value, removed, origin) VALUES (?, ?, ?, ?)`,
		key, value, removed, s.origin)
	if err != nil {
		return fmt.Errorf("log change %s: %w", key, err)
	}
	if seq, err := res.LastInsertId(); err == nil && seq > changeLogKeep {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv_changes WHERE seq <= ?`, seq-changeLogKeep); err != nil {
			return fmt.Errorf("prune change log: %w", err)
		}
	}
	return tx.Commit()
}

// Subscribe polls the change log for writes made by other stores. Only
// changes logged after the call are delivered.
func (s *SQLiteStore) Subscribe(ctx context.Context) (<-chan Change, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	var head sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM kv_changes`).Scan(&head); err != nil {
		return nil, fmt.Errorf("read change log head: %w", err)
	}

	out := make(chan Change, 16)
	go func() {
		defer close(out)
		last := head.Int64
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if s.isClosed() {
				return
			}
			changes, next, err := s.changesSince(ctx, last)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Debug("poll cache changes failed", zap.Error(err))
				}
				continue
			}
			last = next
			for _, change := range changes {
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *SQLiteStore) changesSince(ctx context.Context, seq int64) ([]Change, int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, key, value, removed, origin FROM kv_changes WHERE seq > ? ORDER BY seq`, seq)
	if err != nil {
		return nil, seq, err
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		var (
			c       Change
			removed bool
		)
		if err := rows.Scan(&seq, &c.Key, &c.NewValue, &removed, &c.Origin); err != nil {
			return nil, seq, err
		}
		if c.Origin == s.origin {
			continue
		}
		c.Removed = removed
		out = append(out, c)
	}
	return out, seq, rows.Err()
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

// Close releases the database. Running subscriptions stop at their next tick.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.db.Close()
}
