package keyedstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite"
)

// sqliteBusyTimeoutMS is the SQLite busy_timeout in milliseconds.
const sqliteBusyTimeoutMS = 5000

// SQLite implements Backend on a single-table SQLite database. It backs
// the Persistent kind: contents survive process restarts.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) a SQLite-backed Backend at path.
// Use ":memory:" for an ephemeral database.
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); path != ":memory:" && !strings.HasPrefix(path, "file:") && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", normalizeSQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection sidesteps table-lock contention between the
	// connection pool's members; concurrency is handled by WAL.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// busy_timeout first so the remaining pragmas wait on locks instead
	// of failing. synchronous=NORMAL is safe under WAL for a KV cache.
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", sqliteBusyTimeoutMS),
		"PRAGMA synchronous=NORMAL",
		"PRAGMA journal_mode=WAL",
	}
	for _, pragma := range pragmas {
		if err := retryBusy(func() error {
			_, err := db.ExecContext(context.Background(), pragma)
			return err
		}); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	schema := `CREATE TABLE IF NOT EXISTS items (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`
	if err := retryBusy(func() error {
		_, err := db.ExecContext(context.Background(), schema)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create items table: %w", err)
	}

	return &SQLite{db: db}, nil
}

func normalizeSQLiteDSN(path string) string {
	// Pass explicit file: DSNs through untouched.
	if strings.HasPrefix(path, "file:") {
		return path
	}
	if path == ":memory:" {
		return "file::memory:?cache=shared"
	}
	// mode=rwc => read/write/create; without it some environments open
	// the file read-only.
	return "file:" + path + "?mode=rwc"
}

func (s *SQLite) GetItem(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM items WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLite) SetItem(ctx context.Context, key, value string) error {
	return retryBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO items (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value)
		if err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
		return nil
	})
}

func (s *SQLite) RemoveItem(ctx context.Context, key string) error {
	return retryBusy(func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE key = ?`, key)
		if err != nil {
			return fmt.Errorf("remove %s: %w", key, err)
		}
		return nil
	})
}

func (s *SQLite) Clear(ctx context.Context) error {
	return retryBusy(func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM items`)
		if err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		return nil
	})
}

func (s *SQLite) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM items`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// retryBusy wraps an operation with exponential backoff on transient
// SQLite lock errors (SQLITE_BUSY, "database is locked"). Other errors
// stop immediately.
func retryBusy(operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second
	b.RandomizationFactor = 0.1

	return backoff.Retry(func() error {
		err := operation()
		if err == nil {
			return nil
		}
		if isBusyError(err) {
			return err // retried
		}
		return backoff.Permanent(err)
	}, b)
}

// isBusyError relies on modernc.org/sqlite error message strings; if
// modernc changes its error format in a major version bump, update the
// matchers below.
func isBusyError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}
