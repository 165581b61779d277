package keyedstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
)

// Backend describes the raw string key-value facility a Store writes to.
// Semantics follow browser-style web storage: values are strings, absent
// keys surface as ErrNotFound, and keys are enumerable.
// Implementations must be safe for concurrent use.
type Backend interface {
	GetItem(ctx context.Context, key string) (string, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Keys(ctx context.Context) ([]string, error)
}

// Kind selects which well-known backend a Store is bound to.
type Kind string

const (
	// Session is process-scoped in-memory storage: contents vanish when
	// the process exits. All Session stores share one backend instance.
	Session Kind = "session"

	// Persistent is disk-backed storage surviving restarts. All
	// Persistent stores share one SQLite-backed instance unless a path
	// or backend is supplied explicitly.
	Persistent Kind = "persistent"
)

// The two well-known backend handles are process-wide singletons so
// that independent Store instances of the same kind observe the same
// data, mirroring the shared ambient storage they stand in for.
var (
	sessionOnce   sync.Once
	sessionShared Backend

	persistentOnce   sync.Once
	persistentShared Backend
	persistentErr    error
)

func sessionBackend() Backend {
	sessionOnce.Do(func() {
		sessionShared = NewMemory()
	})
	return sessionShared
}

func persistentBackend() (Backend, error) {
	persistentOnce.Do(func() {
		persistentShared, persistentErr = NewSQLite(defaultSQLitePath())
	})
	return persistentShared, persistentErr
}

// defaultSQLitePath resolves the on-disk location for the shared
// persistent backend. Override with KEYEDSTORE_DB.
func defaultSQLitePath() string {
	if p := os.Getenv("KEYEDSTORE_DB"); p != "" {
		return p
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "keyedstore.db"
	}
	return filepath.Join(dir, "keyedstore", "keyedstore.db")
}
