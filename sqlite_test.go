package keyedstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keyedstore.db")
	backend, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend, path
}

func TestSQLite_SetGetRemove(t *testing.T) {
	backend, _ := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, backend.SetItem(ctx, "k", "v"))

	got, err := backend.GetItem(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	// Upsert.
	require.NoError(t, backend.SetItem(ctx, "k", "v2"))
	got, err = backend.GetItem(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", got)

	require.NoError(t, backend.RemoveItem(ctx, "k"))
	_, err = backend.GetItem(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	// Idempotent remove.
	assert.NoError(t, backend.RemoveItem(ctx, "k"))
}

func TestSQLite_GetMissing(t *testing.T) {
	backend, _ := newTestSQLite(t)

	_, err := backend.GetItem(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_KeysAndClear(t *testing.T) {
	backend, _ := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, backend.SetItem(ctx, "a", "1"))
	require.NoError(t, backend.SetItem(ctx, "b", "2"))

	keys, err := backend.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)

	require.NoError(t, backend.Clear(ctx))
	keys, err = backend.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyedstore.db")
	ctx := context.Background()

	backend, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, backend.SetItem(ctx, "k", "persisted"))
	require.NoError(t, backend.Close())

	reopened, err := NewSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetItem(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "persisted", got)
}

func TestSQLite_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "keyedstore.db")

	backend, err := NewSQLite(path)
	require.NoError(t, err)
	defer backend.Close()

	require.NoError(t, backend.SetItem(context.Background(), "k", "v"))
}

// TestPersistent_StoreIntegration runs the typed layer end to end on the
// SQLite backend, including reopening the file.
func TestPersistent_StoreIntegration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyedstore.db")
	ctx := context.Background()

	s, err := New(Persistent, WithSQLitePath(path))
	require.NoError(t, err)

	users, err := s.NS("users")
	require.NoError(t, err)

	require.NoError(t, users.Set(ctx, "count", 3, WithType(TypeInt)))
	require.NoError(t, users.Set(ctx, "greeting", "hi", WithType(TypeString)))

	got, err := users.Get(ctx, "count")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)

	// Carried-forward type enforcement through SQLite.
	err = users.Set(ctx, "count", "many")
	assert.ErrorIs(t, err, ErrTypeMismatch)

	all, err := users.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// A second store over the same file sees the data.
	s2, err := New(Persistent, WithSQLitePath(path), WithPrefix("users"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"users:count", "users:greeting"}, s2.Keys())

	got, err = s2.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hi", got)
}

func TestPersistent_ClearIsNamespaceScoped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyedstore.db")
	ctx := context.Background()

	root, err := New(Persistent, WithSQLitePath(path))
	require.NoError(t, err)

	a, err := root.NS("a")
	require.NoError(t, err)
	b, err := root.NS("b")
	require.NoError(t, err)

	require.NoError(t, a.Set(ctx, "x", 1, WithType(TypeInt)))
	require.NoError(t, b.Set(ctx, "x", 2, WithType(TypeInt)))

	require.NoError(t, a.Clear(ctx))

	_, err = a.Get(ctx, "x")
	assert.True(t, errors.Is(err, ErrNotFound))

	got, err := b.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
}
