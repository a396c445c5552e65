package kv

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	store, err := NewRedisStore(RedisConfig{URL: "redis://" + mr.Addr(), Prefix: "test:"})
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create redis store: %v", err)
	}

	cleanup := func() {
		store.Close()
		mr.Close()
	}
	return store, mr, cleanup
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) (Store, func()){
		"memory": func(t *testing.T) (Store, func()) {
			return NewMemoryStore(), func() {}
		},
		"file": func(t *testing.T) (Store, func()) {
			s, err := NewFileStore(filepath.Join(t.TempDir(), "cache.json"), nil)
			require.NoError(t, err)
			return s, func() {}
		},
		"redis": func(t *testing.T) (Store, func()) {
			s, _, cleanup := setupRedisStore(t)
			return s, cleanup
		},
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			store, cleanup := open(t)
			defer cleanup()
			ctx := context.Background()

			_, err := store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Set(ctx, "a", []byte("alpha")))
			require.NoError(t, store.Set(ctx, "b", []byte(`{"x":1}`)))

			got, err := store.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, "alpha", string(got))

			require.NoError(t, store.Set(ctx, "a", []byte("again")))
			got, err = store.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, "again", string(got))

			require.NoError(t, store.Delete(ctx, "a", "b", "never-set"))
			_, err = store.Get(ctx, "a")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = store.Get(ctx, "b")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Delete(ctx))
		})
	}
}

func TestRedisStore_Prefix(t *testing.T) {
	store, mr, cleanup := setupRedisStore(t)
	defer cleanup()

	require.NoError(t, store.Set(context.Background(), "lastActivityTime", []byte("42")))

	v, err := mr.Get("test:lastActivityTime")
	require.NoError(t, err)
	assert.Equal(t, "42", v)
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	_, err := NewRedisStore(RedisConfig{URL: "not-a-url"})
	assert.Error(t, err)
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.json")
	ctx := context.Background()

	first, err := NewFileStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "k", []byte("v")))

	second, err := NewFileStore(path, nil)
	require.NoError(t, err)
	got, err := second.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileStore_CorruptFileDiscarded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	store, err := NewFileStore(path, nil)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(context.Background(), "k", []byte("v")))
	got, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestFileStore_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	store, err := NewFileStore(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var changes atomic.Int32
	require.NoError(t, store.Watch(ctx, func() { changes.Add(1) }))

	other, err := NewFileStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, other.Set(context.Background(), "k", []byte("v")))

	assert.Eventually(t, func() bool { return changes.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
}
