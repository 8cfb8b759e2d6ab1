package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"tillsync/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore wraps a MemoryStore and fails every call while broken is set.
type flakyStore struct {
	*MemoryStore
	broken bool
}

func (f *flakyStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	if f.broken {
		return nil, errors.New("connection refused")
	}
	return f.MemoryStore.Get(ctx, collection, key)
}

func (f *flakyStore) Put(ctx context.Context, collection, key string, content []byte) error {
	if f.broken {
		return errors.New("connection refused")
	}
	return f.MemoryStore.Put(ctx, collection, key, content)
}

func (f *flakyStore) Delete(ctx context.Context, collection, key string) error {
	if f.broken {
		return errors.New("connection refused")
	}
	return f.MemoryStore.Delete(ctx, collection, key)
}

func newTestCachedStore() (*CachedStore, *MemoryStore, *flakyStore) {
	primary := NewMemoryStore()
	cache := &flakyStore{MemoryStore: NewMemoryStore()}
	logger := zerolog.Nop()
	return NewCachedStore(primary, cache, &logger), primary, cache
}

func TestCachedStoreWriteThrough(t *testing.T) {
	cached, primary, cache := newTestCachedStore()
	ctx := context.Background()

	require.NoError(t, cached.Put(ctx, "product", "1", []byte(`{"a":1}`)))

	content, err := primary.Get(ctx, "product", "1")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(content))

	content, err = cache.MemoryStore.Get(ctx, "product", "1")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(content))
}

func TestCachedStoreReadBackfill(t *testing.T) {
	cached, primary, cache := newTestCachedStore()
	ctx := context.Background()

	// Document exists only in the authoritative store.
	require.NoError(t, primary.Put(ctx, "product", "1", []byte(`{"a":1}`)))

	content, err := cached.Get(ctx, "product", "1")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(content))

	// The read populated the cache.
	content, err = cache.MemoryStore.Get(ctx, "product", "1")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(content))
}

func TestCachedStoreSurvivesCacheOutage(t *testing.T) {
	cached, primary, cache := newTestCachedStore()
	ctx := context.Background()

	cache.broken = true

	require.NoError(t, cached.Put(ctx, "product", "1", []byte(`{"a":1}`)))

	content, err := cached.Get(ctx, "product", "1")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(content))

	content, err = primary.Get(ctx, "product", "1")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(content))

	assert.True(t, cached.cacheDown.Load())
}

func TestCachedStoreRecoversAfterWindow(t *testing.T) {
	cached, _, cache := newTestCachedStore()
	cached.recoveryWindow = 10 * time.Millisecond
	ctx := context.Background()

	cache.broken = true
	require.NoError(t, cached.Put(ctx, "product", "1", []byte(`{"a":1}`)))
	require.True(t, cached.cacheDown.Load())

	cache.broken = false
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cached.Put(ctx, "product", "2", []byte(`{"b":2}`)))

	// The cache is back in the write path.
	content, err := cache.MemoryStore.Get(ctx, "product", "2")
	require.NoError(t, err)
	assert.Equal(t, `{"b":2}`, string(content))
}

func TestCachedStoreMissFallsThrough(t *testing.T) {
	cached, _, _ := newTestCachedStore()

	_, err := cached.Get(context.Background(), "product", "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
