package storage

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	*MemoryStore
	gets atomic.Int64
}

func (c *countingStore) Get(ctx context.Context, t maptile.Tile) (*Tile, error) {
	c.gets.Add(1)
	return c.MemoryStore.Get(ctx, t)
}

func TestCachedStore(t *testing.T) {
	ctx := context.Background()
	coord := maptile.New(3, 4, 5)

	backend := &countingStore{MemoryStore: NewMemoryStore(protobufHeader())}
	backend.Put(coord, []byte("tile"))
	store := NewCachedStore(backend, time.Minute)
	defer store.Close()

	t.Run("hits are served from cache", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			got, err := store.Get(ctx, coord)
			require.NoError(t, err)
			assert.Equal(t, []byte("tile"), got.Data)
			assert.Equal(t, "gzip", got.Header.Get("Content-Encoding"))
		}
		assert.Equal(t, int64(1), backend.gets.Load())
		assert.Equal(t, 1, store.Len())
	})

	t.Run("misses are not cached", func(t *testing.T) {
		missing := maptile.New(0, 0, 5)
		for i := 0; i < 2; i++ {
			_, err := store.Get(ctx, missing)
			assert.ErrorIs(t, err, ErrTileNotFound)
		}
		assert.Equal(t, int64(3), backend.gets.Load())
		assert.Equal(t, 1, store.Len())
	})

	t.Run("header mutation does not leak into cache", func(t *testing.T) {
		got, err := store.Get(ctx, coord)
		require.NoError(t, err)
		got.Header.Set("Content-Type", "text/plain")

		again, err := store.Get(ctx, coord)
		require.NoError(t, err)
		assert.Equal(t, "application/x-protobuf", again.Header.Get("Content-Type"))
	})
}
