package storage

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protobufHeader() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/x-protobuf")
	h.Set("Content-Encoding", "gzip")
	return h
}

// TestMemoryStore tests the in-memory store implementation
func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	coord := maptile.New(1, 2, 3)

	t.Run("new store is empty", func(t *testing.T) {
		store := NewMemoryStore(nil)

		_, err := store.Get(ctx, coord)
		assert.ErrorIs(t, err, ErrTileNotFound)
		assert.Equal(t, "Tile does not exist", err.Error())
	})

	t.Run("put and get tiles", func(t *testing.T) {
		store := NewMemoryStore(protobufHeader())
		store.Put(coord, []byte("tile"))

		got, err := store.Get(ctx, coord)
		require.NoError(t, err)
		assert.Equal(t, []byte("tile"), got.Data)
		assert.Equal(t, "application/x-protobuf", got.Header.Get("Content-Type"))
		assert.Equal(t, "gzip", got.Header.Get("Content-Encoding"))
	})

	t.Run("coordinates are distinct keys", func(t *testing.T) {
		store := NewMemoryStore(nil)
		store.Put(maptile.New(1, 2, 3), []byte("a"))

		_, err := store.Get(ctx, maptile.New(2, 1, 3))
		assert.ErrorIs(t, err, ErrTileNotFound)
	})

	t.Run("stored bytes are not aliased", func(t *testing.T) {
		store := NewMemoryStore(protobufHeader())
		data := []byte("tile")
		store.Put(coord, data)
		data[0] = 'X'

		got, err := store.Get(ctx, coord)
		require.NoError(t, err)
		assert.Equal(t, []byte("tile"), got.Data)

		got.Data[0] = 'Y'
		got.Header.Set("Content-Type", "text/plain")
		again, err := store.Get(ctx, coord)
		require.NoError(t, err)
		assert.Equal(t, []byte("tile"), again.Data)
		assert.Equal(t, "application/x-protobuf", again.Header.Get("Content-Type"))
	})

	t.Run("canceled context", func(t *testing.T) {
		store := NewMemoryStore(nil)
		store.Put(coord, []byte("tile"))
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := store.Get(cctx, coord)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

// TestMemoryStoreConcurrency tests concurrent readers and writers
func TestMemoryStoreConcurrency(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	var wg sync.WaitGroup
	for i := uint32(0); i < 16; i++ {
		wg.Add(2)
		go func(x uint32) {
			defer wg.Done()
			store.Put(maptile.New(x, 0, 4), []byte{byte(x)})
		}(i)
		go func(x uint32) {
			defer wg.Done()
			_, err := store.Get(ctx, maptile.New(x, 0, 4))
			if err != nil && !errors.Is(err, ErrTileNotFound) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	for i := uint32(0); i < 16; i++ {
		tile, err := store.Get(ctx, maptile.New(i, 0, 4))
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, tile.Data)
	}
}

// TestStoreInterface verifies every implementation satisfies Store
func TestStoreInterface(t *testing.T) {
	var _ Store = (*MemoryStore)(nil)
	var _ Store = (*MBTiles)(nil)
	var _ Store = (*CachedStore)(nil)
}
