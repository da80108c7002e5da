package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/paulmach/orb/maptile"
)

// ErrTileNotFound is returned when the store holds no tile at a coordinate.
// Its message is sent to clients verbatim.
var ErrTileNotFound = errors.New("Tile does not exist")

// Tile is a stored tile: compressed bytes plus the response headers the store
// attaches to them.
type Tile struct {
	Data   []byte
	Header http.Header
}

// Store resolves tile coordinates to stored tiles.
// All implementations must be safe for concurrent use.
type Store interface {
	// Get returns the tile at t, or ErrTileNotFound.
	Get(ctx context.Context, t maptile.Tile) (*Tile, error)

	// Close releases the store's resources.
	Close() error
}

// MemoryStore implements Store with an in-memory map.
type MemoryStore struct {
	mu     sync.RWMutex
	header http.Header
	tiles  map[maptile.Tile][]byte
}

// NewMemoryStore creates an empty store that answers every hit with header.
func NewMemoryStore(header http.Header) *MemoryStore {
	if header == nil {
		header = http.Header{}
	}
	return &MemoryStore{
		header: header,
		tiles:  make(map[maptile.Tile][]byte),
	}
}

// Put stores a copy of data at t.
func (m *MemoryStore) Put(t maptile.Tile, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	m.tiles[t] = stored
}

// Get returns a copy of the tile at t.
func (m *MemoryStore) Get(ctx context.Context, t maptile.Tile) (*Tile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.tiles[t]
	if !ok {
		return nil, ErrTileNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return &Tile{Data: out, Header: m.header.Clone()}, nil
}

func (m *MemoryStore) Close() error { return nil }

func key(t maptile.Tile) string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}
