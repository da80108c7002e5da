package storage

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/paulmach/orb/maptile"
)

// CachedStore keeps recently read raw tiles in memory. Stored tiles are
// immutable, so cached reads are indistinguishable from store reads.
// Misses are not cached.
type CachedStore struct {
	next  Store
	cache *gocache.Cache
}

// NewCachedStore wraps next with a read cache whose entries expire after ttl.
func NewCachedStore(next Store, ttl time.Duration) *CachedStore {
	return &CachedStore{
		next:  next,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (c *CachedStore) Get(ctx context.Context, t maptile.Tile) (*Tile, error) {
	k := key(t)
	if v, ok := c.cache.Get(k); ok {
		cached := v.(*Tile)
		return &Tile{Data: cached.Data, Header: cached.Header.Clone()}, nil
	}

	tl, err := c.next.Get(ctx, t)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(k, &Tile{Data: tl.Data, Header: tl.Header.Clone()})
	return tl, nil
}

// Len returns the number of cached tiles.
func (c *CachedStore) Len() int { return c.cache.ItemCount() }

func (c *CachedStore) Close() error {
	c.cache.Flush()
	return c.next.Close()
}
