// Package storage resolves tile coordinates to the raw, compressed tiles a
// worker serves.
//
// # Overview
//
// A Store maps a maptile.Tile (zoom, x, y) to an immutable Tile: the stored
// bytes exactly as they sit on disk plus the HTTP headers a response for
// them must carry. Stores never decode or modify tile contents; that is the
// decoration pipeline's job.
//
// # Implementations
//
// MBTiles: a read-only SQLite file in the MBTiles layout
//   - Tiles are addressed TMS-style; Get flips y before querying
//   - The metadata "format" row selects Content-Type
//   - Content-Encoding is set only for gzip-framed data
//   - Last-Modified and ETag are derived from the file's mtime and size
//
// MemoryStore: an in-memory map guarded by sync.RWMutex
//   - Used in tests and for small fixture datasets
//   - Get and Put copy data so callers cannot alias stored bytes
//
// CachedStore: a read-through cache in front of another Store
//   - Only hits are cached; a miss is always asked again
//   - Entries expire after a fixed TTL
//
// # Errors
//
// A lookup with no tile returns ErrTileNotFound. Its message is the text the
// worker sends back with a 404, so it must stay stable. Any other error is a
// backend failure and is wrapped with the coordinate that triggered it.
//
// # Concurrency
//
// All implementations are safe for concurrent use by the handlers of one
// worker process.
package storage
