package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb/maptile"

	"github.com/dreamware/tilepaint/internal/tile"
)

// MBTiles reads tiles from an MBTiles (SQLite) file opened read-only.
type MBTiles struct {
	db     *sql.DB
	path   string
	format string
	header http.Header
}

// OpenMBTiles opens path and reads its metadata.
func OpenMBTiles(ctx context.Context, path string) (*MBTiles, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open mbtiles: %w", err)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("open mbtiles %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open mbtiles %s: %w", path, err)
	}

	m := &MBTiles{db: db, path: path}
	if err := m.loadMetadata(ctx); err != nil {
		db.Close()
		return nil, err
	}
	m.header = baseHeader(m.format, fi.ModTime(), fi.Size())
	return m, nil
}

func (m *MBTiles) loadMetadata(ctx context.Context) error {
	err := m.db.QueryRowContext(ctx,
		`SELECT value FROM metadata WHERE name = 'format'`).Scan(&m.format)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		m.format = "pbf"
	case err != nil:
		return fmt.Errorf("read mbtiles metadata %s: %w", m.path, err)
	}
	return nil
}

// Get reads one tile. MBTiles rows are numbered TMS-style, so y is flipped.
func (m *MBTiles) Get(ctx context.Context, t maptile.Tile) (*Tile, error) {
	var data []byte
	err := m.db.QueryRowContext(ctx,
		`SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?`,
		uint32(t.Z), t.X, tile.FlipY(t)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && len(data) == 0) {
		return nil, ErrTileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read tile %s: %w", key(t), err)
	}

	h := m.header.Clone()
	if isGzipped(data) {
		h.Set("Content-Encoding", "gzip")
	}
	return &Tile{Data: data, Header: h}, nil
}

// Format returns the tile format recorded in the metadata table.
func (m *MBTiles) Format() string { return m.format }

func (m *MBTiles) Close() error { return m.db.Close() }

func baseHeader(format string, modTime time.Time, size int64) http.Header {
	h := http.Header{}
	switch format {
	case "pbf":
		h.Set("Content-Type", "application/x-protobuf")
	case "png":
		h.Set("Content-Type", "image/png")
	case "jpg", "jpeg":
		h.Set("Content-Type", "image/jpeg")
	case "webp":
		h.Set("Content-Type", "image/webp")
	}
	h.Set("Last-Modified", modTime.UTC().Format(http.TimeFormat))
	h.Set("ETag", strconv.Quote(fmt.Sprintf("%d-%d", size, modTime.Unix())))
	return h
}

func isGzipped(data []byte) bool {
	return len(data) > 1 && data[0] == 0x1f && data[1] == 0x8b
}
