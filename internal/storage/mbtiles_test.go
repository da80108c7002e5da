package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"time"
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeMBTiles creates an MBTiles file holding the given rows, keyed by
// TMS coordinates.
func writeMBTiles(t *testing.T, format string, rows map[[3]uint32][]byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.mbtiles")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE metadata (name TEXT, value TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB)`)
	require.NoError(t, err)
	if format != "" {
		_, err = db.Exec(`INSERT INTO metadata (name, value) VALUES ('format', ?)`, format)
		require.NoError(t, err)
	}
	for zxy, data := range rows {
		_, err = db.Exec(`INSERT INTO tiles VALUES (?, ?, ?, ?)`, zxy[0], zxy[1], zxy[2], data)
		require.NoError(t, err)
	}
	return path
}

func TestMBTiles(t *testing.T) {
	ctx := context.Background()
	gz := []byte{0x1f, 0x8b, 0x08, 0x00, 0x01}

	// z=2, x=1, y=0 in XYZ is row 3 in TMS.
	path := writeMBTiles(t, "pbf", map[[3]uint32][]byte{
		{2, 1, 3}: gz,
		{2, 0, 0}: []byte("plain"),
	})
	store, err := OpenMBTiles(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, "pbf", store.Format())

	t.Run("flips y", func(t *testing.T) {
		got, err := store.Get(ctx, maptile.New(1, 0, 2))
		require.NoError(t, err)
		assert.Equal(t, gz, got.Data)
		assert.Equal(t, "application/x-protobuf", got.Header.Get("Content-Type"))
		assert.Equal(t, "gzip", got.Header.Get("Content-Encoding"))
		assert.NotEmpty(t, got.Header.Get("Last-Modified"))
		assert.NotEmpty(t, got.Header.Get("ETag"))
	})

	t.Run("uncompressed data has no encoding", func(t *testing.T) {
		got, err := store.Get(ctx, maptile.New(0, 3, 2))
		require.NoError(t, err)
		assert.Equal(t, []byte("plain"), got.Data)
		assert.Empty(t, got.Header.Get("Content-Encoding"))
	})

	t.Run("missing tile", func(t *testing.T) {
		_, err := store.Get(ctx, maptile.New(1, 3, 2))
		assert.ErrorIs(t, err, ErrTileNotFound)
	})
}

func TestMBTilesDefaultFormat(t *testing.T) {
	path := writeMBTiles(t, "", nil)
	store, err := OpenMBTiles(context.Background(), path)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, "pbf", store.Format())
}

func TestOpenMBTilesMissingFile(t *testing.T) {
	_, err := OpenMBTiles(context.Background(), filepath.Join(t.TempDir(), "nope.mbtiles"))
	assert.Error(t, err)
}

func TestBaseHeader(t *testing.T) {
	tests := []struct {
		format      string
		contentType string
	}{
		{"pbf", "application/x-protobuf"},
		{"png", "image/png"},
		{"jpg", "image/jpeg"},
		{"webp", "image/webp"},
		{"unknown", ""},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			h := baseHeader(tt.format, time.Unix(0, 0), 10)
			assert.Equal(t, tt.contentType, h.Get("Content-Type"))
			assert.Equal(t, `"10-0"`, h.Get("ETag"))
		})
	}
}
