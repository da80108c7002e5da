package decorate

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tilepaint/internal/replica"
	"github.com/dreamware/tilepaint/internal/tile"
)

func feature(g orb.Geometry, props geojson.Properties) *geojson.Feature {
	f := geojson.NewFeature(g)
	f.Properties = props
	return f
}

// gzippedTile builds a stored tile: a "roads" layer with the given ids and a
// second "labels" layer that must come back untouched.
func gzippedTile(t *testing.T, ids ...any) []byte {
	t.Helper()

	roads := &mvt.Layer{Name: "roads", Version: 2, Extent: mvt.DefaultExtent}
	for i, id := range ids {
		props := geojson.Properties{"name": "road", "kind": "primary"}
		if id != nil {
			props["id"] = id
		}
		x := float64(i * 10)
		roads.Features = append(roads.Features, feature(orb.LineString{{x, 0}, {x + 5, 5}}, props))
	}
	labels := &mvt.Layer{
		Name:     "labels",
		Version:  2,
		Extent:   mvt.DefaultExtent,
		Features: []*geojson.Feature{feature(orb.Point{1, 2}, geojson.Properties{"text": "Soho"})},
	}

	raw, err := tile.Encode(mvt.Layers{roads, labels})
	require.NoError(t, err)
	gz, err := tile.Compress(raw)
	require.NoError(t, err)
	return gz
}

func decodeOutput(t *testing.T, out []byte) mvt.Layers {
	t.Helper()
	layers, err := mvt.UnmarshalGzipped(out)
	require.NoError(t, err)
	return layers
}

// TestDecoratePositional is the three-feature example: colors follow feature order.
func TestDecoratePositional(t *testing.T) {
	colors := replica.New(100, "blue")
	colors.ApplyUpdate(30, "green")
	colors.ApplyUpdate(10, "red")
	colors.ApplyUpdate(20, "blue")

	out, err := New(Options{}).Decorate(context.Background(), gzippedTile(t, 10.0, 20.0, 30.0), colors)
	require.NoError(t, err)

	layers := decodeOutput(t, out)
	require.Len(t, layers, 2)

	got := make([]geojson.Properties, 0, 3)
	for _, f := range layers[0].Features {
		got = append(got, f.Properties)
	}
	assert.Equal(t, []geojson.Properties{
		{"id": 10.0, "color": "red"},
		{"id": 20.0, "color": "blue"},
		{"id": 30.0, "color": "green"},
	}, got)

	// Other layers are re-encoded as they were.
	assert.Equal(t, "labels", layers[1].Name)
	assert.Equal(t, geojson.Properties{"text": "Soho"}, layers[1].Features[0].Properties)
}

// TestDecorateDeterministic decorates the same input twice with an unchanged replica.
func TestDecorateDeterministic(t *testing.T) {
	colors := replica.New(100, "blue")
	colors.ApplyUpdate(20, "red")
	in := gzippedTile(t, 10.0, 20.0, 30.0, 40.0)
	p := New(Options{MergeAdjacent: true})

	first, err := p.Decorate(context.Background(), in, colors)
	require.NoError(t, err)
	second, err := p.Decorate(context.Background(), in, colors)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// TestDecorateSeesUpdates checks there is no caching between requests.
func TestDecorateSeesUpdates(t *testing.T) {
	colors := replica.New(100, "blue")
	in := gzippedTile(t, 10.0)
	p := New(Options{})

	before, err := p.Decorate(context.Background(), in, colors)
	require.NoError(t, err)
	assert.Equal(t, "blue", decodeOutput(t, before)[0].Features[0].Properties["color"])

	colors.ApplyUpdate(10, "orange")
	after, err := p.Decorate(context.Background(), in, colors)
	require.NoError(t, err)
	assert.Equal(t, "orange", decodeOutput(t, after)[0].Features[0].Properties["color"])
}

func TestDecorateMissingIDs(t *testing.T) {
	colors := replica.New(100, "blue")
	colors.ApplyUpdate(7, "red")

	out, err := New(Options{}).Decorate(context.Background(), gzippedTile(t, nil, 7.0, "oops"), colors)
	require.NoError(t, err)

	features := decodeOutput(t, out)[0].Features
	require.Len(t, features, 3)
	assert.Equal(t, geojson.Properties{"color": "blue"}, features[0].Properties)
	assert.Equal(t, geojson.Properties{"id": 7.0, "color": "red"}, features[1].Properties)
	assert.Equal(t, geojson.Properties{"id": "oops", "color": "blue"}, features[2].Properties)
}

func TestDecorateMergeAdjacent(t *testing.T) {
	colors := replica.New(100, "blue")
	in := gzippedTile(t, 5.0, 5.0, 6.0)

	plain, err := New(Options{}).Decorate(context.Background(), in, colors)
	require.NoError(t, err)
	assert.Len(t, decodeOutput(t, plain)[0].Features, 3)

	merged, err := New(Options{MergeAdjacent: true}).Decorate(context.Background(), in, colors)
	require.NoError(t, err)
	features := decodeOutput(t, merged)[0].Features
	require.Len(t, features, 2)
	assert.Equal(t, 5.0, features[0].Properties["id"])
	assert.Equal(t, 6.0, features[1].Properties["id"])
}

func TestDecorateFailures(t *testing.T) {
	emptyTile, err := tile.Compress(nil)
	require.NoError(t, err)
	garbage, err := tile.Compress([]byte{0xff, 0xff, 0xff})
	require.NoError(t, err)

	tests := []struct {
		name    string
		in      []byte
		wantErr error
	}{
		{name: "not gzip", in: []byte("plain bytes"), wantErr: ErrDecompress},
		{name: "empty input", in: nil, wantErr: ErrDecompress},
		{name: "tile without layers", in: emptyTile, wantErr: tile.ErrNoLayers},
		{name: "undecodable tile", in: garbage, wantErr: ErrDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			colors := replica.New(100, "blue")
			colors.ApplyUpdate(1, "red")

			out, err := New(Options{}).Decorate(context.Background(), tt.in, colors)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, tt.wantErr)

			// A failed request leaves the replica alone.
			assert.Equal(t, "red", colors.GetColor(1))
			assert.Equal(t, uint64(1), colors.GetStats().Updates)
		})
	}

	t.Run("no layers is a decode failure", func(t *testing.T) {
		_, err := New(Options{}).Decorate(context.Background(), emptyTile, replica.New(1, "blue"))
		assert.ErrorIs(t, err, ErrDecode)
	})
}

func TestDecorateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{}).Decorate(ctx, gzippedTile(t, 1.0), replica.New(10, "blue"))
	assert.ErrorIs(t, err, context.Canceled)
}
