package decorate

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/dreamware/tilepaint/internal/tile"
)

const (
	// IDKey is the feature property holding the feature id.
	IDKey = "id"
	// ColorKey is the feature property written by the pipeline.
	ColorKey = "color"
)

// Processing failures, one per stage that can reject a tile.
var (
	ErrDecompress = errors.New("decompress tile")
	ErrDecode     = errors.New("decode tile")
	ErrEncode     = errors.New("encode tile")
	ErrCompress   = errors.New("compress tile")
)

// ColorSource resolves feature ids to colors. Colors must return one color
// per id, in order, from a single consistent view.
type ColorSource interface {
	Colors(ids []int64) []string
	DefaultColor() string
}

// Options tune the pipeline.
type Options struct {
	// MergeAdjacent joins adjacent features left with identical properties.
	MergeAdjacent bool
}

// Pipeline decorates compressed vector tiles with per-feature colors.
// It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	opts Options
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	return &Pipeline{opts: opts}
}

// Decorate rewrites the first layer of a gzipped tile so that every feature
// carries exactly its id and the color colors assigns to that id. Other layers
// are re-encoded unchanged. The result is gzipped again.
func (p *Pipeline) Decorate(ctx context.Context, raw []byte, colors ColorSource) ([]byte, error) {
	data, err := tile.Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompress, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	layers, err := tile.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	layer, err := tile.FirstLayer(layers)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	resolved := resolveColors(tile.LayerValues(layer, IDKey), colors)
	props := make([]geojson.Properties, len(resolved))
	for i, c := range resolved {
		props[i] = geojson.Properties{ColorKey: c}
	}

	tile.SelectLayerKeys(layer, IDKey)
	if err := tile.UpdateLayerProperties(layer, props); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	if p.opts.MergeAdjacent {
		tile.MergeLayer(layer)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	encoded, err := tile.Encode(layers)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	out, err := tile.Compress(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompress, err)
	}
	return out, nil
}

// resolveColors maps raw id values to colors positionally. Values that are not
// integral ids get the default color.
func resolveColors(values []any, colors ColorSource) []string {
	ids := make([]int64, 0, len(values))
	pos := make([]int, 0, len(values))
	for i, v := range values {
		if id, ok := tile.FeatureID(v); ok {
			ids = append(ids, id)
			pos = append(pos, i)
		}
	}

	out := make([]string, len(values))
	def := colors.DefaultColor()
	for i := range out {
		out[i] = def
	}
	for j, c := range colors.Colors(ids) {
		if j == len(pos) {
			break
		}
		out[pos[j]] = c
	}
	return out
}
