package tile

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/orb/encoding/mvt"
)

// ErrNoLayers is returned when a decoded tile has nothing to decorate.
var ErrNoLayers = errors.New("tile has no layers")

// Decode parses uncompressed vector tile bytes into ordered layers.
// An empty buffer is a valid tile with zero layers.
func Decode(data []byte) (layers mvt.Layers, err error) {
	switch len(data) {
	case 0:
		return nil, nil
	case 1:
		return nil, errors.New("unmarshal vector tile: truncated buffer")
	}

	defer func() {
		if r := recover(); r != nil {
			layers, err = nil, fmt.Errorf("unmarshal vector tile: %v", r)
		}
	}()

	layers, err = mvt.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal vector tile: %w", err)
	}
	return layers, nil
}

// Encode serializes every layer back into vector tile bytes.
// Property keys are written in sorted order, so equal input encodes to equal bytes.
func Encode(layers mvt.Layers) ([]byte, error) {
	data, err := mvt.Marshal(layers)
	if err != nil {
		return nil, fmt.Errorf("marshal vector tile: %w", err)
	}
	return data, nil
}

// FirstLayer returns the first layer or ErrNoLayers.
func FirstLayer(layers mvt.Layers) (*mvt.Layer, error) {
	if len(layers) == 0 || layers[0] == nil {
		return nil, ErrNoLayers
	}
	return layers[0], nil
}

// Decompress gunzips a stored tile.
func Decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("read gzip stream: %w", err)
	}
	return out, nil
}

// Compress gzips encoded tile bytes. The gzip header carries no timestamp,
// so the output depends only on data.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("write gzip stream: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close gzip stream: %w", err)
	}
	return buf.Bytes(), nil
}
