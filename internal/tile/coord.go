package tile

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/paulmach/orb/maptile"
)

// MaxZoom bounds the zoom levels accepted from request paths.
const MaxZoom = 24

// ErrInvalidCoord is returned for coordinates that cannot name a tile.
var ErrInvalidCoord = errors.New("invalid tile coordinate")

// ErrCoordOutOfRange is returned for well-formed coordinates outside the
// tile grid of their zoom. It wraps ErrInvalidCoord.
var ErrCoordOutOfRange = fmt.Errorf("%w: out of range", ErrInvalidCoord)

// ParseCoord turns the z, x, y path segments of a tile request into a tile.
func ParseCoord(zs, xs, ys string) (maptile.Tile, error) {
	z, err := strconv.ParseUint(zs, 10, 32)
	if err != nil {
		return maptile.Tile{}, fmt.Errorf("%w: zoom %q", ErrInvalidCoord, zs)
	}
	if z > MaxZoom {
		return maptile.Tile{}, fmt.Errorf("%w: zoom %d", ErrCoordOutOfRange, z)
	}
	x, err := strconv.ParseUint(xs, 10, 32)
	if err != nil {
		return maptile.Tile{}, fmt.Errorf("%w: x %q", ErrInvalidCoord, xs)
	}
	y, err := strconv.ParseUint(ys, 10, 32)
	if err != nil {
		return maptile.Tile{}, fmt.Errorf("%w: y %q", ErrInvalidCoord, ys)
	}

	t := maptile.New(uint32(x), uint32(y), maptile.Zoom(z))
	if !t.Valid() {
		return maptile.Tile{}, fmt.Errorf("%w: %d/%d/%d", ErrCoordOutOfRange, z, x, y)
	}
	return t, nil
}

// FlipY converts between XYZ and TMS row numbering.
func FlipY(t maptile.Tile) uint32 {
	return (uint32(1) << uint32(t.Z)) - 1 - t.Y
}
