package tile

import (
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
)

// LayerValues returns the value of key for every feature of layer, in feature
// order. Features without the key yield nil.
func LayerValues(layer *mvt.Layer, key string) []any {
	values := make([]any, len(layer.Features))
	for i, f := range layer.Features {
		if f == nil {
			continue
		}
		values[i] = f.Properties[key]
	}
	return values
}

// SelectLayerKeys drops every property whose key is not in keys.
func SelectLayerKeys(layer *mvt.Layer, keys ...string) {
	keep := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keep[k] = struct{}{}
	}

	for _, f := range layer.Features {
		if f == nil {
			continue
		}
		for k := range f.Properties {
			if _, ok := keep[k]; !ok {
				delete(f.Properties, k)
			}
		}
	}
}

// UpdateLayerProperties merges props[i] into the properties of feature i.
// Existing keys are overwritten; props must have one entry per feature.
func UpdateLayerProperties(layer *mvt.Layer, props []geojson.Properties) error {
	if len(props) != len(layer.Features) {
		return fmt.Errorf("update layer %q: %d property sets for %d features",
			layer.Name, len(props), len(layer.Features))
	}

	for i, f := range layer.Features {
		if f == nil {
			continue
		}
		if f.Properties == nil {
			f.Properties = make(geojson.Properties, len(props[i]))
		}
		for k, v := range props[i] {
			f.Properties[k] = v
		}
	}
	return nil
}

// MergeLayer joins runs of adjacent features that share id, properties and
// geometry kind into one feature with a multi-geometry. Order is preserved.
func MergeLayer(layer *mvt.Layer) {
	if len(layer.Features) < 2 {
		return
	}

	merged := make([]*geojson.Feature, 0, len(layer.Features))
	for _, f := range layer.Features {
		if f == nil {
			continue
		}
		if n := len(merged); n > 0 {
			prev := merged[n-1]
			if mergeable(prev, f) {
				if g, ok := joinGeometry(prev.Geometry, f.Geometry); ok {
					prev.Geometry = g
					continue
				}
			}
		}
		merged = append(merged, f)
	}
	layer.Features = merged
}

func mergeable(a, b *geojson.Feature) bool {
	if !sameValue(a.ID, b.ID) || len(a.Properties) != len(b.Properties) {
		return false
	}
	for k, v := range a.Properties {
		w, ok := b.Properties[k]
		if !ok || !sameValue(v, w) {
			return false
		}
	}
	return true
}

func sameValue(a, b any) (eq bool) {
	defer func() {
		// uncomparable values never merge
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}

func joinGeometry(a, b orb.Geometry) (orb.Geometry, bool) {
	switch a.(type) {
	case orb.Point, orb.MultiPoint:
		pa, okA := points(a)
		pb, okB := points(b)
		if !okA || !okB {
			return nil, false
		}
		return append(pa, pb...), true
	case orb.LineString, orb.MultiLineString:
		la, okA := lines(a)
		lb, okB := lines(b)
		if !okA || !okB {
			return nil, false
		}
		return append(la, lb...), true
	case orb.Polygon, orb.MultiPolygon:
		pa, okA := polygons(a)
		pb, okB := polygons(b)
		if !okA || !okB {
			return nil, false
		}
		return append(pa, pb...), true
	}
	return nil, false
}

func points(g orb.Geometry) (orb.MultiPoint, bool) {
	switch g := g.(type) {
	case orb.Point:
		return orb.MultiPoint{g}, true
	case orb.MultiPoint:
		return append(orb.MultiPoint(nil), g...), true
	}
	return nil, false
}

func lines(g orb.Geometry) (orb.MultiLineString, bool) {
	switch g := g.(type) {
	case orb.LineString:
		return orb.MultiLineString{g}, true
	case orb.MultiLineString:
		return append(orb.MultiLineString(nil), g...), true
	}
	return nil, false
}

func polygons(g orb.Geometry) (orb.MultiPolygon, bool) {
	switch g := g.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{g}, true
	case orb.MultiPolygon:
		return append(orb.MultiPolygon(nil), g...), true
	}
	return nil, false
}

// FeatureID converts a decoded "id" property to an integer feature id.
// Decoded numbers arrive as float64; only integral values are accepted.
func FeatureID(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		// int64 covers [-2^63, 2^63).
		if n != math.Trunc(n) || n >= 0x1p63 || n < -0x1p63 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return FeatureID(float64(n))
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case string:
		id, err := strconv.ParseInt(n, 10, 64)
		return id, err == nil
	}
	return 0, false
}
