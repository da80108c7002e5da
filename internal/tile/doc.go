// Package tile wraps the vector tile container: gzip framing, decode/encode
// through orb's mvt codec, and the layer operations the decoration pipeline
// needs (value extraction, key selection, positional property update and
// adjacent-feature merge).
//
// All layer operations keep feature order. Callers rely on this to attach
// values by position.
package tile
