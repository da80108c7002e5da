// Package decorate implements the per-request tile decoration pipeline:
//
//	gunzip → decode → first layer → ids → colors → keep {id} → add {color}
//	→ merge adjacent → encode all layers → gzip
//
// Colors are attached by position: the i-th feature of the first layer gets
// the color of the i-th extracted id. Nothing is cached between requests, so
// a color update is visible on the next request the worker serves.
//
// Every failure is returned wrapped in one of ErrDecompress, ErrDecode,
// ErrEncode or ErrCompress, and never touches the color source.
package decorate
