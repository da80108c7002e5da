// Package server holds the HTTP surfaces of both process kinds.
//
// Worker routes:
//
//	GET  /                          liveness text
//	GET  /v2/tiles/{z}/{x}/{y}.pbf  decorated tile
//	POST /control                   apply an UpdateCommand to the replica
//	GET  /health, /info, /metrics
//
// Admin routes (master):
//
//	GET  /                          liveness text
//	POST /updateLondon              broadcast to partition A
//	POST /updateTippe               broadcast to partition B
//	GET  /health, /workers, /metrics
//
// Both routers send permissive CORS headers and Cache-Control: max-age=0
// on every response, tag requests with an id and log them through zap.
package server
