package logger

import (
	"time"

	"go.uber.org/zap"
)

// HTTP

func RequestID(v string) zap.Field { return zap.String("request_id", v) }

func Method(v string) zap.Field { return zap.String("method", v) }

func Path(v string) zap.Field { return zap.String("path", v) }

func Status(v int) zap.Field { return zap.Int("status", v) }

func Bytes(v int) zap.Field { return zap.Int("bytes", v) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// Cluster

func WorkerID(v int) zap.Field { return zap.Int("worker_id", v) }

func Partition(v string) zap.Field { return zap.String("partition", v) }

func PID(v int) zap.Field { return zap.Int("pid", v) }

func Addr(v string) zap.Field { return zap.String("addr", v) }

// Tiles

// Tile renders a z/x/y coordinate as a single field.
func Tile(z, x, y uint32) zap.Field {
	return zap.Uint32s("tile", []uint32{z, x, y})
}

func FeatureID(v int64) zap.Field { return zap.Int64("feature_id", v) }

func Color(v string) zap.Field { return zap.String("color", v) }
