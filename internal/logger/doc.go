// Package logger provides the process-wide zap logger used by the master and
// the workers.
//
// Init builds the singleton once from a Config; L returns it (falling back to a
// development logger when Init was never called). Request handlers obtain a
// request-scoped logger with From(ctx), which the HTTP middleware injects with
// request_id, method and path already attached.
//
//	logger.Init(logger.Config{Env: "prod", Level: "info", Service: "worker"})
//	defer logger.Sync()
//
//	logger.From(ctx).Info("tile served", logger.Tile(z, x, y))
package logger
