// Package main implements the tilepaint worker, which serves vector tiles
// from one MBTiles dataset with a per-feature color overlaid at request time.
//
// The master launches workers and passes their identity as flags:
//
//	worker --id 5 --port 3005 --partition A --dataset London --mbtiles data/London.mbtiles
//
// Each worker keeps its own in-memory color replica, seeded with the default
// color, and applies the updates the master POSTs to /control. Nothing is
// persisted; a restarted worker starts from defaults again.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dreamware/tilepaint/internal/cluster"
	"github.com/dreamware/tilepaint/internal/config"
	"github.com/dreamware/tilepaint/internal/decorate"
	"github.com/dreamware/tilepaint/internal/logger"
	"github.com/dreamware/tilepaint/internal/metrics"
	"github.com/dreamware/tilepaint/internal/replica"
	"github.com/dreamware/tilepaint/internal/server"
	"github.com/dreamware/tilepaint/internal/storage"
)

type options struct {
	configPath string
	id         int
	port       int
	partition  string
	dataset    string
	mbtiles    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "worker",
		Short:         "Serve color-decorated vector tiles from one dataset",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	f.IntVar(&opts.id, "id", 0, "worker id, 1..N (required)")
	f.IntVar(&opts.port, "port", 0, "listen port (default base_port+id)")
	f.StringVar(&opts.partition, "partition", "", "partition A or B (default derived from id)")
	f.StringVar(&opts.dataset, "dataset", "", "dataset name (default derived from partition)")
	f.StringVar(&opts.mbtiles, "mbtiles", "", "MBTiles file (default derived from partition)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

// identity resolves the worker's identity from flags, falling back to the
// values the configuration derives from the id.
func identity(cfg *config.Config, opts options) (cluster.WorkerInfo, string, int, error) {
	if opts.id < 1 {
		return cluster.WorkerInfo{}, "", 0, fmt.Errorf("invalid worker id %d", opts.id)
	}

	p := cluster.PartitionFor(opts.id, cfg.Cluster.Threshold)
	if opts.partition != "" {
		p = cluster.Partition(opts.partition)
		if !p.Valid() {
			return cluster.WorkerInfo{}, "", 0, fmt.Errorf("invalid partition %q", opts.partition)
		}
	}

	name, path := cfg.Dataset(p)
	if opts.dataset != "" {
		name = opts.dataset
	}
	if opts.mbtiles != "" {
		path = opts.mbtiles
	}

	port := opts.port
	if port == 0 {
		port = cfg.Cluster.BasePort + opts.id
	}

	info := cluster.WorkerInfo{
		ID:        opts.id,
		Addr:      fmt.Sprintf("http://%s:%d", cfg.Cluster.Host, port),
		Partition: p,
		Dataset:   name,
		State:     cluster.WorkerLive,
		PID:       os.Getpid(),
	}
	return info, path, port, nil
}

// openStore opens the dataset, wrapped in a read cache when one is configured.
func openStore(ctx context.Context, cfg *config.Config, path string) (storage.Store, error) {
	mb, err := storage.OpenMBTiles(ctx, path)
	if err != nil {
		return nil, err
	}
	if cfg.Tiles.CacheTTL > 0 {
		return storage.NewCachedStore(mb, cfg.Tiles.CacheTTL), nil
	}
	return mb, nil
}

func run(ctx context.Context, opts options) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	info, path, port, err := identity(cfg, opts)
	if err != nil {
		return err
	}

	logger.Init(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: fmt.Sprintf("worker-%d", info.ID),
	})
	defer func() { _ = logger.Sync() }()
	log := logger.Named("worker").With(
		logger.WorkerID(info.ID),
		logger.Partition(string(info.Partition)),
		zap.String("dataset", info.Dataset))

	store, err := openStore(ctx, cfg, path)
	if err != nil {
		log.Error("open dataset", zap.String("path", path), zap.Error(err))
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	w := server.NewWorker(server.WorkerConfig{
		Info:        info,
		Store:       store,
		Replica:     replica.New(cfg.Replica.Size, cfg.Replica.DefaultColor),
		Pipeline:    decorate.New(decorate.Options{MergeAdjacent: cfg.Tiles.MergeAdjacent}),
		TileTimeout: cfg.Tiles.Timeout,
		Logger:      log,
		Metrics:     m,
		Gatherer:    reg,
	})

	log.Info("worker starting", zap.Int("port", port), zap.String("mbtiles", path))
	err = server.Serve(ctx, fmt.Sprintf(":%d", port), w.Routes(), log)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker server failed", zap.Error(err))
		return err
	}
	log.Info("worker stopped")
	return nil
}
