// Package main implements the tilepaint master. It launches the worker pool,
// serves the admin API and relays color updates to one partition of
// workers at a time.
//
//	master --config tilepaint.yaml
//
//	curl -X POST localhost:3000/updateLondon -d '{"id": 42, "color": "red"}'
//	curl -X POST localhost:3000/updateTippe  -d '{"id": 42, "color": "red"}'
//
// Workers 1..4 serve Tippecanoe (partition B) and workers 5..8 serve London
// (partition A), each on base_port+id.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/tilepaint/internal/cluster"
	"github.com/dreamware/tilepaint/internal/config"
	"github.com/dreamware/tilepaint/internal/coordinator"
	"github.com/dreamware/tilepaint/internal/logger"
	"github.com/dreamware/tilepaint/internal/metrics"
	"github.com/dreamware/tilepaint/internal/server"
)

type options struct {
	configPath    string
	workers       int
	threshold     int
	adminAddr     string
	workerBinary  string
	restartOnExit bool
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
		Use:          "master",
		Short:        "Run the tile worker pool and the admin API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	f.IntVar(&opts.workers, "workers", 0, "number of worker processes")
	f.IntVar(&opts.threshold, "threshold", 0, "workers with a greater id form partition A")
	f.StringVar(&opts.adminAddr, "admin-addr", "", "admin API listen address")
	f.StringVar(&opts.workerBinary, "worker-binary", "", "worker executable")
	f.BoolVar(&opts.restartOnExit, "restart-on-exit", false, "relaunch workers that exit")
	return cmd
}

// loadConfig layers the flags the user set on top of file and environment.
func loadConfig(cmd *cobra.Command, opts options) (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("workers") {
		cfg.Cluster.Workers = opts.workers
	}
	if f.Changed("threshold") {
		cfg.Cluster.Threshold = opts.threshold
	}
	if f.Changed("admin-addr") {
		cfg.Admin.Addr = opts.adminAddr
	}
	if f.Changed("worker-binary") {
		cfg.Cluster.WorkerBinary = opts.workerBinary
	}
	if f.Changed("restart-on-exit") {
		cfg.Cluster.RestartOnExit = opts.restartOnExit
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// workerBinary returns the configured worker executable, or a binary named
// "worker" next to the running master.
func workerBinary(cfg *config.Config) (string, error) {
	if cfg.Cluster.WorkerBinary != "" {
		return cfg.Cluster.WorkerBinary, nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate worker binary: %w", err)
	}
	return filepath.Join(filepath.Dir(self), "worker"), nil
}

// workerArgs are passed to every worker after its identity flags.
func workerArgs(configPath string) ([]string, error) {
	if configPath == "" {
		return nil, nil
	}
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, err
	}
	return []string{"--config", abs}, nil
}

func managerConfig(cfg *config.Config, start coordinator.StartFunc, log *zap.Logger, m *metrics.Metrics) coordinator.ManagerConfig {
	datasets := make(map[cluster.Partition]coordinator.Dataset, 2)
	for _, p := range []cluster.Partition{cluster.PartitionA, cluster.PartitionB} {
		name, path := cfg.Dataset(p)
		datasets[p] = coordinator.Dataset{Name: name, Path: path}
	}

	return coordinator.ManagerConfig{
		Workers:          cfg.Cluster.Workers,
		Threshold:        cfg.Cluster.Threshold,
		Host:             cfg.Cluster.Host,
		BasePort:         cfg.Cluster.BasePort,
		Datasets:         datasets,
		RestartOnExit:    cfg.Cluster.RestartOnExit,
		RestartDelay:     cfg.Cluster.RestartDelay,
		ReadyTimeout:     cfg.Cluster.ReadyTimeout,
		HealthInterval:   cfg.Cluster.HealthInterval,
		BroadcastTimeout: cfg.Cluster.BroadcastTimeout,
		Start:            start,
		Logger:           log,
		Metrics:          m,
	}
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, Service: "master"})
	defer func() { _ = logger.Sync() }()
	log := logger.Named("master")

	bin, err := workerBinary(cfg)
	if err != nil {
		return err
	}
	extra, err := workerArgs(opts.configPath)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	mgr, err := coordinator.NewManager(managerConfig(cfg, coordinator.ExecStarter(bin, extra...), logger.Named("cluster"), m))
	if err != nil {
		return err
	}
	admin := server.NewAdmin(server.AdminConfig{
		Cluster:  mgr,
		Logger:   log,
		Metrics:  m,
		Gatherer: reg,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx, cfg.Admin.Addr, admin.Routes(), log)
	})
	g.Go(func() error {
		if err := mgr.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	mgr.Stop(syscall.SIGTERM)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("master failed", zap.Error(err))
		return err
	}
	log.Info("master stopped")
	return nil
}
