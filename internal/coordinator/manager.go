package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/tilepaint/internal/cluster"
	"github.com/dreamware/tilepaint/internal/logger"
	"github.com/dreamware/tilepaint/internal/metrics"
)

// minRestartDelay bounds how fast a crashing worker is relaunched.
const minRestartDelay = 100 * time.Millisecond

// Process is a running worker process.
type Process interface {
	Pid() int
	// Wait blocks until the process exits.
	Wait() error
	// Signal asks the process to stop.
	Signal(sig os.Signal) error
}

// WorkerSpec is everything needed to launch one worker.
type WorkerSpec struct {
	ID          int
	Port        int
	Partition   cluster.Partition
	Dataset     string
	DatasetPath string
}

// StartFunc launches a worker process.
type StartFunc func(ctx context.Context, spec WorkerSpec) (Process, error)

// SendFunc delivers one update to the worker at addr.
type SendFunc func(ctx context.Context, addr string, cmd cluster.UpdateCommand) error

// ReadyFunc reports whether the worker at addr answers requests.
type ReadyFunc func(ctx context.Context, addr string) error

// Dataset is the tileset assigned to one partition.
type Dataset struct {
	Name string
	Path string
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Workers   int
	Threshold int
	Host      string
	BasePort  int
	Datasets  map[cluster.Partition]Dataset

	RestartOnExit    bool
	RestartDelay     time.Duration
	ReadyTimeout     time.Duration
	HealthInterval   time.Duration
	BroadcastTimeout time.Duration

	// Start launches worker processes. Required.
	Start StartFunc
	// Send defaults to a POST of the command to the worker's /control.
	Send SendFunc
	// Ready defaults to a GET of the worker's /health.
	Ready ReadyFunc

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

type worker struct {
	info    cluster.WorkerInfo
	spec    WorkerSpec
	proc    Process
	restart backoff.BackOff
	starts  int
}

// Manager owns the worker pool: it launches the workers, tracks which are
// live, relays updates to a partition and reacts to worker exits.
type Manager struct {
	cfg     ManagerConfig
	table   *PartitionTable
	log     *zap.Logger
	metrics *metrics.Metrics
	monitor *HealthMonitor

	mu       sync.RWMutex
	workers  map[int]*worker
	stopping bool
	done     chan struct{} // closed by Stop

	procs sync.WaitGroup // exit watchers
	sends sync.WaitGroup // in-flight broadcast sends
}

// NewManager validates cfg and builds the partition table.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Start == nil {
		return nil, errors.New("manager: start function required")
	}
	if cfg.Send == nil {
		cfg.Send = postUpdate
	}
	if cfg.Ready == nil {
		cfg.Ready = probeHealth
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 15 * time.Second
	}
	if cfg.BroadcastTimeout <= 0 {
		cfg.BroadcastTimeout = 2 * time.Second
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 10 * time.Second
	}
	if cfg.RestartDelay < minRestartDelay {
		cfg.RestartDelay = minRestartDelay
	}

	names := make(map[cluster.Partition]string, len(cfg.Datasets))
	for p, d := range cfg.Datasets {
		names[p] = d.Name
	}
	table, err := NewPartitionTable(cfg.Workers, cfg.Threshold, names)
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}

	m := &Manager{
		cfg:     cfg,
		table:   table,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		workers: make(map[int]*worker, cfg.Workers),
		done:    make(chan struct{}),
	}
	for _, a := range table.All() {
		port := cfg.BasePort + a.WorkerID
		m.workers[a.WorkerID] = &worker{
			info: cluster.WorkerInfo{
				ID:        a.WorkerID,
				Addr:      fmt.Sprintf("http://%s:%d", cfg.Host, port),
				Partition: a.Partition,
				Dataset:   a.Dataset,
				State:     cluster.WorkerStarting,
			},
			spec: WorkerSpec{
				ID:          a.WorkerID,
				Port:        port,
				Partition:   a.Partition,
				Dataset:     a.Dataset,
				DatasetPath: cfg.Datasets[a.Partition].Path,
			},
		}
	}
	m.monitor = NewHealthMonitor(cfg.HealthInterval, func(addr string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return m.cfg.Ready(ctx, addr)
	}, cfg.Logger.Named("health"))
	m.monitor.SetOnUnhealthy(func(id int) {
		m.log.Warn("worker is running but not answering", logger.WorkerID(id))
	})
	return m, nil
}

// Start launches every worker, waits until each answers its health probe
// and starts the liveness monitor. Workers launched before a failure keep
// running; call Stop to terminate them.
func (m *Manager) Start(ctx context.Context) error {
	for _, a := range m.table.All() {
		if err := m.spawn(ctx, a.WorkerID); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range m.table.All() {
		id := a.WorkerID
		g.Go(func() error { return m.waitReady(gctx, id) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	go m.monitor.Start(ctx, m.liveWorkers)
	m.log.Info("worker pool started",
		zap.Int("workers", m.table.Size()),
		zap.Int("threshold", m.table.Threshold()))
	return nil
}

// spawn launches worker id and starts watching for its exit.
func (m *Manager) spawn(ctx context.Context, id int) error {
	m.mu.Lock()
	w := m.workers[id]
	if m.stopping {
		m.mu.Unlock()
		return errors.New("manager stopping")
	}
	spec := w.spec
	m.mu.Unlock()

	proc, err := m.cfg.Start(ctx, spec)
	if err != nil {
		return fmt.Errorf("start worker %d: %w", id, err)
	}

	m.mu.Lock()
	w.proc = proc
	w.starts++
	w.info.PID = proc.Pid()
	w.info.State = cluster.WorkerStarting
	m.mu.Unlock()

	m.log.Info("worker launched",
		logger.WorkerID(id),
		logger.PID(proc.Pid()),
		logger.Partition(string(spec.Partition)),
		zap.String("dataset", spec.Dataset),
		zap.Int("port", spec.Port))

	m.procs.Add(1)
	go m.watch(ctx, id, proc)
	return nil
}

// waitReady polls the worker's health endpoint until it answers or the
// ready timeout elapses, then marks it live.
func (m *Manager) waitReady(ctx context.Context, id int) error {
	m.mu.RLock()
	addr := m.workers[id].info.Addr
	m.mu.RUnlock()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = m.cfg.ReadyTimeout

	op := func() error {
		m.mu.RLock()
		exited := m.workers[id].info.State == cluster.WorkerExited
		m.mu.RUnlock()
		if exited {
			return backoff.Permanent(fmt.Errorf("worker %d exited before becoming ready", id))
		}
		select {
		case <-m.done:
			return backoff.Permanent(errors.New("manager stopping"))
		default:
		}
		return m.cfg.Ready(ctx, addr)
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("worker %d not ready: %w", id, err)
	}

	m.mu.Lock()
	w := m.workers[id]
	if w.info.State == cluster.WorkerStarting {
		w.info.State = cluster.WorkerLive
	}
	m.mu.Unlock()
	m.updateLiveGauge()

	m.log.Debug("worker ready", logger.WorkerID(id), logger.Addr(addr))
	return nil
}

// watch waits for proc to exit, records the exit and optionally relaunches
// the worker.
func (m *Manager) watch(ctx context.Context, id int, proc Process) {
	defer m.procs.Done()

	err := proc.Wait()

	m.mu.Lock()
	w := m.workers[id]
	if w.proc != proc {
		// Superseded by a restart.
		m.mu.Unlock()
		return
	}
	w.info.State = cluster.WorkerExited
	// A canceled start context ends the processes on its own, before Stop runs.
	stopping := m.stopping || ctx.Err() != nil
	partition := w.info.Partition
	m.mu.Unlock()
	m.updateLiveGauge()

	if stopping {
		m.log.Info("worker stopped", logger.WorkerID(id), logger.PID(proc.Pid()))
		return
	}

	m.metrics.WorkerExited(string(partition))
	m.log.Error("worker died",
		logger.WorkerID(id),
		logger.PID(proc.Pid()),
		logger.Partition(string(partition)),
		zap.Int("exit_code", exitCode(err)),
		zap.Error(err))

	if !m.cfg.RestartOnExit {
		return
	}
	m.restart(ctx, id)
}

func (m *Manager) restart(ctx context.Context, id int) {
	m.mu.Lock()
	w := m.workers[id]
	if w.restart == nil {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = m.cfg.RestartDelay
		b.MaxInterval = 30 * time.Second
		b.MaxElapsedTime = 0
		w.restart = b
	}
	delay := w.restart.NextBackOff()
	m.mu.Unlock()
	if delay < minRestartDelay {
		delay = minRestartDelay
	}

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return
	case <-m.done:
		return
	}

	if err := m.spawn(ctx, id); err != nil {
		m.log.Error("worker restart failed", logger.WorkerID(id), zap.Error(err))
		return
	}
	m.metrics.WorkerRestarted(string(w.spec.Partition))
	if err := m.waitReady(ctx, id); err != nil {
		m.log.Error("restarted worker not ready", logger.WorkerID(id), zap.Error(err))
		return
	}
	m.log.Warn("worker restarted with a fresh replica", logger.WorkerID(id))
}

// BroadcastUpdate sends the update to every live worker in partition p and
// returns the number of sends dispatched. Sends run concurrently and are
// not awaited: there is no acknowledgment and no ordering between workers.
func (m *Manager) BroadcastUpdate(p cluster.Partition, featureID int64, color string) int {
	cmd := cluster.UpdateCommand{ID: featureID, NewColor: color}

	targets := slices.DeleteFunc(m.Workers(), func(w cluster.WorkerInfo) bool {
		return w.Partition != p || w.State != cluster.WorkerLive
	})

	for _, w := range targets {
		m.sends.Add(1)
		m.metrics.BroadcastSent(string(p))
		go func(w cluster.WorkerInfo) {
			defer m.sends.Done()

			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.BroadcastTimeout)
			defer cancel()
			if err := m.cfg.Send(ctx, w.Addr, cmd); err != nil {
				m.metrics.BroadcastFailed(string(p))
				m.log.Warn("update not delivered",
					logger.WorkerID(w.ID),
					logger.FeatureID(featureID),
					zap.Error(err))
			}
		}(w)
	}

	m.log.Debug("update broadcast",
		logger.Partition(string(p)),
		logger.FeatureID(featureID),
		logger.Color(color),
		zap.Int("targets", len(targets)))
	return len(targets)
}

// WaitBroadcasts blocks until every dispatched send has finished.
func (m *Manager) WaitBroadcasts() { m.sends.Wait() }

// Workers returns a snapshot of the pool ordered by worker id. Live
// workers carry the status of their latest liveness probe.
func (m *Manager) Workers() []cluster.WorkerInfo {
	health := m.monitor.AllWorkerHealth()

	m.mu.RLock()
	out := make([]cluster.WorkerInfo, 0, len(m.workers))
	for _, w := range m.workers {
		info := w.info
		if h, ok := health[w.info.ID]; ok && w.info.State == cluster.WorkerLive {
			info.Health = h.Status
		}
		out = append(out, info)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b cluster.WorkerInfo) int { return a.ID - b.ID })
	return out
}

// Worker returns the current view of worker id.
func (m *Manager) Worker(id int) (cluster.WorkerInfo, bool) {
	ws := m.Workers()
	i := slices.IndexFunc(ws, func(w cluster.WorkerInfo) bool { return w.ID == id })
	if i < 0 {
		return cluster.WorkerInfo{}, false
	}
	return ws[i], true
}

func (m *Manager) liveWorkers() []cluster.WorkerInfo {
	return slices.DeleteFunc(m.Workers(), func(w cluster.WorkerInfo) bool {
		return w.State != cluster.WorkerLive
	})
}

func (m *Manager) updateLiveGauge() {
	live := map[cluster.Partition]int{cluster.PartitionA: 0, cluster.PartitionB: 0}
	for _, w := range m.liveWorkers() {
		live[w.Partition]++
	}
	for p, n := range live {
		m.metrics.SetWorkersLive(string(p), n)
	}
}

// Stop signals every worker process, waits for them to exit and for
// pending sends to finish.
func (m *Manager) Stop(sig os.Signal) {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return
	}
	m.stopping = true
	close(m.done)
	procs := make([]Process, 0, len(m.workers))
	for _, w := range m.workers {
		if w.proc != nil && w.info.State != cluster.WorkerExited {
			procs = append(procs, w.proc)
		}
	}
	m.mu.Unlock()

	m.monitor.Stop()
	for _, p := range procs {
		if err := p.Signal(sig); err != nil {
			m.log.Debug("signal worker", logger.PID(p.Pid()), zap.Error(err))
		}
	}
	m.procs.Wait()
	m.sends.Wait()
	m.log.Info("worker pool stopped")
}

func postUpdate(ctx context.Context, addr string, cmd cluster.UpdateCommand) error {
	return cluster.PostJSON(ctx, addr+"/control", cmd, nil)
}

func probeHealth(ctx context.Context, addr string) error {
	return cluster.GetJSON(ctx, addr+"/health", nil)
}
