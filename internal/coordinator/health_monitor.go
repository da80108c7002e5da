package coordinator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/tilepaint/internal/cluster"
	"github.com/dreamware/tilepaint/internal/logger"
)

// Health statuses reported by the monitor.
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// WorkerHealth tracks the probe results of a single worker.
// Thread-safe: Protected by HealthMonitor's mutex when accessed.
type WorkerHealth struct {
	LastCheck        time.Time // Timestamp of the last probe
	LastHealthy      time.Time // Timestamp of the last successful probe
	Status           string    // StatusHealthy, StatusUnhealthy or StatusUnknown
	WorkerID         int       // Worker being probed
	ConsecutiveFails int       // Number of consecutive failed probes
}

// CheckFunc probes the worker at addr and returns nil when it answers.
type CheckFunc func(addr string) error

// HealthMonitor periodically probes the /health endpoint of every live
// worker. Process exit is detected by the manager directly; the monitor
// catches workers that are still running but no longer answer.
// Thread-safe: All methods are safe for concurrent access.
type HealthMonitor struct {
	workers     map[int]*WorkerHealth // Current health status per worker
	checkFunc   CheckFunc             // Function to perform a probe
	onUnhealthy func(workerID int)    // Callback when a worker becomes unhealthy
	log         *zap.Logger
	ctx         context.Context    // Context for cancellation
	cancel      context.CancelFunc // Cancel function for shutdown
	interval    time.Duration      // How often to probe
	mu          sync.RWMutex       // Protects workers map
	wg          sync.WaitGroup     // Wait group for graceful shutdown
	maxFailures int                // Failures before marking unhealthy
}

// NewHealthMonitor creates a monitor that runs check against every worker
// each interval. Workers are marked unhealthy after 3 consecutive failures.
//
// Example:
//
//	monitor := NewHealthMonitor(10*time.Second, probe, logger.Named("health"))
//	go monitor.Start(ctx, mgr.liveWorkers)
func NewHealthMonitor(interval time.Duration, check CheckFunc, log *zap.Logger) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	if log == nil {
		log = zap.NewNop()
	}

	return &HealthMonitor{
		interval:    interval,
		maxFailures: 3,
		workers:     make(map[int]*WorkerHealth),
		checkFunc:   check,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetOnUnhealthy sets the callback invoked when a worker becomes unhealthy.
// The callback runs in its own goroutine.
func (h *HealthMonitor) SetOnUnhealthy(callback func(workerID int)) {
	h.onUnhealthy = callback
}

// Start runs the probe loop in the current goroutine until ctx or the
// monitor is canceled. workers is called before every round.
func (h *HealthMonitor) Start(ctx context.Context, workers func() []cluster.WorkerInfo) {
	h.wg.Add(1)
	defer h.wg.Done()

	if ctx == nil {
		ctx = h.ctx
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.log.Info("health monitor started", zap.Duration("interval", h.interval))

	h.checkAll(workers())

	for {
		select {
		case <-ticker.C:
			h.checkAll(workers())
		case <-ctx.Done():
			h.log.Debug("health monitor stopping: context canceled")
			return
		case <-h.ctx.Done():
			h.log.Debug("health monitor stopping: stopped")
			return
		}
	}
}

// Stop cancels the probe loop and waits for it to return.
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
}

// checkAll probes every worker and forgets workers no longer listed.
func (h *HealthMonitor) checkAll(workers []cluster.WorkerInfo) {
	current := make(map[int]bool, len(workers))

	for _, w := range workers {
		current[w.ID] = true
		h.checkWorker(w)
	}

	h.mu.Lock()
	for id := range h.workers {
		if !current[id] {
			delete(h.workers, id)
			h.log.Debug("worker removed from health monitoring", logger.WorkerID(id))
		}
	}
	h.mu.Unlock()
}

func (h *HealthMonitor) checkWorker(w cluster.WorkerInfo) {
	h.mu.Lock()
	health, exists := h.workers[w.ID]
	if !exists {
		health = &WorkerHealth{
			WorkerID:    w.ID,
			Status:      StatusUnknown,
			LastCheck:   time.Now(),
			LastHealthy: time.Now(),
		}
		h.workers[w.ID] = health
	}
	h.mu.Unlock()

	// Probe without holding the lock.
	err := h.checkFunc(w.Addr)

	h.mu.Lock()
	defer h.mu.Unlock()

	health.LastCheck = time.Now()

	if err != nil {
		health.ConsecutiveFails++
		h.log.Warn("worker health check failed",
			logger.WorkerID(w.ID),
			zap.Int("attempt", health.ConsecutiveFails),
			zap.Int("max_failures", h.maxFailures),
			zap.Error(err))

		if health.ConsecutiveFails >= h.maxFailures {
			previous := health.Status
			health.Status = StatusUnhealthy

			if previous != StatusUnhealthy && h.onUnhealthy != nil {
				h.log.Error("worker unresponsive",
					logger.WorkerID(w.ID),
					zap.Int("failures", health.ConsecutiveFails))
				go h.onUnhealthy(w.ID)
			}
		}
		return
	}

	if health.Status == StatusUnhealthy {
		h.log.Info("worker recovered", logger.WorkerID(w.ID))
	}
	health.Status = StatusHealthy
	health.ConsecutiveFails = 0
	health.LastHealthy = time.Now()
}

// AllWorkerHealth returns copies of every health record, keyed by worker id.
func (h *HealthMonitor) AllWorkerHealth() map[int]*WorkerHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[int]*WorkerHealth, len(h.workers))
	for id, health := range h.workers {
		cp := *health
		result[id] = &cp
	}
	return result
}
