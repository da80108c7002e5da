// Package metrics holds the Prometheus collectors shared by the master and
// worker processes.
//
// Every process builds its own registry and passes it to New. A nil *Metrics
// is valid and records nothing, which keeps tests free of registry setup.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tilepaint"

// Tile results, used as the "result" label.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Metrics groups the collectors of one process.
type Metrics struct {
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInflight prometheus.Gauge

	tiles            *prometheus.CounterVec
	decorateDuration prometheus.Histogram
	replicaUpdates   prometheus.Counter

	workerExits    *prometheus.CounterVec
	workerRestarts *prometheus.CounterVec
	workersLive    *prometheus.GaugeVec
	broadcasts     *prometheus.CounterVec
	broadcastFails *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests processed, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_inflight_requests",
			Help:      "HTTP requests currently being served.",
		}),
		tiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tiles_total",
			Help:      "Tile requests by result.",
		}, []string{"result"}),
		decorateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decorate_duration_seconds",
			Help:      "Time spent rewriting a tile.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
		}),
		replicaUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replica_updates_total",
			Help:      "Color updates applied to this worker's replica.",
		}),
		workerExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_exits_total",
			Help:      "Worker process terminations, by partition.",
		}, []string{"partition"}),
		workerRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_restarts_total",
			Help:      "Worker processes relaunched after exiting, by partition.",
		}, []string{"partition"}),
		workersLive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_live",
			Help:      "Workers currently receiving broadcasts, by partition.",
		}, []string{"partition"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_sends_total",
			Help:      "Update messages dispatched to workers, by partition.",
		}, []string{"partition"}),
		broadcastFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_send_failures_total",
			Help:      "Update messages that could not be delivered, by partition.",
		}, []string{"partition"}),
	}

	cs := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.httpInflight,
		m.tiles, m.decorateDuration, m.replicaUpdates,
		m.workerExits, m.workerRestarts, m.workersLive,
		m.broadcasts, m.broadcastFails,
	}
	for _, c := range cs {
		if err := registerCollector(reg, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// registerCollector registers c on reg, ignoring duplicates.
func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RequestStarted marks one more in-flight request.
func (m *Metrics) RequestStarted() {
	if m == nil {
		return
	}
	m.httpInflight.Inc()
}

// RequestDone records a finished request.
func (m *Metrics) RequestDone(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpInflight.Dec()
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// TileServed counts one tile request with the given result.
func (m *Metrics) TileServed(result string) {
	if m == nil {
		return
	}
	m.tiles.WithLabelValues(result).Inc()
}

// ObserveDecorate records the duration of one decoration.
func (m *Metrics) ObserveDecorate(d time.Duration) {
	if m == nil {
		return
	}
	m.decorateDuration.Observe(d.Seconds())
}

// ReplicaUpdated counts one applied update.
func (m *Metrics) ReplicaUpdated() {
	if m == nil {
		return
	}
	m.replicaUpdates.Inc()
}

// WorkerExited counts a worker termination.
func (m *Metrics) WorkerExited(partition string) {
	if m == nil {
		return
	}
	m.workerExits.WithLabelValues(partition).Inc()
}

// WorkerRestarted counts a worker relaunch.
func (m *Metrics) WorkerRestarted(partition string) {
	if m == nil {
		return
	}
	m.workerRestarts.WithLabelValues(partition).Inc()
}

// SetWorkersLive sets the live worker count of a partition.
func (m *Metrics) SetWorkersLive(partition string, n int) {
	if m == nil {
		return
	}
	m.workersLive.WithLabelValues(partition).Set(float64(n))
}

// BroadcastSent counts one dispatched update message.
func (m *Metrics) BroadcastSent(partition string) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(partition).Inc()
}

// BroadcastFailed counts one update message that was not delivered.
func (m *Metrics) BroadcastFailed(partition string) {
	if m == nil {
		return
	}
	m.broadcastFails.WithLabelValues(partition).Inc()
}
