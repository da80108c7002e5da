package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dreamware/tilepaint/internal/cluster"
	"github.com/dreamware/tilepaint/internal/logger"
	"github.com/dreamware/tilepaint/internal/metrics"
)

const maxUpdateBody = 1 << 16

// Broadcaster is the part of the cluster manager the admin surface needs.
type Broadcaster interface {
	BroadcastUpdate(p cluster.Partition, featureID int64, color string) int
	Workers() []cluster.WorkerInfo
}

// AdminConfig wires the master's HTTP surface.
type AdminConfig struct {
	Cluster Broadcaster
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
}

// Admin accepts color updates and relays them to one partition.
type Admin struct {
	cfg      AdminConfig
	log      *zap.Logger
	validate *validator.Validate
}

// updateRequest is the body of an update call.
type updateRequest struct {
	ID    *int64 `json:"id" validate:"required"`
	Color string `json:"color" validate:"required,max=64"`
}

// NewAdmin creates the admin HTTP surface.
func NewAdmin(cfg AdminConfig) *Admin {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Admin{cfg: cfg, log: cfg.Logger, validate: validator.New()}
}

// Routes returns the admin router.
func (a *Admin) Routes() http.Handler {
	r := newRouter(a.log, a.cfg.Metrics)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusOK, "Master up")
	})
	r.Post("/updateLondon", a.handleUpdate(cluster.PartitionA))
	r.Post("/updateTippe", a.handleUpdate(cluster.PartitionB))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Get("/workers", a.handleWorkers)
	if a.cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(a.cfg.Gatherer))
	}
	return r
}

func (a *Admin) handleUpdate(p cluster.Partition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBody)).Decode(&req); err != nil {
			writeText(w, http.StatusBadRequest, "bad json")
			return
		}
		if err := a.validate.Struct(req); err != nil {
			writeText(w, http.StatusBadRequest, "invalid update: "+err.Error())
			return
		}

		n := a.cfg.Cluster.BroadcastUpdate(p, *req.ID, req.Color)
		logger.From(r.Context()).Info("cluster update dispatched",
			logger.Partition(string(p)),
			logger.FeatureID(*req.ID),
			logger.Color(req.Color),
			zap.Int("targets", n))

		writeText(w, http.StatusOK, "Cluster updated")
	}
}

func (a *Admin) handleWorkers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Workers []cluster.WorkerInfo `json:"workers"`
	}{Workers: a.cfg.Cluster.Workers()})
}
