package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dreamware/tilepaint/internal/cluster"
	"github.com/dreamware/tilepaint/internal/decorate"
	"github.com/dreamware/tilepaint/internal/logger"
	"github.com/dreamware/tilepaint/internal/metrics"
	"github.com/dreamware/tilepaint/internal/replica"
	"github.com/dreamware/tilepaint/internal/storage"
	"github.com/dreamware/tilepaint/internal/tile"
)

const maxControlBody = 1 << 16

// WorkerConfig wires a worker's HTTP surface.
type WorkerConfig struct {
	Info        cluster.WorkerInfo
	Store       storage.Store
	Replica     *replica.FeatureColorMap
	Pipeline    *decorate.Pipeline
	TileTimeout time.Duration
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
}

// Worker serves decorated tiles and accepts updates from the master.
type Worker struct {
	cfg WorkerConfig
	log *zap.Logger
}

// NewWorker creates the worker HTTP surface.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.TileTimeout <= 0 {
		cfg.TileTimeout = 5 * time.Second
	}
	return &Worker{cfg: cfg, log: cfg.Logger}
}

// Routes returns the worker router.
func (s *Worker) Routes() http.Handler {
	r := newRouter(s.log, s.cfg.Metrics)

	r.Get("/", s.handleRoot)
	r.Get("/v2/tiles/{z}/{x}/{y}.pbf", s.handleTile)
	r.Post("/control", s.handleControl)
	r.Get("/health", s.handleHealth)
	r.Get("/info", s.handleInfo)
	if s.cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(s.cfg.Gatherer))
	}
	return r
}

func (s *Worker) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "Hello World")
}

func (s *Worker) handleTile(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context())

	t, err := tile.ParseCoord(chi.URLParam(r, "z"), chi.URLParam(r, "x"), chi.URLParam(r, "y"))
	switch {
	case errors.Is(err, tile.ErrCoordOutOfRange):
		s.cfg.Metrics.TileServed(metrics.ResultNotFound)
		writeText(w, http.StatusNotFound, storage.ErrTileNotFound.Error())
		return
	case err != nil:
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}
	log = log.With(logger.Tile(uint32(t.Z), t.X, t.Y))

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.TileTimeout)
	stored, err := s.cfg.Store.Get(ctx, t)
	cancel()
	if err != nil {
		// Any lookup failure is reported as a miss carrying the store's message.
		if !errors.Is(err, storage.ErrTileNotFound) {
			log.Warn("tile lookup failed", zap.Error(err))
		}
		s.cfg.Metrics.TileServed(metrics.ResultNotFound)
		writeText(w, http.StatusNotFound, err.Error())
		return
	}

	start := time.Now()
	out, err := s.cfg.Pipeline.Decorate(r.Context(), stored.Data, s.cfg.Replica)
	s.cfg.Metrics.ObserveDecorate(time.Since(start))
	if err != nil {
		log.Error("tile processing failed", zap.Error(err))
		s.cfg.Metrics.TileServed(metrics.ResultError)
		writeText(w, http.StatusInternalServerError, "tile processing failed: "+err.Error())
		return
	}

	h := w.Header()
	for k, vs := range stored.Header {
		h[k] = append([]string(nil), vs...)
	}
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/x-protobuf")
	}
	h.Set("Content-Encoding", "gzip")

	s.cfg.Metrics.TileServed(metrics.ResultOK)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (s *Worker) handleControl(w http.ResponseWriter, r *http.Request) {
	var cmd cluster.UpdateCommand
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxControlBody)).Decode(&cmd); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	s.cfg.Replica.ApplyUpdate(cmd.ID, cmd.NewColor)
	s.cfg.Metrics.ReplicaUpdated()
	logger.From(r.Context()).Info("worker updated by master",
		logger.WorkerID(s.cfg.Info.ID),
		logger.FeatureID(cmd.ID),
		logger.Color(cmd.NewColor))

	w.WriteHeader(http.StatusNoContent)
}

func (s *Worker) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Worker) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Worker  cluster.WorkerInfo `json:"worker"`
		Replica replica.Stats      `json:"replica"`
	}{Worker: s.cfg.Info, Replica: s.cfg.Replica.GetStats()})
}
