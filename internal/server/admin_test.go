package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tilepaint/internal/cluster"
	"github.com/dreamware/tilepaint/internal/metrics"
)

type broadcastCall struct {
	partition cluster.Partition
	id        int64
	color     string
}

type fakeCluster struct {
	mu      sync.Mutex
	calls   []broadcastCall
	workers []cluster.WorkerInfo
}

func (c *fakeCluster) BroadcastUpdate(p cluster.Partition, id int64, color string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, broadcastCall{p, id, color})
	return 4
}

func (c *fakeCluster) Workers() []cluster.WorkerInfo { return c.workers }

func newAdminFixture(t *testing.T) (*fakeCluster, http.Handler) {
	t.Helper()
	fc := &fakeCluster{workers: []cluster.WorkerInfo{
		{ID: 1, Addr: "http://127.0.0.1:3001", Partition: cluster.PartitionB, Dataset: "Tippecanoe", State: cluster.WorkerLive, Health: "healthy"},
		{ID: 5, Addr: "http://127.0.0.1:3005", Partition: cluster.PartitionA, Dataset: "London", State: cluster.WorkerExited},
	}}
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	return fc, NewAdmin(AdminConfig{Cluster: fc, Metrics: m, Gatherer: reg}).Routes()
}

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdminUpdate(t *testing.T) {
	tests := []struct {
		name string
		path string
		want broadcastCall
	}{
		{"london goes to partition A", "/updateLondon", broadcastCall{cluster.PartitionA, 7, "red"}},
		{"tippe goes to partition B", "/updateTippe", broadcastCall{cluster.PartitionB, 7, "red"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc, h := newAdminFixture(t)

			rec := post(h, tt.path, `{"id": 7, "color": "red"}`)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "Cluster updated", rec.Body.String())
			assert.Equal(t, "max-age=0", rec.Header().Get("Cache-Control"))
			assert.Equal(t, []broadcastCall{tt.want}, fc.calls)
		})
	}
}

func TestAdminUpdateZeroID(t *testing.T) {
	fc, h := newAdminFixture(t)

	rec := post(h, "/updateTippe", `{"id": 0, "color": "yellow"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []broadcastCall{{cluster.PartitionB, 0, "yellow"}}, fc.calls)
}

func TestAdminUpdateValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"malformed json", `{"id": 7`},
		{"missing id", `{"color": "red"}`},
		{"missing color", `{"id": 7}`},
		{"empty color", `{"id": 7, "color": ""}`},
		{"string id", `{"id": "7", "color": "red"}`},
		{"fractional id", `{"id": 7.5, "color": "red"}`},
		{"color too long", `{"id": 7, "color": "` + strings.Repeat("x", 65) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc, h := newAdminFixture(t)

			rec := post(h, "/updateLondon", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, fc.calls)
		})
	}
}

func TestAdminWorkers(t *testing.T) {
	_, h := newAdminFixture(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/workers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Workers []cluster.WorkerInfo `json:"workers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Workers, 2)
	assert.Equal(t, "healthy", out.Workers[0].Health)
	assert.Equal(t, cluster.WorkerExited, out.Workers[1].State)
	assert.Empty(t, out.Workers[1].Health)
	assert.Contains(t, rec.Body.String(), `"health":"healthy"`)
}

func TestAdminRootHealthMetrics(t *testing.T) {
	_, h := newAdminFixture(t)

	for _, path := range []string{"/", "/health", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/updateLondon", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
