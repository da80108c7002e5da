package replica

import (
	"sync"
	"sync/atomic"
)

const (
	// DefaultSize is the reference feature id space of one dataset.
	DefaultSize int64 = 6_000_000
	// DefaultColor is the color of every feature that was never updated.
	DefaultColor = "blue"
)

// FeatureColorMap maps feature ids to colors for one worker.
//
// Only overrides are stored; every other id resolves to the default color,
// which is observably the same as an eagerly filled map of Size entries.
type FeatureColorMap struct {
	colors       map[int64]string
	stats        Stats
	defaultColor string
	size         int64
	mu           sync.RWMutex
}

// Stats tracks replica activity since start.
type Stats struct {
	Updates   uint64 `json:"updates"`
	Lookups   uint64 `json:"lookups"`
	Overrides int    `json:"overrides"`
}

// New creates a replica covering ids [0,size) with defaultColor.
func New(size int64, defaultColor string) *FeatureColorMap {
	if size <= 0 {
		size = DefaultSize
	}
	if defaultColor == "" {
		defaultColor = DefaultColor
	}
	return &FeatureColorMap{
		colors:       make(map[int64]string),
		defaultColor: defaultColor,
		size:         size,
	}
}

// Size returns the initialized id space.
func (m *FeatureColorMap) Size() int64 { return m.size }

// DefaultColor returns the fallback color.
func (m *FeatureColorMap) DefaultColor() string { return m.defaultColor }

// InRange reports whether id lies in the initialized id space.
func (m *FeatureColorMap) InRange(id int64) bool {
	return id >= 0 && id < m.size
}

// ApplyUpdate sets the color of id unconditionally.
// Ids outside the initialized range are stored as well.
func (m *FeatureColorMap) ApplyUpdate(id int64, color string) {
	atomic.AddUint64(&m.stats.Updates, 1)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.colors[id] = color
}

// GetColor returns the color of id, or the default color.
func (m *FeatureColorMap) GetColor(id int64) string {
	atomic.AddUint64(&m.stats.Lookups, 1)

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookup(id)
}

// Colors resolves ids in order against a single snapshot of the replica.
func (m *FeatureColorMap) Colors(ids []int64) []string {
	atomic.AddUint64(&m.stats.Lookups, uint64(len(ids)))

	out := make([]string, len(ids))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, id := range ids {
		out[i] = m.lookup(id)
	}
	return out
}

func (m *FeatureColorMap) lookup(id int64) string {
	if c, ok := m.colors[id]; ok {
		return c
	}
	return m.defaultColor
}

// GetStats returns a copy of the counters.
func (m *FeatureColorMap) GetStats() Stats {
	m.mu.RLock()
	overrides := len(m.colors)
	m.mu.RUnlock()

	return Stats{
		Updates:   atomic.LoadUint64(&m.stats.Updates),
		Lookups:   atomic.LoadUint64(&m.stats.Lookups),
		Overrides: overrides,
	}
}
