// Package telemetry counts what the render layer loads and draws.
package telemetry

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Counter categories and metrics reported by the render layer.
const (
	Models          = "Models"
	MetricObjects   = "Objects"
	Primitives      = "Primitives"
	MetricLoaded    = "Nr primitives loaded"
	MetricHidden    = "Nr primitives hidden"
	Data            = "Data"
	MetricGPUBytes  = "GPU bytes"
	MetricGPUReuse  = "GPU bytes reuse"
	MetricGPUTotal  = "GPU bytes total"
	MetricCPUBytes  = "CPU bytes"
	Drawing         = "Drawing"
	MetricDrawCalls = "Draw calls per frame"
	MetricTriangles = "Triangles to draw"
	Buffers         = "Buffers"
	MetricFlushed   = "Flushed buffers"
	MetricGroups    = "Buffer groups"
)

// Sink receives counter increments.
type Sink interface {
	Inc(category, metric string, amount int)
	Get(category, metric string) int
}

// ProgressFunc is told the number of processed primitives.
type ProgressFunc func(processed int)

// Row is one counter value.
type Row struct {
	Category string
	Metric   string
	Value    int
}

// Stats is an in-memory Sink. It is safe for concurrent use.
type Stats struct {
	mu     sync.Mutex
	counts map[string]map[string]int
}

// NewStats creates an empty counter set.
func NewStats() *Stats {
	return &Stats{counts: make(map[string]map[string]int)}
}

// Inc adds amount to a counter.
func (s *Stats) Inc(category, metric string, amount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counts[category]
	if !ok {
		c = make(map[string]int)
		s.counts[category] = c
	}
	c[metric] += amount
}

// Get returns a counter, zero if never incremented.
func (s *Stats) Get(category, metric string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[category][metric]
}

// Reset drops every counter.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.counts)
}

// Snapshot returns all counters ordered by category, then metric.
func (s *Stats) Snapshot() []Row {
	s.mu.Lock()
	rows := make([]Row, 0, len(s.counts)*4)
	for cat, metrics := range s.counts {
		for m, v := range metrics {
			rows = append(rows, Row{Category: cat, Metric: m, Value: v})
		}
	}
	s.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Category != rows[j].Category {
			return rows[i].Category < rows[j].Category
		}
		return rows[i].Metric < rows[j].Metric
	})
	return rows
}

// Log writes every counter at info level.
func (s *Stats) Log(log *zap.Logger) {
	for _, r := range s.Snapshot() {
		log.Info("stat",
			zap.String("category", r.Category),
			zap.String("metric", r.Metric),
			zap.Int("value", r.Value))
	}
}
