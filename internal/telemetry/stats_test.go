package telemetry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestStatsIncGet(t *testing.T) {
	s := NewStats()
	assert.Zero(t, s.Get(Primitives, MetricLoaded))

	s.Inc(Primitives, MetricLoaded, 4)
	s.Inc(Primitives, MetricLoaded, 2)
	s.Inc(Primitives, MetricHidden, 1)

	assert.Equal(t, 6, s.Get(Primitives, MetricLoaded))
	assert.Equal(t, 1, s.Get(Primitives, MetricHidden))

	s.Reset()
	assert.Zero(t, s.Get(Primitives, MetricLoaded))
}

func TestStatsConcurrentInc(t *testing.T) {
	s := NewStats()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				s.Inc(Drawing, MetricDrawCalls, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, s.Get(Drawing, MetricDrawCalls))
}

func TestSnapshotOrder(t *testing.T) {
	s := NewStats()
	s.Inc(Primitives, MetricLoaded, 1)
	s.Inc(Data, MetricGPUTotal, 2)
	s.Inc(Data, MetricGPUBytes, 3)

	assert.Equal(t, []Row{
		{Data, MetricGPUBytes, 3},
		{Data, MetricGPUTotal, 2},
		{Primitives, MetricLoaded, 1},
	}, s.Snapshot())
}

func TestLogWritesEveryCounter(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewStats()
	s.Inc(Models, MetricObjects, 3)
	s.Inc(Buffers, MetricFlushed, 1)

	s.Log(zap.New(core))

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.Equal(t, "Buffers", entries[0].ContextMap()["category"])
	assert.Equal(t, int64(3), entries[1].ContextMap()["value"])
}
