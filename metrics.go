package mheap

import (
	"sync/atomic"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    allocCounter  prometheus.Counter
//	    mappedGauge   prometheus.Gauge
//	}
//
//	func (p *PrometheusCollector) RecordArenaAcquire(bytes int, err error) {
//	    if err == nil {
//	        p.mappedGauge.Add(float64(bytes))
//	    }
//	}
type MetricsCollector interface {
	// RecordAlloc is called after each allocation.
	// size is the requested size, grew reports whether a new arena was mapped,
	// err is nil if successful.
	RecordAlloc(size int, grew bool, err error)

	// RecordFree is called after each free of a non-nil reference.
	RecordFree(err error)

	// RecordArenaAcquire is called after each attempt to map an arena.
	RecordArenaAcquire(bytes int, err error)

	// RecordArenaRelease is called after an arena has been unmapped.
	RecordArenaRelease(bytes int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAlloc(int, bool, error)  {}
func (NoopMetricsCollector) RecordFree(error)              {}
func (NoopMetricsCollector) RecordArenaAcquire(int, error) {}
func (NoopMetricsCollector) RecordArenaRelease(int)        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AllocCount         atomic.Int64
	AllocErrors        atomic.Int64
	AllocGrowCount     atomic.Int64
	AllocBytes         atomic.Int64
	FreeCount          atomic.Int64
	FreeErrors         atomic.Int64
	ArenaAcquireCount  atomic.Int64
	ArenaAcquireErrors atomic.Int64
	ArenaReleaseCount  atomic.Int64
	MappedBytes        atomic.Int64
}

// RecordAlloc implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAlloc(size int, grew bool, err error) {
	b.AllocCount.Add(1)
	if err != nil {
		b.AllocErrors.Add(1)
		return
	}
	b.AllocBytes.Add(int64(size))
	if grew {
		b.AllocGrowCount.Add(1)
	}
}

// RecordFree implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFree(err error) {
	b.FreeCount.Add(1)
	if err != nil {
		b.FreeErrors.Add(1)
	}
}

// RecordArenaAcquire implements MetricsCollector.
func (b *BasicMetricsCollector) RecordArenaAcquire(bytes int, err error) {
	b.ArenaAcquireCount.Add(1)
	if err != nil {
		b.ArenaAcquireErrors.Add(1)
		return
	}
	b.MappedBytes.Add(int64(bytes))
}

// RecordArenaRelease implements MetricsCollector.
func (b *BasicMetricsCollector) RecordArenaRelease(bytes int) {
	b.ArenaReleaseCount.Add(1)
	b.MappedBytes.Add(-int64(bytes))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AllocCount:         b.AllocCount.Load(),
		AllocErrors:        b.AllocErrors.Load(),
		AllocGrowCount:     b.AllocGrowCount.Load(),
		AllocAvgBytes:      b.getAvgAllocBytes(),
		FreeCount:          b.FreeCount.Load(),
		FreeErrors:         b.FreeErrors.Load(),
		ArenaAcquireCount:  b.ArenaAcquireCount.Load(),
		ArenaAcquireErrors: b.ArenaAcquireErrors.Load(),
		ArenaReleaseCount:  b.ArenaReleaseCount.Load(),
		MappedBytes:        b.MappedBytes.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgAllocBytes() int64 {
	ok := b.AllocCount.Load() - b.AllocErrors.Load()
	if ok <= 0 {
		return 0
	}
	return b.AllocBytes.Load() / ok
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AllocCount         int64
	AllocErrors        int64
	AllocGrowCount     int64
	AllocAvgBytes      int64
	FreeCount          int64
	FreeErrors         int64
	ArenaAcquireCount  int64
	ArenaAcquireErrors int64
	ArenaReleaseCount  int64
	MappedBytes        int64
}
