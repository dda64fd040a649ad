package mheap

import (
	"log/slog"

	"github.com/hupe1980/mheap/internal/arena"
	"github.com/hupe1980/mheap/resource"
)

type options struct {
	pageSize         int
	maxArenaSize     int64
	controller       *resource.Controller
	metricsCollector MetricsCollector
	logger           *Logger
	mapper           arena.Mapper
}

// Option configures a Heap.
type Option func(*options)

// WithPageSize sets the arena granularity. Every arena maps a multiple of
// this many bytes. The value is rounded up to a multiple of the operating
// system page size.
//
// Default: 128 KiB.
func WithPageSize(n int) Option {
	return func(o *options) {
		o.pageSize = n
	}
}

// WithMaxArenaSize caps the length of a single arena mapping. Requests that
// would need a larger arena fail with ErrOutOfMemory.
//
// Default: 64 GiB.
func WithMaxArenaSize(n int64) Option {
	return func(o *options) {
		o.maxArenaSize = n
	}
}

// WithResourceController shares a resource controller between heaps. The
// controller is consulted before every arena mapping and credited when an
// arena is released.
//
// Example:
//
//	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 30})
//	h1, _ := mheap.New(mheap.WithResourceController(rc))
//	h2, _ := mheap.New(mheap.WithResourceController(rc))
func WithResourceController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithMemoryLimit limits the total bytes this heap may map.
// Convenience wrapper for WithResourceController with a private controller.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.controller = resource.NewController(resource.Config{MemoryLimitBytes: bytes})
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &mheap.BasicMetricsCollector{}
//	h, _ := mheap.New(mheap.WithMetricsCollector(metrics))
//	// ... use h ...
//	stats := metrics.GetStats()
//	fmt.Printf("Allocs: %d, arenas mapped: %d\n", stats.AllocCount, stats.ArenaAcquireCount)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := mheap.NewJSONLogger(slog.LevelInfo)
//	h, _ := mheap.New(mheap.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// withMapper replaces the OS mapping primitive. Used by tests to inject
// mapping failures.
func withMapper(m arena.Mapper) Option {
	return func(o *options) {
		o.mapper = m
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		pageSize:         arena.DefaultPageSize,
		maxArenaSize:     arena.DefaultMaxSize,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
