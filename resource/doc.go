// Package resource implements the Controller for process-wide memory governance.
//
// A Controller is shared by one or more heaps and decides whether a new arena
// may be mapped from the operating system:
//
//   - Memory: hard limit on the total bytes mapped (non-blocking, fail-fast)
//   - Growth: token-bucket limit on how fast new bytes may be mapped
//
// # Memory Management
//
// Memory tracking uses a weighted semaphore for hard limits and atomic counters
// for usage tracking. AcquireMemory is non-blocking and returns immediately
// with ErrMemoryLimitExceeded if the limit would be exceeded:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30, // 1GB limit
//	})
//
//	if err := rc.AcquireMemory(128 * 1024); err != nil {
//	    // ErrMemoryLimitExceeded - the allocation fails, nothing is retried
//	}
//	defer rc.ReleaseMemory(128 * 1024)
//
// # Growth Limiting
//
// A token bucket bounds the rate at which fresh mappings are requested, which
// keeps a runaway allocation loop from exhausting address space in a burst:
//
//	rc := resource.NewController(resource.Config{
//	    GrowthLimitBytesPerSec: 64 << 20, // 64MB/s
//	    GrowthBurstBytes:       16 << 20,
//	})
//
// # Thread Safety
//
// All Controller methods are safe for concurrent use. The underlying
// implementations use atomic operations and sync primitives.
//
// # Nil Safety
//
// All methods handle nil Controller gracefully - they become no-ops.
// This allows optional resource limiting without nil checks everywhere.
package resource
