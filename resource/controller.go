package resource

import (
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

var (
	// ErrMemoryLimitExceeded is returned when memory limit would be exceeded.
	ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

	// ErrRateLimited is returned when the growth rate limit has no tokens left.
	ErrRateLimited = errors.New("growth rate limit exceeded")
)

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for mapped memory.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// GrowthLimitBytesPerSec is the maximum rate at which new memory may be
	// acquired. If 0, unlimited.
	GrowthLimitBytesPerSec int64

	// GrowthBurstBytes is the token bucket size for growth limiting.
	// Defaults to GrowthLimitBytesPerSec. A single request larger than the
	// burst is always rejected.
	GrowthBurstBytes int64
}

// Controller manages memory shared by one or more heaps.
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Growth
	growthLimiter *rate.Limiter
	now           func() time.Time
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	c := &Controller{
		cfg: cfg,
		now: time.Now,
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.GrowthLimitBytesPerSec > 0 {
		burst := cfg.GrowthBurstBytes
		if burst <= 0 {
			burst = cfg.GrowthLimitBytesPerSec
		}
		c.growthLimiter = rate.NewLimiter(rate.Limit(cfg.GrowthLimitBytesPerSec), int(burst))
	}

	return c
}

// AcquireMemory attempts to reserve memory.
// Returns ErrMemoryLimitExceeded if limit would be exceeded, or ErrRateLimited
// if the growth budget is exhausted. Nothing is reserved on error.
// Non-blocking - callers control retry/backoff policy.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil {
		return nil
	}
	if bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return ErrMemoryLimitExceeded
		}
	}

	if c.growthLimiter != nil && !c.growthLimiter.AllowN(c.now(), int(bytes)) {
		if c.memSem != nil {
			c.memSem.Release(bytes)
		}
		return ErrRateLimited
	}

	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil {
		return
	}
	if bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}
