// Package memory accounts frame storage against a global and a per-pool byte
// budget.
package memory

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	// ErrGlobalMemoryLimit indicates the global memory limit has been reached
	ErrGlobalMemoryLimit = errors.New("global memory limit exceeded")

	// ErrPoolMemoryLimit indicates a pool's memory limit has been reached
	ErrPoolMemoryLimit = errors.New("pool memory limit exceeded")
)

// Controller tracks bytes charged by frame pools. A zero global limit
// disables accounting entirely.
type Controller struct {
	maxMemory    int64
	perPoolLimit int64
	usage        atomic.Int64
	poolUsage    sync.Map // pool name -> *atomic.Int64

	allocationCount atomic.Int64
	releaseCount    atomic.Int64
	rejectedCount   atomic.Int64

	poolInitMu sync.Mutex
}

// NewController creates a new memory controller
func NewController(maxMemory, perPoolLimit int64) *Controller {
	return &Controller{
		maxMemory:    maxMemory,
		perPoolLimit: perPoolLimit,
	}
}

// Enabled reports whether limits are enforced.
func (c *Controller) Enabled() bool {
	return c != nil && c.maxMemory > 0
}

// RequestMemory charges size bytes to pool.
func (c *Controller) RequestMemory(pool string, size int64) error {
	if !c.Enabled() {
		return nil
	}

	if c.usage.Add(size) > c.maxMemory {
		c.usage.Add(-size)
		c.rejectedCount.Add(1)
		return ErrGlobalMemoryLimit
	}

	usage := c.getOrCreatePoolUsage(pool)
	if usage.Add(size) > c.perPoolLimit {
		usage.Add(-size)
		c.usage.Add(-size)
		c.rejectedCount.Add(1)
		return ErrPoolMemoryLimit
	}

	c.allocationCount.Add(1)
	return nil
}

func (c *Controller) getOrCreatePoolUsage(pool string) *atomic.Int64 {
	if val, ok := c.poolUsage.Load(pool); ok {
		return val.(*atomic.Int64)
	}

	c.poolInitMu.Lock()
	defer c.poolInitMu.Unlock()

	if val, ok := c.poolUsage.Load(pool); ok {
		return val.(*atomic.Int64)
	}

	usage := &atomic.Int64{}
	c.poolUsage.Store(pool, usage)
	return usage
}

// ReleaseMemory returns size bytes previously charged to pool. Releasing more
// than was charged only releases what the pool holds.
func (c *Controller) ReleaseMemory(pool string, size int64) {
	if !c.Enabled() {
		return
	}

	val, ok := c.poolUsage.Load(pool)
	if !ok {
		return
	}
	usage := val.(*atomic.Int64)

	// CAS loop so concurrent releases never drive usage negative
	for {
		old := usage.Load()
		if old <= 0 {
			return
		}
		release := size
		if old < size {
			release = old
		}
		if usage.CompareAndSwap(old, old-release) {
			c.usage.Add(-release)
			break
		}
	}

	c.releaseCount.Add(1)
}

// GetPressure returns global usage as a fraction of the limit.
func (c *Controller) GetPressure() float64 {
	if !c.Enabled() {
		return 0
	}
	return float64(c.usage.Load()) / float64(c.maxMemory)
}

// GetPoolUsage returns the bytes currently charged to pool.
func (c *Controller) GetPoolUsage(pool string) int64 {
	if val, ok := c.poolUsage.Load(pool); ok {
		return val.(*atomic.Int64).Load()
	}
	return 0
}

// ResetPoolUsage drops all accounting for pool.
func (c *Controller) ResetPoolUsage(pool string) {
	if val, ok := c.poolUsage.LoadAndDelete(pool); ok {
		if remaining := val.(*atomic.Int64).Swap(0); remaining > 0 {
			c.usage.Add(-remaining)
		}
	}
}

// Stats returns memory controller statistics
func (c *Controller) Stats() MemoryStats {
	stats := MemoryStats{
		GlobalUsage:     c.usage.Load(),
		GlobalLimit:     c.maxMemory,
		GlobalPressure:  c.GetPressure(),
		PerPoolLimit:    c.perPoolLimit,
		AllocationCount: c.allocationCount.Load(),
		ReleaseCount:    c.releaseCount.Load(),
		RejectedCount:   c.rejectedCount.Load(),
	}

	c.poolUsage.Range(func(key, value interface{}) bool {
		usage := value.(*atomic.Int64).Load()
		if usage <= 0 {
			return true
		}
		ps := PoolMemoryStats{Pool: key.(string), Usage: usage}
		if c.perPoolLimit > 0 {
			ps.Percent = float64(usage) / float64(c.perPoolLimit) * 100
		}
		stats.PoolStats = append(stats.PoolStats, ps)
		return true
	})
	sort.Slice(stats.PoolStats, func(i, j int) bool {
		return stats.PoolStats[i].Pool < stats.PoolStats[j].Pool
	})

	return stats
}

// MemoryStats holds memory controller statistics
type MemoryStats struct {
	GlobalUsage     int64             `json:"global_usage"`
	GlobalLimit     int64             `json:"global_limit"`
	GlobalPressure  float64           `json:"global_pressure"`
	PerPoolLimit    int64             `json:"per_pool_limit"`
	PoolStats       []PoolMemoryStats `json:"pools,omitempty"`
	AllocationCount int64             `json:"allocation_count"`
	ReleaseCount    int64             `json:"release_count"`
	RejectedCount   int64             `json:"rejected_count"`
}

// PoolMemoryStats holds per-pool memory statistics
type PoolMemoryStats struct {
	Pool    string  `json:"pool"`
	Usage   int64   `json:"usage"`
	Percent float64 `json:"percent"`
}
