package health

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/zsiec/framesync/internal/playback/memory"
	"github.com/zsiec/framesync/internal/playback/pool"
)

// RedisChecker checks Redis connectivity.
type RedisChecker struct {
	client redis.UniversalClient
	name   string
}

// NewRedisChecker creates a new Redis health checker.
func NewRedisChecker(client redis.UniversalClient) *RedisChecker {
	return &RedisChecker{
		client: client,
		name:   "redis",
	}
}

func (r *RedisChecker) Name() string {
	return r.name
}

// Check pings Redis.
func (r *RedisChecker) Check(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("redis client not configured")
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// PoolSnapshotter is implemented by *pool.Pool.
type PoolSnapshotter interface {
	Snapshot() pool.Snapshot
}

// PoolChecker reports a frame pool as degraded when it has no free frame or
// when inconsistent releases were recorded since the previous check.
type PoolChecker struct {
	pool PoolSnapshotter

	mu       sync.Mutex
	lastSeen int64
	last     pool.Snapshot
}

func NewPoolChecker(p PoolSnapshotter) *PoolChecker {
	return &PoolChecker{pool: p}
}

func (c *PoolChecker) Name() string {
	return "frame_pool"
}

func (c *PoolChecker) Check(ctx context.Context) error {
	snap := c.pool.Snapshot()

	c.mu.Lock()
	newInconsistent := snap.Inconsistent - c.lastSeen
	c.lastSeen = snap.Inconsistent
	c.last = snap
	c.mu.Unlock()

	if newInconsistent > 0 {
		return Degraded(fmt.Errorf("%d inconsistent frame releases since last check", newInconsistent))
	}
	if snap.Format != "none" && snap.Allocated >= snap.Capacity && snap.States["unused"] == 0 {
		return Degraded(fmt.Errorf("all %d frames in use", snap.Capacity))
	}
	return nil
}

func (c *PoolChecker) Details() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]interface{}{
		"format":    c.last.Format,
		"capacity":  c.last.Capacity,
		"allocated": c.last.Allocated,
		"states":    c.last.States,
	}
}

// MemoryChecker reports the frame memory budget as degraded above threshold.
type MemoryChecker struct {
	controller *memory.Controller
	threshold  float64 // fraction of the global limit
}

// NewMemoryChecker creates a new memory checker.
func NewMemoryChecker(controller *memory.Controller, threshold float64) *MemoryChecker {
	return &MemoryChecker{
		controller: controller,
		threshold:  threshold,
	}
}

func (m *MemoryChecker) Name() string {
	return "memory"
}

func (m *MemoryChecker) Check(ctx context.Context) error {
	if !m.controller.Enabled() {
		return nil
	}
	if p := m.controller.GetPressure(); p > m.threshold {
		return Degraded(fmt.Errorf("frame memory at %.0f%% of budget", p*100))
	}
	return nil
}

func (m *MemoryChecker) Details() map[string]interface{} {
	if m.controller == nil {
		return nil
	}
	stats := m.controller.Stats()
	return map[string]interface{}{
		"usage":    stats.GlobalUsage,
		"limit":    stats.GlobalLimit,
		"pressure": stats.GlobalPressure,
	}
}
