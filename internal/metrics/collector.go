package metrics

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/alertmon/alertd/pkg/types"
)

// HealthStore is the slice of the store the collector reads.
type HealthStore interface {
	PoolStats() types.PoolStats
	DatabaseSize(ctx context.Context) (int64, error)
	AlertCount(ctx context.Context) (int64, error)
}

// Collector gathers process and database health with caching. Health
// is polled by dashboards; the 30 second cache keeps the database
// queries off the hot path.
type Collector struct {
	store     HealthStore
	startTime time.Time

	mu           sync.RWMutex
	cachedHealth *types.Health
	cacheExpiry  time.Time
	cacheTTL     time.Duration
}

// NewCollector creates a health collector.
func NewCollector(store HealthStore) *Collector {
	return &Collector{
		store:     store,
		startTime: time.Now(),
		cacheTTL:  30 * time.Second,
	}
}

// Health returns the current health report, cached for the TTL.
func (c *Collector) Health(ctx context.Context) (*types.Health, error) {
	c.mu.RLock()
	if c.cachedHealth != nil && time.Now().Before(c.cacheExpiry) {
		health := *c.cachedHealth
		c.mu.RUnlock()
		return &health, nil
	}
	c.mu.RUnlock()

	health := c.collect(ctx)

	c.mu.Lock()
	c.cachedHealth = health
	c.cacheExpiry = time.Now().Add(c.cacheTTL)
	c.mu.Unlock()

	return health, nil
}

func (c *Collector) collect(ctx context.Context) *types.Health {
	health := &types.Health{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
	}

	health.Server = c.collectServer()
	health.Database = c.collectDatabase(ctx)

	if health.Server.Status != "healthy" || health.Database.Status != "healthy" {
		health.Status = "degraded"
	}
	return health
}

func (c *Collector) collectServer() types.ServerHealth {
	health := types.ServerHealth{
		Status:        "healthy",
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(c.startTime).Seconds()),
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			health.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil {
			health.MemoryMB = float64(mem.RSS) / (1024 * 1024)
		}
		if memPct, err := proc.MemoryPercent(); err == nil {
			health.MemoryPercent = float64(memPct)
		}
	}

	if health.MemoryPercent > 90 || health.CPUPercent > 90 {
		health.Status = "degraded"
	}
	return health
}

func (c *Collector) collectDatabase(ctx context.Context) types.DatabaseHealth {
	health := types.DatabaseHealth{
		Status: "healthy",
		Pool:   c.store.PoolStats(),
	}

	if health.Pool.AcquiredConnections >= health.Pool.MaxConnections-2 {
		health.Status = "degraded"
	}

	size, err := c.store.DatabaseSize(ctx)
	if err != nil {
		health.Status = "error"
		return health
	}
	health.SizeBytes = size
	health.SizeFormatted = formatBytes(size)

	if count, err := c.store.AlertCount(ctx); err == nil {
		health.AlertCount = count
	}
	return health
}

// formatBytes converts bytes to a human-readable string.
func formatBytes(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
		tb = gb * 1024
	)
	switch {
	case bytes >= tb:
		return fmt.Sprintf("%.1f TB", float64(bytes)/tb)
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
