package types

import "time"

// Health is the aggregate health report served by the management
// endpoint.
type Health struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Server    ServerHealth   `json:"server"`
	Database  DatabaseHealth `json:"database"`
}

// ServerHealth reports process-level metrics.
type ServerHealth struct {
	Status        string  `json:"status"`
	Goroutines    int     `json:"goroutines"`
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryMB      float64 `json:"memoryMb"`
	MemoryPercent float64 `json:"memoryPercent"`
	UptimeSeconds int64   `json:"uptimeSeconds"`
}

// DatabaseHealth reports connection pool and storage metrics.
type DatabaseHealth struct {
	Status        string    `json:"status"`
	Pool          PoolStats `json:"pool"`
	SizeBytes     int64     `json:"sizeBytes"`
	SizeFormatted string    `json:"sizeFormatted"`
	AlertCount    int64     `json:"alertCount"`
}

// PoolStats is a snapshot of the database connection pool.
type PoolStats struct {
	MaxConnections      int32 `json:"maxConnections"`
	TotalConnections    int32 `json:"totalConnections"`
	IdleConnections     int32 `json:"idleConnections"`
	AcquiredConnections int32 `json:"acquiredConnections"`
}
