// Package config provides configuration defaults and the data-driven
// severity/status rule tables for alertd.
package config

import "time"

// History and paging defaults.
const (
	// DefaultHistoryLimit caps the per-alert history ring. Oldest
	// entries are dropped once the cap is exceeded.
	DefaultHistoryLimit = 100

	// DefaultPageSize is the number of alerts returned when no
	// page-size or limit parameter is supplied.
	DefaultPageSize = 50

	// MaxPageSize is the largest page a single query may request.
	MaxPageSize = 1000
)

// Flapping detection defaults: an alert is flapping if its severity
// changed more than FlappingThreshold times in FlappingWindow.
const (
	DefaultFlappingWindow    = 1800 * time.Second
	DefaultFlappingThreshold = 2
)

// Concurrency and ingestion limits.
const (
	// ReceiveRetryLimit bounds how many times a single ingestion
	// re-runs its dedup/correlate/create decision after losing a
	// guarded-update or insert race.
	ReceiveRetryLimit = 2

	// DefaultReceiveRate is the sustained per-origin ingestion rate
	// (events per second).
	DefaultReceiveRate = 50

	// DefaultReceiveBurst is the per-origin ingestion burst size.
	DefaultReceiveBurst = 100
)

// Cache TTLs for read-side API responses.
const (
	CacheTTLCounts       = 30 * time.Second
	CacheTTLTopN         = 30 * time.Second
	CacheTTLEnvironments = 60 * time.Second
	CacheTTLServices     = 60 * time.Second
)

// DefaultTimeout is the alert/heartbeat timeout applied when the
// payload does not carry one, in seconds.
const DefaultTimeout = 86400
