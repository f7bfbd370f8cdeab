package store

import (
	"context"
	"fmt"

	"github.com/alertmon/alertd/pkg/types"
)

// PoolStats returns a snapshot of the connection pool.
func (s *Store) PoolStats() types.PoolStats {
	stat := s.pool.Stat()
	return types.PoolStats{
		MaxConnections:      stat.MaxConns(),
		TotalConnections:    stat.TotalConns(),
		IdleConnections:     stat.IdleConns(),
		AcquiredConnections: stat.AcquiredConns(),
	}
}

// DatabaseSize returns the on-disk size of the current database in
// bytes.
func (s *Store) DatabaseSize(ctx context.Context) (int64, error) {
	var size int64
	err := s.pool.QueryRow(ctx,
		`SELECT pg_database_size(current_database())`).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("querying database size: %w", err)
	}
	return size, nil
}

// AlertCount returns the total number of stored alerts.
func (s *Store) AlertCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting alerts: %w", err)
	}
	return n, nil
}
