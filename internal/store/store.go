// Package store provides Postgres persistence for alerts, blackouts
// and heartbeats.
//
// # Design
//
// The store uses raw SQL with pgx. The correlation transitions
// (DedupAlert, CorrelateAlert) are each a single conditional
// UPDATE ... WHERE <lookup predicate> ... RETURNING: the update applies
// only if the row still matches the predicate that selected it, and a
// miss is reported as types.ErrNotFound so the engine can re-run its
// decision. This is the sole concurrency-safety mechanism; there are
// no in-process locks.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alertmon/alertd/internal/config"
)

// Store provides database operations.
type Store struct {
	pool         *pgxpool.Pool
	logger       *slog.Logger
	historyLimit int
}

// New creates a store over an existing pool.
func New(pool *pgxpool.Pool, cfg *config.Config, logger *slog.Logger) *Store {
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = config.DefaultHistoryLimit
	}
	return &Store{pool: pool, logger: logger, historyLimit: limit}
}

// NewFromURL creates a store by connecting to the given database URL.
func NewFromURL(ctx context.Context, url string, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return New(pool, cfg, logger), nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping tests database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool returns the underlying pool for migrations and advanced use.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// ringBoundedHistory renders a scalar subquery that keeps only the
// newest historyLimit entries of the given jsonb array expression,
// preserving order. Appending and capping happen in the same UPDATE,
// so the ring bound commits atomically with the transition.
func (s *Store) ringBoundedHistory(expr string) string {
	return fmt.Sprintf(`(
		SELECT COALESCE(jsonb_agg(entry ORDER BY idx), '[]'::jsonb)
		FROM jsonb_array_elements(%s) WITH ORDINALITY AS h(entry, idx)
		WHERE idx > jsonb_array_length(%s) - %d
	)`, expr, expr, s.historyLimit)
}
