package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alertmon/alertd/pkg/types"
)

const blackoutColumns = `id, priority, environment, service, resource, event,
	"group", tags, customer, start_time, end_time`

func scanBlackout(row rowScanner) (*types.Blackout, error) {
	var b types.Blackout
	err := row.Scan(&b.ID, &b.Priority, &b.Environment, &b.Service, &b.Resource,
		&b.Event, &b.Group, &b.Tags, &b.Customer, &b.StartTime, &b.EndTime)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBlackout inserts a blackout window.
func (s *Store) CreateBlackout(ctx context.Context, b *types.Blackout) (*types.Blackout, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO blackouts (`+blackoutColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.Priority, b.Environment, emptyIfNil(b.Service), b.Resource,
		b.Event, b.Group, emptyIfNil(b.Tags), b.Customer, b.StartTime, b.EndTime,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, types.ErrConflict
		}
		return nil, fmt.Errorf("inserting blackout: %w", err)
	}
	return b, nil
}

// GetBlackout looks up one blackout, optionally narrowed by customer.
// Returns nil when nothing matched.
func (s *Store) GetBlackout(ctx context.Context, id, customer string) (*types.Blackout, error) {
	where := `id = $1`
	args := []any{id}
	if customer != "" {
		where += ` AND customer = $2`
		args = append(args, customer)
	}

	b, err := scanBlackout(s.pool.QueryRow(ctx,
		`SELECT `+blackoutColumns+` FROM blackouts WHERE `+where, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting blackout %s: %w", id, err)
	}
	return b, nil
}

// ListBlackouts returns all blackouts, newest window first. A
// non-empty customer narrows the listing.
func (s *Store) ListBlackouts(ctx context.Context, customer string) ([]types.Blackout, error) {
	where := `TRUE`
	var args []any
	if customer != "" {
		where = `customer = $1`
		args = append(args, customer)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+blackoutColumns+` FROM blackouts WHERE `+where+` ORDER BY start_time DESC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("listing blackouts: %w", err)
	}
	defer rows.Close()

	var out []types.Blackout
	for rows.Next() {
		b, err := scanBlackout(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning blackout: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// DeleteBlackout removes a blackout by id.
func (s *Store) DeleteBlackout(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM blackouts WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("deleting blackout %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ActiveBlackouts returns the blackouts for the environment whose
// window contains now. Pattern matching against the alert happens in
// the engine.
func (s *Store) ActiveBlackouts(ctx context.Context, environment string, now time.Time) ([]types.Blackout, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+blackoutColumns+` FROM blackouts
		WHERE environment = $1 AND start_time <= $2 AND end_time > $2`,
		environment, now)
	if err != nil {
		return nil, fmt.Errorf("querying active blackouts: %w", err)
	}
	defer rows.Close()

	var out []types.Blackout
	for rows.Next() {
		b, err := scanBlackout(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning blackout: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}
