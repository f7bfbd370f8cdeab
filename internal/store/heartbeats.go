package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alertmon/alertd/pkg/types"
)

const heartbeatColumns = `id, origin, tags, type, create_time, timeout,
	receive_time, customer`

func scanHeartbeat(row rowScanner) (*types.Heartbeat, error) {
	var hb types.Heartbeat
	err := row.Scan(&hb.ID, &hb.Origin, &hb.Tags, &hb.Type, &hb.CreateTime,
		&hb.Timeout, &hb.ReceiveTime, &hb.Customer)
	if err != nil {
		return nil, err
	}
	return &hb, nil
}

// UpsertHeartbeat inserts or replaces the heartbeat for the
// (origin, customer) key. The stored id survives replacement.
func (s *Store) UpsertHeartbeat(ctx context.Context, hb *types.Heartbeat) (*types.Heartbeat, error) {
	stored, err := scanHeartbeat(s.pool.QueryRow(ctx, `
		INSERT INTO heartbeats (`+heartbeatColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (origin, customer) DO UPDATE SET
			tags = EXCLUDED.tags,
			type = EXCLUDED.type,
			create_time = EXCLUDED.create_time,
			timeout = EXCLUDED.timeout,
			receive_time = EXCLUDED.receive_time
		RETURNING `+heartbeatColumns,
		hb.ID, hb.Origin, emptyIfNil(hb.Tags), hb.Type, hb.CreateTime,
		hb.Timeout, hb.ReceiveTime, hb.Customer,
	))
	if err != nil {
		return nil, fmt.Errorf("upserting heartbeat: %w", err)
	}
	return stored, nil
}

// GetHeartbeat looks up one heartbeat by full id or 8-character
// prefix, optionally narrowed by customer. Returns nil when nothing
// matched.
func (s *Store) GetHeartbeat(ctx context.Context, id, customer string) (*types.Heartbeat, error) {
	where := `id = $1`
	if len(id) == 8 {
		where = `id LIKE $1 || '%'`
	}
	args := []any{id}
	if customer != "" {
		where += ` AND customer = $2`
		args = append(args, customer)
	}

	hb, err := scanHeartbeat(s.pool.QueryRow(ctx,
		`SELECT `+heartbeatColumns+` FROM heartbeats WHERE `+where, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting heartbeat %s: %w", id, err)
	}
	return hb, nil
}

// ListHeartbeats returns all heartbeats, most recently received first.
// A non-empty customer narrows the listing.
func (s *Store) ListHeartbeats(ctx context.Context, customer string) ([]types.Heartbeat, error) {
	where := `TRUE`
	var args []any
	if customer != "" {
		where = `customer = $1`
		args = append(args, customer)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+heartbeatColumns+` FROM heartbeats WHERE `+where+` ORDER BY receive_time DESC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("listing heartbeats: %w", err)
	}
	defer rows.Close()

	var out []types.Heartbeat
	for rows.Next() {
		hb, err := scanHeartbeat(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning heartbeat: %w", err)
		}
		out = append(out, *hb)
	}
	return out, rows.Err()
}

// DeleteHeartbeat removes a heartbeat by id.
func (s *Store) DeleteHeartbeat(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM heartbeats WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("deleting heartbeat %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}
