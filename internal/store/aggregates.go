package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alertmon/alertd/internal/query"
	"github.com/alertmon/alertd/pkg/types"
)

// topNGroupColumns are the fields top-N aggregations may group by.
var topNGroupColumns = map[string]string{
	"event":       "event",
	"resource":    "resource",
	"environment": "environment",
	"group":       `"group"`,
	"origin":      "origin",
	"severity":    "severity",
	"status":      "status",
	"customer":    "customer",
}

// CountsBySeverity counts matching alerts per severity.
func (s *Store) CountsBySeverity(ctx context.Context, q *query.Query) (map[types.Severity]int, error) {
	where, args, err := compileConditions(q.Conditions)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT severity, COUNT(*) FROM alerts WHERE `+where+` GROUP BY severity`, args...)
	if err != nil {
		return nil, fmt.Errorf("counting by severity: %w", err)
	}
	defer rows.Close()

	counts := map[types.Severity]int{}
	for rows.Next() {
		var sev types.Severity
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, fmt.Errorf("scanning severity count: %w", err)
		}
		counts[sev] = n
	}
	return counts, rows.Err()
}

// CountsByStatus counts matching alerts per status.
func (s *Store) CountsByStatus(ctx context.Context, q *query.Query) (map[types.Status]int, error) {
	where, args, err := compileConditions(q.Conditions)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM alerts WHERE `+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, fmt.Errorf("counting by status: %w", err)
	}
	defer rows.Close()

	counts := map[types.Status]int{}
	for rows.Next() {
		var status types.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// TopN returns the n largest groups of matching alerts, grouped by the
// given field and ordered by alert count then total duplicate count.
// Alerts are expanded per service first, so a multi-service alert
// contributes once per service, and alerts with no services do not
// contribute at all.
func (s *Store) TopN(ctx context.Context, q *query.Query, groupBy string, n int) ([]types.TopNGroup, error) {
	groupCol, ok := topNGroupColumns[groupBy]
	if !ok {
		return nil, types.NewValidationError("group-by", groupBy, "not a groupable field")
	}
	where, args, err := compileConditions(q.Conditions)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`SELECT %s,
			COUNT(*),
			COALESCE(SUM(duplicate_count), 0),
			array_agg(DISTINCT environment),
			array_agg(DISTINCT svc),
			jsonb_agg(DISTINCT jsonb_build_object('id', id, 'resource', resource))
		FROM alerts
		CROSS JOIN LATERAL unnest(service) AS svc
		WHERE %s
		GROUP BY 1
		ORDER BY 2 DESC, 3 DESC
		LIMIT %d`, groupCol, where, n)

	return s.queryTopN(ctx, sql, args)
}

// TopNFlapping is TopN restricted to severity transitions: the count
// is of severity-typed history entries rather than alerts, and the
// duplicate count is the group maximum rather than the sum.
func (s *Store) TopNFlapping(ctx context.Context, q *query.Query, groupBy string, n int) ([]types.TopNGroup, error) {
	groupCol, ok := topNGroupColumns[groupBy]
	if !ok {
		return nil, types.NewValidationError("group-by", groupBy, "not a groupable field")
	}
	where, args, err := compileConditions(q.Conditions)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`SELECT %s,
			COUNT(*),
			COALESCE(MAX(duplicate_count), 0),
			array_agg(DISTINCT environment),
			array_agg(DISTINCT svc),
			jsonb_agg(DISTINCT jsonb_build_object('id', id, 'resource', resource))
		FROM alerts
		CROSS JOIN LATERAL unnest(service) AS svc
		CROSS JOIN LATERAL jsonb_array_elements(history) AS h(entry)
		WHERE %s AND h.entry->>'type' = 'severity'
		GROUP BY 1
		ORDER BY 2 DESC, 3 DESC
		LIMIT %d`, groupCol, where, n)

	return s.queryTopN(ctx, sql, args)
}

func (s *Store) queryTopN(ctx context.Context, sql string, args []any) ([]types.TopNGroup, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("top-n aggregation: %w", err)
	}
	defer rows.Close()

	var groups []types.TopNGroup
	for rows.Next() {
		var g types.TopNGroup
		var resJSON []byte
		if err := rows.Scan(&g.Group, &g.Count, &g.DuplicateCount,
			&g.Environments, &g.Services, &resJSON); err != nil {
			return nil, fmt.Errorf("scanning top-n group: %w", err)
		}
		if err := json.Unmarshal(resJSON, &g.Resources); err != nil {
			return nil, fmt.Errorf("decoding top-n resources: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// Environments counts matching alerts per environment.
func (s *Store) Environments(ctx context.Context, q *query.Query) ([]types.EnvironmentCount, error) {
	where, args, err := compileConditions(q.Conditions)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT environment, COUNT(*) FROM alerts
		WHERE `+where+` GROUP BY environment ORDER BY environment`, args...)
	if err != nil {
		return nil, fmt.Errorf("counting environments: %w", err)
	}
	defer rows.Close()

	var envs []types.EnvironmentCount
	for rows.Next() {
		var e types.EnvironmentCount
		if err := rows.Scan(&e.Environment, &e.Count); err != nil {
			return nil, fmt.Errorf("scanning environment count: %w", err)
		}
		envs = append(envs, e)
	}
	return envs, rows.Err()
}

// Services counts matching alerts per (environment, service) pair,
// expanding multi-service alerts.
func (s *Store) Services(ctx context.Context, q *query.Query) ([]types.ServiceCount, error) {
	where, args, err := compileConditions(q.Conditions)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT environment, svc, COUNT(*)
		FROM alerts CROSS JOIN LATERAL unnest(service) AS svc
		WHERE `+where+` GROUP BY 1, 2 ORDER BY 1, 2`, args...)
	if err != nil {
		return nil, fmt.Errorf("counting services: %w", err)
	}
	defer rows.Close()

	var svcs []types.ServiceCount
	for rows.Next() {
		var s types.ServiceCount
		if err := rows.Scan(&s.Environment, &s.Service, &s.Count); err != nil {
			return nil, fmt.Errorf("scanning service count: %w", err)
		}
		svcs = append(svcs, s)
	}
	return svcs, rows.Err()
}

// AlertHistory returns history entries of matching alerts, flattened
// one row per entry and joined with the parent alert's identifying
// fields, oldest first, capped at the query page size.
func (s *Store) AlertHistory(ctx context.Context, q *query.Query) ([]types.HistoryRow, error) {
	where, args, err := compileConditions(q.Conditions)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`SELECT a.id, a.resource, a.environment, a.customer,
			a.service, a."group", a.tags, a.attributes, a.origin, h.entry
		FROM alerts AS a
		CROSS JOIN LATERAL jsonb_array_elements(a.history) AS h(entry)
		WHERE %s
		ORDER BY (h.entry->>'updateTime')
		LIMIT %d`, where, q.PageSize)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying alert history: %w", err)
	}
	defer rows.Close()

	var out []types.HistoryRow
	for rows.Next() {
		var (
			r         types.HistoryRow
			attrsJSON []byte
			entryJSON []byte
		)
		if err := rows.Scan(&r.ID, &r.Resource, &r.Environment, &r.Customer,
			&r.Service, &r.Group, &r.Tags, &attrsJSON, &r.Origin,
			&entryJSON); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		if len(attrsJSON) > 0 {
			if err := json.Unmarshal(attrsJSON, &r.Attributes); err != nil {
				return nil, fmt.Errorf("decoding attributes: %w", err)
			}
		}
		var entry types.HistoryEntry
		if err := json.Unmarshal(entryJSON, &entry); err != nil {
			return nil, fmt.Errorf("decoding history entry: %w", err)
		}
		r.Event = entry.Event
		r.Severity = entry.Severity
		r.Status = entry.Status
		r.Value = entry.Value
		r.Text = entry.Text
		r.Type = entry.Type
		r.UpdateTime = entry.UpdateTime
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountSeverityHistory counts severity-typed history entries for one
// (environment, resource, event) tuple newer than since. Feeds the
// flapping detector.
func (s *Store) CountSeverityHistory(ctx context.Context, environment, resource, event string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*)
		FROM alerts AS a
		CROSS JOIN LATERAL jsonb_array_elements(a.history) AS h(entry)
		WHERE a.environment = $1 AND a.resource = $2 AND a.event = $3
			AND h.entry->>'type' = 'severity'
			AND (h.entry->>'updateTime')::timestamptz > $4`,
		environment, resource, event, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting severity history: %w", err)
	}
	return n, nil
}
