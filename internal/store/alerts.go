package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alertmon/alertd/internal/engine"
	"github.com/alertmon/alertd/internal/query"
	"github.com/alertmon/alertd/pkg/types"
)

const alertColumns = `id, resource, event, environment, severity, correlate, status,
	service, "group", value, text, tags, attributes, origin, type, create_time,
	timeout, raw_data, customer, duplicate_count, repeat, previous_severity,
	trend_indication, receive_time, last_receive_id, last_receive_time, history`

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*types.Alert, error) {
	var (
		a         types.Alert
		attrsJSON []byte
		histJSON  []byte
	)
	err := row.Scan(
		&a.ID, &a.Resource, &a.Event, &a.Environment, &a.Severity, &a.Correlate,
		&a.Status, &a.Service, &a.Group, &a.Value, &a.Text, &a.Tags, &attrsJSON,
		&a.Origin, &a.Type, &a.CreateTime, &a.Timeout, &a.RawData, &a.Customer,
		&a.DuplicateCount, &a.Repeat, &a.PreviousSeverity, &a.TrendIndication,
		&a.ReceiveTime, &a.LastReceiveID, &a.LastReceiveTime, &histJSON,
	)
	if err != nil {
		return nil, err
	}
	if len(attrsJSON) > 0 {
		if err := json.Unmarshal(attrsJSON, &a.Attributes); err != nil {
			return nil, fmt.Errorf("decoding attributes: %w", err)
		}
	}
	if len(histJSON) > 0 {
		if err := json.Unmarshal(histJSON, &a.History); err != nil {
			return nil, fmt.Errorf("decoding history: %w", err)
		}
	}
	return &a, nil
}

// duplicatePred matches the stored alert a would deduplicate into:
// same identity key and same severity. Placeholders $1..$5 are
// environment, resource, event, severity, customer.
const duplicatePred = `environment = $1 AND resource = $2 AND event = $3
	AND severity = $4 AND customer = $5`

// correlatePred matches the stored alert a would correlate into: same
// (environment, resource, customer) where either the event matches
// with a different severity, or the stored correlate list names the
// incoming event. Placeholders $1..$3 are environment, resource,
// customer; $4 and $5 the incoming event and severity.
const correlatePred = `environment = $1 AND resource = $2 AND customer = $3
	AND ((event = $4 AND severity <> $5) OR (event <> $4 AND $4 = ANY(correlate)))`

// relatedPred matches either of the above, used for status lookup.
const relatedPred = `environment = $1 AND resource = $2 AND customer = $3
	AND (event = $4 OR $4 = ANY(correlate))`

// mergeTagsSQL appends the incoming tags not already present, keeping
// set semantics over a TEXT[] column. The placeholder is interpolated
// by the caller.
func mergeTagsSQL(param string) string {
	return fmt.Sprintf(`tags || (
		SELECT COALESCE(array_agg(t), '{}')
		FROM unnest(%s::text[]) AS t WHERE NOT (t = ANY(tags))
	)`, param)
}

// IsDuplicate reports whether a stored alert matches a's duplicate
// predicate.
func (s *Store) IsDuplicate(ctx context.Context, a *types.Alert) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM alerts WHERE `+duplicatePred+`)`,
		a.Environment, a.Resource, a.Event, a.Severity, a.Customer,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("duplicate lookup: %w", err)
	}
	return exists, nil
}

// IsCorrelated reports whether a stored alert matches a's correlation
// predicate.
func (s *Store) IsCorrelated(ctx context.Context, a *types.Alert) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM alerts WHERE `+correlatePred+`)`,
		a.Environment, a.Resource, a.Customer, a.Event, a.Severity,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("correlation lookup: %w", err)
	}
	return exists, nil
}

// PreviousSeverity returns the severity of the stored alert a would
// correlate into.
func (s *Store) PreviousSeverity(ctx context.Context, a *types.Alert) (types.Severity, error) {
	var sev types.Severity
	err := s.pool.QueryRow(ctx,
		`SELECT severity FROM alerts WHERE `+correlatePred,
		a.Environment, a.Resource, a.Customer, a.Event, a.Severity,
	).Scan(&sev)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", types.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("previous severity lookup: %w", err)
	}
	return sev, nil
}

// PreviousStatus returns the status of the stored alert related to a,
// whether by event match or by correlate list.
func (s *Store) PreviousStatus(ctx context.Context, a *types.Alert) (types.Status, error) {
	var status types.Status
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM alerts WHERE `+relatedPred,
		a.Environment, a.Resource, a.Customer, a.Event,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", types.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("previous status lookup: %w", err)
	}
	return status, nil
}

// DedupAlert applies the duplicate transition as a single guarded
// update: the row must still match a's duplicate predicate or the
// update misses and types.ErrNotFound is returned. entry, when
// non-nil, is appended to the ring-bounded history.
func (s *Store) DedupAlert(ctx context.Context, a *types.Alert, status types.Status, entry *types.HistoryEntry, now time.Time) (*types.Alert, error) {
	attrsJSON, err := marshalAttributes(a.Attributes)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString(`UPDATE alerts SET
		status = $6,
		value = $7,
		text = $8,
		raw_data = $9,
		repeat = TRUE,
		duplicate_count = duplicate_count + 1,
		last_receive_id = $10,
		last_receive_time = $11,
		tags = ` + mergeTagsSQL("$12") + `,
		attributes = attributes || $13::jsonb`)

	args := []any{
		a.Environment, a.Resource, a.Event, a.Severity, a.Customer,
		status, a.Value, a.Text, a.RawData, a.ID, now,
		emptyIfNil(a.Tags), attrsJSON,
	}
	if entry != nil {
		entryJSON, err := json.Marshal([]types.HistoryEntry{*entry})
		if err != nil {
			return nil, fmt.Errorf("encoding history entry: %w", err)
		}
		b.WriteString(",\n\t\thistory = " + s.ringBoundedHistory("history || $14::jsonb"))
		args = append(args, entryJSON)
	}
	b.WriteString("\n\tWHERE " + duplicatePred + "\n\tRETURNING " + alertColumns)

	updated, err := scanAlert(s.pool.QueryRow(ctx, b.String(), args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("dedup update: %w", err)
	}
	return updated, nil
}

// CorrelateAlert applies the correlated transition as a single guarded
// update keyed to a's correlation predicate. The incoming alert's
// event, severity and payload overwrite the stored row, duplicate
// tracking resets, and update.History is appended to the ring.
func (s *Store) CorrelateAlert(ctx context.Context, a *types.Alert, update engine.CorrelateUpdate, now time.Time) (*types.Alert, error) {
	attrsJSON, err := marshalAttributes(a.Attributes)
	if err != nil {
		return nil, err
	}
	entriesJSON, err := json.Marshal(update.History)
	if err != nil {
		return nil, fmt.Errorf("encoding history entries: %w", err)
	}

	sql := `UPDATE alerts SET
		event = $4,
		severity = $5,
		status = $6,
		value = $7,
		text = $8,
		create_time = $9,
		raw_data = $10,
		duplicate_count = 0,
		repeat = FALSE,
		previous_severity = $11,
		trend_indication = $12,
		receive_time = $13,
		last_receive_id = $14,
		last_receive_time = $13,
		tags = ` + mergeTagsSQL("$15") + `,
		attributes = attributes || $16::jsonb,
		history = ` + s.ringBoundedHistory("history || $17::jsonb") + `
	WHERE ` + correlatePred + `
	RETURNING ` + alertColumns

	updated, err := scanAlert(s.pool.QueryRow(ctx, sql,
		a.Environment, a.Resource, a.Customer,
		a.Event, a.Severity, update.Status, a.Value, a.Text, a.CreateTime,
		a.RawData, update.PreviousSeverity, update.Trend, now, a.ID,
		emptyIfNil(a.Tags), attrsJSON, entriesJSON,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("correlate update: %w", err)
	}
	return updated, nil
}

// CreateAlert inserts a fresh alert. A unique violation on the
// identity key reports types.ErrConflict so the caller can re-run its
// decision.
func (s *Store) CreateAlert(ctx context.Context, a *types.Alert) (*types.Alert, error) {
	attrsJSON, err := marshalAttributes(a.Attributes)
	if err != nil {
		return nil, err
	}
	histJSON, err := json.Marshal(a.History)
	if err != nil {
		return nil, fmt.Errorf("encoding history: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)`,
		a.ID, a.Resource, a.Event, a.Environment, a.Severity,
		emptyIfNil(a.Correlate), a.Status, emptyIfNil(a.Service), a.Group,
		a.Value, a.Text, emptyIfNil(a.Tags), attrsJSON, a.Origin, a.Type,
		a.CreateTime, a.Timeout, a.RawData, a.Customer, a.DuplicateCount,
		a.Repeat, a.PreviousSeverity, a.TrendIndication, a.ReceiveTime,
		a.LastReceiveID, a.LastReceiveTime, histJSON,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, types.ErrConflict
		}
		return nil, fmt.Errorf("inserting alert: %w", err)
	}
	return a, nil
}

// GetAlert looks up one alert by full id or 8-character prefix,
// matching either the alert id or the last receive id. A non-empty
// customer narrows the lookup. Returns nil when nothing matched.
func (s *Store) GetAlert(ctx context.Context, id, customer string) (*types.Alert, error) {
	where, args := idLookup(id)
	if customer != "" {
		args = append(args, customer)
		where += fmt.Sprintf(" AND customer = $%d", len(args))
	}

	a, err := scanAlert(s.pool.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE `+where, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting alert %s: %w", id, err)
	}
	return a, nil
}

// SearchAlerts returns the page of alerts matching q, in q's sort
// order.
func (s *Store) SearchAlerts(ctx context.Context, q *query.Query) ([]types.Alert, error) {
	where, args, err := compileConditions(q.Conditions)
	if err != nil {
		return nil, err
	}

	sql := `SELECT ` + alertColumns + ` FROM alerts WHERE ` + where +
		` ORDER BY ` + compileSort(q.Sort) +
		fmt.Sprintf(` OFFSET %d LIMIT %d`, (q.Page-1)*q.PageSize, q.PageSize)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("searching alerts: %w", err)
	}
	defer rows.Close()

	var alerts []types.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// SetStatus sets the status of the alert matching the id (or prefix)
// and appends a status history entry, in one update. Reports whether a
// row matched.
func (s *Store) SetStatus(ctx context.Context, id string, status types.Status, text, sourceID string, now time.Time) (bool, error) {
	where, args := idLookup(id)
	n := len(args)
	args = append(args, status, sourceID, text, now.UTC().Format(time.RFC3339Nano))

	entry := fmt.Sprintf(`jsonb_build_array(jsonb_build_object(
		'id', $%d::text, 'event', event, 'type', 'status',
		'status', $%d::text, 'text', $%d::text, 'updateTime', $%d::text))`,
		n+2, n+1, n+3, n+4)

	tag, err := s.pool.Exec(ctx, `UPDATE alerts SET
			status = $`+fmt.Sprint(n+1)+`,
			history = `+s.ringBoundedHistory("history || "+entry)+`
		WHERE `+where, args...)
	if err != nil {
		return false, fmt.Errorf("setting status on %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// TagAlert merges tags into the alert's tag set.
func (s *Store) TagAlert(ctx context.Context, id string, tags []string) (bool, error) {
	where, args := idLookup(id)
	args = append(args, emptyIfNil(tags))
	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts SET tags = `+mergeTagsSQL(fmt.Sprintf("$%d", len(args)))+` WHERE `+where,
		args...)
	if err != nil {
		return false, fmt.Errorf("tagging alert %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// UntagAlert removes tags from the alert's tag set.
func (s *Store) UntagAlert(ctx context.Context, id string, tags []string) (bool, error) {
	where, args := idLookup(id)
	args = append(args, emptyIfNil(tags))
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`UPDATE alerts SET tags = (
			SELECT COALESCE(array_agg(t), '{}')
			FROM unnest(tags) AS t WHERE NOT (t = ANY($%d::text[]))
		) WHERE `, len(args))+where, args...)
	if err != nil {
		return false, fmt.Errorf("untagging alert %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateAttributes applies a mixed set/unset attribute change set in
// one update.
func (s *Store) UpdateAttributes(ctx context.Context, id string, changes map[string]types.AttributeChange) (bool, error) {
	set := map[string]any{}
	var unset []string
	for key, change := range changes {
		if change.Unset {
			unset = append(unset, key)
		} else {
			set[key] = change.Value
		}
	}
	setJSON, err := json.Marshal(set)
	if err != nil {
		return false, fmt.Errorf("encoding attributes: %w", err)
	}

	where, args := idLookup(id)
	n := len(args)
	args = append(args, setJSON, emptyIfNil(unset))
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(
		`UPDATE alerts SET attributes = (attributes || $%d::jsonb) - $%d::text[] WHERE `,
		n+1, n+2)+where, args...)
	if err != nil {
		return false, fmt.Errorf("updating attributes on %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteAlert removes the alert matching the id (or prefix).
func (s *Store) DeleteAlert(ctx context.Context, id string) (bool, error) {
	where, args := idLookup(id)
	tag, err := s.pool.Exec(ctx, `DELETE FROM alerts WHERE `+where, args...)
	if err != nil {
		return false, fmt.Errorf("deleting alert %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// idLookup builds the id predicate shared by the point operations:
// exact match on the full uuid, prefix match on the short 8-character
// form, either way against both id and last_receive_id.
func idLookup(id string) (string, []any) {
	if len(id) == 8 {
		return `(id LIKE $1 || '%' OR last_receive_id LIKE $1 || '%')`, []any{id}
	}
	return `(id = $1 OR last_receive_id = $1)`, []any{id}
}

func marshalAttributes(attrs map[string]any) ([]byte, error) {
	if attrs == nil {
		return []byte(`{}`), nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encoding attributes: %w", err)
	}
	return b, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
