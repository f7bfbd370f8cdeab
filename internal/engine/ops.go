package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alertmon/alertd/internal/query"
	"github.com/alertmon/alertd/pkg/types"
)

// =============================================================================
// ALERT READS AND POINT MUTATIONS
// =============================================================================

// GetAlert retrieves one alert by full id or 8-char prefix, scoped to
// the caller's customer when set.
func (e *Engine) GetAlert(ctx context.Context, id, customer string) (*types.Alert, error) {
	alert, err := e.store.GetAlert(ctx, id, customer)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, types.ErrNotFound
	}
	return alert, nil
}

// SearchAlerts returns alerts matching the query, in query sort order.
func (e *Engine) SearchAlerts(ctx context.Context, q *query.Query) ([]types.Alert, error) {
	start := time.Now()
	defer e.observe("search", start)
	return e.store.SearchAlerts(ctx, q)
}

// AlertHistory returns flattened history rows for matching alerts.
func (e *Engine) AlertHistory(ctx context.Context, q *query.Query) ([]types.HistoryRow, error) {
	return e.store.AlertHistory(ctx, q)
}

// SetStatus moves an alert to the given status and records a status
// history entry.
func (e *Engine) SetStatus(ctx context.Context, id, customer string, status types.Status, text string) error {
	start := time.Now()
	defer e.observe("status", start)

	alert, err := e.GetAlert(ctx, id, customer)
	if err != nil {
		return err
	}

	ok, err := e.store.SetStatus(ctx, alert.ID, status, text, uuid.New().String(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if !ok {
		return types.ErrNotFound
	}
	e.increment("status_changed")
	return nil
}

// TagAlert appends tags, skipping ones already present.
func (e *Engine) TagAlert(ctx context.Context, id, customer string, tags []string) error {
	alert, err := e.GetAlert(ctx, id, customer)
	if err != nil {
		return err
	}
	ok, err := e.store.TagAlert(ctx, alert.ID, tags)
	if err != nil {
		return fmt.Errorf("tag alert: %w", err)
	}
	if !ok {
		return types.ErrNotFound
	}
	e.increment("tagged")
	return nil
}

// UntagAlert removes tags.
func (e *Engine) UntagAlert(ctx context.Context, id, customer string, tags []string) error {
	alert, err := e.GetAlert(ctx, id, customer)
	if err != nil {
		return err
	}
	ok, err := e.store.UntagAlert(ctx, alert.ID, tags)
	if err != nil {
		return fmt.Errorf("untag alert: %w", err)
	}
	if !ok {
		return types.ErrNotFound
	}
	e.increment("untagged")
	return nil
}

// UpdateAttributes applies set/unset attribute changes.
func (e *Engine) UpdateAttributes(ctx context.Context, id, customer string, changes map[string]types.AttributeChange) error {
	alert, err := e.GetAlert(ctx, id, customer)
	if err != nil {
		return err
	}
	ok, err := e.store.UpdateAttributes(ctx, alert.ID, changes)
	if err != nil {
		return fmt.Errorf("update attributes: %w", err)
	}
	if !ok {
		return types.ErrNotFound
	}
	return nil
}

// DeleteAlert removes an alert. Alerts are never deleted
// automatically; this is the only deletion path.
func (e *Engine) DeleteAlert(ctx context.Context, id, customer string) error {
	alert, err := e.GetAlert(ctx, id, customer)
	if err != nil {
		return err
	}
	ok, err := e.store.DeleteAlert(ctx, alert.ID)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	if !ok {
		return types.ErrNotFound
	}
	e.increment("deleted")
	return nil
}

// =============================================================================
// AGGREGATIONS
// =============================================================================

// CountsBySeverity returns per-severity alert counts for the query.
func (e *Engine) CountsBySeverity(ctx context.Context, q *query.Query) (map[types.Severity]int, error) {
	start := time.Now()
	defer e.observe("counts", start)
	return e.store.CountsBySeverity(ctx, q)
}

// CountsByStatus returns per-status alert counts for the query.
func (e *Engine) CountsByStatus(ctx context.Context, q *query.Query) (map[types.Status]int, error) {
	return e.store.CountsByStatus(ctx, q)
}

// TopN returns the top n groups by alert count (summed duplicate count
// as tie-break), grouped by the given field.
func (e *Engine) TopN(ctx context.Context, q *query.Query, groupBy string, n int) ([]types.TopNGroup, error) {
	if groupBy == "" {
		groupBy = "event"
	}
	return e.store.TopN(ctx, q, groupBy, n)
}

// TopNFlapping is TopN restricted to alerts with at least one severity
// history entry, using max rather than summed duplicate count.
func (e *Engine) TopNFlapping(ctx context.Context, q *query.Query, groupBy string, n int) ([]types.TopNGroup, error) {
	if groupBy == "" {
		groupBy = "event"
	}
	return e.store.TopNFlapping(ctx, q, groupBy, n)
}

// Environments lists distinct environments with alert counts.
func (e *Engine) Environments(ctx context.Context, q *query.Query) ([]types.EnvironmentCount, error) {
	return e.store.Environments(ctx, q)
}

// Services lists distinct (environment, service) pairs with counts.
func (e *Engine) Services(ctx context.Context, q *query.Query) ([]types.ServiceCount, error) {
	return e.store.Services(ctx, q)
}

// =============================================================================
// BLACKOUTS
// =============================================================================

// CreateBlackout validates and stores a maintenance window.
func (e *Engine) CreateBlackout(ctx context.Context, b *types.Blackout, customer string) (*types.Blackout, error) {
	if b.Environment == "" {
		return nil, types.NewValidationError("environment", "", "must not be empty")
	}
	if customer != "" {
		b.Customer = customer
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.StartTime.IsZero() {
		b.StartTime = time.Now().UTC()
	}
	if b.EndTime.IsZero() {
		b.EndTime = b.StartTime.Add(time.Hour)
	}
	if !b.EndTime.After(b.StartTime) {
		return nil, types.NewValidationError("endTime", b.EndTime.Format(time.RFC3339), "must be after startTime")
	}
	return e.store.CreateBlackout(ctx, b)
}

// GetBlackout retrieves one blackout, customer scoped.
func (e *Engine) GetBlackout(ctx context.Context, id, customer string) (*types.Blackout, error) {
	b, err := e.store.GetBlackout(ctx, id, customer)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, types.ErrNotFound
	}
	return b, nil
}

// ListBlackouts returns all blackouts visible to the customer scope.
func (e *Engine) ListBlackouts(ctx context.Context, customer string) ([]types.Blackout, error) {
	return e.store.ListBlackouts(ctx, customer)
}

// DeleteBlackout removes a blackout.
func (e *Engine) DeleteBlackout(ctx context.Context, id, customer string) error {
	b, err := e.GetBlackout(ctx, id, customer)
	if err != nil {
		return err
	}
	ok, err := e.store.DeleteBlackout(ctx, b.ID)
	if err != nil {
		return fmt.Errorf("delete blackout: %w", err)
	}
	if !ok {
		return types.ErrNotFound
	}
	return nil
}

// =============================================================================
// HEARTBEATS
// =============================================================================

// ReceiveHeartbeat upserts a heartbeat keyed by (origin, customer),
// replacing the mutable fields wholesale.
func (e *Engine) ReceiveHeartbeat(ctx context.Context, hb *types.Heartbeat, customer string) (*types.Heartbeat, error) {
	if hb.Origin == "" {
		return nil, types.NewValidationError("origin", "", "must not be empty")
	}
	if customer != "" {
		hb.Customer = customer
	}
	if hb.ID == "" {
		hb.ID = uuid.New().String()
	}
	if hb.Type == "" {
		hb.Type = "Heartbeat"
	}
	if hb.CreateTime.IsZero() {
		hb.CreateTime = time.Now().UTC()
	}
	hb.ReceiveTime = time.Now().UTC()
	return e.store.UpsertHeartbeat(ctx, hb)
}

// GetHeartbeat retrieves one heartbeat by id or 8-char prefix.
func (e *Engine) GetHeartbeat(ctx context.Context, id, customer string) (*types.Heartbeat, error) {
	hb, err := e.store.GetHeartbeat(ctx, id, customer)
	if err != nil {
		return nil, err
	}
	if hb == nil {
		return nil, types.ErrNotFound
	}
	return hb, nil
}

// ListHeartbeats returns heartbeats visible to the customer scope.
func (e *Engine) ListHeartbeats(ctx context.Context, customer string) ([]types.Heartbeat, error) {
	return e.store.ListHeartbeats(ctx, customer)
}

// DeleteHeartbeat removes a heartbeat.
func (e *Engine) DeleteHeartbeat(ctx context.Context, id, customer string) error {
	hb, err := e.GetHeartbeat(ctx, id, customer)
	if err != nil {
		return err
	}
	ok, err := e.store.DeleteHeartbeat(ctx, hb.ID)
	if err != nil {
		return fmt.Errorf("delete heartbeat: %w", err)
	}
	if !ok {
		return types.ErrNotFound
	}
	return nil
}
