// Package engine implements the alert correlation/deduplication state
// machine and its supporting gates (blackout matching, rate limiting,
// flapping detection).
//
// # Correlation
//
// Each incoming alert resolves, in order, to one of three transitions:
//
//  1. duplicate:  an alert with the same (environment, resource, event,
//     severity, customer) exists
//  2. correlated: an alert with the same (environment, resource,
//     customer) exists where either the event matches with a different
//     severity, or the existing alert's correlate list names the
//     incoming event
//  3. new:        neither lookup matched
//
// The engine holds no state between calls. Correctness under
// concurrent ingestion of the same alert key relies entirely on the
// store's conditional-update primitive: apply the update iff the row
// still matches the lookup predicate, returning the post-image or a
// miss. On a miss (or an insert losing the identity-key race) the
// whole decision is re-run from the lookup step, bounded by the
// configured retry budget.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alertmon/alertd/internal/config"
	"github.com/alertmon/alertd/internal/query"
	"github.com/alertmon/alertd/pkg/types"
)

// Store is the persistence contract the engine requires. The Postgres
// implementation lives in internal/store.
type Store interface {
	// Correlation lookups and guarded transitions. DedupAlert and
	// CorrelateAlert return types.ErrNotFound when the guard predicate
	// no longer matched at commit time; CreateAlert returns
	// types.ErrConflict when a concurrent insert won the identity-key
	// race.
	IsDuplicate(ctx context.Context, a *types.Alert) (bool, error)
	IsCorrelated(ctx context.Context, a *types.Alert) (bool, error)
	PreviousSeverity(ctx context.Context, a *types.Alert) (types.Severity, error)
	PreviousStatus(ctx context.Context, a *types.Alert) (types.Status, error)
	DedupAlert(ctx context.Context, a *types.Alert, status types.Status, entry *types.HistoryEntry, now time.Time) (*types.Alert, error)
	CorrelateAlert(ctx context.Context, a *types.Alert, update CorrelateUpdate, now time.Time) (*types.Alert, error)
	CreateAlert(ctx context.Context, a *types.Alert) (*types.Alert, error)

	// Alert reads and point mutations.
	GetAlert(ctx context.Context, id, customer string) (*types.Alert, error)
	SearchAlerts(ctx context.Context, q *query.Query) ([]types.Alert, error)
	AlertHistory(ctx context.Context, q *query.Query) ([]types.HistoryRow, error)
	SetStatus(ctx context.Context, id string, status types.Status, text, sourceID string, now time.Time) (bool, error)
	TagAlert(ctx context.Context, id string, tags []string) (bool, error)
	UntagAlert(ctx context.Context, id string, tags []string) (bool, error)
	UpdateAttributes(ctx context.Context, id string, changes map[string]types.AttributeChange) (bool, error)
	DeleteAlert(ctx context.Context, id string) (bool, error)

	// Aggregations.
	CountsBySeverity(ctx context.Context, q *query.Query) (map[types.Severity]int, error)
	CountsByStatus(ctx context.Context, q *query.Query) (map[types.Status]int, error)
	TopN(ctx context.Context, q *query.Query, groupBy string, n int) ([]types.TopNGroup, error)
	TopNFlapping(ctx context.Context, q *query.Query, groupBy string, n int) ([]types.TopNGroup, error)
	Environments(ctx context.Context, q *query.Query) ([]types.EnvironmentCount, error)
	Services(ctx context.Context, q *query.Query) ([]types.ServiceCount, error)

	// Flapping input: number of severity-typed history entries for the
	// (environment, resource, event) tuple newer than since.
	CountSeverityHistory(ctx context.Context, environment, resource, event string, since time.Time) (int, error)

	// Blackouts.
	ActiveBlackouts(ctx context.Context, environment string, now time.Time) ([]types.Blackout, error)
	CreateBlackout(ctx context.Context, b *types.Blackout) (*types.Blackout, error)
	GetBlackout(ctx context.Context, id, customer string) (*types.Blackout, error)
	ListBlackouts(ctx context.Context, customer string) ([]types.Blackout, error)
	DeleteBlackout(ctx context.Context, id string) (bool, error)

	// Heartbeats.
	UpsertHeartbeat(ctx context.Context, hb *types.Heartbeat) (*types.Heartbeat, error)
	GetHeartbeat(ctx context.Context, id, customer string) (*types.Heartbeat, error)
	ListHeartbeats(ctx context.Context, customer string) ([]types.Heartbeat, error)
	DeleteHeartbeat(ctx context.Context, id string) (bool, error)
}

// CorrelateUpdate carries the values the engine computed for a
// correlated transition before handing it to the store.
type CorrelateUpdate struct {
	PreviousSeverity types.Severity
	Trend            types.TrendIndication
	Status           types.Status
	History          []types.HistoryEntry
}

// RateLimiter gates ingestion per origin.
type RateLimiter interface {
	Allow(origin string) bool
}

// MetricsSink receives operation counters and durations.
type MetricsSink interface {
	Increment(name string)
	Observe(name string, d time.Duration)
}

// Engine is the alert correlation engine. It is safe for concurrent
// use; all durable state lives in the store.
type Engine struct {
	store   Store
	cfg     *config.Config
	logger  *slog.Logger
	limiter RateLimiter // optional
	metrics MetricsSink // optional
}

// New creates an engine.
func New(store Store, cfg *config.Config, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// SetRateLimiter installs the per-origin ingestion gate.
func (e *Engine) SetRateLimiter(l RateLimiter) {
	e.limiter = l
}

// SetMetrics installs the telemetry sink.
func (e *Engine) SetMetrics(m MetricsSink) {
	e.metrics = m
}

// Receive ingests one alert: validate, gate on rate limit and blackout
// windows, then run the dedup/correlate/create decision. customer is
// the caller's resolved scope; when non-empty it overrides whatever the
// payload carried.
//
// Returns the committed post-image, or one of types.ErrRateLimited,
// types.ErrSuppressed, types.ErrRetryExhausted, or a
// *types.ValidationError.
func (e *Engine) Receive(ctx context.Context, incoming *types.Alert, customer string) (*types.Alert, error) {
	start := time.Now()
	defer e.observe("receive", start)

	if customer != "" {
		incoming.Customer = customer
	}
	if err := e.prepare(incoming); err != nil {
		return nil, err
	}

	if e.limiter != nil && !e.limiter.Allow(incoming.Origin) {
		e.increment("received_ratelimited")
		return nil, types.ErrRateLimited
	}

	now := time.Now().UTC()
	blackedOut, err := e.IsBlackedOut(ctx, incoming, now)
	if err != nil {
		return nil, fmt.Errorf("blackout check: %w", err)
	}
	if blackedOut {
		e.increment("received_suppressed")
		return nil, types.ErrSuppressed
	}

	for attempt := 0; attempt <= e.cfg.RetryLimit; attempt++ {
		alert, err := e.transition(ctx, incoming)
		if errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrConflict) {
			// Lost a race with a concurrent writer for the same alert
			// key. Re-run the decision from the lookup step.
			e.logger.Debug("ingest transition raced, retrying",
				"resource", incoming.Resource,
				"event", incoming.Event,
				"attempt", attempt,
			)
			continue
		}
		if err != nil {
			return nil, err
		}
		e.increment("received")
		return alert, nil
	}

	e.increment("received_race_exhausted")
	return nil, types.ErrRetryExhausted
}

// transition runs one dedup-before-correlate-before-create decision.
func (e *Engine) transition(ctx context.Context, incoming *types.Alert) (*types.Alert, error) {
	now := time.Now().UTC()

	dup, err := e.store.IsDuplicate(ctx, incoming)
	if err != nil {
		return nil, fmt.Errorf("duplicate lookup: %w", err)
	}
	if dup {
		return e.dedup(ctx, incoming, now)
	}

	correlated, err := e.store.IsCorrelated(ctx, incoming)
	if err != nil {
		return nil, fmt.Errorf("correlation lookup: %w", err)
	}
	if correlated {
		return e.correlate(ctx, incoming, now)
	}

	return e.create(ctx, incoming, now)
}

// dedup applies the duplicate transition: bump duplicateCount, refresh
// value/text/last-receive tracking, and append a status history entry
// only if the status changed.
func (e *Engine) dedup(ctx context.Context, incoming *types.Alert, now time.Time) (*types.Alert, error) {
	previousStatus, err := e.store.PreviousStatus(ctx, incoming)
	if err != nil {
		return nil, err
	}

	var status types.Status
	if incoming.Status != types.StatusUnknown && incoming.Status != previousStatus {
		status = incoming.Status
	} else {
		status = e.cfg.Rules.DeriveStatus(incoming.Severity, incoming.Severity, previousStatus)
	}

	var entry *types.HistoryEntry
	if status != previousStatus {
		entry = &types.HistoryEntry{
			ID:         incoming.ID,
			Event:      incoming.Event,
			Type:       types.HistoryStatus,
			Status:     status,
			Text:       "duplicate alert status change",
			UpdateTime: now,
		}
	}

	return e.store.DedupAlert(ctx, incoming, status, entry, now)
}

// correlate applies the correlated transition: overwrite the key
// fields, reset duplicateCount, record previous severity and trend,
// and append a severity history entry (plus a status entry if the
// status changed).
func (e *Engine) correlate(ctx context.Context, incoming *types.Alert, now time.Time) (*types.Alert, error) {
	previousSeverity, err := e.store.PreviousSeverity(ctx, incoming)
	if err != nil {
		return nil, err
	}
	previousStatus, err := e.store.PreviousStatus(ctx, incoming)
	if err != nil {
		return nil, err
	}

	var status types.Status
	if incoming.Status == types.StatusUnknown {
		status = e.cfg.Rules.DeriveStatus(previousSeverity, incoming.Severity, previousStatus)
	} else {
		status = incoming.Status
	}

	update := CorrelateUpdate{
		PreviousSeverity: previousSeverity,
		Trend:            e.cfg.Rules.Trend(previousSeverity, incoming.Severity),
		Status:           status,
		History: []types.HistoryEntry{{
			ID:         incoming.ID,
			Event:      incoming.Event,
			Type:       types.HistorySeverity,
			Severity:   incoming.Severity,
			Value:      incoming.Value,
			Text:       incoming.Text,
			UpdateTime: now,
		}},
	}
	if status != previousStatus {
		update.History = append(update.History, types.HistoryEntry{
			ID:         incoming.ID,
			Event:      incoming.Event,
			Type:       types.HistoryStatus,
			Status:     status,
			Text:       "correlated alert status change",
			UpdateTime: now,
		})
	}

	return e.store.CorrelateAlert(ctx, incoming, update, now)
}

// create inserts a fresh alert record for an unmatched ingestion.
func (e *Engine) create(ctx context.Context, incoming *types.Alert, now time.Time) (*types.Alert, error) {
	a := *incoming
	if a.Status == types.StatusUnknown {
		a.Status = e.cfg.Rules.DeriveStatus(types.SeverityUnknown, a.Severity, types.StatusUnknown)
	}
	a.DuplicateCount = 0
	a.Repeat = false
	a.PreviousSeverity = ""
	a.TrendIndication = ""
	a.ReceiveTime = now
	a.LastReceiveID = a.ID
	a.LastReceiveTime = now
	a.History = []types.HistoryEntry{{
		ID:         a.ID,
		Event:      a.Event,
		Type:       types.HistorySeverity,
		Severity:   a.Severity,
		Value:      a.Value,
		Text:       a.Text,
		UpdateTime: now,
	}}

	return e.store.CreateAlert(ctx, &a)
}

// prepare validates required fields and applies payload defaults.
func (e *Engine) prepare(a *types.Alert) error {
	switch {
	case a.Environment == "":
		return types.NewValidationError("environment", "", "must not be empty")
	case a.Resource == "":
		return types.NewValidationError("resource", "", "must not be empty")
	case a.Event == "":
		return types.NewValidationError("event", "", "must not be empty")
	case a.Timeout < 0:
		return types.NewValidationError("timeout", fmt.Sprint(a.Timeout), "must not be negative")
	}

	if a.Severity == "" {
		a.Severity = types.SeverityNormal
	}
	if a.Severity != types.SeverityUnknown && !e.cfg.Rules.Known(a.Severity) {
		return types.NewValidationError("severity", string(a.Severity), "not a recognized severity")
	}
	if a.Status == "" {
		a.Status = types.StatusUnknown
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Type == "" {
		a.Type = "exceptionAlert"
	}
	if a.CreateTime.IsZero() {
		a.CreateTime = time.Now().UTC()
	}
	if a.Timeout == 0 {
		a.Timeout = config.DefaultTimeout
	}
	return nil
}

// IsFlapping reports whether the alert's severity changed more than
// threshold times within the trailing window. Zero window/threshold
// fall back to the configured defaults.
func (e *Engine) IsFlapping(ctx context.Context, a *types.Alert, window time.Duration, threshold int) (bool, error) {
	if window <= 0 {
		window = e.cfg.FlappingWindow
	}
	if threshold <= 0 {
		threshold = e.cfg.FlappingThreshold
	}
	since := time.Now().UTC().Add(-window)
	count, err := e.store.CountSeverityHistory(ctx, a.Environment, a.Resource, a.Event, since)
	if err != nil {
		return false, fmt.Errorf("severity history count: %w", err)
	}
	return count > threshold, nil
}

func (e *Engine) increment(name string) {
	if e.metrics != nil {
		e.metrics.Increment(name)
	}
}

func (e *Engine) observe(name string, start time.Time) {
	if e.metrics != nil {
		e.metrics.Observe(name, time.Since(start))
	}
}
