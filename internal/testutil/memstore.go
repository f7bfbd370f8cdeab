package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alertmon/alertd/internal/engine"
	"github.com/alertmon/alertd/internal/query"
	"github.com/alertmon/alertd/pkg/types"
)

// MemStore is an in-memory engine store with the same transition
// semantics as the Postgres store: guarded updates that miss report
// types.ErrNotFound, inserts that lose the identity-key race report
// types.ErrConflict, and history is ring-bounded at HistoryLimit.
//
// FailNextDedup, FailNextCorrelate and FailNextCreate inject one
// guard miss / insert conflict each, for exercising retry paths.
type MemStore struct {
	mu         sync.Mutex
	alerts     map[string]*types.Alert
	blackouts  map[string]*types.Blackout
	heartbeats map[string]*types.Heartbeat

	HistoryLimit int

	FailNextDedup     bool
	FailNextCorrelate bool
	FailNextCreate    bool
}

// NewMemStore creates an empty MemStore with a history cap of 100.
func NewMemStore() *MemStore {
	return &MemStore{
		alerts:       make(map[string]*types.Alert),
		blackouts:    make(map[string]*types.Blackout),
		heartbeats:   make(map[string]*types.Heartbeat),
		HistoryLimit: 100,
	}
}

// Seed inserts an alert verbatim, bypassing transition logic.
func (m *MemStore) Seed(a *types.Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *a
	m.alerts[a.ID] = &clone
}

func isDuplicateOf(stored, incoming *types.Alert) bool {
	return stored.Environment == incoming.Environment &&
		stored.Resource == incoming.Resource &&
		stored.Customer == incoming.Customer &&
		stored.Event == incoming.Event &&
		stored.Severity == incoming.Severity
}

func isCorrelatedTo(stored, incoming *types.Alert) bool {
	if stored.Environment != incoming.Environment ||
		stored.Resource != incoming.Resource ||
		stored.Customer != incoming.Customer {
		return false
	}
	if stored.Event == incoming.Event {
		return stored.Severity != incoming.Severity
	}
	for _, event := range stored.Correlate {
		if event == incoming.Event {
			return true
		}
	}
	return false
}

func isRelatedTo(stored, incoming *types.Alert) bool {
	if stored.Environment != incoming.Environment ||
		stored.Resource != incoming.Resource ||
		stored.Customer != incoming.Customer {
		return false
	}
	if stored.Event == incoming.Event {
		return true
	}
	for _, event := range stored.Correlate {
		if event == incoming.Event {
			return true
		}
	}
	return false
}

func (m *MemStore) findLocked(pred func(*types.Alert) bool) *types.Alert {
	for _, stored := range m.alerts {
		if pred(stored) {
			return stored
		}
	}
	return nil
}

func (m *MemStore) IsDuplicate(ctx context.Context, a *types.Alert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findLocked(func(s *types.Alert) bool { return isDuplicateOf(s, a) }) != nil, nil
}

func (m *MemStore) IsCorrelated(ctx context.Context, a *types.Alert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findLocked(func(s *types.Alert) bool { return isCorrelatedTo(s, a) }) != nil, nil
}

func (m *MemStore) PreviousSeverity(ctx context.Context, a *types.Alert) (types.Severity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored := m.findLocked(func(s *types.Alert) bool { return isCorrelatedTo(s, a) }); stored != nil {
		return stored.Severity, nil
	}
	return "", types.ErrNotFound
}

func (m *MemStore) PreviousStatus(ctx context.Context, a *types.Alert) (types.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored := m.findLocked(func(s *types.Alert) bool { return isRelatedTo(s, a) }); stored != nil {
		return stored.Status, nil
	}
	return "", types.ErrNotFound
}

func (m *MemStore) capHistory(history []types.HistoryEntry) []types.HistoryEntry {
	if len(history) > m.HistoryLimit {
		history = history[len(history)-m.HistoryLimit:]
	}
	return history
}

func mergeTags(existing, incoming []string) []string {
	for _, tag := range incoming {
		found := false
		for _, have := range existing {
			if have == tag {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, tag)
		}
	}
	return existing
}

func (m *MemStore) DedupAlert(ctx context.Context, a *types.Alert, status types.Status, entry *types.HistoryEntry, now time.Time) (*types.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNextDedup {
		m.FailNextDedup = false
		return nil, types.ErrNotFound
	}

	stored := m.findLocked(func(s *types.Alert) bool { return isDuplicateOf(s, a) })
	if stored == nil {
		return nil, types.ErrNotFound
	}

	stored.Status = status
	stored.Value = a.Value
	stored.Text = a.Text
	stored.RawData = a.RawData
	stored.Repeat = true
	stored.DuplicateCount++
	stored.LastReceiveID = a.ID
	stored.LastReceiveTime = now
	stored.Tags = mergeTags(stored.Tags, a.Tags)
	if len(a.Attributes) > 0 {
		if stored.Attributes == nil {
			stored.Attributes = map[string]any{}
		}
		for k, v := range a.Attributes {
			stored.Attributes[k] = v
		}
	}
	if entry != nil {
		stored.History = m.capHistory(append(stored.History, *entry))
	}

	clone := *stored
	return &clone, nil
}

func (m *MemStore) CorrelateAlert(ctx context.Context, a *types.Alert, update engine.CorrelateUpdate, now time.Time) (*types.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNextCorrelate {
		m.FailNextCorrelate = false
		return nil, types.ErrNotFound
	}

	stored := m.findLocked(func(s *types.Alert) bool { return isCorrelatedTo(s, a) })
	if stored == nil {
		return nil, types.ErrNotFound
	}

	stored.Event = a.Event
	stored.Severity = a.Severity
	stored.Status = update.Status
	stored.Value = a.Value
	stored.Text = a.Text
	stored.CreateTime = a.CreateTime
	stored.RawData = a.RawData
	stored.DuplicateCount = 0
	stored.Repeat = false
	stored.PreviousSeverity = update.PreviousSeverity
	stored.TrendIndication = update.Trend
	stored.ReceiveTime = now
	stored.LastReceiveID = a.ID
	stored.LastReceiveTime = now
	stored.Tags = mergeTags(stored.Tags, a.Tags)
	if len(a.Attributes) > 0 {
		if stored.Attributes == nil {
			stored.Attributes = map[string]any{}
		}
		for k, v := range a.Attributes {
			stored.Attributes[k] = v
		}
	}
	stored.History = m.capHistory(append(stored.History, update.History...))

	clone := *stored
	return &clone, nil
}

func (m *MemStore) CreateAlert(ctx context.Context, a *types.Alert) (*types.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNextCreate {
		m.FailNextCreate = false
		return nil, types.ErrConflict
	}

	conflict := m.findLocked(func(s *types.Alert) bool {
		return s.Environment == a.Environment && s.Customer == a.Customer &&
			s.Resource == a.Resource && s.Event == a.Event
	})
	if conflict != nil {
		return nil, types.ErrConflict
	}

	clone := *a
	m.alerts[a.ID] = &clone
	out := clone
	return &out, nil
}

func matchesID(stored *types.Alert, id string) bool {
	if len(id) == 8 {
		return strings.HasPrefix(stored.ID, id) || strings.HasPrefix(stored.LastReceiveID, id)
	}
	return stored.ID == id || stored.LastReceiveID == id
}

func (m *MemStore) GetAlert(ctx context.Context, id, customer string) (*types.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.findLocked(func(s *types.Alert) bool {
		if customer != "" && s.Customer != customer {
			return false
		}
		return matchesID(s, id)
	})
	if stored == nil {
		return nil, nil
	}
	clone := *stored
	return &clone, nil
}

func (m *MemStore) SearchAlerts(ctx context.Context, q *query.Query) ([]types.Alert, error) {
	m.mu.Lock()
	var matched []types.Alert
	for _, stored := range m.alerts {
		if q.Match(stored) {
			matched = append(matched, *stored)
		}
	}
	m.mu.Unlock()

	q.SortAlerts(matched)

	offset := (q.Page - 1) * q.PageSize
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + q.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (m *MemStore) AlertHistory(ctx context.Context, q *query.Query) ([]types.HistoryRow, error) {
	m.mu.Lock()
	var rows []types.HistoryRow
	for _, stored := range m.alerts {
		if !q.Match(stored) {
			continue
		}
		for _, entry := range stored.History {
			rows = append(rows, types.HistoryRow{
				ID:          stored.ID,
				Resource:    stored.Resource,
				Event:       entry.Event,
				Environment: stored.Environment,
				Severity:    entry.Severity,
				Status:      entry.Status,
				Service:     stored.Service,
				Group:       stored.Group,
				Value:       entry.Value,
				Text:        entry.Text,
				Tags:        stored.Tags,
				Attributes:  stored.Attributes,
				Origin:      stored.Origin,
				Type:        entry.Type,
				Customer:    stored.Customer,
				UpdateTime:  entry.UpdateTime,
			})
		}
	}
	m.mu.Unlock()

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].UpdateTime.Before(rows[j].UpdateTime)
	})
	if len(rows) > q.PageSize {
		rows = rows[:q.PageSize]
	}
	return rows, nil
}

func (m *MemStore) SetStatus(ctx context.Context, id string, status types.Status, text, sourceID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.findLocked(func(s *types.Alert) bool { return matchesID(s, id) })
	if stored == nil {
		return false, nil
	}
	stored.Status = status
	stored.History = m.capHistory(append(stored.History, types.HistoryEntry{
		ID:         sourceID,
		Event:      stored.Event,
		Type:       types.HistoryStatus,
		Status:     status,
		Text:       text,
		UpdateTime: now,
	}))
	return true, nil
}

func (m *MemStore) TagAlert(ctx context.Context, id string, tags []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.findLocked(func(s *types.Alert) bool { return matchesID(s, id) })
	if stored == nil {
		return false, nil
	}
	stored.Tags = mergeTags(stored.Tags, tags)
	return true, nil
}

func (m *MemStore) UntagAlert(ctx context.Context, id string, tags []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.findLocked(func(s *types.Alert) bool { return matchesID(s, id) })
	if stored == nil {
		return false, nil
	}
	var kept []string
	for _, have := range stored.Tags {
		remove := false
		for _, tag := range tags {
			if have == tag {
				remove = true
				break
			}
		}
		if !remove {
			kept = append(kept, have)
		}
	}
	stored.Tags = kept
	return true, nil
}

func (m *MemStore) UpdateAttributes(ctx context.Context, id string, changes map[string]types.AttributeChange) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.findLocked(func(s *types.Alert) bool { return matchesID(s, id) })
	if stored == nil {
		return false, nil
	}
	if stored.Attributes == nil {
		stored.Attributes = map[string]any{}
	}
	for key, change := range changes {
		if change.Unset {
			delete(stored.Attributes, key)
		} else {
			stored.Attributes[key] = change.Value
		}
	}
	return true, nil
}

func (m *MemStore) DeleteAlert(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.findLocked(func(s *types.Alert) bool { return matchesID(s, id) })
	if stored == nil {
		return false, nil
	}
	delete(m.alerts, stored.ID)
	return true, nil
}

// =============================================================================
// AGGREGATIONS
// =============================================================================

func (m *MemStore) CountsBySeverity(ctx context.Context, q *query.Query) (map[types.Severity]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := map[types.Severity]int{}
	for _, stored := range m.alerts {
		if q.Match(stored) {
			counts[stored.Severity]++
		}
	}
	return counts, nil
}

func (m *MemStore) CountsByStatus(ctx context.Context, q *query.Query) (map[types.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := map[types.Status]int{}
	for _, stored := range m.alerts {
		if q.Match(stored) {
			counts[stored.Status]++
		}
	}
	return counts, nil
}

func groupValue(a *types.Alert, field string) string {
	switch field {
	case "event":
		return a.Event
	case "resource":
		return a.Resource
	case "environment":
		return a.Environment
	case "group":
		return a.Group
	case "origin":
		return a.Origin
	case "severity":
		return string(a.Severity)
	case "status":
		return string(a.Status)
	case "customer":
		return a.Customer
	}
	return ""
}

func severityEntryCount(a *types.Alert) int {
	n := 0
	for _, entry := range a.History {
		if entry.Type == types.HistorySeverity {
			n++
		}
	}
	return n
}

type topNAccumulator struct {
	count     int
	dup       int
	envs      map[string]bool
	svcs      map[string]bool
	resources map[string]string // id -> resource
}

func (m *MemStore) topN(q *query.Query, groupBy string, n int, flapping bool) ([]types.TopNGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch groupBy {
	case "event", "resource", "environment", "group", "origin", "severity", "status", "customer":
	default:
		return nil, types.NewValidationError("group-by", groupBy, "not a groupable field")
	}

	acc := map[string]*topNAccumulator{}
	for _, stored := range m.alerts {
		if !q.Match(stored) {
			continue
		}
		key := groupValue(stored, groupBy)
		// Expand per service: no services, no contribution.
		for _, svc := range stored.Service {
			bucket, ok := acc[key]
			if !ok {
				bucket = &topNAccumulator{
					envs:      map[string]bool{},
					svcs:      map[string]bool{},
					resources: map[string]string{},
				}
				acc[key] = bucket
			}
			bucket.envs[stored.Environment] = true
			bucket.svcs[svc] = true
			bucket.resources[stored.ID] = stored.Resource
			if flapping {
				bucket.count += severityEntryCount(stored)
				if stored.DuplicateCount > bucket.dup {
					bucket.dup = stored.DuplicateCount
				}
			} else {
				bucket.count++
				bucket.dup += stored.DuplicateCount
			}
		}
	}

	var groups []types.TopNGroup
	for key, bucket := range acc {
		g := types.TopNGroup{
			Group:          key,
			Count:          bucket.count,
			DuplicateCount: bucket.dup,
		}
		for env := range bucket.envs {
			g.Environments = append(g.Environments, env)
		}
		for svc := range bucket.svcs {
			g.Services = append(g.Services, svc)
		}
		for id, resource := range bucket.resources {
			g.Resources = append(g.Resources, types.TopNResource{ID: id, Resource: resource})
		}
		sort.Strings(g.Environments)
		sort.Strings(g.Services)
		groups = append(groups, g)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].DuplicateCount > groups[j].DuplicateCount
	})
	if len(groups) > n {
		groups = groups[:n]
	}
	return groups, nil
}

func (m *MemStore) TopN(ctx context.Context, q *query.Query, groupBy string, n int) ([]types.TopNGroup, error) {
	return m.topN(q, groupBy, n, false)
}

func (m *MemStore) TopNFlapping(ctx context.Context, q *query.Query, groupBy string, n int) ([]types.TopNGroup, error) {
	return m.topN(q, groupBy, n, true)
}

func (m *MemStore) Environments(ctx context.Context, q *query.Query) ([]types.EnvironmentCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := map[string]int{}
	for _, stored := range m.alerts {
		if q.Match(stored) {
			counts[stored.Environment]++
		}
	}
	var out []types.EnvironmentCount
	for env, n := range counts {
		out = append(out, types.EnvironmentCount{Environment: env, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Environment < out[j].Environment })
	return out, nil
}

func (m *MemStore) Services(ctx context.Context, q *query.Query) ([]types.ServiceCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type key struct{ env, svc string }
	counts := map[key]int{}
	for _, stored := range m.alerts {
		if !q.Match(stored) {
			continue
		}
		for _, svc := range stored.Service {
			counts[key{stored.Environment, svc}]++
		}
	}
	var out []types.ServiceCount
	for k, n := range counts {
		out = append(out, types.ServiceCount{Environment: k.env, Service: k.svc, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Environment != out[j].Environment {
			return out[i].Environment < out[j].Environment
		}
		return out[i].Service < out[j].Service
	})
	return out, nil
}

func (m *MemStore) CountSeverityHistory(ctx context.Context, environment, resource, event string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, stored := range m.alerts {
		if stored.Environment != environment || stored.Resource != resource || stored.Event != event {
			continue
		}
		for _, entry := range stored.History {
			if entry.Type == types.HistorySeverity && entry.UpdateTime.After(since) {
				n++
			}
		}
	}
	return n, nil
}

// =============================================================================
// BLACKOUTS
// =============================================================================

func (m *MemStore) ActiveBlackouts(ctx context.Context, environment string, now time.Time) ([]types.Blackout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.Blackout
	for _, b := range m.blackouts {
		if b.Environment == environment && b.Active(now) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *MemStore) CreateBlackout(ctx context.Context, b *types.Blackout) (*types.Blackout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.blackouts[b.ID]; exists {
		return nil, types.ErrConflict
	}
	clone := *b
	m.blackouts[b.ID] = &clone
	out := clone
	return &out, nil
}

func (m *MemStore) GetBlackout(ctx context.Context, id, customer string) (*types.Blackout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.blackouts[id]
	if !ok || (customer != "" && b.Customer != customer) {
		return nil, nil
	}
	clone := *b
	return &clone, nil
}

func (m *MemStore) ListBlackouts(ctx context.Context, customer string) ([]types.Blackout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.Blackout
	for _, b := range m.blackouts {
		if customer != "" && b.Customer != customer {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (m *MemStore) DeleteBlackout(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blackouts[id]; !ok {
		return false, nil
	}
	delete(m.blackouts, id)
	return true, nil
}

// =============================================================================
// HEARTBEATS
// =============================================================================

func (m *MemStore) UpsertHeartbeat(ctx context.Context, hb *types.Heartbeat) (*types.Heartbeat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.heartbeats {
		if existing.Origin == hb.Origin && existing.Customer == hb.Customer {
			id := existing.ID
			clone := *hb
			clone.ID = id
			m.heartbeats[id] = &clone
			out := clone
			return &out, nil
		}
	}
	clone := *hb
	m.heartbeats[hb.ID] = &clone
	out := clone
	return &out, nil
}

func (m *MemStore) GetHeartbeat(ctx context.Context, id, customer string) (*types.Heartbeat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, hb := range m.heartbeats {
		if customer != "" && hb.Customer != customer {
			continue
		}
		if hb.ID == id || (len(id) == 8 && strings.HasPrefix(hb.ID, id)) {
			clone := *hb
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *MemStore) ListHeartbeats(ctx context.Context, customer string) ([]types.Heartbeat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.Heartbeat
	for _, hb := range m.heartbeats {
		if customer != "" && hb.Customer != customer {
			continue
		}
		out = append(out, *hb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceiveTime.After(out[j].ReceiveTime) })
	return out, nil
}

func (m *MemStore) DeleteHeartbeat(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.heartbeats[id]; !ok {
		return false, nil
	}
	delete(m.heartbeats, id)
	return true, nil
}
