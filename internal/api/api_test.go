package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alertmon/alertd/internal/api"
	"github.com/alertmon/alertd/internal/config"
	"github.com/alertmon/alertd/internal/engine"
	"github.com/alertmon/alertd/internal/testutil"
	"github.com/alertmon/alertd/pkg/types"
)

func newTestServer(t *testing.T, cfg *config.Config) (*api.Server, *testutil.MemStore) {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	store := testutil.NewMemStore()
	eng := engine.New(store, cfg, testutil.NewTestLogger())
	return api.NewServer(eng, cfg, testutil.NewTestLogger()), store
}

func doRequest(t *testing.T, srv *api.Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func receiveAlert(t *testing.T, srv *api.Server, overrides ...func(*types.Alert)) string {
	t.Helper()
	rec := doRequest(t, srv, "POST", "/api/v1/alert", testutil.FixtureAlert(overrides...), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("receive returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &resp)
	return resp.ID
}

func TestReceiveAlertEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, "POST", "/api/v1/alert", testutil.FixtureAlert(), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Status string      `json:"status"`
		ID     string      `json:"id"`
		Alert  types.Alert `json:"alert"`
	}
	decodeBody(t, rec, &resp)
	if resp.Status != "ok" || resp.ID == "" {
		t.Errorf("unexpected envelope: %+v", resp)
	}
	if resp.Alert.Status != types.StatusOpen {
		t.Errorf("alert status = %s, want open", resp.Alert.Status)
	}
}

func TestReceiveAlertValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, "POST", "/api/v1/alert", testutil.FixtureAlert(func(a *types.Alert) {
		a.Environment = ""
	}), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestReceiveAlertSuppressed(t *testing.T) {
	srv, store := newTestServer(t, nil)
	if _, err := store.CreateBlackout(context.Background(), testutil.FixtureBlackout()); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, srv, "POST", "/api/v1/alert", testutil.FixtureAlert(), nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	decodeBody(t, rec, &resp)
	if resp.Status != "ok" || resp.Message == "" {
		t.Errorf("unexpected envelope: %+v", resp)
	}
}

func TestGetAlert(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	id := receiveAlert(t, srv)

	rec := doRequest(t, srv, "GET", "/api/v1/alert/"+id, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	// Short id prefixes resolve too.
	rec = doRequest(t, srv, "GET", "/api/v1/alert/"+id[:8], nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("prefix lookup returned %d", rec.Code)
	}
}

func TestGetAlertNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, "GET", "/api/v1/alert/00000000-0000-0000-0000-000000000000", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteAlert(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	id := receiveAlert(t, srv)

	rec := doRequest(t, srv, "DELETE", "/api/v1/alert/"+id, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete returned %d", rec.Code)
	}
	rec = doRequest(t, srv, "GET", "/api/v1/alert/"+id, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete returned %d, want 404", rec.Code)
	}
}

func TestSetStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	id := receiveAlert(t, srv)

	rec := doRequest(t, srv, "PUT", "/api/v1/alert/"+id+"/status",
		map[string]string{"status": "ack", "text": "investigating"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, "GET", "/api/v1/alert/"+id, nil, nil)
	var resp struct {
		Alert types.Alert `json:"alert"`
	}
	decodeBody(t, rec, &resp)
	if resp.Alert.Status != types.StatusAck {
		t.Errorf("alert status = %s, want ack", resp.Alert.Status)
	}
	last := resp.Alert.History[len(resp.Alert.History)-1]
	if last.Type != types.HistoryStatus || last.Text != "investigating" {
		t.Errorf("last history entry = %+v", last)
	}
}

func TestSetStatusRequiresStatus(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	id := receiveAlert(t, srv)

	rec := doRequest(t, srv, "PUT", "/api/v1/alert/"+id+"/status",
		map[string]string{"text": "no status"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTagUntagEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	id := receiveAlert(t, srv)

	rec := doRequest(t, srv, "PUT", "/api/v1/alert/"+id+"/tag",
		map[string][]string{"tags": {"watch", "dc1"}}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("tag returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, "GET", "/api/v1/alert/"+id, nil, nil)
	var resp struct {
		Alert types.Alert `json:"alert"`
	}
	decodeBody(t, rec, &resp)
	if !containsString(resp.Alert.Tags, "watch") {
		t.Errorf("Tags = %v, want watch added", resp.Alert.Tags)
	}
	// Tag merge does not duplicate existing entries.
	if countString(resp.Alert.Tags, "dc1") != 1 {
		t.Errorf("Tags = %v, dc1 duplicated", resp.Alert.Tags)
	}

	rec = doRequest(t, srv, "PUT", "/api/v1/alert/"+id+"/untag",
		map[string][]string{"tags": {"watch"}}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("untag returned %d", rec.Code)
	}
	rec = doRequest(t, srv, "GET", "/api/v1/alert/"+id, nil, nil)
	decodeBody(t, rec, &resp)
	if containsString(resp.Alert.Tags, "watch") {
		t.Errorf("Tags = %v, watch should be removed", resp.Alert.Tags)
	}
}

func TestUpdateAttributesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	id := receiveAlert(t, srv)

	rec := doRequest(t, srv, "PUT", "/api/v1/alert/"+id+"/attributes",
		map[string]any{"attributes": map[string]any{"region": "eu-west-1", "ticket": "OPS-42"}}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("attributes returned %d: %s", rec.Code, rec.Body.String())
	}

	// A null value unsets the key.
	rec = doRequest(t, srv, "PUT", "/api/v1/alert/"+id+"/attributes",
		map[string]any{"attributes": map[string]any{"ticket": nil}}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("attributes unset returned %d", rec.Code)
	}

	rec = doRequest(t, srv, "GET", "/api/v1/alert/"+id, nil, nil)
	var resp struct {
		Alert types.Alert `json:"alert"`
	}
	decodeBody(t, rec, &resp)
	if resp.Alert.Attributes["region"] != "eu-west-1" {
		t.Errorf("Attributes = %v, want region set", resp.Alert.Attributes)
	}
	if _, ok := resp.Alert.Attributes["ticket"]; ok {
		t.Errorf("Attributes = %v, ticket should be unset", resp.Alert.Attributes)
	}
}

func TestSearchAlerts(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	receiveAlert(t, srv)
	receiveAlert(t, srv, func(a *types.Alert) {
		a.Resource = "web02"
		a.Severity = types.SeverityCritical
	})

	rec := doRequest(t, srv, "GET", "/api/v1/alerts?status=open", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Status         string                 `json:"status"`
		Total          int                    `json:"total"`
		Page           int                    `json:"page"`
		Pages          int                    `json:"pages"`
		More           bool                   `json:"more"`
		Alerts         []types.Alert          `json:"alerts"`
		SeverityCounts map[types.Severity]int `json:"severityCounts"`
	}
	decodeBody(t, rec, &resp)
	if resp.Total != 2 || len(resp.Alerts) != 2 {
		t.Errorf("total=%d alerts=%d, want 2/2", resp.Total, len(resp.Alerts))
	}
	if resp.Page != 1 || resp.Pages != 1 || resp.More {
		t.Errorf("paging envelope = page %d pages %d more %v", resp.Page, resp.Pages, resp.More)
	}
	if resp.SeverityCounts[types.SeverityMajor] != 1 || resp.SeverityCounts[types.SeverityCritical] != 1 {
		t.Errorf("severityCounts = %v", resp.SeverityCounts)
	}
}

func TestSearchAlertsFiltered(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	receiveAlert(t, srv)
	receiveAlert(t, srv, func(a *types.Alert) {
		a.Resource = "web02"
		a.Severity = types.SeverityCritical
	})

	rec := doRequest(t, srv, "GET", "/api/v1/alerts?severity=critical", nil, nil)
	var resp struct {
		Total  int           `json:"total"`
		Alerts []types.Alert `json:"alerts"`
	}
	decodeBody(t, rec, &resp)
	if resp.Total != 1 || len(resp.Alerts) != 1 {
		t.Fatalf("total=%d alerts=%d, want 1/1", resp.Total, len(resp.Alerts))
	}
	if resp.Alerts[0].Resource != "web02" {
		t.Errorf("Resource = %s, want web02", resp.Alerts[0].Resource)
	}
}

func TestSearchAlertsPageOutOfRange(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	receiveAlert(t, srv)

	rec := doRequest(t, srv, "GET", "/api/v1/alerts?page=5", nil, nil)
	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Errorf("status = %d, want 416", rec.Code)
	}
}

func TestAlertHistoryEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	receiveAlert(t, srv)

	rec := doRequest(t, srv, "GET", "/api/v1/alerts/history", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		History []types.HistoryRow `json:"history"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.History) != 1 {
		t.Errorf("history length = %d, want 1", len(resp.History))
	}
}

func TestAlertCountsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	receiveAlert(t, srv)
	receiveAlert(t, srv, func(a *types.Alert) { a.Resource = "web02" })

	rec := doRequest(t, srv, "GET", "/api/v1/alerts/count", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("count returned %d", rec.Code)
	}
	var resp struct {
		Total          int                    `json:"total"`
		SeverityCounts map[types.Severity]int `json:"severityCounts"`
	}
	decodeBody(t, rec, &resp)
	if resp.Total != 2 || resp.SeverityCounts[types.SeverityMajor] != 2 {
		t.Errorf("envelope = %+v", resp)
	}
}

func TestTopNEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	receiveAlert(t, srv)
	receiveAlert(t, srv, func(a *types.Alert) { a.Resource = "web02" })

	rec := doRequest(t, srv, "GET", "/api/v1/alerts/top10/count?group-by=event", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("top10 returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Top []types.TopNGroup `json:"top10"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Top) != 1 || resp.Top[0].Group != "HttpServerError" || resp.Top[0].Count != 2 {
		t.Errorf("top10 = %+v", resp.Top)
	}
}

func TestEnvironmentsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	receiveAlert(t, srv)

	rec := doRequest(t, srv, "GET", "/api/v1/environments", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("environments returned %d", rec.Code)
	}
	var resp struct {
		Environments []types.EnvironmentCount `json:"environments"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Environments) != 1 || resp.Environments[0].Environment != "Production" {
		t.Errorf("environments = %+v", resp.Environments)
	}
}

func TestBlackoutLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, "POST", "/api/v1/blackout",
		map[string]any{"environment": "Production"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &created)
	if created.ID == "" {
		t.Fatal("create returned no id")
	}

	rec = doRequest(t, srv, "GET", "/api/v1/blackouts", nil, nil)
	var list struct {
		Total int `json:"total"`
	}
	decodeBody(t, rec, &list)
	if list.Total != 1 {
		t.Errorf("list total = %d, want 1", list.Total)
	}

	rec = doRequest(t, srv, "GET", "/api/v1/blackout/"+created.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get returned %d", rec.Code)
	}

	rec = doRequest(t, srv, "DELETE", "/api/v1/blackout/"+created.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("delete returned %d", rec.Code)
	}
	rec = doRequest(t, srv, "GET", "/api/v1/blackout/"+created.ID, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete returned %d, want 404", rec.Code)
	}
}

func TestBlackoutDurationSerialized(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	rec := doRequest(t, srv, "POST", "/api/v1/blackout", map[string]any{
		"environment": "Production",
		"startTime":   start.Format(time.RFC3339),
		"endTime":     start.Add(2 * time.Hour).Format(time.RFC3339),
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		ID       string `json:"id"`
		Blackout struct {
			Duration int `json:"duration"`
		} `json:"blackout"`
	}
	decodeBody(t, rec, &resp)
	if resp.Blackout.Duration != 7200 {
		t.Errorf("duration = %d, want 7200", resp.Blackout.Duration)
	}

	// Reads carry it too.
	rec = doRequest(t, srv, "GET", "/api/v1/blackout/"+resp.ID, nil, nil)
	decodeBody(t, rec, &resp)
	if resp.Blackout.Duration != 7200 {
		t.Errorf("get duration = %d, want 7200", resp.Blackout.Duration)
	}
}

func TestBlackoutRequiresEnvironment(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, "POST", "/api/v1/blackout", map[string]any{}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHeartbeatLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, "POST", "/api/v1/heartbeat", testutil.FixtureHeartbeat(), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &created)

	// Same origin upserts onto the same record.
	rec = doRequest(t, srv, "POST", "/api/v1/heartbeat", testutil.FixtureHeartbeat(), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upsert returned %d", rec.Code)
	}

	rec = doRequest(t, srv, "GET", "/api/v1/heartbeats", nil, nil)
	var list struct {
		Total int `json:"total"`
	}
	decodeBody(t, rec, &list)
	if list.Total != 1 {
		t.Errorf("list total = %d, want 1 after upsert", list.Total)
	}

	rec = doRequest(t, srv, "DELETE", "/api/v1/heartbeat/"+created.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("delete returned %d", rec.Code)
	}
}

// fakeCache is an in-memory api.ResponseCache.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	evicted []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[key], nil
}

func (f *fakeCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = data
	return nil
}

func (f *fakeCache) DeletePattern(ctx context.Context, pattern string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicted = append(f.evicted, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for k := range f.entries {
		if strings.HasPrefix(k, prefix) {
			delete(f.entries, k)
		}
	}
	return nil
}

func TestAggregatesCachedAndEvictedOnWrite(t *testing.T) {
	srv, store := newTestServer(t, nil)
	c := newFakeCache()
	srv.SetCache(c)

	receiveAlert(t, srv)

	countTotal := func() int {
		rec := doRequest(t, srv, "GET", "/api/v1/alerts/count", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("count returned %d: %s", rec.Code, rec.Body.String())
		}
		var resp struct {
			Total int `json:"total"`
		}
		decodeBody(t, rec, &resp)
		return resp.Total
	}

	// Prime the cache, then grow the alert set behind the API's back.
	if got := countTotal(); got != 1 {
		t.Fatalf("total = %d, want 1", got)
	}
	store.Seed(testutil.FixtureAlert(func(a *types.Alert) {
		a.Resource = "web02"
		a.Status = types.StatusOpen
	}))

	// Still the cached view: nothing evicted it.
	if got := countTotal(); got != 1 {
		t.Errorf("total = %d, want cached 1", got)
	}

	// A write through the API evicts the aggregate families.
	receiveAlert(t, srv, func(a *types.Alert) { a.Resource = "web03" })
	if got := countTotal(); got != 3 {
		t.Errorf("total = %d, want 3 after eviction", got)
	}

	var sawCounts bool
	for _, pattern := range c.evicted {
		if pattern == "counts:*" {
			sawCounts = true
		}
	}
	if !sawCounts {
		t.Errorf("evicted patterns = %v, want counts:*", c.evicted)
	}
}

func TestStatusChangeEvictsCachedAggregates(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	c := newFakeCache()
	srv.SetCache(c)
	id := receiveAlert(t, srv)

	doRequest(t, srv, "GET", "/api/v1/alerts/count", nil, nil)
	if len(c.entries) == 0 {
		t.Fatal("aggregate response was not cached")
	}

	rec := doRequest(t, srv, "PUT", "/api/v1/alert/"+id+"/status",
		map[string]string{"status": "ack"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status change returned %d", rec.Code)
	}
	if len(c.entries) != 0 {
		t.Errorf("cached entries survived a status change: %v", c.entries)
	}
}

func TestHealthWithoutCollector(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, "GET", "/api/v1/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health returned %d", rec.Code)
	}
	var resp struct {
		Status string `json:"status"`
	}
	decodeBody(t, rec, &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %s, want ok", resp.Status)
	}
}

func TestCustomerScoping(t *testing.T) {
	cfg := config.Default()
	cfg.CustomerViews = true
	srv, _ := newTestServer(t, cfg)

	rec := doRequest(t, srv, "POST", "/api/v1/alert", testutil.FixtureAlert(), map[string]string{
		"X-Customer": "acme",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("receive returned %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID    string      `json:"id"`
		Alert types.Alert `json:"alert"`
	}
	decodeBody(t, rec, &created)
	if created.Alert.Customer != "acme" {
		t.Errorf("Customer = %s, want acme", created.Alert.Customer)
	}

	// Another customer cannot see acme's alert.
	rec = doRequest(t, srv, "GET", "/api/v1/alert/"+created.ID, nil, map[string]string{
		"X-Customer": "globex",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-customer get returned %d, want 404", rec.Code)
	}

	rec = doRequest(t, srv, "GET", "/api/v1/alert/"+created.ID, nil, map[string]string{
		"X-Customer": "acme",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("same-customer get returned %d, want 200", rec.Code)
	}
}

func TestCORSPreflights(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, "OPTIONS", "/api/v1/alerts", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("preflight returned %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS headers")
	}
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func countString(ss []string, s string) int {
	n := 0
	for _, v := range ss {
		if v == s {
			n++
		}
	}
	return n
}
