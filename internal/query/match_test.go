package query

import (
	"testing"
	"time"

	"github.com/alertmon/alertd/pkg/types"
)

func sampleAlert() *types.Alert {
	return &types.Alert{
		ID:              "a1b2c3d4-0000-0000-0000-000000000000",
		Resource:        "web01",
		Event:           "HttpServerError",
		Environment:     "Production",
		Severity:        types.SeverityMajor,
		Status:          types.StatusOpen,
		Service:         []string{"Web", "Mobile"},
		Tags:            []string{"dc1", "linux"},
		Attributes:      map[string]any{"region": "eu-west"},
		DuplicateCount:  2,
		LastReceiveID:   "ffff0000-0000-0000-0000-000000000000",
		LastReceiveTime: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMatch(t *testing.T) {
	a := sampleAlert()

	tests := []struct {
		name   string
		params Params
		want   bool
	}{
		{"equality hit", Params{"environment": {"Production"}}, true},
		{"equality miss", Params{"environment": {"Development"}}, false},
		{"negation", Params{"severity!": {"normal"}}, true},
		{"list membership", Params{"service": {"Web"}}, true},
		{"list membership miss", Params{"service": {"Database"}}, false},
		{"multi-value in", Params{"status": {"open", "ack"}}, true},
		{"regex", Params{"event": {"~^http"}}, true},
		{"negated regex", Params{"event!": {"~^http"}}, false},
		{"regex on list field", Params{"tags": {"~^dc"}}, true},
		{"attribute fallback", Params{"region": {"eu-west"}}, true},
		{"attribute absent equality", Params{"az": {"a"}}, false},
		{"attribute absent negation matches", Params{"az!": {"a"}}, true},
		{"id prefix on alert id", Params{"id": {"a1b2c3d4"}}, true},
		{"id prefix on last receive id", Params{"id": {"ffff0000"}}, true},
		{"id prefix miss", Params{"id": {"deadbeef"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Build(tt.params, "", 50)
			if err != nil {
				t.Fatal(err)
			}
			// Lift the time window so only the field under test decides.
			q.removeConditions("lastReceiveTime")
			if got := q.Match(a); got != tt.want {
				t.Errorf("Match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchTimeWindow(t *testing.T) {
	a := sampleAlert()

	q, err := Build(Params{"to-date": {"2024-03-01T11:00:00.000Z"}}, "", 50)
	if err != nil {
		t.Fatal(err)
	}
	if q.Match(a) {
		t.Error("alert received after to-date should not match")
	}

	q, err = Build(Params{"from-date": {"2024-03-01T11:00:00.000Z"}}, "", 50)
	if err != nil {
		t.Fatal(err)
	}
	if !q.Match(a) {
		t.Error("alert inside the window should match")
	}
}

func TestSortAlertsRoundTrip(t *testing.T) {
	alerts := []types.Alert{
		{ID: "1", Severity: types.SeverityCritical},
		{ID: "2", Severity: types.SeverityMajor},
		{ID: "3", Severity: types.SeverityWarning},
	}

	q, err := Build(Params{"sort-by": {"severity"}}, "", 50)
	if err != nil {
		t.Fatal(err)
	}
	descending := append([]types.Alert(nil), alerts...)
	q.SortAlerts(descending)

	reversed, err := Build(Params{"sort-by": {"severity"}, "reverse": {"true"}}, "", 50)
	if err != nil {
		t.Fatal(err)
	}
	ascending := append([]types.Alert(nil), alerts...)
	reversed.SortAlerts(ascending)

	for i := range descending {
		if descending[i].ID != ascending[len(ascending)-1-i].ID {
			t.Fatalf("reverse should invert the order: desc=%v asc=%v", descending, ascending)
		}
	}
	// Lexicographic on the severity string: warning > major > critical.
	if descending[0].Severity != types.SeverityWarning {
		t.Errorf("first descending = %s", descending[0].Severity)
	}
}

func TestSortAlertsByTimestamp(t *testing.T) {
	now := time.Now().UTC()
	alerts := []types.Alert{
		{ID: "old", LastReceiveTime: now.Add(-2 * time.Hour)},
		{ID: "new", LastReceiveTime: now},
		{ID: "mid", LastReceiveTime: now.Add(-time.Hour)},
	}

	q, err := Build(Params{}, "", 50)
	if err != nil {
		t.Fatal(err)
	}
	q.SortAlerts(alerts)

	want := []string{"new", "mid", "old"}
	for i, id := range want {
		if alerts[i].ID != id {
			t.Fatalf("order = %v, want %v", alerts, want)
		}
	}
}
