package store

import (
	"testing"
	"time"

	"github.com/alertmon/alertd/internal/query"
)

func TestCompileConditionsEmpty(t *testing.T) {
	where, args, err := compileConditions(nil)
	if err != nil {
		t.Fatal(err)
	}
	if where != "TRUE" || len(args) != 0 {
		t.Errorf("got %q with %d args, want TRUE with none", where, len(args))
	}
}

func TestCompileConditions(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		cond     query.Condition
		want     string
		wantArgs []any
	}{
		{
			"scalar equality",
			query.Condition{Field: "environment", Op: query.OpEqual, Value: "Production"},
			"environment = $1",
			[]any{"Production"},
		},
		{
			"scalar negation",
			query.Condition{Field: "status", Op: query.OpNotEqual, Value: "closed"},
			"status <> $1",
			[]any{"closed"},
		},
		{
			"reserved word column",
			query.Condition{Field: "group", Op: query.OpEqual, Value: "Web"},
			`"group" = $1`,
			[]any{"Web"},
		},
		{
			"scalar membership",
			query.Condition{Field: "severity", Op: query.OpIn, Values: []string{"major", "critical"}},
			"severity = ANY($1::text[])",
			[]any{[]string{"major", "critical"}},
		},
		{
			"scalar regex",
			query.Condition{Field: "event", Op: query.OpRegex, Pattern: "Http.*"},
			"event ~* $1",
			[]any{"Http.*"},
		},
		{
			"negated regex",
			query.Condition{Field: "event", Op: query.OpNotRegex, Pattern: "Http.*"},
			"event !~* $1",
			[]any{"Http.*"},
		},
		{
			"time lower bound",
			query.Condition{Field: "lastReceiveTime", Op: query.OpAfter, Time: ts},
			"last_receive_time > $1",
			[]any{ts},
		},
		{
			"time upper bound",
			query.Condition{Field: "lastReceiveTime", Op: query.OpAtOrBefore, Time: ts},
			"last_receive_time <= $1",
			[]any{ts},
		},
		{
			"array membership",
			query.Condition{Field: "service", Op: query.OpEqual, Value: "Web"},
			"$1 = ANY(service)",
			[]any{"Web"},
		},
		{
			"array negated membership",
			query.Condition{Field: "tags", Op: query.OpNotEqual, Value: "dc1"},
			"NOT ($1 = ANY(tags))",
			[]any{"dc1"},
		},
		{
			"array overlap",
			query.Condition{Field: "service", Op: query.OpIn, Values: []string{"Web", "App"}},
			"service && $1::text[]",
			[]any{[]string{"Web", "App"}},
		},
		{
			"array regex",
			query.Condition{Field: "tags", Op: query.OpRegex, Pattern: "^dc"},
			"EXISTS (SELECT 1 FROM unnest(tags) AS el WHERE el ~* $1)",
			[]any{"^dc"},
		},
		{
			"attribute fallback",
			query.Condition{Field: "region", Op: query.OpEqual, Value: "eu-west-1"},
			"attributes->>$1 = $2",
			[]any{"region", "eu-west-1"},
		},
		{
			"attribute fallback stringifies",
			query.Condition{Field: "shard", Op: query.OpEqual, Value: 7},
			"attributes->>$1 = $2",
			[]any{"shard", "7"},
		},
		{
			"id prefix",
			query.Condition{Field: "id", Op: query.OpIDPrefix, Values: []string{"deadbeef"}},
			"(id LIKE $1 OR last_receive_id LIKE $1)",
			[]any{"deadbeef%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args, err := compileConditions([]query.Condition{tt.cond})
			if err != nil {
				t.Fatal(err)
			}
			if where != tt.want {
				t.Errorf("where = %q, want %q", where, tt.want)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("args = %v, want %v", args, tt.wantArgs)
			}
			for i := range args {
				switch want := tt.wantArgs[i].(type) {
				case []string:
					got, ok := args[i].([]string)
					if !ok || len(got) != len(want) {
						t.Errorf("arg %d = %v, want %v", i, args[i], want)
						continue
					}
					for j := range want {
						if got[j] != want[j] {
							t.Errorf("arg %d = %v, want %v", i, got, want)
							break
						}
					}
				default:
					if args[i] != want {
						t.Errorf("arg %d = %v, want %v", i, args[i], want)
					}
				}
			}
		})
	}
}

func TestCompileConditionsJoinsWithAnd(t *testing.T) {
	where, args, err := compileConditions([]query.Condition{
		{Field: "environment", Op: query.OpEqual, Value: "Production"},
		{Field: "status", Op: query.OpNotEqual, Value: "closed"},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "environment = $1 AND status <> $2"
	if where != want {
		t.Errorf("where = %q, want %q", where, want)
	}
	if len(args) != 2 {
		t.Errorf("got %d args, want 2", len(args))
	}
}

func TestCompileSort(t *testing.T) {
	tests := []struct {
		name string
		keys []query.SortKey
		want string
	}{
		{"empty falls back", nil, "last_receive_time DESC"},
		{
			"unknown field skipped",
			[]query.SortKey{{Field: "nonsense", Descending: true}},
			"last_receive_time DESC",
		},
		{
			"descending default",
			[]query.SortKey{{Field: "severity", Descending: true}},
			"severity DESC",
		},
		{
			"multiple keys",
			[]query.SortKey{
				{Field: "environment"},
				{Field: "lastReceiveTime", Descending: true},
			},
			"environment ASC, last_receive_time DESC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := compileSort(tt.keys); got != tt.want {
				t.Errorf("compileSort = %q, want %q", got, tt.want)
			}
		})
	}
}
