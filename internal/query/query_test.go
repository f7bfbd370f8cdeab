package query

import (
	"errors"
	"testing"
	"time"

	"github.com/alertmon/alertd/internal/config"
	"github.com/alertmon/alertd/pkg/types"
)

func buildOrFatal(t *testing.T, params Params) *Query {
	t.Helper()
	q, err := Build(params, "", 50)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return q
}

func findCondition(q *Query, field string) (Condition, bool) {
	for _, c := range q.Conditions {
		if c.Field == field {
			return c, true
		}
	}
	return Condition{}, false
}

func TestBuildDefaults(t *testing.T) {
	q := buildOrFatal(t, Params{})

	if q.Page != 1 {
		t.Errorf("Page = %d, want 1", q.Page)
	}
	if q.PageSize != 50 {
		t.Errorf("PageSize = %d, want 50", q.PageSize)
	}

	// The "last received" window upper bound is always present.
	c, ok := findCondition(q, "lastReceiveTime")
	if !ok {
		t.Fatal("expected lastReceiveTime condition")
	}
	if c.Op != OpAtOrBefore {
		t.Errorf("Op = %s, want lte", c.Op)
	}
	if !c.Time.Equal(q.AsOf) {
		t.Error("default upper bound should be the build instant")
	}

	if len(q.Sort) != 1 || q.Sort[0].Field != "lastReceiveTime" || !q.Sort[0].Descending {
		t.Errorf("default sort = %+v, want lastReceiveTime descending", q.Sort)
	}
}

func TestBuildTimeWindow(t *testing.T) {
	q := buildOrFatal(t, Params{
		"from-date": {"2024-03-01T00:00:00.000Z"},
		"to-date":   {"2024-03-02T12:30:00.000Z"},
	})

	var gt, lte *Condition
	for i, c := range q.Conditions {
		if c.Field != "lastReceiveTime" {
			continue
		}
		switch c.Op {
		case OpAfter:
			gt = &q.Conditions[i]
		case OpAtOrBefore:
			lte = &q.Conditions[i]
		}
	}
	if gt == nil || lte == nil {
		t.Fatalf("expected both bounds, got %+v", q.Conditions)
	}
	if gt.Time.Day() != 1 || lte.Time.Hour() != 12 {
		t.Errorf("unexpected bounds: gt=%v lte=%v", gt.Time, lte.Time)
	}

	if _, err := Build(Params{"from-date": {"yesterday"}}, "", 50); err == nil {
		t.Error("expected error for malformed from-date")
	}
}

func TestBuildFieldGrammar(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		field   string
		wantOp  Op
		check   func(t *testing.T, c Condition)
	}{
		{
			name:   "plain equality",
			params: Params{"severity": {"major"}},
			field:  "severity", wantOp: OpEqual,
			check: func(t *testing.T, c Condition) {
				if c.Value != "major" {
					t.Errorf("Value = %v", c.Value)
				}
			},
		},
		{
			name:   "negation suffix",
			params: Params{"severity!": {"normal"}},
			field:  "severity", wantOp: OpNotEqual,
		},
		{
			name:   "regex prefix",
			params: Params{"event": {"~^Http"}},
			field:  "event", wantOp: OpRegex,
			check: func(t *testing.T, c Condition) {
				if c.Pattern != "^Http" {
					t.Errorf("Pattern = %q", c.Pattern)
				}
				if !c.Regex.MatchString("HTTPSERVERERROR") {
					t.Error("regex should be case-insensitive")
				}
			},
		},
		{
			name:   "multi-value in",
			params: Params{"status": {"open", "ack"}},
			field:  "status", wantOp: OpIn,
			check: func(t *testing.T, c Condition) {
				if len(c.Values) != 2 {
					t.Errorf("Values = %v", c.Values)
				}
			},
		},
		{
			name:   "negated multi-value",
			params: Params{"status!": {"closed", "expired"}},
			field:  "status", wantOp: OpNotIn,
		},
		{
			name:   "mixed regex values become one alternation",
			params: Params{"event!": {"~myapp", "yourapp"}},
			field:  "event", wantOp: OpNotRegex,
			check: func(t *testing.T, c Condition) {
				if c.Pattern != "myapp|yourapp" {
					t.Errorf("Pattern = %q, want alternation", c.Pattern)
				}
				if !c.Regex.MatchString("yourapp settings") {
					t.Error("alternation should match the plain value too")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := buildOrFatal(t, tt.params)
			c, ok := findCondition(q, tt.field)
			if !ok {
				t.Fatalf("no condition on %s", tt.field)
			}
			if c.Op != tt.wantOp {
				t.Fatalf("Op = %s, want %s", c.Op, tt.wantOp)
			}
			if tt.check != nil {
				tt.check(t, c)
			}
		})
	}
}

func TestBuildInvalidRegex(t *testing.T) {
	_, err := Build(Params{"event": {"~["}}, "", 50)
	var verr *types.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBuildIDPrefix(t *testing.T) {
	q := buildOrFatal(t, Params{"id": {"abcd1234", "ffff0000"}})

	c, ok := findCondition(q, "id")
	if !ok || c.Op != OpIDPrefix {
		t.Fatalf("expected idprefix condition, got %+v", q.Conditions)
	}
	if len(c.Values) != 2 {
		t.Errorf("Values = %v", c.Values)
	}
}

func TestBuildCustomerOverridesParams(t *testing.T) {
	q, err := Build(Params{"customer": {"spoofed"}}, "acme", 50)
	if err != nil {
		t.Fatal(err)
	}

	c, ok := findCondition(q, "customer")
	if !ok {
		t.Fatal("expected customer condition")
	}
	if c.Op != OpEqual || c.Value != "acme" {
		t.Errorf("customer condition = %+v, want forced acme equality", c)
	}

	n := 0
	for _, cond := range q.Conditions {
		if cond.Field == "customer" {
			n++
		}
	}
	if n != 1 {
		t.Errorf("got %d customer conditions, want 1", n)
	}
}

func TestBuildRawPredicateSeed(t *testing.T) {
	q := buildOrFatal(t, Params{
		"q":        {`{"severity":"minor","service":["Web","Mobile"]}`},
		"severity": {"major"}, // explicit param wins over the seed
	})

	c, _ := findCondition(q, "severity")
	if c.Op != OpEqual || c.Value != "major" {
		t.Errorf("severity = %+v, explicit param should win", c)
	}
	svc, ok := findCondition(q, "service")
	if !ok || svc.Op != OpIn || len(svc.Values) != 2 {
		t.Errorf("service = %+v, want in [Web Mobile]", svc)
	}
}

func TestBuildNumericAndBoolFilters(t *testing.T) {
	q := buildOrFatal(t, Params{
		"duplicateCount": {"3"},
		"repeat":         {"true"},
	})

	dc, _ := findCondition(q, "duplicateCount")
	if dc.Value != 3 {
		t.Errorf("duplicateCount Value = %v (%T), want int 3", dc.Value, dc.Value)
	}
	rp, _ := findCondition(q, "repeat")
	if rp.Value != true {
		t.Errorf("repeat Value = %v, want true", rp.Value)
	}

	if _, err := Build(Params{"duplicateCount": {"lots"}}, "", 50); err == nil {
		t.Error("expected error for non-integer duplicateCount")
	}
}

func TestBuildSortDirection(t *testing.T) {
	q := buildOrFatal(t, Params{"sort-by": {"severity", "resource"}})
	if len(q.Sort) != 2 {
		t.Fatalf("Sort = %+v", q.Sort)
	}
	for _, k := range q.Sort {
		if !k.Descending {
			t.Errorf("sort key %s should default descending", k.Field)
		}
	}

	reversed := buildOrFatal(t, Params{"sort-by": {"severity"}, "reverse": {"true"}})
	if reversed.Sort[0].Descending {
		t.Error("reverse should flip to ascending")
	}
}

func TestBuildPaging(t *testing.T) {
	q := buildOrFatal(t, Params{"page": {"3"}, "limit": {"10"}})
	if q.Page != 3 || q.PageSize != 10 {
		t.Errorf("page=%d size=%d, want 3/10", q.Page, q.PageSize)
	}

	// page-size wins over limit
	q = buildOrFatal(t, Params{"limit": {"10"}, "page-size": {"25"}})
	if q.PageSize != 25 {
		t.Errorf("PageSize = %d, want 25", q.PageSize)
	}

	for _, bad := range []Params{
		{"page": {"0"}},
		{"page": {"-1"}},
		{"limit": {"zero"}},
	} {
		if _, err := Build(bad, "", 50); err == nil {
			t.Errorf("expected error for %v", bad)
		}
	}
}

func TestBuildPageSizeClamped(t *testing.T) {
	q := buildOrFatal(t, Params{"page-size": {"100000"}})
	if q.PageSize != config.MaxPageSize {
		t.Errorf("PageSize = %d, want clamp to %d", q.PageSize, config.MaxPageSize)
	}

	q = buildOrFatal(t, Params{"limit": {"100000"}})
	if q.PageSize != config.MaxPageSize {
		t.Errorf("PageSize = %d, limit should clamp too", q.PageSize)
	}
}

func TestBuildTimestampWindowUsesAsOf(t *testing.T) {
	before := time.Now().UTC()
	q := buildOrFatal(t, Params{})
	if q.AsOf.Before(before) {
		t.Error("AsOf should be at or after the build start")
	}
}
