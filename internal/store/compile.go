package store

import (
	"fmt"
	"strings"

	"github.com/alertmon/alertd/internal/query"
	"github.com/alertmon/alertd/pkg/types"
)

// scalarColumns maps filter field names to alert columns.
var scalarColumns = map[string]string{
	"id":               "id",
	"resource":         "resource",
	"event":            "event",
	"environment":      "environment",
	"severity":         "severity",
	"status":           "status",
	"group":            `"group"`,
	"value":            "value",
	"text":             "text",
	"origin":           "origin",
	"type":             "type",
	"customer":         "customer",
	"rawData":          "raw_data",
	"duplicateCount":   "duplicate_count",
	"repeat":           "repeat",
	"previousSeverity": "previous_severity",
	"trendIndication":  "trend_indication",
	"timeout":          "timeout",
	"lastReceiveId":    "last_receive_id",
	"createTime":       "create_time",
	"receiveTime":      "receive_time",
	"lastReceiveTime":  "last_receive_time",
}

// arrayColumns are the TEXT[] fields, where equality means membership.
var arrayColumns = map[string]string{
	"service":   "service",
	"tags":      "tags",
	"correlate": "correlate",
}

// compileConditions renders a predicate to a SQL boolean expression
// and its positional arguments. An empty predicate compiles to TRUE.
func compileConditions(conds []query.Condition) (string, []any, error) {
	if len(conds) == 0 {
		return "TRUE", nil, nil
	}

	var clauses []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, c := range conds {
		clause, err := compileCondition(c, arg)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
	}
	return strings.Join(clauses, " AND "), args, nil
}

func compileCondition(c query.Condition, arg func(any) string) (string, error) {
	if c.Op == query.OpIDPrefix {
		var alts []string
		for _, prefix := range c.Values {
			p := arg(prefix + "%")
			alts = append(alts, fmt.Sprintf("id LIKE %s OR last_receive_id LIKE %s", p, p))
		}
		return "(" + strings.Join(alts, " OR ") + ")", nil
	}

	if col, ok := arrayColumns[c.Field]; ok {
		return compileArrayCondition(col, c, arg)
	}

	col, ok := scalarColumns[c.Field]
	expr := col
	value := c.Value
	if !ok {
		// Anything unrecognized filters on the attributes document,
		// compared as text.
		expr = fmt.Sprintf("attributes->>%s", arg(c.Field))
		if value != nil {
			value = fmt.Sprint(value)
		}
	}

	switch c.Op {
	case query.OpEqual:
		return fmt.Sprintf("%s = %s", expr, arg(value)), nil
	case query.OpNotEqual:
		return fmt.Sprintf("%s <> %s", expr, arg(value)), nil
	case query.OpIn:
		return fmt.Sprintf("%s = ANY(%s::text[])", expr, arg(c.Values)), nil
	case query.OpNotIn:
		return fmt.Sprintf("NOT (%s = ANY(%s::text[]))", expr, arg(c.Values)), nil
	case query.OpRegex:
		return fmt.Sprintf("%s ~* %s", expr, arg(c.Pattern)), nil
	case query.OpNotRegex:
		return fmt.Sprintf("%s !~* %s", expr, arg(c.Pattern)), nil
	case query.OpAfter:
		return fmt.Sprintf("%s > %s", expr, arg(c.Time)), nil
	case query.OpAtOrBefore:
		return fmt.Sprintf("%s <= %s", expr, arg(c.Time)), nil
	}
	return "", types.NewValidationError(c.Field, string(c.Op), "unsupported filter operator")
}

func compileArrayCondition(col string, c query.Condition, arg func(any) string) (string, error) {
	switch c.Op {
	case query.OpEqual:
		return fmt.Sprintf("%s = ANY(%s)", arg(c.Value), col), nil
	case query.OpNotEqual:
		return fmt.Sprintf("NOT (%s = ANY(%s))", arg(c.Value), col), nil
	case query.OpIn:
		return fmt.Sprintf("%s && %s::text[]", col, arg(c.Values)), nil
	case query.OpNotIn:
		return fmt.Sprintf("NOT (%s && %s::text[])", col, arg(c.Values)), nil
	case query.OpRegex:
		return fmt.Sprintf(
			"EXISTS (SELECT 1 FROM unnest(%s) AS el WHERE el ~* %s)",
			col, arg(c.Pattern)), nil
	case query.OpNotRegex:
		return fmt.Sprintf(
			"NOT EXISTS (SELECT 1 FROM unnest(%s) AS el WHERE el ~* %s)",
			col, arg(c.Pattern)), nil
	}
	return "", types.NewValidationError(c.Field, string(c.Op), "unsupported filter operator for list field")
}

// compileSort renders the ORDER BY list, skipping fields without a
// sortable column. Falls back to reverse-chronological receive order.
func compileSort(keys []query.SortKey) string {
	var parts []string
	for _, k := range keys {
		col, ok := scalarColumns[k.Field]
		if !ok {
			continue
		}
		dir := "ASC"
		if k.Descending {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	if len(parts) == 0 {
		return "last_receive_time DESC"
	}
	return strings.Join(parts, ", ")
}
