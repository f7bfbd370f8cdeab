// Package query translates open-ended filter parameters (query-string
// semantics) into a structured predicate, sort order, grouping keys and
// pagination. Every read-side operation consumes its output.
//
// The predicate is deliberately store-agnostic: the Postgres store
// compiles it to SQL, while Match evaluates it directly against an
// alert for in-memory filtering.
package query

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alertmon/alertd/internal/config"
	"github.com/alertmon/alertd/pkg/types"
)

// Op is a predicate condition operator.
type Op string

const (
	OpEqual      Op = "eq"
	OpNotEqual   Op = "ne"
	OpIn         Op = "in"
	OpNotIn      Op = "nin"
	OpRegex      Op = "regex"    // case-insensitive
	OpNotRegex   Op = "notregex" // case-insensitive
	OpAfter      Op = "gt"       // time fields only
	OpAtOrBefore Op = "lte"      // time fields only
	OpIDPrefix   Op = "idprefix" // id OR lastReceiveId prefix, OR across values
)

// Condition is one field filter. Which value field is populated
// depends on Op: Value for eq/ne, Values for in/nin/idprefix, Pattern
// (with Regex pre-compiled) for the regex ops and Time for gt/lte.
type Condition struct {
	Field   string
	Op      Op
	Value   any
	Values  []string
	Pattern string
	Regex   *regexp.Regexp
	Time    time.Time
}

// SortKey is one element of the sort order.
type SortKey struct {
	Field      string
	Descending bool
}

// Query is the structured output of Build.
type Query struct {
	Conditions []Condition
	Sort       []SortKey
	GroupBy    []string
	Page       int
	PageSize   int

	// AsOf is the predicate-build instant, which also bounds the
	// "last received" window when no to-date was supplied. Callers
	// report it as the result timestamp when no rows match.
	AsOf time.Time
}

// DateLayout is the accepted timestamp format for from-date/to-date.
const DateLayout = "2006-01-02T15:04:05.999Z"

// Keys consumed by dedicated rules; everything else becomes a field
// filter.
var reservedKeys = map[string]bool{
	"q":              true,
	"id":             true,
	"from-date":      true,
	"to-date":        true,
	"duplicateCount": true,
	"repeat":         true,
	"sort-by":        true,
	"reverse":        true,
	"group-by":       true,
	"page":           true,
	"page-size":      true,
	"limit":          true,
}

var timestampFields = map[string]bool{
	"createTime":      true,
	"receiveTime":     true,
	"lastReceiveTime": true,
}

// Params is an ordered multi-map of filter parameters, matching
// url.Values. Order across keys is irrelevant; relative order of
// multiple values for one key is preserved.
type Params map[string][]string

// Get returns the first value for key, or "".
func (p Params) Get(key string) string {
	if vs := p[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Build translates params into a Query. A non-empty customer forces a
// customer equality condition regardless of anything in params.
func Build(params Params, customer string, defaultPageSize int) (*Query, error) {
	q := &Query{
		Page: 1,
		AsOf: time.Now().UTC(),
	}

	// Raw predicate escape: seeds the conditions before every other
	// rule, so later rules win per field.
	if raw := params.Get("q"); raw != "" {
		if err := q.seedFromJSON(raw); err != nil {
			return nil, err
		}
	}

	if customer != "" {
		q.setCondition(Condition{Field: "customer", Op: OpEqual, Value: customer})
	}

	if err := q.applyTimeWindow(params); err != nil {
		return nil, err
	}

	if v := params.Get("duplicateCount"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, types.NewValidationError("duplicateCount", v, "must be an integer")
		}
		q.setCondition(Condition{Field: "duplicateCount", Op: OpEqual, Value: n})
	}
	if v := params.Get("repeat"); v != "" {
		q.setCondition(Condition{Field: "repeat", Op: OpEqual, Value: v == "true"})
	}

	q.applySort(params)
	q.GroupBy = append(q.GroupBy, params["group-by"]...)

	if err := q.applyPaging(params, defaultPageSize); err != nil {
		return nil, err
	}

	if ids := params["id"]; len(ids) > 0 {
		q.Conditions = append(q.Conditions, Condition{Field: "id", Op: OpIDPrefix, Values: ids})
	}

	for field, values := range params {
		if reservedKeys[field] || len(values) == 0 {
			continue
		}
		cond, err := fieldCondition(field, values)
		if err != nil {
			return nil, err
		}
		q.setCondition(cond)
	}

	return q, nil
}

// seedFromJSON loads the raw-predicate escape key: a JSON object of
// field to value equality pairs.
func (q *Query) seedFromJSON(raw string) error {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return types.NewValidationError("q", raw, "must be a JSON object")
	}
	for field, val := range doc {
		switch v := val.(type) {
		case string, bool:
			q.setCondition(Condition{Field: field, Op: OpEqual, Value: v})
		case float64:
			if v == float64(int(v)) {
				q.setCondition(Condition{Field: field, Op: OpEqual, Value: int(v)})
			} else {
				q.setCondition(Condition{Field: field, Op: OpEqual, Value: v})
			}
		case []any:
			var vals []string
			for _, e := range v {
				s, ok := e.(string)
				if !ok {
					return types.NewValidationError("q", raw, "list values must be strings")
				}
				vals = append(vals, s)
			}
			q.setCondition(Condition{Field: field, Op: OpIn, Values: vals})
		default:
			return types.NewValidationError("q", raw, fmt.Sprintf("unsupported value for field %q", field))
		}
	}
	return nil
}

func (q *Query) applyTimeWindow(params Params) error {
	var from time.Time
	if v := params.Get("from-date"); v != "" {
		t, err := time.Parse(DateLayout, v)
		if err != nil {
			return types.NewValidationError("from-date", v, "dates must be ISO 8601 format YYYY-MM-DDThh:mm:ss.sssZ")
		}
		from = t.UTC()
	}

	to := q.AsOf
	if v := params.Get("to-date"); v != "" {
		t, err := time.Parse(DateLayout, v)
		if err != nil {
			return types.NewValidationError("to-date", v, "dates must be ISO 8601 format YYYY-MM-DDThh:mm:ss.sssZ")
		}
		to = t.UTC()
	}

	q.removeConditions("lastReceiveTime")
	if !from.IsZero() {
		q.Conditions = append(q.Conditions, Condition{Field: "lastReceiveTime", Op: OpAfter, Time: from})
	}
	q.Conditions = append(q.Conditions, Condition{Field: "lastReceiveTime", Op: OpAtOrBefore, Time: to})
	return nil
}

func (q *Query) applySort(params Params) {
	// Everything sorts descending unless reversed, and one direction
	// applies to every key. Directions are never mixed per field, so
	// "reverse" inverts the whole order rather than flipping only the
	// timestamp keys. Timestamp fields come out reverse-chronological
	// by default as a consequence.
	descending := params.Get("reverse") == ""

	fields := params["sort-by"]
	if len(fields) == 0 {
		q.Sort = append(q.Sort, SortKey{Field: "lastReceiveTime", Descending: descending})
		return
	}
	for _, f := range fields {
		q.Sort = append(q.Sort, SortKey{Field: f, Descending: descending})
	}
}

func (q *Query) applyPaging(params Params, defaultPageSize int) error {
	if v := params.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return types.NewValidationError("page", v, "must be a positive integer")
		}
		q.Page = n
	}

	limit := defaultPageSize
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return types.NewValidationError("limit", v, "must be a positive integer")
		}
		limit = n
	}
	q.PageSize = limit
	if v := params.Get("page-size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return types.NewValidationError("page-size", v, "must be a positive integer")
		}
		q.PageSize = n
	}
	if q.PageSize > config.MaxPageSize {
		q.PageSize = config.MaxPageSize
	}
	return nil
}

// fieldCondition builds the condition for one non-reserved key,
// honouring the "!" negation suffix and "~" regex prefix grammar.
func fieldCondition(field string, values []string) (Condition, error) {
	negate := strings.HasSuffix(field, "!")
	field = strings.TrimSuffix(field, "!")

	if len(values) == 1 {
		value := values[0]
		if strings.HasPrefix(value, "~") {
			return regexCondition(field, value[1:], negate)
		}
		op := OpEqual
		if negate {
			op = OpNotEqual
		}
		return Condition{Field: field, Op: op, Value: value}, nil
	}

	anyRegex := false
	for _, v := range values {
		if strings.HasPrefix(v, "~") {
			anyRegex = true
			break
		}
	}
	if anyRegex {
		// One case-insensitive alternation across all values, with
		// leading "~" stripped from each.
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = strings.TrimPrefix(v, "~")
		}
		return regexCondition(field, strings.Join(parts, "|"), negate)
	}

	op := OpIn
	if negate {
		op = OpNotIn
	}
	return Condition{Field: field, Op: op, Values: values}, nil
}

func regexCondition(field, pattern string, negate bool) (Condition, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return Condition{}, types.NewValidationError(field, pattern, "invalid regular expression")
	}
	op := OpRegex
	if negate {
		op = OpNotRegex
	}
	return Condition{Field: field, Op: op, Pattern: pattern, Regex: re}, nil
}

// setCondition replaces any existing conditions on the same field
// (last writer wins per field) before appending.
func (q *Query) setCondition(c Condition) {
	q.removeConditions(c.Field)
	q.Conditions = append(q.Conditions, c)
}

func (q *Query) removeConditions(field string) {
	kept := q.Conditions[:0]
	for _, c := range q.Conditions {
		if c.Field != field {
			kept = append(kept, c)
		}
	}
	q.Conditions = kept
}
