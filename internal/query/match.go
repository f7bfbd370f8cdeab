package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alertmon/alertd/pkg/types"
)

// Match evaluates the predicate against an alert. All conditions must
// hold. List-valued fields (service, tags, correlate) match if any
// element satisfies the condition, mirroring document-store semantics.
func (q *Query) Match(a *types.Alert) bool {
	for _, c := range q.Conditions {
		if !matchCondition(c, a) {
			return false
		}
	}
	return true
}

func matchCondition(c Condition, a *types.Alert) bool {
	switch c.Op {
	case OpIDPrefix:
		for _, p := range c.Values {
			if strings.HasPrefix(a.ID, p) || strings.HasPrefix(a.LastReceiveID, p) {
				return true
			}
		}
		return false
	case OpAfter:
		return timeField(a, c.Field).After(c.Time)
	case OpAtOrBefore:
		return !timeField(a, c.Field).After(c.Time)
	}

	vals, present := fieldStrings(a, c.Field)
	switch c.Op {
	case OpEqual:
		return present && contains(vals, fmt.Sprint(c.Value))
	case OpNotEqual:
		return !present || !contains(vals, fmt.Sprint(c.Value))
	case OpIn:
		for _, want := range c.Values {
			if contains(vals, want) {
				return true
			}
		}
		return false
	case OpNotIn:
		for _, want := range c.Values {
			if contains(vals, want) {
				return false
			}
		}
		return true
	case OpRegex:
		for _, v := range vals {
			if c.Regex.MatchString(v) {
				return true
			}
		}
		return false
	case OpNotRegex:
		for _, v := range vals {
			if c.Regex.MatchString(v) {
				return false
			}
		}
		return true
	}
	return false
}

// SortAlerts orders alerts in place per the query's sort keys.
func (q *Query) SortAlerts(alerts []types.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		return q.less(&alerts[i], &alerts[j])
	})
}

func (q *Query) less(a, b *types.Alert) bool {
	for _, key := range q.Sort {
		cmp := compareField(a, b, key.Field)
		if cmp == 0 {
			continue
		}
		if key.Descending {
			return cmp > 0
		}
		return cmp < 0
	}
	return false
}

func compareField(a, b *types.Alert, field string) int {
	if timestampFields[field] {
		return timeField(a, field).Compare(timeField(b, field))
	}
	if field == "duplicateCount" {
		return a.DuplicateCount - b.DuplicateCount
	}
	av, _ := fieldStrings(a, field)
	bv, _ := fieldStrings(b, field)
	return strings.Compare(strings.Join(av, ","), strings.Join(bv, ","))
}

func timeField(a *types.Alert, field string) time.Time {
	switch field {
	case "createTime":
		return a.CreateTime
	case "receiveTime":
		return a.ReceiveTime
	default:
		return a.LastReceiveTime
	}
}

// fieldStrings returns the alert's value(s) for a predicate field as
// strings, and whether the field is present at all. Unknown fields
// fall through to the attributes map.
func fieldStrings(a *types.Alert, field string) ([]string, bool) {
	switch field {
	case "id":
		return []string{a.ID}, true
	case "resource":
		return []string{a.Resource}, true
	case "event":
		return []string{a.Event}, true
	case "environment":
		return []string{a.Environment}, true
	case "severity":
		return []string{string(a.Severity)}, true
	case "status":
		return []string{string(a.Status)}, true
	case "group":
		return []string{a.Group}, true
	case "value":
		return []string{a.Value}, true
	case "text":
		return []string{a.Text}, true
	case "origin":
		return []string{a.Origin}, true
	case "type":
		return []string{a.Type}, true
	case "customer":
		return []string{a.Customer}, true
	case "lastReceiveId":
		return []string{a.LastReceiveID}, true
	case "previousSeverity":
		return []string{string(a.PreviousSeverity)}, true
	case "trendIndication":
		return []string{string(a.TrendIndication)}, true
	case "duplicateCount":
		return []string{strconv.Itoa(a.DuplicateCount)}, true
	case "repeat":
		return []string{strconv.FormatBool(a.Repeat)}, true
	case "service":
		return a.Service, len(a.Service) > 0
	case "tags":
		return a.Tags, len(a.Tags) > 0
	case "correlate":
		return a.Correlate, len(a.Correlate) > 0
	default:
		v, ok := a.Attributes[field]
		if !ok {
			return nil, false
		}
		return []string{fmt.Sprint(v)}, true
	}
}

func contains(vals []string, want string) bool {
	for _, v := range vals {
		if v == want {
			return true
		}
	}
	return false
}
