// Package types - Alert model
//
// # Alert Lifecycle
//
// An alert is identified by (environment, resource, event, customer).
// Repeated events for the same key evolve a single alert record rather
// than creating new rows:
//
//   - duplicate:  same event and severity   -> bump duplicateCount, repeat=true
//   - correlated: severity change, or an event named in the existing
//     alert's correlate list               -> overwrite key fields, reset
//     duplicateCount, record previous severity and trend
//   - new:        neither matched           -> insert a fresh record
//
// Every transition is recorded in a ring-bounded history of severity
// and status changes.
package types

import "time"

// =============================================================================
// SEVERITY / STATUS / TREND
// =============================================================================

// Severity is the ordered severity scale. Ordering (for trend
// calculation) comes from the configured rank table, not from the
// string values themselves.
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityWarning  Severity = "warning"
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"

	// SeverityUnknown sits outside the ordering and never contributes
	// to a trend.
	SeverityUnknown Severity = "unknown"
)

// Status is the operational status of an alert.
type Status string

const (
	StatusOpen    Status = "open"
	StatusAssign  Status = "assign"
	StatusAck     Status = "ack"
	StatusClosed  Status = "closed"
	StatusExpired Status = "expired"
	StatusUnknown Status = "unknown"
)

// TrendIndication describes the direction of a severity transition.
type TrendIndication string

const (
	TrendMoreSevere TrendIndication = "moreSevere"
	TrendLessSevere TrendIndication = "lessSevere"
	TrendNoChange   TrendIndication = "noChange"
)

// =============================================================================
// ALERT
// =============================================================================

// Alert is a monitoring event, either incoming from a source or as the
// stored record it resolved to.
type Alert struct {
	ID          string         `json:"id"`
	Resource    string         `json:"resource"`
	Event       string         `json:"event"`
	Environment string         `json:"environment"`
	Severity    Severity       `json:"severity"`
	Correlate   []string       `json:"correlate,omitempty"` // events this one can transition from/to
	Status      Status         `json:"status"`
	Service     []string       `json:"service,omitempty"`
	Group       string         `json:"group,omitempty"`
	Value       string         `json:"value,omitempty"`
	Text        string         `json:"text,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Origin      string         `json:"origin,omitempty"`
	Type        string         `json:"type,omitempty"`
	CreateTime  time.Time      `json:"createTime"`
	Timeout     int            `json:"timeout,omitempty"` // seconds
	RawData     string         `json:"rawData,omitempty"`
	Customer    string         `json:"customer,omitempty"`

	// Correlation state, maintained by the engine.
	DuplicateCount   int             `json:"duplicateCount"`
	Repeat           bool            `json:"repeat"`
	PreviousSeverity Severity        `json:"previousSeverity,omitempty"`
	TrendIndication  TrendIndication `json:"trendIndication,omitempty"`
	ReceiveTime      time.Time       `json:"receiveTime"`
	LastReceiveID    string          `json:"lastReceiveId,omitempty"`
	LastReceiveTime  time.Time       `json:"lastReceiveTime"`

	History []HistoryEntry `json:"history,omitempty"`
}

// HistoryEntry is one recorded transition. Entries are immutable once
// appended and the history list is ring-bounded, oldest dropped first.
// Type discriminates the variant: "severity" entries carry Severity and
// Value, "status" entries carry Status.
type HistoryEntry struct {
	ID         string    `json:"id"` // id of the alert receipt that caused the entry
	Event      string    `json:"event"`
	Type       string    `json:"type"`
	Severity   Severity  `json:"severity,omitempty"`
	Status     Status    `json:"status,omitempty"`
	Value      string    `json:"value,omitempty"`
	Text       string    `json:"text,omitempty"`
	UpdateTime time.Time `json:"updateTime"`
}

// History entry types.
const (
	HistorySeverity = "severity"
	HistoryStatus   = "status"
)

// AttributeChange is one entry in an attribute update payload: either
// set a key to a value, or unset (remove) the key.
type AttributeChange struct {
	Value any
	Unset bool
}

// SetAttribute returns a change that sets the key to value.
func SetAttribute(value any) AttributeChange {
	return AttributeChange{Value: value}
}

// UnsetAttribute returns a change that removes the key.
func UnsetAttribute() AttributeChange {
	return AttributeChange{Unset: true}
}

// EnvironmentCount is a per-environment alert count.
type EnvironmentCount struct {
	Environment string `json:"environment"`
	Count       int    `json:"count"`
}

// ServiceCount is a per-(environment, service) alert count.
type ServiceCount struct {
	Environment string `json:"environment"`
	Service     string `json:"service"`
	Count       int    `json:"count"`
}

// TopNGroup is one row of a top-N aggregation.
type TopNGroup struct {
	Group          string         `json:"group"`
	Count          int            `json:"count"`
	DuplicateCount int            `json:"duplicateCount"`
	Environments   []string       `json:"environments"`
	Services       []string       `json:"services"`
	Resources      []TopNResource `json:"resources"`
}

// TopNResource identifies one alert inside a top-N group.
type TopNResource struct {
	ID       string `json:"id"`
	Resource string `json:"resource"`
}

// HistoryRow is a flattened history entry joined with its parent
// alert's identifying fields, as returned by history queries.
type HistoryRow struct {
	ID          string         `json:"id"` // parent alert id
	Resource    string         `json:"resource"`
	Event       string         `json:"event"`
	Environment string         `json:"environment"`
	Severity    Severity       `json:"severity,omitempty"`
	Status      Status         `json:"status,omitempty"`
	Service     []string       `json:"service,omitempty"`
	Group       string         `json:"group,omitempty"`
	Value       string         `json:"value,omitempty"`
	Text        string         `json:"text,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Origin      string         `json:"origin,omitempty"`
	Type        string         `json:"type"`
	Customer    string         `json:"customer,omitempty"`
	UpdateTime  time.Time      `json:"updateTime"`
}
