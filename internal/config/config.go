package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alertmon/alertd/pkg/types"
)

// Config holds runtime settings for the engine and API.
type Config struct {
	HistoryLimit      int
	PageSize          int
	CustomerViews     bool // enable the customer tenancy dimension
	FlappingWindow    time.Duration
	FlappingThreshold int
	RetryLimit        int
	ReceiveRate       float64
	ReceiveBurst      int

	Rules *Ruleset
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	return &Config{
		HistoryLimit:      DefaultHistoryLimit,
		PageSize:          DefaultPageSize,
		FlappingWindow:    DefaultFlappingWindow,
		FlappingThreshold: DefaultFlappingThreshold,
		RetryLimit:        ReceiveRetryLimit,
		ReceiveRate:       DefaultReceiveRate,
		ReceiveBurst:      DefaultReceiveBurst,
		Rules:             DefaultRuleset(),
	}
}

// Ruleset is the data-driven severity ordering and status-derivation
// table. It is deployment configuration, not engine logic: the engine
// only ever calls Trend and DeriveStatus.
type Ruleset struct {
	// SeverityRanks orders severities for trend calculation. Higher
	// rank means more severe. Severities absent from the map (such as
	// "unknown") are excluded from ordering comparisons.
	SeverityRanks map[types.Severity]int `yaml:"severity_ranks"`

	// ClearSeverities are severities that close an alert regardless of
	// its previous status.
	ClearSeverities []types.Severity `yaml:"clear_severities"`

	// AckPreserved lists statuses preserved across a non-escalating
	// severity transition.
	AckPreserved []types.Status `yaml:"ack_preserved"`
}

// DefaultRuleset returns the stock rule table.
func DefaultRuleset() *Ruleset {
	return &Ruleset{
		SeverityRanks: map[types.Severity]int{
			types.SeverityNormal:   0,
			types.SeverityWarning:  1,
			types.SeverityMinor:    2,
			types.SeverityMajor:    3,
			types.SeverityCritical: 4,
		},
		ClearSeverities: []types.Severity{types.SeverityNormal},
		AckPreserved:    []types.Status{types.StatusAck, types.StatusAssign},
	}
}

// LoadRuleset reads a YAML rule file. Fields present in the file
// replace the defaults wholesale; absent fields keep them.
func LoadRuleset(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	var loaded Ruleset
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}

	rs := DefaultRuleset()
	if len(loaded.SeverityRanks) > 0 {
		rs.SeverityRanks = loaded.SeverityRanks
	}
	if len(loaded.ClearSeverities) > 0 {
		rs.ClearSeverities = loaded.ClearSeverities
	}
	if len(loaded.AckPreserved) > 0 {
		rs.AckPreserved = loaded.AckPreserved
	}
	return rs, nil
}

// Known reports whether the severity participates in the ordering.
func (r *Ruleset) Known(s types.Severity) bool {
	_, ok := r.SeverityRanks[s]
	return ok
}

// Trend compares two severities by rank. Severities outside the rank
// table (including "unknown") never indicate a trend.
func (r *Ruleset) Trend(previous, current types.Severity) types.TrendIndication {
	prev, okPrev := r.SeverityRanks[previous]
	cur, okCur := r.SeverityRanks[current]
	if !okPrev || !okCur {
		return types.TrendNoChange
	}
	switch {
	case cur > prev:
		return types.TrendMoreSevere
	case cur < prev:
		return types.TrendLessSevere
	default:
		return types.TrendNoChange
	}
}

// DeriveStatus computes the status implied by a severity transition.
// Callers use it only when the incoming alert does not explicitly
// specify a status; an explicit non-unknown status always wins.
func (r *Ruleset) DeriveStatus(previousSeverity, currentSeverity types.Severity, previousStatus types.Status) types.Status {
	for _, s := range r.ClearSeverities {
		if currentSeverity == s {
			return types.StatusClosed
		}
	}
	for _, st := range r.AckPreserved {
		if previousStatus == st && r.Trend(previousSeverity, currentSeverity) != types.TrendMoreSevere {
			return previousStatus
		}
	}
	return types.StatusOpen
}
