package types

import "time"

// Blackout is a declared maintenance window during which matching
// alerts are accepted but not persisted or escalated.
//
// Environment and the time window are required. The optional filters
// narrow the blackout to a resource, service list, event, group, tag
// list or customer; their presence/absence shape decides which match
// pattern applies (see engine.blackoutMatches). Blackouts are immutable
// after creation except for deletion.
type Blackout struct {
	ID          string    `json:"id"`
	Priority    int       `json:"priority"`
	Environment string    `json:"environment"`
	Service     []string  `json:"service,omitempty"`
	Resource    string    `json:"resource,omitempty"`
	Event       string    `json:"event,omitempty"`
	Group       string    `json:"group,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Customer    string    `json:"customer,omitempty"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
}

// Duration is the length of the blackout window.
func (b *Blackout) Duration() time.Duration {
	return b.EndTime.Sub(b.StartTime)
}

// Active reports whether now falls inside [StartTime, EndTime).
func (b *Blackout) Active(now time.Time) bool {
	return !now.Before(b.StartTime) && now.Before(b.EndTime)
}
