package types

import "time"

// Heartbeat is a liveness signal from an alert source, keyed by
// (origin, customer). Each receipt replaces the mutable fields
// wholesale; there is no history or merge behaviour.
type Heartbeat struct {
	ID          string    `json:"id"`
	Origin      string    `json:"origin"`
	Tags        []string  `json:"tags,omitempty"`
	Type        string    `json:"type,omitempty"`
	CreateTime  time.Time `json:"createTime"`
	Timeout     int       `json:"timeout,omitempty"` // seconds
	ReceiveTime time.Time `json:"receiveTime"`
	Customer    string    `json:"customer,omitempty"`
}
