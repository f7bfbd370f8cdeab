package engine

import (
	"context"
	"time"

	"github.com/alertmon/alertd/pkg/types"
)

// IsBlackedOut reports whether the alert falls inside an active
// maintenance window. The store pre-filters blackouts to those whose
// [start, end) window contains now for the alert's environment; the
// seven-pattern shape match happens here, first match wins.
//
// When customer views are enabled a second pass repeats the match
// restricted to blackouts declared for the alert's customer.
func (e *Engine) IsBlackedOut(ctx context.Context, a *types.Alert, now time.Time) (bool, error) {
	blackouts, err := e.store.ActiveBlackouts(ctx, a.Environment, now)
	if err != nil {
		return false, err
	}

	for i := range blackouts {
		if e.cfg.CustomerViews && blackouts[i].Customer != "" {
			continue
		}
		if blackoutMatches(&blackouts[i], a) {
			return true, nil
		}
	}
	if e.cfg.CustomerViews {
		for i := range blackouts {
			if blackouts[i].Customer == a.Customer && blackoutMatches(&blackouts[i], a) {
				return true, nil
			}
		}
	}
	return false, nil
}

// blackoutMatches applies the seven mutually exclusive specificity
// patterns. A pattern only applies when every optional filter outside
// it is absent from the blackout record.
func blackoutMatches(b *types.Blackout, a *types.Alert) bool {
	hasResource := b.Resource != ""
	hasService := len(b.Service) > 0
	hasEvent := b.Event != ""
	hasGroup := b.Group != ""
	hasTags := len(b.Tags) > 0

	switch {
	case !hasResource && !hasService && !hasEvent && !hasGroup && !hasTags:
		// 1. blanket blackout for the environment
		return true
	case hasResource && !hasService && !hasEvent && !hasGroup && !hasTags:
		// 2. resource only
		return b.Resource == a.Resource
	case !hasResource && hasService && !hasEvent && !hasGroup && !hasTags:
		// 3. service only: every blackout service present on the alert
		return subset(b.Service, a.Service)
	case !hasResource && !hasService && hasEvent && !hasGroup && !hasTags:
		// 4. event only
		return b.Event == a.Event
	case !hasResource && !hasService && !hasEvent && hasGroup && !hasTags:
		// 5. group only
		return b.Group == a.Group
	case hasResource && !hasService && hasEvent && !hasGroup && !hasTags:
		// 6. resource and event together
		return b.Resource == a.Resource && b.Event == a.Event
	case !hasResource && !hasService && !hasEvent && !hasGroup && hasTags:
		// 7. tags only: every blackout tag present on the alert
		return subset(b.Tags, a.Tags)
	}
	return false
}

func subset(want, have []string) bool {
	for _, w := range want {
		if !contains(have, w) {
			return false
		}
	}
	return true
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
