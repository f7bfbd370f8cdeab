// Package testutil provides testing utilities and fixtures for
// alertd.
//
// Fixtures use functional options for customization:
//
//	alert := testutil.FixtureAlert()
//	alert := testutil.FixtureAlert(func(a *types.Alert) {
//		a.Severity = types.SeverityCritical
//		a.Service = []string{"Web"}
//	})
//
// MemStore is an in-memory implementation of the engine's store
// contract with the same guard/conflict semantics as the Postgres
// store, so engine and API tests run without a database.
package testutil

import (
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alertmon/alertd/pkg/types"
)

// NewTestLogger returns a logger that discards all output.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// FIXTURES
// =============================================================================

// FixtureAlert creates a test alert with sensible defaults. Use
// overrides to customize specific fields.
func FixtureAlert(overrides ...func(*types.Alert)) *types.Alert {
	alert := &types.Alert{
		ID:          uuid.New().String(),
		Resource:    "web01",
		Event:       "HttpServerError",
		Environment: "Production",
		Severity:    types.SeverityMajor,
		Correlate:   []string{"HttpServerError", "HttpServerOK"},
		Service:     []string{"Web"},
		Group:       "Web",
		Value:       "503",
		Text:        "HTTP server responding with 5xx errors",
		Tags:        []string{"dc1"},
		Origin:      "curl/web01",
		Type:        "exceptionAlert",
		Timeout:     86400,
	}

	for _, override := range overrides {
		override(alert)
	}
	return alert
}

// FixtureBlackout creates a blackout active around now.
func FixtureBlackout(overrides ...func(*types.Blackout)) *types.Blackout {
	blackout := &types.Blackout{
		ID:          uuid.New().String(),
		Priority:    1,
		Environment: "Production",
		StartTime:   time.Now().UTC().Add(-time.Hour),
		EndTime:     time.Now().UTC().Add(time.Hour),
	}

	for _, override := range overrides {
		override(blackout)
	}
	return blackout
}

// FixtureHeartbeat creates a test heartbeat.
func FixtureHeartbeat(overrides ...func(*types.Heartbeat)) *types.Heartbeat {
	hb := &types.Heartbeat{
		ID:         uuid.New().String(),
		Origin:     "monitor/web01",
		Tags:       []string{"dc1"},
		Type:       "Heartbeat",
		CreateTime: time.Now().UTC(),
		Timeout:    86400,
	}

	for _, override := range overrides {
		override(hb)
	}
	return hb
}
