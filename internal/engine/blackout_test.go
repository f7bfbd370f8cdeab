package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/alertmon/alertd/internal/config"
	"github.com/alertmon/alertd/internal/testutil"
	"github.com/alertmon/alertd/pkg/types"
)

func TestIsBlackedOutPatterns(t *testing.T) {
	alert := testutil.FixtureAlert(func(a *types.Alert) {
		a.Service = []string{"Web", "App"}
		a.Tags = []string{"dc1", "rack4"}
	})

	tests := []struct {
		name string
		mod  func(*types.Blackout)
		want bool
	}{
		{"blanket environment", func(b *types.Blackout) {}, true},
		{"resource match", func(b *types.Blackout) { b.Resource = "web01" }, true},
		{"resource mismatch", func(b *types.Blackout) { b.Resource = "web02" }, false},
		{"service subset", func(b *types.Blackout) { b.Service = []string{"Web"} }, true},
		{"service not subset", func(b *types.Blackout) { b.Service = []string{"Web", "Mail"} }, false},
		{"event match", func(b *types.Blackout) { b.Event = "HttpServerError" }, true},
		{"event mismatch", func(b *types.Blackout) { b.Event = "DiskFull" }, false},
		{"group match", func(b *types.Blackout) { b.Group = "Web" }, true},
		{"resource and event", func(b *types.Blackout) {
			b.Resource = "web01"
			b.Event = "HttpServerError"
		}, true},
		{"resource and event half match", func(b *types.Blackout) {
			b.Resource = "web01"
			b.Event = "DiskFull"
		}, false},
		{"tags subset", func(b *types.Blackout) { b.Tags = []string{"dc1"} }, true},
		{"tags not subset", func(b *types.Blackout) { b.Tags = []string{"dc2"} }, false},
		{"unrecognized combination", func(b *types.Blackout) {
			// Resource plus tags is not one of the matchable shapes.
			b.Resource = "web01"
			b.Tags = []string{"dc1"}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, store := newEngine(t, nil)
			if _, err := store.CreateBlackout(context.Background(), testutil.FixtureBlackout(tt.mod)); err != nil {
				t.Fatal(err)
			}

			got, err := eng.IsBlackedOut(context.Background(), alert, time.Now().UTC())
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("IsBlackedOut = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsBlackedOutWindow(t *testing.T) {
	eng, store := newEngine(t, nil)
	ctx := context.Background()

	// Expired an hour ago.
	if _, err := store.CreateBlackout(ctx, testutil.FixtureBlackout(func(b *types.Blackout) {
		b.StartTime = time.Now().UTC().Add(-3 * time.Hour)
		b.EndTime = time.Now().UTC().Add(-time.Hour)
	})); err != nil {
		t.Fatal(err)
	}

	got, err := eng.IsBlackedOut(ctx, testutil.FixtureAlert(), time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Error("expired blackout should not suppress")
	}
}

func TestIsBlackedOutOtherEnvironment(t *testing.T) {
	eng, store := newEngine(t, nil)
	ctx := context.Background()

	if _, err := store.CreateBlackout(ctx, testutil.FixtureBlackout(func(b *types.Blackout) {
		b.Environment = "Development"
	})); err != nil {
		t.Fatal(err)
	}

	got, err := eng.IsBlackedOut(ctx, testutil.FixtureAlert(), time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Error("blackout for another environment should not suppress")
	}
}

func TestIsBlackedOutCustomerScoping(t *testing.T) {
	cfg := config.Default()
	cfg.CustomerViews = true
	eng, store := newEngine(t, cfg)
	ctx := context.Background()

	if _, err := store.CreateBlackout(ctx, testutil.FixtureBlackout(func(b *types.Blackout) {
		b.Customer = "acme"
	})); err != nil {
		t.Fatal(err)
	}

	// A blackout scoped to acme must not suppress another customer.
	got, err := eng.IsBlackedOut(ctx, testutil.FixtureAlert(func(a *types.Alert) {
		a.Customer = "globex"
	}), time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Error("blackout scoped to acme suppressed a globex alert")
	}

	// But it does suppress acme's own alerts.
	got, err = eng.IsBlackedOut(ctx, testutil.FixtureAlert(func(a *types.Alert) {
		a.Customer = "acme"
	}), time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Error("blackout scoped to acme should suppress acme alerts")
	}

	// A global blackout suppresses everyone.
	if _, err := store.CreateBlackout(ctx, testutil.FixtureBlackout()); err != nil {
		t.Fatal(err)
	}
	got, err = eng.IsBlackedOut(ctx, testutil.FixtureAlert(func(a *types.Alert) {
		a.Customer = "globex"
	}), time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Error("global blackout should suppress all customers")
	}
}
