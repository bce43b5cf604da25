package ratelimit

import (
	"context"
	"testing"
	"time"
)

// fakeClock advances only when the governor sleeps, so tests run instantly.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) install(g *Governor) {
	g.now = func() time.Time { return c.now }
	g.sleep = func(ctx context.Context, d time.Duration) error {
		c.sleeps = append(c.sleeps, d)
		c.now = c.now.Add(d)
		return ctx.Err()
	}
}

func TestGovernorEnforcesAccountWindow(t *testing.T) {
	g := NewGovernor(3, 900*time.Second, 0, nil)
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	clock.install(g)

	var grantTimes []time.Time
	for i := 0; i < 5; i++ {
		if err := g.Acquire(context.Background(), "alice"); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		grantTimes = append(grantTimes, clock.now)
	}

	// No 900s window may contain more than 3 grants.
	for i := range grantTimes {
		count := 0
		for j := range grantTimes {
			diff := grantTimes[j].Sub(grantTimes[i])
			if diff >= 0 && diff < 900*time.Second {
				count++
			}
		}
		if count > 3 {
			t.Fatalf("window starting at grant %d holds %d grants", i, count)
		}
	}

	// Calls 4 and 5 must each have waited for a slot to free.
	if len(clock.sleeps) < 2 {
		t.Fatalf("expected calls 4 and 5 to wait, recorded sleeps: %v", clock.sleeps)
	}
}

func TestGovernorEnforcesGlobalMinDelay(t *testing.T) {
	g := NewGovernor(10, time.Hour, 5*time.Second, nil)
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	clock.install(g)

	if err := g.Acquire(context.Background(), "alice"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	first := clock.now

	// Different account key still honours the global spacing.
	if err := g.Acquire(context.Background(), "bob"); err != nil {
		t.Fatalf("second acquire: %v", err)
	}

	if got := clock.now.Sub(first); got < 5*time.Second {
		t.Fatalf("grants only %v apart, want at least 5s", got)
	}
}

func TestGovernorWindowSlotsFreeOverTime(t *testing.T) {
	g := NewGovernor(2, 100*time.Second, 0, nil)
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	clock.install(g)

	for i := 0; i < 2; i++ {
		if err := g.Acquire(context.Background(), "alice"); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}

	start := clock.now
	if err := g.Acquire(context.Background(), "alice"); err != nil {
		t.Fatalf("third acquire: %v", err)
	}
	if waited := clock.now.Sub(start); waited < 100*time.Second {
		t.Fatalf("third grant should wait out the window, waited %v", waited)
	}
}

func TestGovernorObservesCancellation(t *testing.T) {
	g := NewGovernor(1, time.Hour, 0, nil)
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	clock.install(g)

	if err := g.Acquire(context.Background(), "alice"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := g.Acquire(ctx, "alice"); err == nil {
		t.Fatalf("expected context error while waiting for a slot")
	}
}
