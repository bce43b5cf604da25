package ratelimit

import (
	"context"
	"sync"
	"time"

	"macropulse/internal/logging"
)

// Governor bounds outbound request rate per account key and globally.
//
// Each account key is allowed at most MaxRequests grants inside a sliding
// window, and every grant (regardless of key) is separated by at least the
// global minimum delay. Acquire blocks until both conditions hold or the
// context is cancelled; the governor itself never fails.
type Governor struct {
	maxRequests int
	window      time.Duration
	minDelay    time.Duration
	logger      logging.Logger

	mu        sync.Mutex
	grants    map[string][]time.Time
	lastGrant time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGovernor constructs a Governor allowing maxRequests per window for each
// account key, with a global minimum delay between any two grants.
func NewGovernor(maxRequests int, window, minDelay time.Duration, logger logging.Logger) *Governor {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	return &Governor{
		maxRequests: maxRequests,
		window:      window,
		minDelay:    minDelay,
		logger:      logger,
		grants:      make(map[string][]time.Time),
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// Acquire blocks until a request slot is available for the given account key.
// The only error it can return is the context's, observed during a wait.
func (g *Governor) Acquire(ctx context.Context, accountKey string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait, reason := g.tryGrant(accountKey)
		if wait <= 0 {
			return nil
		}

		if g.logger != nil {
			g.logger.WithFields(logging.Fields{
				"account": accountKey,
				"wait":    wait.String(),
				"reason":  reason,
			}).Debug("rate governor waiting")
		}
		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
		// Re-validate after every wait: another acquirer may have taken
		// the slot that just freed.
	}
}

// tryGrant either records a grant and returns zero, or returns how long the
// caller must wait before re-evaluating.
func (g *Governor) tryGrant(accountKey string) (time.Duration, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	if !g.lastGrant.IsZero() {
		if elapsed := now.Sub(g.lastGrant); elapsed < g.minDelay {
			return g.minDelay - elapsed, "global delay"
		}
	}

	history := g.grants[accountKey]
	fresh := history[:0]
	for _, ts := range history {
		if now.Sub(ts) < g.window {
			fresh = append(fresh, ts)
		}
	}
	g.grants[accountKey] = fresh

	if len(fresh) >= g.maxRequests {
		wait := fresh[0].Add(g.window).Sub(now)
		if wait <= 0 {
			wait = time.Millisecond
		}
		return wait, "account window"
	}

	g.grants[accountKey] = append(fresh, now)
	g.lastGrant = now
	return 0, ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
