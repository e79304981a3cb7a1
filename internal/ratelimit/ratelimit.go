// Package ratelimit implements the per-window request cap and the
// fingerprint-based duplicate-suppression window of spec.md §4.2.
//
// The sweep-on-every-check bookkeeping style is grounded on the
// backoff/window accounting in apps/cli/internal/stream/stream.go's
// reconnect loop, generalized from a single counter to a sliding-window
// slice plus a fingerprint map.
package ratelimit

import (
	"sync"
	"time"

	"errship.dev/sdk/internal/clock"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	Reason    string
}

// Limiter enforces maxRequests admissions per window, plus a duplicate
// suppression window keyed by fingerprint.
type Limiter struct {
	clock clock.Clock

	maxRequests          int
	window               time.Duration
	duplicateErrorWindow time.Duration

	mu                sync.Mutex
	timestamps        []time.Time
	fingerprintLastSeen map[string]time.Time
	lastSweep         time.Time
}

// New creates a Limiter. window is the sliding admission window (spec's
// "per minute" cap uses a 1-minute window); duplicateErrorWindow is the
// separate, typically-shorter, duplicate-suppression window.
func New(c clock.Clock, maxRequests int, window, duplicateErrorWindow time.Duration) *Limiter {
	return &Limiter{
		clock:               c,
		maxRequests:         maxRequests,
		window:              window,
		duplicateErrorWindow: duplicateErrorWindow,
		fingerprintLastSeen: make(map[string]time.Time),
	}
}

// Check evaluates admission for a report with the given fingerprint. It
// does not mutate state — see Mark for that, performed only once a report
// fully admits through every later stage.
func (l *Limiter) Check(fingerprint string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.sweepLocked(now)

	if len(l.timestamps) >= l.maxRequests {
		resetAt := l.timestamps[0].Add(l.window)
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt, Reason: "Rate limit exceeded"}
	}

	if last, ok := l.fingerprintLastSeen[fingerprint]; ok {
		if now.Sub(last) < l.duplicateErrorWindow {
			return Decision{
				Allowed:   false,
				Remaining: l.maxRequests - len(l.timestamps),
				ResetAt:   last.Add(l.duplicateErrorWindow),
				Reason:    "Duplicate error",
			}
		}
	}

	remaining := l.maxRequests - len(l.timestamps)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining}
}

// Mark records an admitted report's timestamp and fingerprint. Must only
// be called once a report has cleared every later pipeline stage too, so
// that a report dropped downstream never consumes rate-limit budget.
func (l *Limiter) Mark(fingerprint string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.timestamps = append(l.timestamps, now)
	l.fingerprintLastSeen[fingerprint] = now
}

// Sweep prunes timestamps and fingerprint entries older than the window.
// Called automatically on every Check, and safe to call on a periodic
// ticker too, to bound memory for a quiet process.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(l.clock.Now())
}

func (l *Limiter) sweepLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	kept := l.timestamps[:0]
	for _, ts := range l.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.timestamps = kept

	dupCutoff := now.Add(-l.duplicateErrorWindow)
	for fp, ts := range l.fingerprintLastSeen {
		if ts.Before(dupCutoff) {
			delete(l.fingerprintLastSeen, fp)
		}
	}
	l.lastSweep = now
}

// Reset clears all admission and duplicate-suppression state, per
// spec.md §8's "after reset(), canSendError() admits any previously
// blocked report" invariant.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timestamps = nil
	l.fingerprintLastSeen = make(map[string]time.Time)
}
