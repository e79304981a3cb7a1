// Package circuit implements the three-state failure-rate circuit breaker
// of spec.md §4.5. The Closed/Open/HalfOpen vocabulary and mutex-protected
// CanExecute/State surface are grounded on the resilience.CircuitBreaker
// documented in other_examples' jonwraymond-toolops resilience package;
// the failure-rate window and lazy OPEN->HALF_OPEN transition are spec'd
// independently in spec.md §4.5.
package circuit

import (
	"sync"
	"time"

	"errship.dev/sdk/internal/clock"
	"errship.dev/sdk/internal/types"
)

// outcome is one observed result within the monitoring window.
type outcome struct {
	at      time.Time
	success bool
}

// Breaker gates calls to an unreliable transport.
//
// failureThreshold is a fraction in [0,1], not tenths — spec.md §9 flags
// the source's "threshold/10" interpretation as non-obvious and a
// conservative implementation should accept a plain fraction instead.
type Breaker struct {
	clock clock.Clock

	failureThreshold float64
	minimumRequests  int
	monitoringPeriod time.Duration
	resetTimeout     time.Duration

	mu              sync.Mutex
	state           types.CircuitState
	stateEnteredAt  time.Time
	outcomes        []outcome
	halfOpenInFlight bool
}

// New creates a Breaker in the CLOSED state.
func New(c clock.Clock, failureThreshold float64, minimumRequests int, monitoringPeriod, resetTimeout time.Duration) *Breaker {
	return &Breaker{
		clock:             c,
		failureThreshold:  failureThreshold,
		minimumRequests:   minimumRequests,
		monitoringPeriod:  monitoringPeriod,
		resetTimeout:      resetTimeout,
		state:             types.StateClosed,
		stateEnteredAt:    c.Now(),
	}
}

// CanExecute reports whether a call may currently proceed. While OPEN it
// lazily transitions to HALF_OPEN once resetTimeout has elapsed since
// stateEnteredAt, admitting exactly one trial request at a time.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	switch b.state {
	case types.StateClosed:
		return true
	case types.StateOpen:
		if now.Sub(b.stateEnteredAt) >= b.resetTimeout {
			b.state = types.StateHalfOpen
			b.stateEnteredAt = now
			b.halfOpenInFlight = true
			return true
		}
		return false
	case types.StateHalfOpen:
		if b.halfOpenInFlight {
			return false
		}
		b.halfOpenInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful call outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	b.record(now, true)

	if b.state == types.StateHalfOpen {
		b.state = types.StateClosed
		b.stateEnteredAt = now
		b.halfOpenInFlight = false
		b.outcomes = nil
	}
}

// RecordFailure records a failed call outcome, possibly tripping the
// breaker open.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	b.record(now, false)

	if b.state == types.StateHalfOpen {
		b.state = types.StateOpen
		b.stateEnteredAt = now
		b.halfOpenInFlight = false
		return
	}

	if b.state == types.StateClosed {
		b.pruneLocked(now)
		if len(b.outcomes) >= b.minimumRequests {
			failures := 0
			for _, o := range b.outcomes {
				if !o.success {
					failures++
				}
			}
			rate := float64(failures) / float64(len(b.outcomes))
			if rate >= b.failureThreshold {
				b.state = types.StateOpen
				b.stateEnteredAt = now
			}
		}
	}
}

func (b *Breaker) record(now time.Time, success bool) {
	b.pruneLocked(now)
	b.outcomes = append(b.outcomes, outcome{at: now, success: success})
}

func (b *Breaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.monitoringPeriod)
	kept := b.outcomes[:0]
	for _, o := range b.outcomes {
		if o.at.After(cutoff) {
			kept = append(kept, o)
		}
	}
	b.outcomes = kept
}

// State returns the current state.
func (b *Breaker) State() types.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ForceOpen forces the breaker OPEN, for tests and operator override.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = types.StateOpen
	b.stateEnteredAt = b.clock.Now()
	b.halfOpenInFlight = false
}

// ForceClose forces the breaker CLOSED, clearing its outcome window.
func (b *Breaker) ForceClose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = types.StateClosed
	b.stateEnteredAt = b.clock.Now()
	b.halfOpenInFlight = false
	b.outcomes = nil
}
