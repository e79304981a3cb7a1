// Package quota implements the daily/monthly/burst quota ledger of
// spec.md §4.3, persisted through a store.Store so usage survives process
// restarts.
//
// The day/month rollover-by-key-comparison and the "on parse failure,
// start from zero but keep today's key" recovery rule are a direct port
// of apps/receiver/main.go's FileQuotaStore reconciliation logic, adapted
// from per-slug quota files to a single ledger record.
package quota

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"errship.dev/sdk/internal/clock"
	"errship.dev/sdk/internal/store"
	"errship.dev/sdk/internal/types"
)

// StoreKey is the fixed durable-store key the ledger is persisted under.
const StoreKey = "errship.quota.v1"

// Decision is the outcome of an admission check, returning the first
// failing limit, in the order spec.md §4.1 stage 6 requires: payload
// size, burst, daily, monthly.
type Decision struct {
	Allowed bool
	Reason  types.DropReason
}

// Accountant tracks and persists quota usage.
type Accountant struct {
	clock clock.Clock
	store store.Store

	dailyLimit    int
	monthlyLimit  int
	burstLimit    int
	burstWindow   time.Duration

	mu     sync.Mutex
	ledger types.QuotaLedger
}

// New loads the ledger from store (zeroing it on a parse failure, per
// spec.md §4.3) and returns an Accountant.
func New(c clock.Clock, s store.Store, dailyLimit, monthlyLimit, burstLimit int, burstWindow time.Duration) *Accountant {
	a := &Accountant{
		clock:        c,
		store:        s,
		dailyLimit:   dailyLimit,
		monthlyLimit: monthlyLimit,
		burstLimit:   burstLimit,
		burstWindow:  burstWindow,
	}

	now := c.Now()
	a.ledger = types.QuotaLedger{
		LastDayKey:   dayKey(now),
		LastMonthKey: monthKey(now),
	}

	raw, err := s.Get(StoreKey)
	if err != nil {
		if err != store.ErrNotFound {
			log.Printf("quota: failed to load ledger, starting from zero: %v", err)
		}
		return a
	}
	var loaded types.QuotaLedger
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		log.Printf("quota: failed to parse persisted ledger, starting from zero: %v", err)
		return a
	}
	loaded.LastDayKey = dayKeyOr(loaded.LastDayKey, a.ledger.LastDayKey)
	loaded.LastMonthKey = monthKeyOr(loaded.LastMonthKey, a.ledger.LastMonthKey)
	a.ledger = loaded
	a.reconcileLocked(now)
	return a
}

func dayKeyOr(k, fallback string) string {
	if k == "" {
		return fallback
	}
	return k
}

func monthKeyOr(k, fallback string) string {
	if k == "" {
		return fallback
	}
	return k
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// reconcileLocked resets the daily/monthly counters if the computed keys
// have rolled over, and prunes burst timestamps older than the window.
// Must be called with mu held.
func (a *Accountant) reconcileLocked(now time.Time) {
	dk := dayKey(now)
	if dk != a.ledger.LastDayKey {
		a.ledger.DailyCount = 0
		a.ledger.LastDayKey = dk
	}
	mk := monthKey(now)
	if mk != a.ledger.LastMonthKey {
		a.ledger.MonthlyCount = 0
		a.ledger.LastMonthKey = mk
	}

	cutoff := now.Add(-a.burstWindow).UnixMilli()
	kept := a.ledger.BurstTimestamps[:0]
	for _, ts := range a.ledger.BurstTimestamps {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}
	a.ledger.BurstTimestamps = kept
}

// Check evaluates admission in the spec'd order: payload size must
// precede counter checks so an oversize item never consumes quota.
func (a *Accountant) Check(payloadSize, maxPayloadSize int) Decision {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.reconcileLocked(a.clock.Now())

	if payloadSize > maxPayloadSize {
		return Decision{Allowed: false, Reason: types.DropQuotaPayloadSize}
	}
	if len(a.ledger.BurstTimestamps) >= a.burstLimit {
		return Decision{Allowed: false, Reason: types.DropQuotaBurst}
	}
	if a.ledger.DailyCount >= a.dailyLimit {
		return Decision{Allowed: false, Reason: types.DropQuotaDaily}
	}
	if a.ledger.MonthlyCount >= a.monthlyLimit {
		return Decision{Allowed: false, Reason: types.DropQuotaMonthly}
	}
	return Decision{Allowed: true}
}

// Charge increments the counters after a report has fully admitted
// through every stage (rate limit included), and persists the ledger.
// Charging before that would over-count dropped items, per spec.md §4.1.
func (a *Accountant) Charge() error {
	a.mu.Lock()
	now := a.clock.Now()
	a.reconcileLocked(now)
	a.ledger.DailyCount++
	a.ledger.MonthlyCount++
	a.ledger.BurstTimestamps = append(a.ledger.BurstTimestamps, now.UnixMilli())
	snapshot := a.ledger
	a.mu.Unlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("quota: marshal ledger: %w", err)
	}
	if err := a.store.Set(StoreKey, string(data)); err != nil {
		log.Printf("quota: failed to persist ledger: %v", err)
		return nil // in-memory counters still advanced; never fatal
	}
	return nil
}

// Reset zeroes every counter, per spec.md §8's reset invariant.
func (a *Accountant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()
	a.ledger = types.QuotaLedger{
		LastDayKey:   dayKey(now),
		LastMonthKey: monthKey(now),
	}
}

// Snapshot returns a copy of the current ledger, for GetStats/GetSDKHealth.
func (a *Accountant) Snapshot() types.QuotaLedger {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := a.ledger
	cp.BurstTimestamps = append([]int64(nil), a.ledger.BurstTimestamps...)
	return cp
}
