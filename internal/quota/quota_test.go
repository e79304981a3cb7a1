package quota

import (
	"testing"
	"time"

	"errship.dev/sdk/internal/clock"
	"errship.dev/sdk/internal/store"
	"errship.dev/sdk/internal/types"
)

func TestAccountant_PayloadSizeChecksBeforeCounters(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := store.NewMemStore()
	a := New(c, s, 1, 10, 10, time.Minute)

	d := a.Check(2000, 1000)
	if d.Allowed || d.Reason != types.DropQuotaPayloadSize {
		t.Fatalf("expected payload-size rejection, got %+v", d)
	}
	snap := a.Snapshot()
	if snap.DailyCount != 0 {
		t.Fatalf("oversize item must not consume quota, got %+v", snap)
	}
}

func TestAccountant_DailyLimitBoundary(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := store.NewMemStore()
	a := New(c, s, 2, 100, 100, time.Minute)

	if d := a.Check(10, 1000); !d.Allowed {
		t.Fatalf("first check should admit, got %+v", d)
	}
	if err := a.Charge(); err != nil {
		t.Fatalf("Charge: %v", err)
	}

	if d := a.Check(10, 1000); !d.Allowed {
		t.Fatalf("second check should admit, got %+v", d)
	}
	if err := a.Charge(); err != nil {
		t.Fatalf("Charge: %v", err)
	}

	d := a.Check(10, 1000)
	if d.Allowed || d.Reason != types.DropQuotaDaily {
		t.Fatalf("expected daily-limit rejection at cap, got %+v", d)
	}
}

func TestAccountant_DayRollover(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 1, 1, 23, 59, 0, 0, time.UTC))
	s := store.NewMemStore()
	a := New(c, s, 1, 100, 100, time.Minute)

	if err := a.Charge(); err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if d := a.Check(10, 1000); d.Allowed {
		t.Fatalf("expected daily cap hit before rollover")
	}

	c.Advance(2 * time.Hour) // crosses into 2026-01-02
	d := a.Check(10, 1000)
	if !d.Allowed {
		t.Fatalf("expected admit after day rollover, got %+v", d)
	}
	if a.Snapshot().DailyCount != 0 {
		t.Fatalf("expected daily count reset to zero after rollover")
	}
}

func TestAccountant_BurstWindowPrunes(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := store.NewMemStore()
	a := New(c, s, 100, 1000, 1, time.Second)

	if err := a.Charge(); err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if d := a.Check(10, 1000); d.Allowed {
		t.Fatalf("expected burst cap hit")
	}

	c.Advance(2 * time.Second)
	if d := a.Check(10, 1000); !d.Allowed {
		t.Fatalf("expected admit once burst timestamp aged out, got %+v", d)
	}
}

func TestAccountant_PersistsAcrossRestart(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := store.NewMemStore()
	a := New(c, s, 5, 100, 100, time.Minute)
	if err := a.Charge(); err != nil {
		t.Fatalf("Charge: %v", err)
	}

	b := New(c, s, 5, 100, 100, time.Minute)
	if got := b.Snapshot().DailyCount; got != 1 {
		t.Fatalf("expected restored daily count 1, got %d", got)
	}
}

func TestAccountant_CorruptPersistedStateStartsFromZeroButKeepsTodayKey(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := store.NewMemStore()
	_ = s.Set(StoreKey, "not json")

	a := New(c, s, 5, 100, 100, time.Minute)
	snap := a.Snapshot()
	if snap.DailyCount != 0 || snap.MonthlyCount != 0 {
		t.Fatalf("expected zeroed counters on parse failure, got %+v", snap)
	}
	if snap.LastDayKey != dayKey(c.Now()) {
		t.Fatalf("expected today's day key kept, got %q", snap.LastDayKey)
	}
}

func TestAccountant_Reset(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := store.NewMemStore()
	a := New(c, s, 1, 100, 100, time.Minute)
	_ = a.Charge()
	if d := a.Check(10, 1000); d.Allowed {
		t.Fatalf("expected blocked before reset")
	}
	a.Reset()
	if d := a.Check(10, 1000); !d.Allowed {
		t.Fatalf("expected admit after reset, got %+v", d)
	}
}
