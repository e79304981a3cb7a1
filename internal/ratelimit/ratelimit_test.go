package ratelimit

import (
	"testing"
	"time"

	"errship.dev/sdk/internal/clock"
)

func TestLimiter_BoundaryAtMaxRequests(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	l := New(c, 10, time.Minute, 5*time.Second)

	for i := 0; i < 9; i++ {
		d := l.Check("fp-irrelevant-" + string(rune('a'+i)))
		if !d.Allowed {
			t.Fatalf("request %d: expected admit", i)
		}
		l.Mark("fp-irrelevant-" + string(rune('a'+i)))
		c.Advance(time.Second)
	}

	// At maxRequests-1 (9 marked), the 10th must still admit.
	d := l.Check("fp-10")
	if !d.Allowed {
		t.Fatalf("expected 10th request to admit, got %+v", d)
	}
	l.Mark("fp-10")

	// At exactly maxRequests (10 marked), the next must deny.
	d = l.Check("fp-11")
	if d.Allowed || d.Reason != "Rate limit exceeded" {
		t.Fatalf("expected deny at cap, got %+v", d)
	}
}

func TestLimiter_Duplicate(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	l := New(c, 100, time.Minute, 5*time.Second)

	d := l.Check("boom@file.ts:10")
	if !d.Allowed {
		t.Fatalf("first check should admit, got %+v", d)
	}
	l.Mark("boom@file.ts:10")

	c.Advance(3 * time.Second)
	d = l.Check("boom@file.ts:10")
	if d.Allowed || d.Reason != "Duplicate error" {
		t.Fatalf("expected duplicate deny within window, got %+v", d)
	}

	c.Advance(3 * time.Second) // total 6s > 5s window
	d = l.Check("boom@file.ts:10")
	if !d.Allowed {
		t.Fatalf("expected admit after duplicate window elapses, got %+v", d)
	}
}

func TestLimiter_WindowSweep(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	l := New(c, 2, time.Minute, time.Second)

	l.Mark("a")
	c.Advance(61 * time.Second)
	l.Mark("b")

	d := l.Check("c")
	if !d.Allowed {
		t.Fatalf("expected admit once old timestamp aged out of window, got %+v", d)
	}
}

func TestLimiter_Reset(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	l := New(c, 1, time.Minute, time.Minute)

	l.Mark("a")
	d := l.Check("b")
	if d.Allowed {
		t.Fatalf("expected deny before reset")
	}

	l.Reset()
	d = l.Check("b")
	if !d.Allowed {
		t.Fatalf("expected admit after reset, got %+v", d)
	}
}
