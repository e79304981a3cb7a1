package queue

import (
	"errors"
	"testing"
	"time"

	"errship.dev/sdk/internal/clock"
	"errship.dev/sdk/internal/store"
	"errship.dev/sdk/internal/types"
)

func reportNamed(id string) types.ErrorReport {
	return types.ErrorReport{Message: "boom", Project: "p", SessionID: id, Line: 1}
}

func TestQueue_OnlineDirectSendSkipsQueue(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	s := store.NewMemStore()
	sent := 0
	q := New(c, s, func(types.ErrorReport) error { sent++; return nil }, 10, time.Hour)

	if delivered, err := q.HandleError(reportNamed("a"), true); err != nil || !delivered {
		t.Fatalf("HandleError: delivered=%v err=%v", delivered, err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	if q.Size() != 0 {
		t.Fatalf("Size = %d, want 0 (direct send should bypass the queue)", q.Size())
	}
}

func TestQueue_OfflineEnqueuesAndPersists(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	s := store.NewMemStore()
	q := New(c, s, func(types.ErrorReport) error { return nil }, 10, time.Hour)

	if delivered, err := q.HandleError(reportNamed("a"), false); err != nil || delivered {
		t.Fatalf("HandleError: delivered=%v err=%v", delivered, err)
	}
	if q.Size() != 1 {
		t.Fatalf("Size = %d, want 1", q.Size())
	}

	// A second Queue instance loads the persisted state.
	q2 := New(c, s, nil, 10, time.Hour)
	if q2.Size() != 1 {
		t.Fatalf("reloaded Size = %d, want 1", q2.Size())
	}
}

func TestQueue_SendFailureEnqueues(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	s := store.NewMemStore()
	q := New(c, s, func(types.ErrorReport) error { return errors.New("down") }, 10, time.Hour)

	if delivered, err := q.HandleError(reportNamed("a"), true); err != nil || delivered {
		t.Fatalf("HandleError: delivered=%v err=%v", delivered, err)
	}
	if q.Size() != 1 {
		t.Fatalf("Size = %d, want 1 after failed direct send", q.Size())
	}
}

func TestQueue_MaxSizeKeepsNewest(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	s := store.NewMemStore()
	q := New(c, s, nil, 3, time.Hour)

	for i := 0; i < 5; i++ {
		_, _ = q.HandleError(reportNamed(string(rune('a'+i))), false)
		c.Advance(time.Minute)
	}

	snap := q.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Size = %d, want 3", len(snap))
	}
	// Oldest two (a, b) should have been evicted; newest three (c, d, e) kept.
	names := map[string]bool{}
	for _, item := range snap {
		names[item.Report.SessionID] = true
	}
	for _, want := range []string{"c", "d", "e"} {
		if !names[want] {
			t.Errorf("expected report %q to survive eviction, got %v", want, names)
		}
	}
}

func TestQueue_PruneExpiredByAge(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	s := store.NewMemStore()
	q := New(c, s, nil, 10, time.Minute)

	_, _ = q.HandleError(reportNamed("old"), false)
	c.Advance(2 * time.Minute)
	_, _ = q.HandleError(reportNamed("new"), false)

	if q.Size() != 1 {
		t.Fatalf("Size = %d, want 1 (old item should have aged out)", q.Size())
	}
}

func TestQueue_FlushRemovesSucceededAndRetriesFailed(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	s := store.NewMemStore()

	fail := map[string]bool{"bad": true}
	q := New(c, s, func(r types.ErrorReport) error {
		if fail[r.SessionID] {
			return errors.New("nope")
		}
		return nil
	}, 10, time.Hour)

	_, _ = q.HandleError(reportNamed("good"), false)
	_, _ = q.HandleError(reportNamed("bad"), false)

	q.Flush()

	snap := q.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Size after flush = %d, want 1 (only the failing item remains)", len(snap))
	}
	if snap[0].Attempts != 1 {
		t.Fatalf("Attempts = %d, want 1", snap[0].Attempts)
	}
}

func TestQueue_DropsAfterMaxAttempts(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	s := store.NewMemStore()
	q := New(c, s, func(types.ErrorReport) error { return errors.New("nope") }, 10, time.Hour)

	_, _ = q.HandleError(reportNamed("x"), false)

	for i := 0; i < maxAttempts; i++ {
		q.Flush()
	}

	if q.Size() != 0 {
		t.Fatalf("Size = %d, want 0 after exhausting retries", q.Size())
	}
}

func TestQueue_FlushOnEmptyIsNoop(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	s := store.NewMemStore()
	q := New(c, s, func(types.ErrorReport) error { return nil }, 10, time.Hour)
	q.Flush()
	if q.Size() != 0 {
		t.Fatalf("Size = %d, want 0", q.Size())
	}
}
