// Package queue implements the durable offline queue of spec.md §4.9: a
// FIFO bounded by entry count and per-entry age, persisted as a single
// JSON array under one store.Store key, flushed on network online edges
// and explicit FlushQueue() calls. Grounded on other_examples'
// foxcpp-maddy internal/target/queue's disk-persisted, per-item retry
// counter design, adapted from SMTP delivery semantics to the store.Store
// key/value contract used throughout this module (see store.FileStore,
// internal/quota).
package queue

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"errship.dev/sdk/internal/clock"
	"errship.dev/sdk/internal/store"
	"errship.dev/sdk/internal/types"
)

// StoreKey is the fixed durable-store key holding the queue's JSON array,
// disjoint from quota.StoreKey per spec.md §5's shared-resource note.
const StoreKey = "errship.queue.v1"

// maxAttempts is the per-item retry ceiling before an item is dropped by
// the flush loop, per spec.md §4.9.
const maxAttempts = 3

// Sender attempts one direct delivery of report. It returns a non-nil
// error on any failure; the queue does not distinguish retryable from
// non-retryable failures itself — that classification already happened
// upstream in the retry executor before an item reaches the queue.
type Sender func(report types.ErrorReport) error

// Queue is a durable FIFO of QueuedItem, bounded by maxSize and maxAge.
type Queue struct {
	clock clock.Clock
	store store.Store
	send  Sender

	maxSize int
	maxAge  time.Duration

	mu         sync.Mutex
	items      []types.QueuedItem
	inProgress bool
}

// New constructs a Queue and loads any persisted items from s. A load
// failure (missing key, corrupt JSON) is treated as an empty queue —
// state then lives only in memory for the remainder of the session, per
// spec.md §4.9's durable store contract.
func New(c clock.Clock, s store.Store, send Sender, maxSize int, maxAge time.Duration) *Queue {
	q := &Queue{clock: c, store: s, send: send, maxSize: maxSize, maxAge: maxAge}
	if raw, err := s.Get(StoreKey); err == nil {
		var items []types.QueuedItem
		if json.Unmarshal([]byte(raw), &items) == nil {
			q.items = items
		}
	}
	return q
}

// HandleError attempts a direct send when online; on success it returns
// (true, nil) without touching the queue. On failure, or when offline,
// the report is appended as a fresh QueuedItem and the queue is
// persisted, returning (false, nil) — or (false, err) if the persist
// itself failed. When online, a successful enqueue opportunistically
// triggers a flush of the whole queue (spec.md §4.9's "opportunistically
// when new items are enqueued while online" trigger).
func (q *Queue) HandleError(report types.ErrorReport, online bool) (delivered bool, err error) {
	if online && q.send != nil {
		if err := q.send(report); err == nil {
			return true, nil
		}
	}

	q.mu.Lock()
	q.items = append(q.items, types.QueuedItem{
		ID:         uuid.NewString(),
		Report:     report,
		EnqueuedAt: q.clock.Now(),
		Attempts:   0,
	})
	q.pruneExpiredLocked()
	q.enforceMaxSizeLocked()
	persistErr := q.persistLocked()
	q.mu.Unlock()
	if persistErr != nil {
		return false, persistErr
	}

	if online {
		q.Flush()
	}
	return false, nil
}

// pruneExpiredLocked drops items older than maxAge; must be called with
// mu held.
func (q *Queue) pruneExpiredLocked() {
	if q.maxAge <= 0 {
		return
	}
	now := q.clock.Now()
	kept := q.items[:0:0]
	for _, item := range q.items {
		if now.Sub(item.EnqueuedAt) <= q.maxAge {
			kept = append(kept, item)
		}
	}
	q.items = kept
}

// enforceMaxSizeLocked keeps only the newest maxSize items by
// enqueuedAt, per spec.md §4.9. Must be called with mu held.
func (q *Queue) enforceMaxSizeLocked() {
	if q.maxSize <= 0 || len(q.items) <= q.maxSize {
		return
	}
	sort.Slice(q.items, func(i, j int) bool {
		return q.items[i].EnqueuedAt.Before(q.items[j].EnqueuedAt)
	})
	q.items = q.items[len(q.items)-q.maxSize:]
}

func (q *Queue) persistLocked() error {
	raw, err := json.Marshal(q.items)
	if err != nil {
		return err
	}
	return q.store.Set(StoreKey, string(raw))
}

// Flush drains the queue once, guarded by an in-progress flag so two
// trigger edges arriving in quick succession (online edge + explicit
// FlushQueue call) don't run concurrently, per spec.md §5's concurrency
// hazard note. A flush already running causes this call to return
// immediately without error.
func (q *Queue) Flush() {
	q.mu.Lock()
	if q.inProgress {
		q.mu.Unlock()
		return
	}
	q.inProgress = true
	snapshot := append([]types.QueuedItem(nil), q.items...)
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.inProgress = false
		q.mu.Unlock()
	}()

	if len(snapshot) == 0 {
		return
	}

	removed := make(map[string]bool, len(snapshot))
	for i := range snapshot {
		item := &snapshot[i]
		if q.send == nil {
			break
		}
		if err := q.send(item.Report); err == nil {
			removed[item.ID] = true
			continue
		}
		item.Attempts++
		if item.Attempts >= maxAttempts {
			removed[item.ID] = true
		}
	}

	q.mu.Lock()
	kept := q.items[:0:0]
	bySnapshotID := make(map[string]types.QueuedItem, len(snapshot))
	for _, item := range snapshot {
		bySnapshotID[item.ID] = item
	}
	for _, item := range q.items {
		if removed[item.ID] {
			continue
		}
		if updated, ok := bySnapshotID[item.ID]; ok {
			kept = append(kept, updated)
			continue
		}
		kept = append(kept, item)
	}
	q.items = kept
	_ = q.persistLocked()
	q.mu.Unlock()
}

// Size returns the current queue depth, read by the Health Monitor.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of the current queue contents, primarily for
// tests and diagnostics.
func (q *Queue) Snapshot() []types.QueuedItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]types.QueuedItem(nil), q.items...)
}
