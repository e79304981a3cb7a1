// Package batch implements the size/bytes/time-triggered grouping of
// spec.md §4.7, grounded on other_examples' PilotFiber-icmp-mon
// shipper.Shipper: a mutex-guarded buffer, a timer-or-signal-driven flush
// loop, and a guaranteed final flush on shutdown.
package batch

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"errship.dev/sdk/internal/clock"
	"errship.dev/sdk/internal/types"
)

// Sender delivers one BatchEnvelope. Errors are the caller's concern
// (circuit breaker / offline queue / retry sit between here and the
// transport); Aggregator itself does not retry.
type Sender func(envelope types.BatchEnvelope) error

// Aggregator accumulates admitted reports and flushes a BatchEnvelope
// whichever comes first: maxSize, maxPayloadSize (estimated serialized
// bytes), or maxWaitTime since the first report in the current batch.
type Aggregator struct {
	clock clock.Clock
	send  Sender

	enabled        bool
	maxSize        int
	maxPayloadSize int
	maxWaitTime    time.Duration

	mu          sync.Mutex
	current     []types.ErrorReport
	currentSize int
	timer       *time.Timer
}

// New creates an Aggregator. When enabled is false, Add sends each report
// immediately in a one-element envelope, per spec.md §4.7.
func New(c clock.Clock, send Sender, enabled bool, maxSize, maxPayloadSize int, maxWaitTime time.Duration) *Aggregator {
	return &Aggregator{
		clock:          c,
		send:           send,
		enabled:        enabled,
		maxSize:        maxSize,
		maxPayloadSize: maxPayloadSize,
		maxWaitTime:    maxWaitTime,
	}
}

// Add enqueues report into the current batch (or sends it immediately if
// batching is disabled), flushing synchronously if a size/bytes trigger
// fires. A time-based flush is delivered asynchronously by the pending
// timer.
func (a *Aggregator) Add(report types.ErrorReport) error {
	if !a.enabled {
		return a.send(oneElementEnvelope(report))
	}

	a.mu.Lock()
	a.current = append(a.current, report)
	size, _ := json.Marshal(report)
	a.currentSize += len(size)

	triggered := len(a.current) >= a.maxSize || a.currentSize >= a.maxPayloadSize
	if !triggered && a.timer == nil {
		a.timer = time.AfterFunc(a.maxWaitTime, a.onTimerFire)
	}
	var envelope *types.BatchEnvelope
	if triggered {
		env := a.drainLocked()
		envelope = &env
	}
	a.mu.Unlock()

	if envelope != nil {
		return a.send(*envelope)
	}
	return nil
}

func (a *Aggregator) onTimerFire() {
	a.mu.Lock()
	if len(a.current) == 0 {
		a.mu.Unlock()
		return
	}
	envelope := a.drainLocked()
	a.mu.Unlock()

	_ = a.send(envelope)
}

// drainLocked clears the current batch and cancels any pending timer
// before returning the envelope to send; must be called with mu held.
// Cancel-then-clear is required so a concurrently firing timer can't
// double-flush an empty batch — mirrors spec.md §4.7's "clear the current
// batch and cancel any pending timer before awaiting the send".
func (a *Aggregator) drainLocked() types.BatchEnvelope {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	env := types.BatchEnvelope{
		BatchID:   uuid.NewString(),
		CreatedAt: a.clock.Now(),
		Count:     len(a.current),
		Reports:   a.current,
	}
	a.current = nil
	a.currentSize = 0
	return env
}

// Flush forces an immediate flush of whatever is currently buffered. A
// no-op (and no call to send) when the batch is empty.
func (a *Aggregator) Flush() error {
	a.mu.Lock()
	if len(a.current) == 0 {
		a.mu.Unlock()
		return nil
	}
	envelope := a.drainLocked()
	a.mu.Unlock()
	return a.send(envelope)
}

// Close attempts one final flush, per spec.md §4.7's teardown contract.
func (a *Aggregator) Close() error {
	return a.Flush()
}

func oneElementEnvelope(report types.ErrorReport) types.BatchEnvelope {
	return types.BatchEnvelope{
		BatchID:   uuid.NewString(),
		CreatedAt: report.Timestamp,
		Count:     1,
		Reports:   []types.ErrorReport{report},
	}
}
