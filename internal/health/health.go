// Package health implements the read-side observer of spec.md §4.10: a
// performance-counter accumulator plus a scored health assessment.
// Grounded on apps/receiver/main.go's Stats-style counters and
// other_examples' PilotFiber-icmp-mon shipper.Stats() accessor.
package health

import (
	"runtime"
	"sync"
	"time"

	"errship.dev/sdk/internal/clock"
	"errship.dev/sdk/internal/types"
)

const responseTimeSampleWindow = 20

// Status is the overall health bucket of spec.md §4.10.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Stats is a point-in-time snapshot of accumulated counters.
type Stats struct {
	ErrorsReported      int64
	ErrorsSuppressed    int64
	SuppressedByReason  map[types.DropReason]int64
	RetryAttempts       int64
	OfflineQueueSize    int
	AverageResponseTime time.Duration
	Uptime              time.Duration
	MemoryUsageBytes    uint64
}

// Assessment is the scored output of AssessHealth.
type Assessment struct {
	Score           int
	Status          Status
	Issues          []string
	Recommendations []string
}

// Monitor accumulates counters and computes health assessments. Safe for
// concurrent use.
type Monitor struct {
	clock     clock.Clock
	startedAt time.Time

	mu                 sync.Mutex
	errorsReported     int64
	suppressedByReason map[types.DropReason]int64
	retryAttempts      int64
	responseSamples    []time.Duration
	queueSizeFunc      func() int
}

// New creates a Monitor. queueSizeFunc is polled lazily by Snapshot/
// AssessHealth to read the Offline Queue's current depth, avoiding a
// direct dependency from health on queue.
func New(c clock.Clock, queueSizeFunc func() int) *Monitor {
	return &Monitor{
		clock:              c,
		startedAt:          c.Now(),
		suppressedByReason: make(map[types.DropReason]int64),
		queueSizeFunc:      queueSizeFunc,
	}
}

// RecordDelivered counts one successfully delivered report and its
// transport latency sample.
func (m *Monitor) RecordDelivered(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorsReported++
	m.responseSamples = append(m.responseSamples, latency)
	if len(m.responseSamples) > responseTimeSampleWindow {
		m.responseSamples = m.responseSamples[len(m.responseSamples)-responseTimeSampleWindow:]
	}
}

// RecordSuppressed counts one dropped report under its reason.
func (m *Monitor) RecordSuppressed(reason types.DropReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppressedByReason[reason]++
}

// RecordRetryAttempt counts one retry attempt made by the retry executor.
func (m *Monitor) RecordRetryAttempt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryAttempts++
}

// Snapshot returns the current accumulated stats.
func (m *Monitor) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var suppressedTotal int64
	byReason := make(map[types.DropReason]int64, len(m.suppressedByReason))
	for reason, count := range m.suppressedByReason {
		byReason[reason] = count
		suppressedTotal += count
	}

	var avg time.Duration
	if len(m.responseSamples) > 0 {
		var sum time.Duration
		for _, s := range m.responseSamples {
			sum += s
		}
		avg = sum / time.Duration(len(m.responseSamples))
	}

	queueSize := 0
	if m.queueSizeFunc != nil {
		queueSize = m.queueSizeFunc()
	}

	var memUsage uint64
	var rm runtime.MemStats
	runtime.ReadMemStats(&rm)
	memUsage = rm.HeapAlloc

	return Stats{
		ErrorsReported:      m.errorsReported,
		ErrorsSuppressed:    suppressedTotal,
		SuppressedByReason:  byReason,
		RetryAttempts:       m.retryAttempts,
		OfflineQueueSize:    queueSize,
		AverageResponseTime: avg,
		Uptime:              m.clock.Now().Sub(m.startedAt),
		MemoryUsageBytes:    memUsage,
	}
}

// AssessHealth computes spec.md §4.10's scored assessment: start at 100,
// subtract 20 if suppression rate >50%, 15 if avg response time >5000ms,
// 10 if queue size >10, 10 if heap usage >50MiB; map the result to
// healthy/degraded/unhealthy.
func (m *Monitor) AssessHealth() Assessment {
	stats := m.Snapshot()

	score := 100
	var issues, recs []string

	total := stats.ErrorsReported + stats.ErrorsSuppressed
	if total > 0 {
		rate := float64(stats.ErrorsSuppressed) / float64(total)
		if rate > 0.5 {
			score -= 20
			issues = append(issues, "more than half of captured errors are being suppressed")
			recs = append(recs, "review rate limit, quota and duplicate-window configuration")
		}
	}

	if stats.AverageResponseTime > 5000*time.Millisecond {
		score -= 15
		issues = append(issues, "average webhook response time exceeds 5s")
		recs = append(recs, "check network conditions or webhook endpoint latency")
	}

	if stats.OfflineQueueSize > 10 {
		score -= 10
		issues = append(issues, "offline queue is backing up")
		recs = append(recs, "verify connectivity to the webhook endpoint")
	}

	const fiftyMiB = 50 * 1024 * 1024
	if stats.MemoryUsageBytes > fiftyMiB {
		score -= 10
		issues = append(issues, "heap usage exceeds 50MiB")
		recs = append(recs, "check for unbounded breadcrumb or context growth")
	}

	status := StatusHealthy
	switch {
	case score < 60:
		status = StatusUnhealthy
	case score < 80:
		status = StatusDegraded
	}

	return Assessment{Score: score, Status: status, Issues: issues, Recommendations: recs}
}
