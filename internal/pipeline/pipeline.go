// Package pipeline implements the Pipeline Coordinator of spec.md §4.1:
// it sequences every other component in the exact stage order
// (format -> validate -> redact -> user-filter -> ratelimit -> quota ->
// charge -> dispatch -> circuit -> offline-queue -> retry -> compress ->
// POST), recording every drop with its exact reason. Grounded on
// cmd/whk/main.go's role as the thin orchestration layer wiring
// internal/api, internal/auth, internal/tui together — here the
// Coordinator plays that role over ratelimit, quota, redact, circuit,
// retry, batch, compress, transport and queue.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"errship.dev/sdk/internal/batch"
	"errship.dev/sdk/internal/circuit"
	"errship.dev/sdk/internal/clock"
	"errship.dev/sdk/internal/compress"
	"errship.dev/sdk/internal/config"
	"errship.dev/sdk/internal/health"
	"errship.dev/sdk/internal/netstatus"
	"errship.dev/sdk/internal/quota"
	"errship.dev/sdk/internal/ratelimit"
	"errship.dev/sdk/internal/redact"
	"errship.dev/sdk/internal/retry"
	"errship.dev/sdk/internal/stackparse"
	"errship.dev/sdk/internal/store"
	"errship.dev/sdk/internal/transport"
	"errship.dev/sdk/internal/types"

	"errship.dev/sdk/internal/queue"
)

// Outcome is what CaptureException/CaptureMessage return to the caller:
// the fire-and-forget guarantee of spec.md §4.1 — delivered, queued, or
// dropped with exactly one accounted reason.
type Outcome struct {
	Delivered bool
	Queued    bool
	Dropped   bool
	Reason    types.DropReason
	Err       error
}

// Coordinator wires every pipeline component together. It is safe for
// concurrent CaptureException/CaptureMessage calls, per spec.md §5.
type Coordinator struct {
	cfg    config.Config
	clock  clock.Clock
	net    netstatus.Status
	health *health.Monitor

	limiter   *ratelimit.Limiter
	quota     *quota.Accountant
	redactor  *redact.Redactor
	breaker   *circuit.Breaker
	batcher   *batch.Aggregator
	queue     *queue.Queue
	transport transport.Transport
	compressor *compress.Compressor

	retryCfg retry.Config

	disabled bool
}

// New constructs a fully wired Coordinator. s is the durable store shared
// (under disjoint keys) by the Quota Accountant and the Offline Queue;
// net is the connectivity signal driving the Offline Queue's flush
// triggers; t is the transport substrate. The direct dispatch path and the
// Offline Queue's flush call it through retry.Do; the Batch Aggregator's
// sender posts each envelope once and hands a failed envelope's reports to
// the Offline Queue.
func New(cfg config.Config, c clock.Clock, s store.Store, net netstatus.Status, t transport.Transport) *Coordinator {
	co := &Coordinator{
		cfg:       cfg,
		clock:     c,
		net:       net,
		limiter:   ratelimit.New(c, cfg.MaxRequestsPerMinute, time.Minute, cfg.DuplicateErrorWindow),
		quota:     quota.New(c, s, cfg.DailyLimit, cfg.MonthlyLimit, cfg.BurstLimit, cfg.BurstWindowMs),
		redactor:  redact.New(),
		breaker:   circuit.New(c, cfg.FailureThreshold, cfg.MinimumRequests, cfg.MonitoringPeriod, cfg.ResetTimeout),
		transport: t,
		compressor: compress.New(cfg.EnableCompression, cfg.CompressionThreshold),
		retryCfg: retry.Config{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: cfg.InitialRetryDelay,
			MaxDelay:     cfg.MaxRetryDelay,
			Multiplier:   2,
		},
	}
	co.health = health.New(c, func() int {
		if co.queue == nil {
			return 0
		}
		return co.queue.Size()
	})
	co.queue = queue.New(c, s, co.sendDirect, cfg.MaxOfflineQueueSize, cfg.OfflineQueueMaxAge)
	co.batcher = batch.New(c, co.sendEnvelope, cfg.EnableBatching, cfg.BatchSize, cfg.MaxBatchPayloadSize, cfg.BatchTimeout)

	if net != nil {
		net.OnOnline(func() { co.queue.Flush() })
	}
	return co
}

// CaptureException runs the full stage pipeline for err, with extraCtx
// merged into the report's Context, user/breadcrumbs set on their own
// report fields (not nested inside Context, so the Redactor's dedicated
// User/Breadcrumbs handling actually sees them), and stackTrace used for
// file/line extraction (spec.md §4.1 stage 1).
func (co *Coordinator) CaptureException(err error, stackTrace string, extraCtx map[string]any, user map[string]any, breadcrumbs []types.Breadcrumb) Outcome {
	report := co.format(err.Error(), stackTrace, extraCtx, user, breadcrumbs)
	report.ExceptionClass = fmt.Sprintf("%T", err)
	return co.run(report)
}

// CaptureMessage runs the full stage pipeline for a free-text message.
func (co *Coordinator) CaptureMessage(text string, level types.BreadcrumbLevel, extraCtx map[string]any, user map[string]any, breadcrumbs []types.Breadcrumb) Outcome {
	report := co.format(text, "", extraCtx, user, breadcrumbs)
	report.ExceptionClass = string(level)
	return co.run(report)
}

// format builds an ErrorReport, per spec.md §4.1 stage 1: extracts
// file/line from the stack trace text, stamps project/environment/
// timestamp/session, and attaches the caller's context/user/breadcrumbs
// to their own fields so the Redactor's User/Breadcrumbs[].Data pass
// (spec.md §4.4) actually reaches them.
func (co *Coordinator) format(message, stackTrace string, extraCtx map[string]any, user map[string]any, breadcrumbs []types.Breadcrumb) types.ErrorReport {
	frame := stackparse.FirstFrame(stackTrace)
	return types.ErrorReport{
		Message:     message,
		StackTrace:  stackTrace,
		File:        frame.File,
		Line:        frame.Line,
		Project:     co.cfg.ProjectName,
		Environment: co.cfg.Environment,
		Timestamp:   co.clock.Now(),
		SessionID:   co.sessionID(),
		Context:     extraCtx,
		User:        user,
		Breadcrumbs: breadcrumbs,
	}
}

// sessionID is derived from the configured project and environment, so it
// is the same for every report of a Coordinator.
func (co *Coordinator) sessionID() string {
	return co.cfg.ProjectName + ":" + co.cfg.Environment
}

// run drives report through stages 2-8 of spec.md §4.1.
func (co *Coordinator) run(report types.ErrorReport) Outcome {
	if co.disabled {
		co.health.RecordSuppressed(types.DropSDKDisabled)
		return Outcome{Dropped: true, Reason: types.DropSDKDisabled}
	}
	if !co.cfg.Enabled {
		co.health.RecordSuppressed(types.DropSDKDisabled)
		return Outcome{Dropped: true, Reason: types.DropSDKDisabled}
	}

	serialized, _ := json.Marshal(report)
	validation := redact.Validate(&report, len(serialized), co.cfg.MaxPayloadSize)
	if validation.Err != nil {
		co.health.RecordSuppressed(types.DropValidationFailed)
		return Outcome{Dropped: true, Reason: types.DropValidationFailed, Err: validation.Err}
	}

	co.redactor.Redact(&report)

	if co.cfg.BeforeSend != nil {
		filtered := co.cfg.BeforeSend(&report)
		if filtered == nil {
			co.health.RecordSuppressed(types.DropFilteredByUser)
			return Outcome{Dropped: true, Reason: types.DropFilteredByUser}
		}
		report = *filtered
	}

	rlDecision := co.limiter.Check(report.Fingerprint())
	if !rlDecision.Allowed {
		reason := types.DropRateLimited
		if rlDecision.Reason == "Duplicate error" {
			reason = types.DropDuplicate
		}
		co.health.RecordSuppressed(reason)
		return Outcome{Dropped: true, Reason: reason}
	}

	serialized, _ = json.Marshal(report)
	quotaDecision := co.quota.Check(len(serialized), co.cfg.MaxPayloadSize)
	if !quotaDecision.Allowed {
		co.health.RecordSuppressed(quotaDecision.Reason)
		return Outcome{Dropped: true, Reason: quotaDecision.Reason}
	}

	co.limiter.Mark(report.Fingerprint())
	if err := co.quota.Charge(); err != nil {
		log.Printf("errship: quota charge persist failed: %v", err)
	}

	return co.dispatch(report)
}

// dispatch hands an admitted report to the Batch Aggregator or directly
// to the Offline Queue's handleError, per spec.md §4.1 stage 8 and §4.9:
// when batching is disabled, "direct to the transport substrate" means
// attempt-send-if-online-else-enqueue, which is exactly the Offline
// Queue's own contract. When offline support itself is disabled, there is
// no queue to fall back to, so a failed send is a drop.
func (co *Coordinator) dispatch(report types.ErrorReport) Outcome {
	if co.cfg.EnableBatching {
		if err := co.batcher.Add(report); err != nil {
			return Outcome{Dropped: true, Err: err}
		}
		return Outcome{Delivered: true}
	}

	if !co.cfg.EnableOfflineSupport {
		if err := co.sendDirect(report); err != nil {
			co.health.RecordSuppressed(types.DropCircuitOpenNoQueue)
			return Outcome{Dropped: true, Reason: types.DropCircuitOpenNoQueue, Err: err}
		}
		return Outcome{Delivered: true}
	}

	online := co.net == nil || co.net.IsOnline()
	delivered, err := co.queue.HandleError(report, online)
	if err != nil {
		log.Printf("errship: offline queue enqueue failed: %v", err)
	}
	if delivered {
		return Outcome{Delivered: true}
	}
	return Outcome{Queued: true}
}

// sendEnvelope is the Batch Aggregator's Sender: it routes a whole
// BatchEnvelope through the circuit breaker and, on rejection or
// failure, the Offline Queue (one QueuedItem per report in the
// envelope, since the Offline Queue's unit is a single ErrorReport).
// Per spec.md §9's open question, batched sends are still gated by the
// breaker: a batch is no less an outbound request than a single report,
// so it must not bypass the outage protection the breaker exists for.
func (co *Coordinator) sendEnvelope(env types.BatchEnvelope) error {
	if !co.breaker.CanExecute() {
		return co.queueOrDrop(env.Reports, types.DropCircuitOpenNoQueue)
	}

	start := co.clock.Now()
	err := co.postJSON(env)
	if err != nil {
		co.breaker.RecordFailure()
		return co.queueOrDrop(env.Reports, "")
	}
	co.health.RecordDelivered(co.clock.Now().Sub(start))
	co.breaker.RecordSuccess()
	return nil
}

// sendDirect gates one report through the circuit breaker and retry
// executor. It is both the Offline Queue's Sender callback and, when
// offline support is disabled, the dispatch path's only send attempt.
func (co *Coordinator) sendDirect(report types.ErrorReport) error {
	if !co.breaker.CanExecute() {
		return fmt.Errorf("errship: circuit open")
	}

	result := retry.Do(context.Background(), retry.DefaultClassifier, co.retryCfg, func(ctx context.Context) (any, error) {
		co.health.RecordRetryAttempt()
		start := co.clock.Now()
		err := co.postJSON(report)
		if err == nil {
			co.health.RecordDelivered(co.clock.Now().Sub(start))
		}
		return nil, err
	})

	if result.Success {
		co.breaker.RecordSuccess()
		return nil
	}
	co.breaker.RecordFailure()
	return result.Err
}

// queueOrDrop enqueues every report in reports to the Offline Queue,
// treating them as currently-offline (the circuit is open or the batch
// send already failed, so a direct send attempt would be wasted). If
// offline support is disabled, every report is dropped with reason
// instead.
func (co *Coordinator) queueOrDrop(reports []types.ErrorReport, reason types.DropReason) error {
	if !co.cfg.EnableOfflineSupport {
		if reason == "" {
			reason = types.DropCircuitOpenNoQueue
		}
		for range reports {
			co.health.RecordSuppressed(reason)
		}
		return fmt.Errorf("errship: %s", reason)
	}
	for _, r := range reports {
		if _, err := co.queue.HandleError(r, false); err != nil {
			log.Printf("errship: offline queue enqueue failed: %v", err)
		}
	}
	return nil
}

// postJSON serializes v, compresses it if configured, and POSTs it
// through the transport substrate, per spec.md §4.8/§6.
func (co *Coordinator) postJSON(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	result, err := co.compressor.Compress(body)
	if err != nil {
		return err
	}
	headers := map[string]string{"Content-Type": result.ContentType}
	if result.ContentEncoding != "" {
		headers["Content-Encoding"] = result.ContentEncoding
	}
	ctx, cancel := context.WithTimeout(context.Background(), co.cfg.Timeout)
	defer cancel()
	return co.transport.Send(ctx, result.Body, headers)
}

// FlushQueue forces an Offline Queue drain and a Batch Aggregator flush.
func (co *Coordinator) FlushQueue() {
	_ = co.batcher.Flush()
	co.queue.Flush()
}

// IsEnabled reports whether the Coordinator currently accepts captures.
func (co *Coordinator) IsEnabled() bool {
	return co.cfg.Enabled && !co.disabled
}

// UpdateConfig atomically replaces the pipeline's tunables. Stateful
// components (limiter, quota, breaker) keep their accumulated state;
// only their thresholds change on the next check.
func (co *Coordinator) UpdateConfig(cfg config.Config) {
	co.cfg = cfg
}

// Destroy marks the Coordinator disabled so new captures drop at the
// entry, then attempts a best-effort final flush, per spec.md §5.
func (co *Coordinator) Destroy() {
	co.disabled = true
	_ = co.batcher.Close()
	co.queue.Flush()
}

// Health returns the underlying Health Monitor for GetStats/GetSDKHealth.
func (co *Coordinator) Health() *health.Monitor {
	return co.health
}

// QueueSize exposes the Offline Queue's current depth.
func (co *Coordinator) QueueSize() int {
	return co.queue.Size()
}
