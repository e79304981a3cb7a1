// Package errship is the public entry point: a thin binding over
// internal/pipeline.Coordinator, plus package-level convenience functions
// bound to a single package-level handle (errship.Init/errship.Capture...).
// Grounded on cmd/whk/main.go's role as the thin cobra-command layer over
// internal/api/internal/auth/internal/stream — here the public surface
// binds the same way over internal/pipeline.
package errship

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"errship.dev/sdk/internal/clock"
	"errship.dev/sdk/internal/config"
	"errship.dev/sdk/internal/health"
	"errship.dev/sdk/internal/netstatus"
	"errship.dev/sdk/internal/pipeline"
	"errship.dev/sdk/internal/store"
	"errship.dev/sdk/internal/transport"
	"errship.dev/sdk/internal/types"
)

// Version is the SDK's own version, sent as part of the User-Agent
// header on every outbound request.
const Version = "0.1.0"

// Reporter is a fully wired SDK instance. The zero value is not usable;
// construct with New.
type Reporter struct {
	mu          sync.Mutex
	coordinator *pipeline.Coordinator
	poller      *netstatus.Poller
	breadcrumbs []types.Breadcrumb
	user        map[string]any
	context     map[string]any
	maxCrumbs   int
}

// New validates cfg and wires a Reporter. A validation failure returns a
// non-nil error and a nil Reporter; no disabled Reporter is constructed in
// that case, so there is nothing to call IsEnabled on.
func New(cfg config.Config) (*Reporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := clock.Real{}
	var s store.Store
	fs, err := store.NewFileStore(defaultStoreDir(cfg.ProjectName))
	if err != nil {
		s = store.NewMemStore()
	} else {
		s = fs
	}

	t := transport.New(cfg.WebhookURL, cfg.Timeout, Version)

	var net netstatus.Status
	poller := netstatus.New(cfg.WebhookURL, 30*time.Second)
	poller.Start()
	net = poller

	co := pipeline.New(cfg, c, s, net, t)

	return &Reporter{
		coordinator: co,
		poller:      poller,
		maxCrumbs:   cfg.MaxBreadcrumbs,
	}, nil
}

func defaultStoreDir(project string) string {
	return ".errship/" + project
}

// CaptureException reports err, capturing a fresh stack trace at the
// call site and merging in the Reporter's current user/context/
// breadcrumbs.
func (r *Reporter) CaptureException(err error, extraContext map[string]any) pipeline.Outcome {
	stack := string(debug.Stack())
	ctx, user, crumbs := r.ambientState(extraContext)
	return r.coordinator.CaptureException(err, stack, ctx, user, crumbs)
}

// CaptureMessage reports a free-text message at the given severity.
func (r *Reporter) CaptureMessage(text string, level types.BreadcrumbLevel, extraContext map[string]any) pipeline.Outcome {
	ctx, user, crumbs := r.ambientState(extraContext)
	return r.coordinator.CaptureMessage(text, level, ctx, user, crumbs)
}

// ambientState snapshots the Reporter's current context/user/breadcrumbs
// for one capture. User and breadcrumbs are returned on their own report
// fields rather than folded into context, so the pipeline's Redactor
// (which walks User and Breadcrumbs[].Data explicitly) actually sees
// them instead of a Context value it can't type-switch on.
func (r *Reporter) ambientState(extra map[string]any) (map[string]any, map[string]any, []types.Breadcrumb) {
	r.mu.Lock()
	defer r.mu.Unlock()

	merged := make(map[string]any, len(r.context)+len(extra))
	for k, v := range r.context {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}

	var crumbs []types.Breadcrumb
	if len(r.breadcrumbs) > 0 {
		crumbs = append([]types.Breadcrumb(nil), r.breadcrumbs...)
	}

	return merged, r.user, crumbs
}

// AddBreadcrumb appends a breadcrumb, trimming the oldest once
// MaxBreadcrumbs is exceeded.
func (r *Reporter) AddBreadcrumb(b types.Breadcrumb) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breadcrumbs = append(r.breadcrumbs, b)
	if r.maxCrumbs > 0 && len(r.breadcrumbs) > r.maxCrumbs {
		r.breadcrumbs = r.breadcrumbs[len(r.breadcrumbs)-r.maxCrumbs:]
	}
}

// ClearBreadcrumbs empties the breadcrumb ring.
func (r *Reporter) ClearBreadcrumbs() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breadcrumbs = nil
}

// SetUser replaces the ambient user context attached to future captures.
func (r *Reporter) SetUser(user map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.user = user
}

// SetContext merges key into the ambient context attached to future
// captures.
func (r *Reporter) SetContext(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.context == nil {
		r.context = make(map[string]any)
	}
	r.context[key] = value
}

// RemoveContext removes key from the ambient context.
func (r *Reporter) RemoveContext(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.context, key)
}

// FlushQueue forces an Offline Queue drain and Batch Aggregator flush.
func (r *Reporter) FlushQueue() {
	r.coordinator.FlushQueue()
}

// UpdateConfig replaces the pipeline's tunables in place.
func (r *Reporter) UpdateConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.coordinator.UpdateConfig(cfg)
	return nil
}

// GetStats returns the Health Monitor's current counters.
func (r *Reporter) GetStats() health.Stats {
	return r.coordinator.Health().Snapshot()
}

// GetSDKHealth returns the Health Monitor's scored assessment.
func (r *Reporter) GetSDKHealth() health.Assessment {
	return r.coordinator.Health().AssessHealth()
}

// IsEnabled reports whether the Reporter currently accepts captures.
func (r *Reporter) IsEnabled() bool {
	return r.coordinator.IsEnabled()
}

// Destroy disables the Reporter, attempts a best-effort final flush, and
// stops the connectivity poller.
func (r *Reporter) Destroy() {
	r.coordinator.Destroy()
	r.poller.Stop()
}

// Package-level convenience handle, per spec.md §9's design note on
// replacing ambient globals with an explicit, overridable single
// instance rather than a hidden singleton import side effect.
var (
	defaultMu       sync.Mutex
	defaultReporter *Reporter
)

// Init constructs the package-level default Reporter used by the
// Capture*/AddBreadcrumb/... package functions below.
func Init(cfg config.Config) error {
	r, err := New(cfg)
	if err != nil {
		return err
	}
	defaultMu.Lock()
	defaultReporter = r
	defaultMu.Unlock()
	return nil
}

func current() (*Reporter, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultReporter == nil {
		return nil, fmt.Errorf("errship: not initialized, call errship.Init first")
	}
	return defaultReporter, nil
}

// CaptureException reports err through the package-level default Reporter.
func CaptureException(err error, extraContext map[string]any) (pipeline.Outcome, error) {
	r, initErr := current()
	if initErr != nil {
		return pipeline.Outcome{Dropped: true, Reason: types.DropNotInitialized}, initErr
	}
	return r.CaptureException(err, extraContext), nil
}

// CaptureMessage reports text through the package-level default Reporter.
func CaptureMessage(text string, level types.BreadcrumbLevel, extraContext map[string]any) (pipeline.Outcome, error) {
	r, initErr := current()
	if initErr != nil {
		return pipeline.Outcome{Dropped: true, Reason: types.DropNotInitialized}, initErr
	}
	return r.CaptureMessage(text, level, extraContext), nil
}
