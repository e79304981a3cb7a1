package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"errship.dev/sdk/internal/clock"
	"errship.dev/sdk/internal/config"
	"errship.dev/sdk/internal/store"
	"errship.dev/sdk/internal/types"
)

// fakeTransport records every Send call and answers with a scripted
// status, letting scenario tests drive the circuit breaker and retry
// executor deterministically.
type fakeTransport struct {
	mu       sync.Mutex
	calls    int
	fail     bool
	failErr  error
	lastBody []byte
}

func (f *fakeTransport) Send(ctx context.Context, body []byte, headers map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastBody = append([]byte(nil), body...)
	if f.fail {
		if f.failErr != nil {
			return f.failErr
		}
		return errors.New("transport: simulated failure")
	}
	return nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTransport) lastBodyString() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.lastBody)
}

func (f *fakeTransport) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

// fakeNet is a manually driven netstatus.Status double.
type fakeNet struct {
	mu        sync.Mutex
	online    bool
	onOnline  []func()
	onOffline []func()
}

func (n *fakeNet) IsOnline() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

func (n *fakeNet) OnOnline(fn func())  { n.onOnline = append(n.onOnline, fn) }
func (n *fakeNet) OnOffline(fn func()) { n.onOffline = append(n.onOffline, fn) }

func (n *fakeNet) goOnline() {
	n.mu.Lock()
	n.online = true
	fns := append([]func(){}, n.onOnline...)
	n.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (n *fakeNet) goOffline() {
	n.mu.Lock()
	n.online = false
	n.mu.Unlock()
}

func baseConfig() config.Config {
	cfg := config.Default()
	cfg.WebhookURL = "https://example.test/webhook"
	cfg.ProjectName = "demo"
	cfg.Environment = "test"
	cfg.EnableBatching = false
	cfg.EnableCompression = false
	cfg.MaxRetries = 0
	return cfg
}

func TestScenario_Deduplication(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	tr := &fakeTransport{}
	cfg := baseConfig()
	cfg.DuplicateErrorWindow = 5 * time.Second

	co := New(cfg, c, store.NewMemStore(), nil, tr)

	first := co.CaptureException(errors.New("boom"), "at file.ts:10:5", nil, nil, nil)
	if !first.Delivered {
		t.Fatalf("first capture: expected delivered, got %+v", first)
	}

	second := co.CaptureException(errors.New("boom"), "at file.ts:10:5", nil, nil, nil)
	if second.Reason != types.DropDuplicate {
		t.Fatalf("second capture: expected duplicate drop, got %+v", second)
	}

	c.Advance(6 * time.Second)
	third := co.CaptureException(errors.New("boom"), "at file.ts:10:5", nil, nil, nil)
	if !third.Delivered {
		t.Fatalf("third capture after window: expected delivered, got %+v", third)
	}

	if tr.callCount() != 2 {
		t.Fatalf("transport calls = %d, want 2 (first + third)", tr.callCount())
	}
}

func TestScenario_OfflineResilience(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	tr := &fakeTransport{}
	net := &fakeNet{online: false}
	cfg := baseConfig()

	co := New(cfg, c, store.NewMemStore(), net, tr)

	first := co.CaptureException(errors.New("boom1"), "at a.ts:1:1", nil, nil, nil)
	second := co.CaptureException(errors.New("boom2"), "at b.ts:2:2", nil, nil, nil)
	if !first.Queued || !second.Queued {
		t.Fatalf("expected both captures queued while offline, got %+v / %+v", first, second)
	}
	if co.QueueSize() != 2 {
		t.Fatalf("QueueSize = %d, want 2", co.QueueSize())
	}

	net.goOnline()

	if co.QueueSize() != 0 {
		t.Fatalf("QueueSize after online flush = %d, want 0", co.QueueSize())
	}
	if tr.callCount() != 2 {
		t.Fatalf("transport calls after flush = %d, want 2", tr.callCount())
	}
}

func TestScenario_RateLimit(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	tr := &fakeTransport{}
	cfg := baseConfig()
	cfg.MaxRequestsPerMinute = 10
	cfg.DuplicateErrorWindow = 0

	co := New(cfg, c, store.NewMemStore(), nil, tr)

	var last Outcome
	for i := 0; i < 11; i++ {
		last = co.CaptureMessage(errFileLine(i), types.LevelError, nil, nil, nil)
		if i < 10 && !last.Delivered {
			t.Fatalf("capture %d: expected delivered, got %+v", i, last)
		}
	}
	if last.Reason != types.DropRateLimited {
		t.Fatalf("11th capture: expected rate limited, got %+v", last)
	}

	c.Advance(time.Minute + time.Second)
	next := co.CaptureMessage("after reset", types.LevelError, nil, nil, nil)
	if !next.Delivered {
		t.Fatalf("capture after reset: expected delivered, got %+v", next)
	}
}

func errFileLine(i int) string {
	return "distinct message " + string(rune('a'+i))
}

func TestScenario_CircuitTrip(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	tr := &fakeTransport{fail: true}
	cfg := baseConfig()
	cfg.FailureThreshold = 1.0
	cfg.MinimumRequests = 3
	cfg.ResetTimeout = 30 * time.Second
	cfg.DuplicateErrorWindow = 0
	cfg.MaxRequestsPerMinute = 1000

	co := New(cfg, c, store.NewMemStore(), nil, tr)

	for i := 0; i < 5; i++ {
		co.CaptureMessage(errFileLine(i), types.LevelError, nil, nil, nil)
	}
	if co.breaker.State() != types.StateOpen {
		t.Fatalf("breaker state = %s, want OPEN after 5 failures", co.breaker.State())
	}

	callsBeforeTrip := tr.callCount()
	tripped := co.CaptureMessage("while open", types.LevelError, nil, nil, nil)
	if !tripped.Queued {
		t.Fatalf("expected capture while OPEN to be queued, got %+v", tripped)
	}
	if tr.callCount() != callsBeforeTrip {
		t.Fatalf("transport was invoked while breaker OPEN: %d -> %d", callsBeforeTrip, tr.callCount())
	}

	c.Advance(31 * time.Second)
	tr.setFail(false)
	recovered := co.CaptureMessage("half-open trial", types.LevelError, nil, nil, nil)
	if !recovered.Delivered {
		t.Fatalf("expected HALF_OPEN trial to succeed and close breaker, got %+v", recovered)
	}
	if co.breaker.State() != types.StateClosed {
		t.Fatalf("breaker state = %s, want CLOSED after successful trial", co.breaker.State())
	}
}

func TestScenario_Redaction(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	tr := &fakeTransport{}
	cfg := baseConfig()

	co := New(cfg, c, store.NewMemStore(), nil, tr)

	user := map[string]any{"email": "victim@example.com"}
	breadcrumbs := []types.Breadcrumb{
		{Message: "login attempt", Data: map[string]any{"password": "hunter2"}},
	}

	outcome := co.CaptureException(errors.New("boom"), "", map[string]any{
		"password": "hunter2",
		"email":    "a@b.c",
	}, user, breadcrumbs)
	if !outcome.Delivered {
		t.Fatalf("expected delivered, got %+v", outcome)
	}

	body := tr.lastBodyString()
	if body == "" {
		t.Fatal("expected transport to have captured a body")
	}
	if strings.Contains(body, "hunter2") {
		t.Fatalf("secret 'hunter2' leaked into delivered body: %s", body)
	}
	if strings.Contains(body, "victim@example.com") {
		t.Fatalf("email was not redacted in delivered body: %s", body)
	}
	if strings.Contains(body, "a@b.c") {
		t.Fatalf("context email was not redacted in delivered body: %s", body)
	}
}
