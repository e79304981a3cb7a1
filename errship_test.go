package errship

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"errship.dev/sdk/internal/config"
	"errship.dev/sdk/internal/types"
)

func TestReporter_CaptureExceptionDeliversThroughFullStack(t *testing.T) {
	var received int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.WebhookURL = srv.URL
	cfg.ProjectName = "demo"
	cfg.Environment = "test"

	r, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Destroy()

	outcome := r.CaptureMessage("hello", types.LevelInfo, nil)
	r.FlushQueue()

	if outcome.Dropped {
		t.Fatalf("expected capture to not be dropped, got %+v", outcome)
	}
}

func TestReporter_InvalidConfigRejected(t *testing.T) {
	cfg := config.Default()
	// Missing WebhookURL and ProjectName.
	if _, err := New(cfg); err == nil {
		t.Fatal("expected validation error for missing required fields")
	}
}

func TestReporter_BreadcrumbRingTrimsToMax(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.WebhookURL = srv.URL
	cfg.ProjectName = "demo"
	cfg.MaxBreadcrumbs = 2
	r, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Destroy()

	r.AddBreadcrumb(types.Breadcrumb{Message: "a"})
	r.AddBreadcrumb(types.Breadcrumb{Message: "b"})
	r.AddBreadcrumb(types.Breadcrumb{Message: "c"})

	if len(r.breadcrumbs) != 2 {
		t.Fatalf("breadcrumbs len = %d, want 2", len(r.breadcrumbs))
	}
	if r.breadcrumbs[0].Message != "b" {
		t.Fatalf("expected oldest breadcrumb trimmed, got %+v", r.breadcrumbs)
	}
}
