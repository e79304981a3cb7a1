package netstatus

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestPoller_FiresOnOfflineThenOnlineEdges(t *testing.T) {
	var mu sync.Mutex
	up := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if !up {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(srv.URL, 10*time.Millisecond)

	offline := make(chan struct{}, 1)
	online := make(chan struct{}, 1)
	p.OnOffline(func() { offline <- struct{}{} })
	p.OnOnline(func() { online <- struct{}{} })

	p.Start()
	defer p.Stop()

	mu.Lock()
	up = false
	mu.Unlock()

	select {
	case <-offline:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for offline edge")
	}

	mu.Lock()
	up = true
	mu.Unlock()

	select {
	case <-online:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for online edge")
	}
}

func TestPoller_IsOnlineInitiallyTrue(t *testing.T) {
	p := New("http://127.0.0.1:0", time.Hour)
	if !p.IsOnline() {
		t.Fatal("expected initial state to be online until first probe")
	}
}

func TestPoller_StopIsIdempotentAndSafeWithoutStart(t *testing.T) {
	p := New("http://127.0.0.1:0", time.Hour)
	p.Stop() // never started
	p.Start()
	p.Stop()
	p.Stop() // already stopped
}
