package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHealthWatcherFiresOnRecovery(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Logger: testLogger()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	var recoveries atomic.Int64
	w := NewHealthWatcher(c, 10*time.Millisecond, func() { recoveries.Add(1) }, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	// Service is down: the watcher must notice without firing the callback.
	time.Sleep(50 * time.Millisecond)
	if w.Online() {
		t.Fatalf("watcher still reports online against a failing service")
	}
	if recoveries.Load() != 0 {
		t.Fatalf("recovery callback fired while offline")
	}

	healthy.Store(true)
	time.Sleep(50 * time.Millisecond)
	if !w.Online() {
		t.Fatalf("watcher did not observe recovery")
	}
	if recoveries.Load() < 1 {
		t.Fatalf("recovery callback did not fire")
	}

	// Staying online must not re-fire the callback.
	fired := recoveries.Load()
	time.Sleep(50 * time.Millisecond)
	if recoveries.Load() != fired {
		t.Fatalf("recovery callback fired without an offline transition")
	}
}

func TestHealthWatcherStopIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Logger: testLogger()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	w := NewHealthWatcher(c, 10*time.Millisecond, nil, testLogger())
	w.Start(context.Background())
	w.Stop()
	w.Stop()
}
