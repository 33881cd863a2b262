package api

import (
	"context"
	"sync"
	"time"

	"github.com/quantboard/dashboard-client/internal/logging"
)

// HealthWatcher probes the service health endpoint on an interval and
// reports offline-to-online transitions. The cache layer hooks its
// subscribed-entry refresh onto that callback.
type HealthWatcher struct {
	client   *Client
	interval time.Duration
	onOnline func()
	log      *logging.Logger

	mu      sync.Mutex
	online  bool
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewHealthWatcher creates a watcher. onOnline fires each time the service
// becomes reachable after having been unreachable; it does not fire on the
// first successful probe.
func NewHealthWatcher(client *Client, interval time.Duration, onOnline func(), log *logging.Logger) *HealthWatcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = logging.NewDefault("health")
	}
	return &HealthWatcher{
		client:   client,
		interval: interval,
		onOnline: onOnline,
		log:      log,
		online:   true,
	}
}

// Start begins probing. Safe to call once per watcher.
func (w *HealthWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				w.probe(runCtx)
			}
		}
	}()
}

// Stop halts probing and waits for the loop to exit.
func (w *HealthWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
}

// Online reports the last observed reachability.
func (w *HealthWatcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

func (w *HealthWatcher) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()

	err := w.client.Get(probeCtx, "/health", nil)

	w.mu.Lock()
	wasOnline := w.online
	w.online = err == nil
	w.mu.Unlock()

	if err != nil {
		if wasOnline {
			w.log.WithError(err).Warn("service unreachable")
		}
		return
	}
	if !wasOnline {
		w.log.Info("service reachable again")
		if w.onOnline != nil {
			w.onOnline()
		}
	}
}
