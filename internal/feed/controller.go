// Package feed polls a time-sensitive news feed: one fetch immediately on
// start, then one per interval, with manual refreshes coalesced into any
// fetch already in flight. Results arriving after teardown are discarded.
package feed

import (
	"context"
	"sync"
	"time"

	"github.com/quantboard/dashboard-client/internal/api"
	"github.com/quantboard/dashboard-client/internal/logging"
)

// FetchFunc retrieves the feed items for a key. The key is the feed
// subject: "" for market-wide news, a symbol for per-symbol news.
type FetchFunc func(ctx context.Context, key string) ([]api.NewsItem, error)

// State is the visible state of a feed.
type State struct {
	Items         []api.NewsItem
	LastRefreshed time.Time
	InFlight      bool
	Err           error
}

// Config configures a Controller.
type Config struct {
	Key      string
	Fetch    FetchFunc
	Interval time.Duration
	// FetchTimeout bounds each fetch.
	FetchTimeout time.Duration
	// OnChange receives every state transition.
	OnChange func(State)
	Logger   *logging.Logger
}

// Controller drives one feed key. Safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	key          string
	fetch        FetchFunc
	interval     time.Duration
	fetchTimeout time.Duration
	onChange     func(State)
	log          *logging.Logger

	items         []api.NewsItem
	lastRefreshed time.Time
	inFlight      bool
	err           error

	// gen increments on every stop; a fetch started under an older
	// generation discards its result at apply time.
	gen     uint64
	running bool
	cancel  context.CancelFunc
	runCtx  context.Context
	wg      sync.WaitGroup
}

// New creates a controller.
func New(cfg Config) *Controller {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDefault("feed")
	}
	return &Controller{
		key:          cfg.Key,
		fetch:        cfg.Fetch,
		interval:     cfg.Interval,
		fetchTimeout: cfg.FetchTimeout,
		onChange:     cfg.OnChange,
		log:          cfg.Logger,
	}
}

// Start fetches immediately, then on every interval tick until Stop.
// Starting a running controller is a no-op.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.runCtx = runCtx
	c.cancel = cancel
	c.running = true
	key := c.key
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.poll(runCtx)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				// Failures never disable the schedule; the next tick
				// attempts again regardless of the previous outcome.
				c.poll(runCtx)
			}
		}
	}()

	c.log.WithField("key", keyLabel(key)).
		WithField("interval", c.interval.String()).
		Info("feed polling started")
}

// Stop cancels the interval timer and invalidates in-flight results.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	c.running = false
	c.cancel = nil
	c.runCtx = nil
	c.gen++
	key := c.key
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
	c.log.WithField("key", keyLabel(key)).Info("feed polling stopped")
}

// Restart switches the controller to a new feed key: the old schedule is
// torn down, state resets and polling begins immediately for the new key.
func (c *Controller) Restart(ctx context.Context, key string) {
	c.Stop()

	c.mu.Lock()
	c.key = key
	c.items = nil
	c.lastRefreshed = time.Time{}
	c.err = nil
	c.mu.Unlock()

	c.Start(ctx)
}

// Refresh requests a fetch now. Coalesced: if a fetch is already in
// flight for this feed, the request is absorbed by it.
func (c *Controller) Refresh() {
	c.mu.Lock()
	ctx := c.runCtx
	c.mu.Unlock()
	if ctx == nil {
		return
	}
	go c.poll(ctx)
}

// Retry is the user-facing affordance after a failure.
func (c *Controller) Retry() { c.Refresh() }

// State returns the current feed state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) poll(ctx context.Context) {
	c.mu.Lock()
	if !c.running || c.inFlight {
		// A refresh in progress suppresses a second concurrent refresh.
		c.mu.Unlock()
		return
	}
	c.inFlight = true
	gen := c.gen
	key := c.key
	notify := c.publishLocked()
	c.mu.Unlock()
	notify()

	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	items, err := c.fetch(fetchCtx, key)
	cancel()

	c.mu.Lock()
	if gen != c.gen {
		// Torn down (or re-keyed) while the fetch ran.
		c.mu.Unlock()
		return
	}
	c.inFlight = false
	if err != nil {
		c.err = err
		c.log.WithField("key", keyLabel(key)).WithError(err).Warn("feed fetch failed")
	} else {
		c.err = nil
		c.items = items
		c.lastRefreshed = time.Now()
	}
	notify = c.publishLocked()
	c.mu.Unlock()
	notify()
}

func (c *Controller) stateLocked() State {
	items := make([]api.NewsItem, len(c.items))
	copy(items, c.items)
	return State{
		Items:         items,
		LastRefreshed: c.lastRefreshed,
		InFlight:      c.inFlight,
		Err:           c.err,
	}
}

func (c *Controller) publishLocked() func() {
	if c.onChange == nil {
		return func() {}
	}
	onChange := c.onChange
	state := c.stateLocked()
	return func() { onChange(state) }
}

func keyLabel(key string) string {
	if key == "" {
		return "market"
	}
	return key
}
