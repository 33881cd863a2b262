// Package search turns rapid keystrokes into at most one in-flight symbol
// lookup per settle period. Responses are applied last-issued-wins: each
// fetch carries a sequence tag and only the response matching the highest
// tag ever touches visible state, whatever order the network returns them.
package search

import (
	"context"
	"sync"
	"time"

	"github.com/quantboard/dashboard-client/internal/api"
	"github.com/quantboard/dashboard-client/internal/logging"
)

// SearchFunc performs the actual lookup.
type SearchFunc func(ctx context.Context, query string) ([]api.SymbolHit, error)

// State is the visible state of the controller.
type State struct {
	Query   string
	Results []api.SymbolHit
	// Open reports whether the result list is showing.
	Open    bool
	Loading bool
	Err     error
}

// Config configures a Controller.
type Config struct {
	Fetch SearchFunc
	// Debounce is the settle period after the last keystroke.
	Debounce time.Duration
	// MinLength is the shortest query that triggers a fetch.
	MinLength int
	// FetchTimeout bounds each lookup.
	FetchTimeout time.Duration
	// OnChange receives every visible state transition.
	OnChange func(State)
	// OnSelect receives the identifier of a chosen result.
	OnSelect func(id string)
	Logger   *logging.Logger
}

// Controller is the debounced search state machine. Safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	fetch        SearchFunc
	debounce     time.Duration
	minLength    int
	fetchTimeout time.Duration
	onChange     func(State)
	onSelect     func(id string)
	log          *logging.Logger

	timer   *time.Timer
	seq     uint64 // tag of the most recently issued fetch
	query   string
	results []api.SymbolHit
	open    bool
	loading bool
	err     error
	closed  bool
}

// New creates a controller.
func New(cfg Config) *Controller {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 300 * time.Millisecond
	}
	if cfg.MinLength < 1 {
		cfg.MinLength = 1
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDefault("search")
	}
	return &Controller{
		fetch:        cfg.Fetch,
		debounce:     cfg.Debounce,
		minLength:    cfg.MinLength,
		fetchTimeout: cfg.FetchTimeout,
		onChange:     cfg.OnChange,
		onSelect:     cfg.OnSelect,
		log:          cfg.Logger,
	}
}

// SetQuery records a keystroke. The settle timer restarts on every call;
// only after it elapses without further input does a fetch begin. A query
// below the minimum length clears results without fetching.
func (c *Controller) SetQuery(query string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	c.query = query
	c.stopTimerLocked()

	if len(query) < c.minLength {
		// Invalidate any in-flight fetch so its late response is dropped.
		c.seq++
		c.results = nil
		c.open = false
		c.loading = false
		c.err = nil
		notify := c.publishLocked()
		c.mu.Unlock()
		notify()
		return
	}

	c.timer = time.AfterFunc(c.debounce, c.issue)
	c.mu.Unlock()
}

// issue fires when the settle timer elapses.
func (c *Controller) issue() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	query := c.query
	if len(query) < c.minLength {
		c.mu.Unlock()
		return
	}

	c.seq++
	tag := c.seq
	c.loading = true
	c.err = nil
	notify := c.publishLocked()
	c.mu.Unlock()
	notify()

	go c.run(tag, query)
}

func (c *Controller) run(tag uint64, query string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	defer cancel()

	results, err := c.fetch(ctx, query)

	c.mu.Lock()

	// Apply-time check: a response from a superseded query is discarded
	// regardless of arrival order.
	if c.closed || tag != c.seq {
		c.mu.Unlock()
		c.log.WithField("query", query).Debug("discarding stale search response")
		return
	}

	c.loading = false
	if err != nil {
		c.err = err
		c.results = nil
		c.open = false
	} else {
		c.err = nil
		c.results = results
		c.open = true
	}
	notify := c.publishLocked()
	c.mu.Unlock()
	notify()
}

// Select fixes the visible query text to the chosen symbol, closes the
// result list and notifies the caller. It never re-triggers a fetch.
func (c *Controller) Select(id, symbol string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.seq++ // drop any in-flight response
	c.query = symbol
	c.open = false
	c.loading = false
	onSelect := c.onSelect
	notify := c.publishLocked()
	c.mu.Unlock()
	notify()

	if onSelect != nil {
		onSelect(id)
	}
}

// Dismiss closes the result list without clearing the query or cancelling
// an in-flight fetch. Matches clicking outside the search surface.
func (c *Controller) Dismiss() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.open = false
	notify := c.publishLocked()
	c.mu.Unlock()
	notify()
}

// Close tears the controller down. Late responses are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopTimerLocked()
}

// State returns the current visible state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	results := make([]api.SymbolHit, len(c.results))
	copy(results, c.results)
	return State{
		Query:   c.query,
		Results: results,
		Open:    c.open,
		Loading: c.loading,
		Err:     c.err,
	}
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// publishLocked captures the state under the lock and returns the call to
// make after releasing it, so consumers may call back into the controller.
func (c *Controller) publishLocked() func() {
	if c.onChange == nil {
		return func() {}
	}
	onChange := c.onChange
	state := c.stateLocked()
	return func() { onChange(state) }
}
