// Package querycache de-duplicates and caches remote reads keyed by query
// identity. It owns freshness, retry with exponential backoff, subscriber
// notification and garbage collection of idle entries, so controllers and
// views never issue raw network calls for reads.
package querycache

import (
	"context"
	"sync"
	"time"

	"github.com/quantboard/dashboard-client/internal/logging"
)

// Identity names a cacheable read: the operation plus its parameters.
type Identity struct {
	Op  string
	Key string
}

func (id Identity) String() string {
	if id.Key == "" {
		return id.Op
	}
	return id.Op + "(" + id.Key + ")"
}

// Status is the lifecycle state of a cache entry.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Fetcher retrieves the value for an identity.
type Fetcher func(ctx context.Context) (any, error)

// Entry is an immutable snapshot of one cache entry.
type Entry struct {
	Status    Status
	Data      any
	Err       error
	FetchedAt time.Time
	StaleAt   time.Time
}

// Fresh reports whether the entry holds data younger than its freshness
// window at the given instant.
func (e Entry) Fresh(now time.Time) bool {
	return !e.FetchedAt.IsZero() && now.Before(e.StaleAt)
}

// Subscriber receives entry snapshots whenever status or data changes.
type Subscriber func(Entry)

// Options configures a Cache. Zero fields take defaults.
type Options struct {
	// Freshness is how long a fetched value is served without refetch.
	Freshness time.Duration
	// IdleEviction is how long an entry with no subscribers survives.
	IdleEviction time.Duration
	// RetryBudget is the number of retries after a failed fetch.
	RetryBudget int
	// BackoffBase doubles per attempt up to BackoffCap.
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// FetchTimeout bounds background fetches.
	FetchTimeout time.Duration
	// SweepInterval is how often idle entries are collected.
	SweepInterval time.Duration
	Logger        *logging.Logger
	// Registry receives the cache collectors; nil keeps them private.
	Registry Registerer
}

func (o *Options) applyDefaults() {
	if o.Freshness <= 0 {
		o.Freshness = 60 * time.Second
	}
	if o.IdleEviction <= 0 {
		o.IdleEviction = 10 * o.Freshness
	}
	if o.RetryBudget == 0 {
		o.RetryBudget = 2
	}
	if o.RetryBudget < 0 {
		o.RetryBudget = 0
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 500 * time.Millisecond
	}
	if o.BackoffCap < o.BackoffBase {
		o.BackoffCap = 16 * o.BackoffBase
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 10 * time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = o.Freshness
	}
	if o.Logger == nil {
		o.Logger = logging.NewDefault("querycache")
	}
}

type entry struct {
	id         Identity
	fetcher    Fetcher
	status     Status
	data       any
	err        error
	fetchedAt  time.Time
	inFlight   bool
	subs       map[int]Subscriber
	nextSubID  int
	lastActive time.Time
}

// Cache is the shared read-layer. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	opts    Options
	entries map[Identity]*entry
	stopped bool
	done    chan struct{}
	wg      sync.WaitGroup
	metrics *metrics
	log     *logging.Logger
}

// New creates a cache and starts its eviction sweeper.
func New(opts Options) *Cache {
	opts.applyDefaults()
	c := &Cache{
		opts:    opts,
		entries: make(map[Identity]*entry),
		done:    make(chan struct{}),
		metrics: newMetrics(opts.Registry),
		log:     opts.Logger,
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()

	return c
}

// Close stops the sweeper. In-flight fetches finish but their results are
// dropped.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	close(c.done)
	c.mu.Unlock()
	c.wg.Wait()
}

// Read returns the entry for id, fetching as needed. A fresh entry returns
// without any fetch. A stale entry returns immediately and refetches in
// the background. A missing entry fetches synchronously. At most one fetch
// is ever in flight per identity; concurrent readers attach to it.
func (c *Cache) Read(ctx context.Context, id Identity, fetcher Fetcher) Entry {
	now := time.Now()

	c.mu.Lock()
	e := c.ensureLocked(id)
	e.fetcher = fetcher
	e.lastActive = now

	snap := c.snapshotLocked(e)

	switch {
	case e.inFlight:
		c.metrics.reads.WithLabelValues("coalesced").Inc()
		c.mu.Unlock()
		return snap

	case snap.Fresh(now):
		c.metrics.reads.WithLabelValues("hit").Inc()
		c.mu.Unlock()
		return snap

	case !e.fetchedAt.IsZero():
		// Stale value: serve it now, refresh behind the scenes.
		c.metrics.reads.WithLabelValues("stale").Inc()
		e.inFlight = true
		c.mu.Unlock()
		c.spawnFetch(id, fetcher)
		return snap

	default:
		c.metrics.reads.WithLabelValues("miss").Inc()
		e.inFlight = true
		e.status = StatusLoading
		subs, loading := c.subsAndSnapshotLocked(e)
		c.mu.Unlock()

		publish(subs, loading)
		c.runFetch(ctx, id, fetcher)
		return c.Snapshot(id)
	}
}

// Subscribe registers fn for id and returns its unsubscribe function.
// Notifications are delivered synchronously with each state change.
func (c *Cache) Subscribe(id Identity, fn Subscriber) func() {
	c.mu.Lock()
	e := c.ensureLocked(id)
	subID := e.nextSubID
	e.nextSubID++
	e.subs[subID] = fn
	e.lastActive = time.Now()
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		if cur, ok := c.entries[id]; ok {
			delete(cur.subs, subID)
			cur.lastActive = time.Now()
		}
		c.mu.Unlock()
	}
}

// Snapshot returns the current entry state for id without fetching.
func (c *Cache) Snapshot(id Identity) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return Entry{Status: StatusIdle}
	}
	return c.snapshotLocked(e)
}

// Invalidate marks the entry stale. Subscribed entries refetch in the
// background; unsubscribed ones refetch on their next Read.
func (c *Cache) Invalidate(id Identity) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	e.fetchedAt = time.Time{}
	refresh := len(e.subs) > 0 && e.fetcher != nil && !e.inFlight
	var fetcher Fetcher
	if refresh {
		e.inFlight = true
		fetcher = e.fetcher
	}
	c.mu.Unlock()

	if refresh {
		c.spawnFetch(id, fetcher)
	}
}

// NotifyOnline refreshes every subscribed entry. Called when network
// connectivity is regained. Regaining UI focus deliberately has no such
// hook: fast-moving feeds would refetch redundantly on every tab switch.
func (c *Cache) NotifyOnline() {
	type job struct {
		id      Identity
		fetcher Fetcher
	}
	var jobs []job

	c.mu.Lock()
	for id, e := range c.entries {
		if len(e.subs) == 0 || e.fetcher == nil || e.inFlight {
			continue
		}
		e.inFlight = true
		jobs = append(jobs, job{id: id, fetcher: e.fetcher})
	}
	c.mu.Unlock()

	for _, j := range jobs {
		c.spawnFetch(j.id, j.fetcher)
	}
	if len(jobs) > 0 {
		c.log.WithField("entries", len(jobs)).Info("connectivity regained, refreshing subscribed entries")
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats summarizes the live cache contents.
type Stats struct {
	Entries    int
	InFlight   int
	Errored    int
	Subscribed int
}

// Stats returns a consistent summary of the cache.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{Entries: len(c.entries)}
	for _, e := range c.entries {
		if e.inFlight {
			s.InFlight++
		}
		if e.status == StatusError {
			s.Errored++
		}
		if len(e.subs) > 0 {
			s.Subscribed++
		}
	}
	return s
}

// ensureLocked returns the entry for id, creating it if needed.
func (c *Cache) ensureLocked(id Identity) *entry {
	e, ok := c.entries[id]
	if !ok {
		e = &entry{
			id:         id,
			status:     StatusIdle,
			subs:       make(map[int]Subscriber),
			lastActive: time.Now(),
		}
		c.entries[id] = e
	}
	return e
}

func (c *Cache) snapshotLocked(e *entry) Entry {
	snap := Entry{
		Status:    e.status,
		Data:      e.data,
		Err:       e.err,
		FetchedAt: e.fetchedAt,
	}
	if !e.fetchedAt.IsZero() {
		snap.StaleAt = e.fetchedAt.Add(c.opts.Freshness)
	}
	return snap
}

func (c *Cache) subsAndSnapshotLocked(e *entry) ([]Subscriber, Entry) {
	subs := make([]Subscriber, 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	return subs, c.snapshotLocked(e)
}

func publish(subs []Subscriber, snap Entry) {
	for _, fn := range subs {
		fn(snap)
	}
}

// spawnFetch runs a background fetch under the cache's own timeout.
// The entry's inFlight flag must already be set.
func (c *Cache) spawnFetch(id Identity, fetcher Fetcher) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.FetchTimeout)
		defer cancel()
		c.runFetch(ctx, id, fetcher)
	}()
}

// runFetch executes the fetch with the retry budget and applies the result.
func (c *Cache) runFetch(ctx context.Context, id Identity, fetcher Fetcher) {
	var (
		data any
		err  error
	)

	for attempt := 0; ; attempt++ {
		data, err = fetcher(ctx)
		if err == nil || attempt >= c.opts.RetryBudget {
			break
		}

		delay := backoffDelay(c.opts.BackoffBase, c.opts.BackoffCap, attempt)
		c.metrics.retries.Inc()
		c.log.WithField("identity", id.String()).
			WithField("attempt", attempt+1).
			WithField("delay", delay.String()).
			WithError(err).
			Debug("fetch failed, backing off")

		select {
		case <-ctx.Done():
			err = ctx.Err()
			c.applyResult(id, nil, err)
			return
		case <-time.After(delay):
		}
	}

	c.applyResult(id, data, err)
}

func (c *Cache) applyResult(id Identity, data any, err error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	e, ok := c.entries[id]
	if !ok {
		// Evicted while the fetch ran.
		c.mu.Unlock()
		return
	}

	e.inFlight = false
	if err != nil {
		e.status = StatusError
		e.err = err
		c.metrics.fetches.WithLabelValues("error").Inc()
	} else {
		e.status = StatusSuccess
		e.data = data
		e.err = nil
		e.fetchedAt = time.Now()
		c.metrics.fetches.WithLabelValues("success").Inc()
	}
	subs, snap := c.subsAndSnapshotLocked(e)
	c.mu.Unlock()

	publish(subs, snap)
}

// sweep evicts entries that have had no subscribers for the idle window.
func (c *Cache) sweep() {
	now := time.Now()
	c.mu.Lock()
	for id, e := range c.entries {
		if len(e.subs) == 0 && !e.inFlight && now.Sub(e.lastActive) > c.opts.IdleEviction {
			delete(c.entries, id)
			c.metrics.evictions.Inc()
		}
	}
	c.mu.Unlock()
}

// backoffDelay doubles the base per attempt, capped.
func backoffDelay(base, cap time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}
