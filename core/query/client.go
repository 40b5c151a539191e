package query

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/query-go/core/ds"
	"github.com/codewandler/query-go/core/sf"
)

type listener struct {
	id string
	fn func(Event)
}

// Client is the query registry. It maps key hashes to cached queries,
// creates them on first use and evicts them once they have had no observers
// for the configured cache time.
//
// All registry and query state is owned by a single loop goroutine; public
// methods hand work to that loop and wait for it. Callbacks run on a
// separate notifier goroutine, so they may call back into the client.
type Client struct {
	opts    options
	log     *slog.Logger
	clock   Clock
	metrics Metrics

	ctx    context.Context
	cancel context.CancelFunc

	ops       chan func()
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	notifier *notifier
	flights  *sf.Group[any]

	// owned by the loop
	queries   map[string]*entry
	listeners *ds.Set[*listener]
	observers int
}

// NewClient creates a client and starts its loop. Call Close to stop it.
func NewClient(opts ...Option) *Client {
	o := newOptions(opts...)
	log := o.log.With(slog.String("component", "query"))

	c := &Client{
		opts:      o,
		log:       log,
		clock:     o.clock,
		metrics:   o.metrics,
		ops:       make(chan func(), o.mailboxSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		flights:   sf.New[any](),
		queries:   make(map[string]*entry),
		listeners: ds.NewSet[*listener](),
	}
	c.ctx, c.cancel = context.WithCancel(o.ctx)
	c.notifier = newNotifier(log, o.metrics.NotificationsDelivered)

	go c.loop()

	log.Debug("client started", slog.Duration("cache_time", o.cacheTime))
	return c
}

// Subscribe registers fn to be called after every state change of any query,
// and when queries are added or evicted. It is meant for diagnostics; events
// carry snapshots without data.
func (c *Client) Subscribe(fn func(Event)) (unsubscribe func(), err error) {
	if fn == nil {
		return nil, ErrCallbackRequired
	}

	l := &listener{id: gonanoid.Must(), fn: fn}
	if err := c.exec(func() { c.listeners.Add(l) }); err != nil {
		return nil, err
	}
	c.log.Debug("listener added", slog.String("listener", l.id))

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = c.exec(func() { c.listeners.Remove(l) })
		})
	}, nil
}

// Queries returns snapshots of all live queries, most recently fetched
// first. Queries that never completed a fetch come last.
func (c *Client) Queries() []Snapshot {
	var out []Snapshot
	c.read(func() {
		out = make([]Snapshot, 0, len(c.queries))
		for _, e := range c.queries {
			out = append(out, e.snapshot())
		}
	})

	slices.SortFunc(out, func(a, b Snapshot) int {
		if n := b.LastFetchedAt.Compare(a.LastFetchedAt); n != 0 {
			return n
		}
		return cmp.Compare(a.Hash, b.Hash)
	})
	return out
}

// Query returns the snapshot of the query with the given id.
func (c *Client) Query(id string) (s Snapshot, ok bool) {
	c.read(func() {
		for _, e := range c.queries {
			if e.id == id {
				s, ok = e.snapshot(), true
				return
			}
		}
	})
	return
}

// Len returns the number of live queries.
func (c *Client) Len() (n int) {
	c.read(func() { n = len(c.queries) })
	return
}

// Close stops the loop, cancels the context passed to running fetch
// functions and stops all gc timers. Callbacks already queued are still
// delivered. Close is safe to call multiple times, also from a callback.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.done

		c.cancel()
		for _, e := range c.queries {
			e.cancelGC()
		}
		c.notifier.close()
		c.log.Debug("client closed")
	})
	return nil
}

// ---- loop ----

func (c *Client) loop() {
	defer close(c.done)

	for {
		select {
		case <-c.stop:
			return
		case op := <-c.ops:
			op()
		}
	}
}

// exec runs fn on the loop and waits for it.
func (c *Client) exec(fn func()) error {
	ran := make(chan struct{})
	op := func() {
		fn()
		close(ran)
	}

	select {
	case <-c.stop:
		return ErrClientClosed
	case c.ops <- op:
	}

	select {
	case <-ran:
		return nil
	case <-c.done:
		select {
		case <-ran:
			return nil
		default:
			return ErrClientClosed
		}
	}
}

// read runs fn on the loop, or directly once the loop has exited and the
// state can no longer change.
func (c *Client) read(fn func()) {
	if err := c.exec(fn); err == nil {
		return
	}
	<-c.done
	fn()
}

// post hands fn to the loop without waiting. It is used by fetch goroutines
// and timers; after Close the work is dropped.
func (c *Client) post(fn func()) {
	select {
	case <-c.stop:
	case c.ops <- fn:
	}
}

// ---- loop-owned helpers ----

func (c *Client) getOrCreate(key Key, hash string, fn fetchFunc) *entry {
	if e, ok := c.queries[hash]; ok {
		return e
	}

	e := newEntry(c, key, hash, fn)
	c.queries[hash] = e
	if err := e.scheduleGC(); err != nil {
		e.log.Error("failed to schedule eviction", slog.Any("error", err))
	}
	c.metrics.QueriesActive(len(c.queries))
	e.log.Debug("query created", slog.String("id", e.id))
	c.dispatch(EventAdded, e)
	return e
}

// collect evicts e if g is still its armed timer and nobody subscribed in
// the meantime.
func (c *Client) collect(e *entry, g *gcTimer) {
	if e.gc != g || !e.subscribers.IsEmpty() {
		return
	}
	e.gc = nil

	if c.queries[e.hash] != e {
		return
	}
	delete(c.queries, e.hash)
	e.detached = true

	c.metrics.QueryEvicted()
	c.metrics.QueriesActive(len(c.queries))
	e.log.Debug("query evicted", slog.Bool("fetching", e.task != nil))
	c.dispatch(EventRemoved, e)
}

// dispatch captures the current subscribers and listeners of e and queues
// one notification pass. Changes to either list made by the callbacks only
// affect later passes.
func (c *Client) dispatch(t EventType, e *entry) {
	pass := make([]func(), 0, e.subscribers.Len()+c.listeners.Len())
	for _, s := range e.subscribers.Values() {
		pass = append(pass, s.notify)
	}

	if !c.listeners.IsEmpty() {
		ev := Event{Type: t, Query: e.snapshot()}
		for _, l := range c.listeners.Values() {
			fn := l.fn
			pass = append(pass, func() { fn(ev) })
		}
	}

	c.notifier.enqueue(pass)
}

func (c *Client) observersChanged(delta int) {
	c.observers += delta
	c.metrics.ObserversActive(c.observers)
}

// runFetch executes the fetch function of e outside the loop and posts the
// outcome back. Calls for the same hash share one execution, including calls
// from an entry that replaced an evicted one.
func (c *Client) runFetch(e *entry, t *task) {
	timer := c.metrics.FetchDuration()
	v, err, shared := c.flights.Do(e.hash, func() (any, error) {
		return callFetch(c.ctx, e.fetchFn)
	})
	timer.ObserveDuration()

	if shared {
		e.log.Debug("fetch shared with in-flight call")
	}
	c.post(func() { e.settle(t, v, err) })
}
