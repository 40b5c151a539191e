package query

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"time"

	"github.com/codewandler/query-go/core/ds"
	"github.com/codewandler/query-go/internal/keyhash"
)

type fetchFunc func(ctx context.Context) (any, error)

// task is the single outstanding fetch of an entry. done is closed once the
// entry has recorded the outcome.
type task struct {
	done chan struct{}
}

// subscription is one Observer.Subscribe call.
type subscription struct {
	observer string
	notify   func()
}

// gcTimer is compared by identity: a timer that fired after being replaced
// must not evict.
type gcTimer struct {
	timer Timer
}

// entry is the cached state and lifecycle of one key.
// All fields are owned by the client loop.
type entry struct {
	c   *Client
	log *slog.Logger

	key     Key
	hash    string
	id      string
	fetchFn fetchFunc

	status    Status
	data      any
	err       error
	fetchedAt time.Time
	settled   bool

	task        *task
	subscribers *ds.Set[*subscription]
	gc          *gcTimer
	detached    bool
}

func newEntry(c *Client, key Key, hash string, fn fetchFunc) *entry {
	return &entry{
		c:           c,
		log:         c.log.With(slog.String("query", hash)),
		key:         slices.Clone(key),
		hash:        hash,
		id:          keyhash.ID(hash),
		fetchFn:     fn,
		status:      StatusIdle,
		subscribers: ds.NewSet[*subscription](),
	}
}

// fetch starts a fetch unless one is in flight, in which case the caller
// joins the existing task.
func (e *entry) fetch() *task {
	if e.task != nil {
		e.c.metrics.FetchDeduplicated()
		return e.task
	}

	t := &task{done: make(chan struct{})}
	e.task = t
	e.err = nil
	e.status = StatusFetching
	e.log.Debug("fetch started")
	e.notify()

	go e.c.runFetch(e, t)
	return t
}

// settle records the outcome of t.
func (e *entry) settle(t *task, v any, err error) {
	if e.task != t {
		return
	}
	defer close(t.done)

	if e.detached {
		e.task = nil
		e.log.Debug("dropping result of evicted query", slog.Any("error", err))
		return
	}

	e.settled = true
	if err != nil {
		// data is kept so consumers can show the last good value
		e.err = err
		e.status = StatusError
		e.log.Debug("fetch failed", slog.Any("error", err))
	} else {
		e.data = v
		e.status = StatusSuccess
		e.fetchedAt = e.c.clock.Now()
		e.log.Debug("fetch succeeded")
	}
	e.c.metrics.FetchCompleted(err == nil)
	e.notify()

	e.task = nil
	e.notify()
}

func (e *entry) subscribe(s *subscription) {
	if !e.subscribers.Add(s) {
		return
	}
	e.cancelGC()
	e.c.observersChanged(1)
	e.log.Debug("observer subscribed", slog.String("observer", s.observer))
}

func (e *entry) unsubscribe(s *subscription) {
	if !e.subscribers.Remove(s) {
		return
	}
	e.c.observersChanged(-1)
	e.log.Debug("observer unsubscribed", slog.String("observer", s.observer))
	if e.subscribers.IsEmpty() {
		if err := e.scheduleGC(); err != nil {
			e.log.Error("failed to schedule eviction", slog.Any("error", err))
		}
	}
}

// isStale reports whether the data must be refetched for an observer with
// the given stale time. A zero stale time always refetches.
func (e *entry) isStale(staleTime time.Duration) bool {
	return e.fetchedAt.IsZero() || staleTime == 0 || e.c.clock.Now().Sub(e.fetchedAt) > staleTime
}

func (e *entry) scheduleGC() error {
	if e.gc != nil {
		return fmt.Errorf("query %s: %w", e.hash, ErrTimerArmed)
	}
	g := &gcTimer{}
	g.timer = e.c.clock.AfterFunc(e.c.opts.cacheTime, func() {
		e.c.post(func() { e.c.collect(e, g) })
	})
	e.gc = g
	return nil
}

func (e *entry) cancelGC() {
	if e.gc == nil {
		return
	}
	e.gc.timer.Stop()
	e.gc = nil
}

func (e *entry) notify() { e.c.dispatch(EventUpdated, e) }

func (e *entry) snapshot() Snapshot {
	s := Snapshot{
		ID:            e.id,
		Key:           slices.Clone(e.key),
		Hash:          e.hash,
		Status:        e.status,
		IsLoading:     !e.settled,
		IsFetching:    e.task != nil,
		LastFetchedAt: e.fetchedAt,
		Observers:     e.subscribers.Len(),
	}
	if e.err != nil {
		s.Error = e.err.Error()
	}
	return s
}

// callFetch runs fn and turns a panic into a *PanicError.
func callFetch(ctx context.Context, fn fetchFunc) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}
