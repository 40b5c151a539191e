package query

import (
	"context"
	"slices"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// FetchFunc produces the value for a key. It must be safe to call again
// after the query was evicted and recreated. The context is cancelled when
// the client closes.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Result is what an observer exposes to its consumer.
//
// IsSuccess and IsError are derived from Status and can never both be true.
// A failed background refetch keeps the previous Data.
type Result[T any] struct {
	Status Status
	Data   T
	Error  error

	// IsLoading is true until the first fetch completes, successfully or not.
	IsLoading bool
	// IsFetching is true while a fetch is outstanding, including background
	// refetches of data that is already cached.
	IsFetching bool
	IsSuccess  bool
	IsError    bool

	LastFetchedAt time.Time
}

// Observer binds one consumer to one query. Create one per binding and keep
// it for the binding's lifetime; several observers may share a query.
type Observer[T any] struct {
	c         *Client
	id        string
	key       Key
	hash      string
	fetchFn   fetchFunc
	staleTime time.Duration

	// owned by the client loop
	e   *entry
	sub *subscription
}

// NewObserver resolves the query for key, creating it on first use. If the
// query already exists its fetch function is kept; callers must pass an
// equivalent fn for the same key.
func NewObserver[T any](c *Client, key Key, fn FetchFunc[T], opts ...ObserverOption) (*Observer[T], error) {
	if c == nil {
		return nil, ErrClientRequired
	}
	if fn == nil {
		return nil, ErrFetchFuncRequired
	}
	hash, err := key.Hash()
	if err != nil {
		return nil, err
	}

	var oo observerOptions
	for _, opt := range opts {
		opt(&oo)
	}

	o := &Observer[T]{
		c:         c,
		id:        gonanoid.Must(),
		key:       slices.Clone(key),
		hash:      hash,
		fetchFn:   func(ctx context.Context) (any, error) { return fn(ctx) },
		staleTime: oo.staleTime,
	}

	if err := c.exec(func() { o.e = c.getOrCreate(o.key, hash, o.fetchFn) }); err != nil {
		return nil, err
	}
	return o, nil
}

// entry returns the live query of o. If the query o was bound to has been
// evicted in the meantime, o is rebound to the current query for its key,
// which is created if needed. Must run on the loop.
func (o *Observer[T]) entry() *entry {
	if o.e.detached {
		o.e = o.c.getOrCreate(o.key, o.hash, o.fetchFn)
	}
	return o.e
}

// ID returns the observer's unique id.
func (o *Observer[T]) ID() string { return o.id }

// Key returns the observed key.
func (o *Observer[T]) Key() Key { return slices.Clone(o.key) }

// Subscribe makes onChange the observer's notification sink and attaches it
// to the query. If the cached data is missing, older than staleTime, or
// staleTime is zero, a fetch is started (or an in-flight one joined). onChange takes no
// arguments; call Result to read the new state.
//
// If the query was evicted since the observer last used it, the observer
// is bound to a fresh query for its key first.
//
// Subscribing again replaces the previous sink. The returned function
// detaches it and may be called any number of times, including from inside
// onChange.
func (o *Observer[T]) Subscribe(onChange func()) (unsubscribe func()) {
	if onChange == nil {
		onChange = func() {}
	}

	sub := &subscription{observer: o.id, notify: onChange}
	var e *entry
	err := o.c.exec(func() {
		if o.sub != nil {
			o.e.unsubscribe(o.sub)
		}
		e = o.entry()
		o.sub = sub
		e.subscribe(sub)

		if e.isStale(o.staleTime) {
			e.fetch()
		}
	})
	if err != nil {
		return func() {}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = o.c.exec(func() {
				e.unsubscribe(sub)
				if o.sub == sub {
					o.sub = nil
				}
			})
		})
	}
}

// Result returns the current state of the query. It never starts a fetch.
func (o *Observer[T]) Result() (r Result[T]) {
	o.c.read(func() { r = resultOf[T](o.e) })
	return r
}

// Refetch starts a fetch regardless of staleness, joining one that is
// already in flight, and waits until it has settled. The outcome is
// reported through Result; the returned error is only about waiting
// (ctx done, client closed).
func (o *Observer[T]) Refetch(ctx context.Context) error {
	var t *task
	if err := o.c.exec(func() { t = o.entry().fetch() }); err != nil {
		return err
	}

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-o.c.done:
		return ErrClientClosed
	}
}

func resultOf[T any](e *entry) Result[T] {
	r := Result[T]{
		Status:        e.status,
		Error:         e.err,
		IsLoading:     !e.settled,
		IsFetching:    e.task != nil,
		IsSuccess:     e.status == StatusSuccess,
		IsError:       e.status == StatusError,
		LastFetchedAt: e.fetchedAt,
	}
	if v, ok := e.data.(T); ok {
		r.Data = v
	}
	return r
}
