package query

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_KeyEquality(t *testing.T) {
	c, _ := newTestClient(t)
	fn := func(ctx context.Context) (string, error) { return "", nil }

	a, err := NewObserver(c, NewKey("post", 1), fn)
	require.NoError(t, err)
	b, err := NewObserver(c, Key{"post", 1}, fn)
	require.NoError(t, err)
	other, err := NewObserver(c, NewKey("post", 2), fn)
	require.NoError(t, err)

	require.Same(t, a.e, b.e)
	require.NotSame(t, a.e, other.e)
	require.Equal(t, 2, c.Len())
}

func TestClient_Eviction(t *testing.T) {
	c, clk := newTestClient(t, WithCacheTime(time.Minute))
	fetch := newGated[string]()

	o, err := NewObserver(c, NewKey("k"), fetch.fetch)
	require.NoError(t, err)
	unsubscribe := o.Subscribe(func() {})
	require.Equal(t, 0, clk.Pending(), "no gc timer while observed")

	fetch.resolve(t, "v")
	eventually(t, settled(o))
	unsubscribe()
	require.Equal(t, 1, clk.Pending())

	clk.Advance(59 * time.Second)
	require.Equal(t, 1, c.Len())

	clk.Advance(time.Second)
	require.Equal(t, 0, c.Len())

	fresh, err := NewObserver(c, NewKey("k"), fetch.fetch)
	require.NoError(t, err)
	require.NotSame(t, o.e, fresh.e)

	r := fresh.Result()
	require.Equal(t, StatusIdle, r.Status)
	require.True(t, r.IsLoading)
	require.Empty(t, r.Data)
	require.True(t, r.LastFetchedAt.IsZero())
}

func TestClient_Eviction_CancelledByResubscribe(t *testing.T) {
	c, clk := newTestClient(t, WithCacheTime(time.Minute))
	fetch := newGated[string]()

	o, err := NewObserver(c, NewKey("k"), fetch.fetch, WithStaleTime(time.Hour))
	require.NoError(t, err)
	unsubscribe := o.Subscribe(func() {})
	fetch.resolve(t, "v")
	eventually(t, settled(o))
	unsubscribe()

	clk.Advance(30 * time.Second)
	defer o.Subscribe(func() {})()
	require.Equal(t, 0, clk.Pending())

	clk.Advance(time.Hour - time.Minute)
	require.Equal(t, 1, c.Len())
	require.Equal(t, "v", o.Result().Data)
}

func TestClient_Eviction_NeverSubscribed(t *testing.T) {
	c, clk := newTestClient(t, WithCacheTime(time.Minute))
	fetch := newGated[string]()

	_, err := NewObserver(c, NewKey("k"), fetch.fetch)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	clk.Advance(time.Minute)
	require.Equal(t, 0, c.Len())
	require.EqualValues(t, 0, fetch.calls.Load())
}

func TestClient_Eviction_StaleTimerIgnored(t *testing.T) {
	c, clk := newTestClient(t, WithCacheTime(time.Minute))
	fn := func(ctx context.Context) (int, error) { return 1, nil }

	o, err := NewObserver(c, NewKey("k"), fn)
	require.NoError(t, err)

	var stale *gcTimer
	require.NoError(t, c.exec(func() { stale = o.e.gc }))
	require.NotNil(t, stale)

	defer o.Subscribe(func() {})()

	// a timer that fired after it was replaced must not evict
	require.NoError(t, c.exec(func() { c.collect(o.e, stale) }))
	clk.Advance(time.Hour)
	require.Equal(t, 1, c.Len())
}

func TestClient_ScheduleGC_Twice(t *testing.T) {
	c, clk := newTestClient(t)
	fn := func(ctx context.Context) (int, error) { return 1, nil }

	o, err := NewObserver(c, NewKey("k"), fn)
	require.NoError(t, err)

	var armErr error
	require.NoError(t, c.exec(func() { armErr = o.e.scheduleGC() }))
	require.ErrorIs(t, armErr, ErrTimerArmed)
	require.Equal(t, 1, clk.Pending(), "existing timer is kept")
}

func TestClient_EvictedWhileFetching(t *testing.T) {
	c, clk := newTestClient(t, WithCacheTime(time.Minute))
	fetch := newGated[string]()

	var events []Event
	var mu sync.Mutex
	_, err := c.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	require.NoError(t, err)

	o, err := NewObserver(c, NewKey("k"), fetch.fetch)
	require.NoError(t, err)
	o.Subscribe(func() {})()

	clk.Advance(time.Minute)
	require.Equal(t, 0, c.Len())

	fetch.resolve(t, "late")
	eventually(t, func() bool { return !o.Result().IsFetching })
	flush(t, c)

	// the detached query dropped the late result
	r := o.Result()
	require.Equal(t, StatusFetching, r.Status)
	require.Empty(t, r.Data)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, EventRemoved, last.Type)
	require.Equal(t, `["k"]`, last.Query.Hash)
}

func TestClient_RecreatedQueryJoinsOrphanedFetch(t *testing.T) {
	c, clk := newTestClient(t, WithCacheTime(time.Minute))
	fetch := newGated[string]()

	orphan, err := NewObserver(c, NewKey("k"), fetch.fetch)
	require.NoError(t, err)
	orphan.Subscribe(func() {})()
	eventually(t, func() bool { return fetch.calls.Load() == 1 })

	clk.Advance(time.Minute)
	require.Equal(t, 0, c.Len())

	o, err := NewObserver(c, NewKey("k"), fetch.fetch)
	require.NoError(t, err)
	defer o.Subscribe(func() {})()

	// give the new fetch goroutine time to join the running call
	time.Sleep(50 * time.Millisecond)
	fetch.resolve(t, "shared")

	eventually(t, settled(o))
	require.Equal(t, "shared", o.Result().Data)
	require.EqualValues(t, 1, fetch.calls.Load())
}

func TestClient_Subscribe_Events(t *testing.T) {
	c, _ := newTestClient(t)
	fetch := newGated[string]()

	var (
		mu     sync.Mutex
		events []Event
	)
	unsubscribe, err := c.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	require.NoError(t, err)

	o, err := NewObserver(c, NewKey("k"), fetch.fetch)
	require.NoError(t, err)
	defer o.Subscribe(func() {})()
	fetch.resolve(t, "v")
	eventually(t, settled(o))
	flush(t, c)

	mu.Lock()
	got := make([]string, len(events))
	for i, ev := range events {
		got[i] = ev.Type.String() + ":" + ev.Query.Status.String()
	}
	mu.Unlock()
	require.Equal(t, []string{
		"added:idle",
		"updated:fetching",
		"updated:success",
		"updated:success",
	}, got)

	mu.Lock()
	require.True(t, events[2].Query.IsFetching)
	require.False(t, events[3].Query.IsFetching)
	require.Equal(t, 1, events[3].Query.Observers)
	mu.Unlock()

	unsubscribe()
	unsubscribe()

	done := make(chan error, 1)
	go func() { done <- o.Refetch(t.Context()) }()
	fetch.resolve(t, "v2")
	require.NoError(t, <-done)
	flush(t, c)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 4)
}

func TestClient_Subscribe_Validation(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Subscribe(nil)
	require.ErrorIs(t, err, ErrCallbackRequired)

	require.NoError(t, c.Close())
	_, err = c.Subscribe(func(Event) {})
	require.ErrorIs(t, err, ErrClientClosed)
}

func TestClient_Queries(t *testing.T) {
	c, clk := newTestClient(t)
	fn := func(v string) FetchFunc[string] {
		return func(ctx context.Context) (string, error) { return v, nil }
	}

	_, err := NewObserver(c, NewKey("never"), fn("n"))
	require.NoError(t, err)
	older, err := NewObserver(c, NewKey("post", 1), fn("a"))
	require.NoError(t, err)
	newer, err := NewObserver(c, NewKey("post", 2), fn("b"))
	require.NoError(t, err)

	require.NoError(t, older.Refetch(t.Context()))
	clk.Advance(time.Second)
	require.NoError(t, newer.Refetch(t.Context()))

	snaps := c.Queries()
	require.Len(t, snaps, 3)
	require.Equal(t, `["post",2]`, snaps[0].Hash)
	require.Equal(t, `["post",1]`, snaps[1].Hash)
	require.Equal(t, `["never"]`, snaps[2].Hash)

	require.Equal(t, StatusSuccess, snaps[0].Status)
	require.Equal(t, epoch.Add(time.Second), snaps[0].LastFetchedAt)
	require.Equal(t, Key{"post", 2}, snaps[0].Key)
	require.Len(t, snaps[0].ID, 16)
	require.True(t, snaps[2].IsLoading)

	s, ok := c.Query(snaps[1].ID)
	require.True(t, ok)
	require.Equal(t, snaps[1], s)

	_, ok = c.Query("nope")
	require.False(t, ok)

	// snapshots are copies
	snaps[0].Key[0] = "mutated"
	require.Equal(t, NewKey("post", 2), newer.Key())
}

func TestClient_Close(t *testing.T) {
	c, clk := newTestClient(t)

	started := make(chan struct{})
	o, err := NewObserver(c, NewKey("k"), func(ctx context.Context) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
	require.NoError(t, err)
	unsubscribe := o.Subscribe(func() {})
	<-started

	done := make(chan error, 1)
	go func() { done <- o.Refetch(context.Background()) }()

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.ErrorIs(t, <-done, ErrClientClosed)

	// reads still work and see the last state
	require.Equal(t, StatusFetching, o.Result().Status)
	require.Equal(t, 1, c.Len())
	require.Len(t, c.Queries(), 1)

	// mutations are no-ops
	unsubscribe()
	o.Subscribe(func() {})()
	require.ErrorIs(t, o.Refetch(t.Context()), ErrClientClosed)
	require.Equal(t, 0, clk.Pending())
}

func TestClient_CallbackPanic(t *testing.T) {
	c, _ := newTestClient(t)
	fetch := newGated[int]()

	a, err := NewObserver(c, NewKey("k"), fetch.fetch)
	require.NoError(t, err)
	b, err := NewObserver(c, NewKey("k"), fetch.fetch)
	require.NoError(t, err)

	var calls counter
	defer a.Subscribe(func() { panic("bad consumer") })()
	defer b.Subscribe(calls.inc)()

	fetch.resolve(t, 1)
	eventually(t, settled(b))
	flush(t, c)
	require.Equal(t, 2, calls.get())
}

type recordingMetrics struct {
	nopMetrics

	mu           sync.Mutex
	completed    map[bool]int
	deduplicated int
	evicted      int
	queries      int
	observers    int
	delivered    int
}

func (m *recordingMetrics) FetchCompleted(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completed == nil {
		m.completed = map[bool]int{}
	}
	m.completed[success]++
}

func (m *recordingMetrics) FetchDeduplicated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deduplicated++
}

func (m *recordingMetrics) QueriesActive(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = n
}

func (m *recordingMetrics) QueryEvicted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evicted++
}

func (m *recordingMetrics) ObserversActive(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = n
}

func (m *recordingMetrics) NotificationsDelivered(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered += n
}

func TestClient_Metrics(t *testing.T) {
	m := &recordingMetrics{}
	c, clk := newTestClient(t, WithMetrics(m), WithCacheTime(time.Second))
	fetch := newGated[int]()

	a, err := NewObserver(c, NewKey("k"), fetch.fetch)
	require.NoError(t, err)
	b, err := NewObserver(c, NewKey("k"), fetch.fetch)
	require.NoError(t, err)

	unsubscribeA := a.Subscribe(func() {})
	unsubscribeB := b.Subscribe(func() {})
	fetch.resolve(t, 1)
	eventually(t, settled(a))
	flush(t, c)

	m.mu.Lock()
	assert.Equal(t, 1, m.completed[true])
	assert.Equal(t, 1, m.deduplicated)
	assert.Equal(t, 1, m.queries)
	assert.Equal(t, 2, m.observers)
	assert.Positive(t, m.delivered)
	m.mu.Unlock()

	unsubscribeA()
	unsubscribeB()
	clk.Advance(time.Second)
	require.Equal(t, 0, c.Len())

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 1, m.evicted)
	assert.Equal(t, 0, m.queries)
	assert.Equal(t, 0, m.observers)
}
