package query

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, opts ...Option) (*Client, *FakeClock) {
	t.Helper()
	clk := NewFakeClock(epoch)
	c := NewClient(append([]Option{WithClock(clk), WithContext(t.Context())}, opts...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c, clk
}

// flush waits until every notification pass queued so far was delivered.
func flush(t *testing.T, c *Client) {
	t.Helper()
	delivered := make(chan struct{})
	require.NoError(t, c.exec(func() {
		c.notifier.enqueue([]func(){func() { close(delivered) }})
	}))
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for notifications")
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, time.Millisecond)
}

type outcome[T any] struct {
	v   T
	err error
}

// gated is a fetch function whose calls block until resolve or reject.
type gated[T any] struct {
	calls   atomic.Int32
	results chan outcome[T]
}

func newGated[T any]() *gated[T] {
	return &gated[T]{results: make(chan outcome[T])}
}

func (g *gated[T]) fetch(ctx context.Context) (T, error) {
	g.calls.Add(1)
	select {
	case o := <-g.results:
		return o.v, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (g *gated[T]) resolve(t *testing.T, v T) { g.send(t, outcome[T]{v: v}) }

func (g *gated[T]) reject(t *testing.T, err error) { g.send(t, outcome[T]{err: err}) }

func (g *gated[T]) send(t *testing.T, o outcome[T]) {
	t.Helper()
	select {
	case g.results <- o:
	case <-time.After(time.Second):
		t.Fatal("no fetch waiting")
	}
}

// counter counts onChange calls.
type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func settled[T any](o *Observer[T]) func() bool {
	return func() bool {
		r := o.Result()
		return !r.IsFetching && !r.IsLoading
	}
}

func posts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "post"
	}
	return out
}
