package query

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

// notifier runs callbacks outside the client loop. Each pass is a slice of
// callbacks captured by the loop at mutation time; passes run one after the
// other on a single goroutine, in the order they were enqueued.
type notifier struct {
	log       *slog.Logger
	delivered func(count int)

	mu    sync.Mutex
	queue [][]func()

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newNotifier(log *slog.Logger, delivered func(count int)) *notifier {
	n := &notifier{
		log:       log,
		delivered: delivered,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go n.run()
	return n
}

// enqueue never blocks.
func (n *notifier) enqueue(pass []func()) {
	if len(pass) == 0 {
		return
	}

	n.mu.Lock()
	n.queue = append(n.queue, pass)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// close delivers what is already queued, then stops. It does not wait, so it
// is safe to call from inside a callback.
func (n *notifier) close() { close(n.stop) }

func (n *notifier) run() {
	defer close(n.done)

	for {
		select {
		case <-n.wake:
			n.drain()
		case <-n.stop:
			n.drain()
			return
		}
	}
}

func (n *notifier) drain() {
	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			n.mu.Unlock()
			return
		}
		pass := n.queue[0]
		n.queue[0] = nil
		n.queue = n.queue[1:]
		n.mu.Unlock()

		for _, fn := range pass {
			n.call(fn)
		}
		n.delivered(len(pass))
	}
}

func (n *notifier) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("callback panicked", slog.Any("recovered", r), slog.String("stack", string(debug.Stack())))
		}
	}()
	fn()
}
