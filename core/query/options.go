package query

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultCacheTime is how long a query without observers stays cached.
	DefaultCacheTime = 5 * time.Minute

	defaultMailboxSize = 256
)

type options struct {
	ctx         context.Context
	log         *slog.Logger
	clock       Clock
	metrics     Metrics
	cacheTime   time.Duration
	mailboxSize int
}

// Option configures a Client.
type Option func(*options)

func newOptions(opts ...Option) options {
	o := options{
		ctx:         context.Background(),
		log:         slog.New(slog.DiscardHandler),
		clock:       realClock{},
		metrics:     NopMetrics(),
		cacheTime:   DefaultCacheTime,
		mailboxSize: defaultMailboxSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithContext sets the parent of the context handed to fetch functions.
// Close cancels the derived context.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// WithLogger sets the logger. Logging is discarded by default.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithClock sets a custom clock. Useful for testing staleness and eviction.
func WithClock(clk Clock) Option {
	return func(o *options) {
		if clk != nil {
			o.clock = clk
		}
	}
}

// WithMetrics sets the metrics sink (default: no-op).
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithCacheTime sets how long a query without observers is kept before it
// is evicted. Zero evicts as soon as the last observer leaves; negative
// values are ignored.
func WithCacheTime(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.cacheTime = d
		}
	}
}

// WithMailboxSize sets the buffer size of the client's operation queue (default: 256).
func WithMailboxSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.mailboxSize = n
		}
	}
}

type observerOptions struct {
	staleTime time.Duration
}

// ObserverOption configures an Observer.
type ObserverOption func(*observerOptions)

// WithStaleTime sets how long fetched data counts as fresh for this
// observer. The default of zero refetches on every Subscribe.
func WithStaleTime(d time.Duration) ObserverOption {
	return func(o *observerOptions) {
		if d >= 0 {
			o.staleTime = d
		}
	}
}
