// Package prometheus provides a Prometheus implementation of query.Metrics.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/query-go/core/metrics"
	"github.com/codewandler/query-go/core/query"
)

// timer wraps a Prometheus histogram to implement the Timer interface.
type timer struct {
	h     prometheus.Observer
	start time.Time
}

func newTimer(h prometheus.Observer) metrics.Timer {
	return &timer{h: h, start: time.Now()}
}

func (t *timer) ObserveDuration() {
	t.h.Observe(time.Since(t.start).Seconds())
}

// Default histogram buckets for fetch latency (in seconds).
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

// queryMetrics implements query.Metrics using Prometheus.
type queryMetrics struct {
	fetchDuration      prometheus.Histogram
	fetchesTotal       *prometheus.CounterVec
	fetchesDeduped     prometheus.Counter
	queriesActive      prometheus.Gauge
	evictionsTotal     prometheus.Counter
	observersActive    prometheus.Gauge
	notificationsTotal prometheus.Counter
}

// NewQueryMetrics creates the query metric families and registers them with reg.
func NewQueryMetrics(reg prometheus.Registerer) query.Metrics {
	m := &queryMetrics{
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "query_fetch_duration_seconds",
			Help:    "Fetch function execution time in seconds",
			Buckets: defaultBuckets,
		}),

		fetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "query_fetches_total",
			Help: "Total number of settled fetches",
		}, []string{"success"}),

		fetchesDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "query_fetches_deduplicated_total",
			Help: "Total number of fetch requests that joined an in-flight fetch",
		}),

		queriesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "query_queries_active",
			Help: "Number of cached queries",
		}),

		evictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "query_evictions_total",
			Help: "Total number of queries evicted after their cache time",
		}),

		observersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "query_observers_active",
			Help: "Number of subscribed observers",
		}),

		notificationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "query_notifications_total",
			Help: "Total number of change callbacks invoked",
		}),
	}

	reg.MustRegister(
		m.fetchDuration,
		m.fetchesTotal,
		m.fetchesDeduped,
		m.queriesActive,
		m.evictionsTotal,
		m.observersActive,
		m.notificationsTotal,
	)

	return m
}

func (m *queryMetrics) FetchDuration() metrics.Timer {
	return newTimer(m.fetchDuration)
}

func (m *queryMetrics) FetchCompleted(success bool) {
	m.fetchesTotal.WithLabelValues(boolToStr(success)).Inc()
}

func (m *queryMetrics) FetchDeduplicated() { m.fetchesDeduped.Inc() }

func (m *queryMetrics) QueriesActive(count int) { m.queriesActive.Set(float64(count)) }

func (m *queryMetrics) QueryEvicted() { m.evictionsTotal.Inc() }

func (m *queryMetrics) ObserversActive(count int) { m.observersActive.Set(float64(count)) }

func (m *queryMetrics) NotificationsDelivered(count int) {
	m.notificationsTotal.Add(float64(count))
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

var _ query.Metrics = (*queryMetrics)(nil)
