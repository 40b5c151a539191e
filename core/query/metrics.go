package query

import "github.com/codewandler/query-go/core/metrics"

// Metrics defines the metrics interface of the query client.
// All methods must be safe for concurrent use.
type Metrics interface {
	// Fetches
	FetchDuration() metrics.Timer
	FetchCompleted(success bool)
	// FetchDeduplicated counts fetch requests that joined an in-flight task.
	FetchDeduplicated()

	// Registry
	QueriesActive(count int)
	QueryEvicted()
	ObserversActive(count int)

	// NotificationsDelivered counts callbacks invoked by one notification pass.
	NotificationsDelivered(count int)
}

type nopMetrics struct{}

func (nopMetrics) FetchDuration() metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) FetchCompleted(bool)          {}
func (nopMetrics) FetchDeduplicated()           {}

func (nopMetrics) QueriesActive(int)   {}
func (nopMetrics) QueryEvicted()       {}
func (nopMetrics) ObserversActive(int) {}

func (nopMetrics) NotificationsDelivered(int) {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
