package query

import "time"

// EventType tells global listeners what happened to a query.
type EventType uint8

const (
	EventAdded EventType = iota + 1
	EventUpdated
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventUpdated:
		return "updated"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

func (t EventType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Event is delivered to listeners registered with [Client.Subscribe].
type Event struct {
	Type  EventType `json:"type"`
	Query Snapshot  `json:"query"`
}

// Snapshot is the read-only, data-free view of one query used for
// diagnostics.
type Snapshot struct {
	ID            string    `json:"id"`
	Key           Key       `json:"key"`
	Hash          string    `json:"hash"`
	Status        Status    `json:"status"`
	IsLoading     bool      `json:"isLoading"`
	IsFetching    bool      `json:"isFetching"`
	Error         string    `json:"error,omitempty"`
	LastFetchedAt time.Time `json:"lastFetchedAt,omitzero"`
	Observers     int       `json:"observers"`
}
