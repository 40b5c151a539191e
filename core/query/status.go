package query

// Status is the position of a query in the fetch state machine:
//
//	Idle -> Fetching -> Success|Error -> Fetching -> ...
//
// Idle only exists between creation and the first fetch.
type Status uint8

const (
	StatusIdle Status = iota
	StatusFetching
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusFetching:
		return "fetching"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
