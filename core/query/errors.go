package query

import (
	"errors"
	"fmt"
)

var (
	// Caller contract violations, returned before anything is cached.
	ErrClientRequired    = errors.New("query client is required")
	ErrKeyRequired       = errors.New("query key is required")
	ErrInvalidKey        = errors.New("invalid query key")
	ErrFetchFuncRequired = errors.New("fetch function is required")
	ErrCallbackRequired  = errors.New("callback is required")

	ErrClientClosed = errors.New("query client closed")

	// ErrTimerArmed reports an attempt to arm a gc timer that is already armed.
	ErrTimerArmed = errors.New("gc timer already armed")
)

// PanicError is stored as the query error when a fetch function panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("fetch panicked: %v", e.Value) }
