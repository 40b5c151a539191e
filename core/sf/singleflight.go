package sf

import "golang.org/x/sync/singleflight"

// Group deduplicates concurrent function calls with the same key.
// Only the first caller executes the function; others wait and receive
// the same result.
type Group[T any] struct {
	group singleflight.Group
}

// Do executes fn for the given key, deduplicating concurrent calls.
// If a call is already in-flight for this key, Do blocks until it completes
// and returns the same result; shared reports whether the result was handed
// to more than one caller.
func (g *Group[T]) Do(key string, fn func() (T, error)) (v T, err error, shared bool) {
	res, err, shared := g.group.Do(key, func() (any, error) {
		return fn()
	})
	if res != nil {
		v = res.(T)
	}
	return v, err, shared
}

// New creates a new Group for type T.
func New[T any]() *Group[T] {
	return &Group[T]{}
}
