// Package ds provides small generic data structures shared by the cache core.
package ds

// Set is an ordered set: O(1) add and membership, insertion-order
// iteration. Remove is O(n) as the positions behind the removed element shift.
// Subscriber lists use it so that notification order follows subscription order.
//
// The zero value is not usable, construct with [NewSet].
type Set[T comparable] struct {
	items map[T]int // value -> position in order
	order []T
}

// NewSet creates a new set with the given items.
func NewSet[T comparable](items ...T) *Set[T] {
	s := &Set[T]{items: make(map[T]int, len(items)), order: make([]T, 0, len(items))}
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// Add appends v if it is not present yet and reports whether it was added.
func (s *Set[T]) Add(v T) bool {
	if _, ok := s.items[v]; ok {
		return false
	}
	s.items[v] = len(s.order)
	s.order = append(s.order, v)
	return true
}

// Remove deletes v and reports whether it was present.
// Remaining elements keep their relative order.
func (s *Set[T]) Remove(v T) bool {
	idx, ok := s.items[v]
	if !ok {
		return false
	}
	delete(s.items, v)
	s.order = append(s.order[:idx], s.order[idx+1:]...)
	for i := idx; i < len(s.order); i++ {
		s.items[s.order[i]] = i
	}
	return true
}

// Len returns the number of elements in the set.
func (s *Set[T]) Len() int { return len(s.order) }

// IsEmpty returns true if the set contains no elements.
func (s *Set[T]) IsEmpty() bool { return len(s.order) == 0 }

// Values returns a copy of the elements in insertion order. Mutating the set
// afterwards does not affect the returned slice.
func (s *Set[T]) Values() []T {
	out := make([]T, len(s.order))
	copy(out, s.order)
	return out
}
