package query

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Key identifies one cacheable item. It is an ordered list of primitive
// values (strings, numbers, booleans). Two keys are equal iff their
// canonical serializations returned by [Key.Hash] are equal, so
// NewKey("post", 1) built in two places addresses the same query.
type Key []any

// NewKey builds a Key from the given parts.
func NewKey(parts ...any) Key { return Key(parts) }

// Validate reports whether k can be used as a query key.
func (k Key) Validate() error {
	if len(k) == 0 {
		return ErrKeyRequired
	}
	for i, part := range k {
		switch part.(type) {
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64, json.Number:
		default:
			return fmt.Errorf("%w: element %d has type %T", ErrInvalidKey, i, part)
		}
	}
	return nil
}

// Hash returns the canonical serialization of k: its JSON array encoding.
func (k Key) Hash() (string, error) {
	if err := k.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal([]any(k))
	if err != nil {
		// NaN and ±Inf have no JSON form
		return "", fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return string(data), nil
}

// String joins the key elements with ", ".
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, part := range k {
		parts[i] = fmt.Sprint(part)
	}
	return strings.Join(parts, ", ")
}
