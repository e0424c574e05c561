package ir

import (
	"fmt"
	"strings"
	"time"
)

// Event is one immutable record appended to a topic.
//
// Sequence is the per-topic logical clock: strictly increasing, gap-free,
// starting at 1. ReceivedAt is informational only and never used for ordering.
type Event struct {
	ID          string    `json:"id"`
	Topic       string    `json:"topic"`
	Sequence    int64     `json:"sequence"`
	ContentHash string    `json:"content_hash"`
	Payload     IRObject  `json:"payload"`
	ReceivedAt  time.Time `json:"received_at"`
}

// IDField is the implicit field path every topic can be filtered on.
const IDField = "id"

// PayloadPrefix roots every declared index path.
const PayloadPrefix = "payload."

// Field extracts the value at a dotted field path ("id" or "payload.a.b").
// Reports false when any segment is missing.
func (e Event) Field(path string) (IRValue, bool) {
	if path == IDField {
		return IRString(e.ID), true
	}
	rest, ok := strings.CutPrefix(path, PayloadPrefix)
	if !ok {
		return nil, false
	}
	return Lookup(e.Payload, rest)
}

// Lookup walks a dotted path into obj. Only object members are traversed;
// array elements are not addressable.
func Lookup(obj IRObject, path string) (IRValue, bool) {
	if path == "" {
		return nil, false
	}
	var cur IRValue = obj
	for _, seg := range strings.Split(path, ".") {
		o, ok := cur.(IRObject)
		if !ok {
			return nil, false
		}
		cur, ok = o[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// ValidFieldPath reports whether path is "id" or a well-formed payload path.
func ValidFieldPath(path string) error {
	if path == IDField {
		return nil
	}
	rest, ok := strings.CutPrefix(path, PayloadPrefix)
	if !ok {
		return fmt.Errorf("field path %q must be %q or start with %q", path, IDField, PayloadPrefix)
	}
	for _, seg := range strings.Split(rest, ".") {
		if seg == "" {
			return fmt.Errorf("field path %q has an empty segment", path)
		}
	}
	return nil
}

// Cardinality is the result shape of an operation.
type Cardinality int

const (
	// Singleton yields at most one event: the highest-sequence match.
	Singleton Cardinality = iota + 1
	// Vector yields every match in ascending sequence order.
	Vector
)

// String implements fmt.Stringer.
func (c Cardinality) String() string {
	switch c {
	case Singleton:
		return "singleton"
	case Vector:
		return "vector"
	default:
		return fmt.Sprintf("Cardinality(%d)", int(c))
	}
}

// ParseCardinality parses "singleton" or "vector".
func ParseCardinality(s string) (Cardinality, error) {
	switch s {
	case "singleton":
		return Singleton, nil
	case "vector":
		return Vector, nil
	default:
		return 0, fmt.Errorf("unknown cardinality %q (want singleton or vector)", s)
	}
}
